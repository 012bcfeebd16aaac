package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/intent"
	"github.com/KafClaw/taskclaw/internal/policy"
	"github.com/KafClaw/taskclaw/internal/provider"
	"github.com/KafClaw/taskclaw/internal/store"
	"github.com/KafClaw/taskclaw/internal/timeline"
)

// scriptedGenerator replies with a fixed text, streamed in small fragments.
type scriptedGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	notReady bool
	prompts  []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (provider.Stream, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	var chunks []string
	for s := g.reply; s != ""; {
		n := min(len(s), 7)
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return &chunkStream{chunks: chunks}, nil
}

func (g *scriptedGenerator) Ready() bool   { return !g.notReady }
func (g *scriptedGenerator) Model() string { return "test/scripted" }

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type chunkStream struct {
	chunks []string
	err    error
}

func (s *chunkStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkStream) Close() error { return nil }

// recordingRepo is an in-memory board.Repository that logs every call.
type recordingRepo struct {
	mu       sync.Mutex
	projects []board.Project
	tasks    []board.Task
	calls    []string
	nextID   int
}

func (r *recordingRepo) log(call string) {
	r.calls = append(r.calls, call)
}

func (r *recordingRepo) newID(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s%d", prefix, r.nextID)
}

func (r *recordingRepo) CreateProject(_ context.Context, name, desc string) (*board.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("CreateProject:" + name + "|" + desc)
	p := board.Project{ID: r.newID("p"), Name: name, Description: desc}
	r.projects = append(r.projects, p)
	return &p, nil
}

func (r *recordingRepo) SearchProject(_ context.Context, text string) (*board.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("SearchProject:" + text)
	for _, p := range r.projects {
		if strings.EqualFold(p.Name, text) {
			cp := p
			return &cp, nil
		}
	}
	return nil, board.ErrNotFound
}

func (r *recordingRepo) UpdateProject(_ context.Context, id string, upd board.ProjectUpdate) (*board.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("UpdateProject:" + id)
	for i := range r.projects {
		if r.projects[i].ID == id {
			if upd.Name != nil {
				r.projects[i].Name = *upd.Name
			}
			cp := r.projects[i]
			return &cp, nil
		}
	}
	return nil, board.ErrNotFound
}

func (r *recordingRepo) DeleteProject(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("DeleteProject:" + id)
	for i := range r.projects {
		if r.projects[i].ID == id {
			r.projects = append(r.projects[:i], r.projects[i+1:]...)
			return nil
		}
	}
	return board.ErrNotFound
}

func (r *recordingRepo) CreateTask(_ context.Context, in board.NewTask) (*board.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("CreateTask:" + in.Title + "@" + in.ProjectID)
	t := board.Task{ID: r.newID("t"), Title: in.Title, ProjectID: in.ProjectID, Status: in.Status}
	r.tasks = append(r.tasks, t)
	return &t, nil
}

func (r *recordingRepo) SearchTask(_ context.Context, text string) (*board.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("SearchTask:" + text)
	for _, t := range r.tasks {
		if strings.EqualFold(t.Title, text) {
			cp := t
			return &cp, nil
		}
	}
	return nil, board.ErrNotFound
}

func (r *recordingRepo) UpdateTask(_ context.Context, id string, _ board.TaskUpdate) (*board.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("UpdateTask:" + id)
	return &board.Task{ID: id}, nil
}

func (r *recordingRepo) DeleteTask(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("DeleteTask:" + id)
	return nil
}

func (r *recordingRepo) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestPipeline(gen provider.Generator, repo board.Repository) *Pipeline {
	return NewPipeline(PipelineOptions{Generator: gen, Repository: repo})
}

func TestScenarioCreateProject(t *testing.T) {
	gen := &scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Website Revamp\nDESCRIPTION: Refresh the company website."}
	repo := &recordingRepo{}
	p := newTestPipeline(gen, repo)

	res := p.ProcessCommand(context.Background(), "Create a project called Website Revamp")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.CreatedProjectID == "" {
		t.Fatal("expected created project id")
	}
	calls := repo.callLog()
	if len(calls) != 1 || calls[0] != "CreateProject:Website Revamp|Refresh the company website." {
		t.Fatalf("unexpected calls %v", calls)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], `"Create a project called Website Revamp"`) {
		t.Fatalf("prompt should quote the input, got %v", gen.prompts)
	}
}

func TestScenarioDeleteProject(t *testing.T) {
	gen := &scriptedGenerator{reply: "ACTION: Delete Project\nSEARCH: Website Revamp"}
	repo := &recordingRepo{projects: []board.Project{{ID: "p9", Name: "Website Revamp"}}}
	p := newTestPipeline(gen, repo)

	res := p.ProcessCommand(context.Background(), "Delete the Website Revamp project")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if !strings.Contains(res.Message, "Website Revamp") || !strings.Contains(res.Message, "deleted") {
		t.Errorf("message should name the deleted project, got %q", res.Message)
	}
	calls := repo.callLog()
	if len(calls) != 2 || calls[0] != "SearchProject:Website Revamp" || calls[1] != "DeleteProject:p9" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestScenarioCreateTaskSearchesProject(t *testing.T) {
	reply := "ACTION: Create Task\nSEARCH: Website Revamp\nTASKS:\n- Design homepage | Layout and visuals for the landing page"

	t.Run("found", func(t *testing.T) {
		repo := &recordingRepo{projects: []board.Project{{ID: "p1", Name: "Website Revamp"}}}
		p := newTestPipeline(&scriptedGenerator{reply: reply}, repo)
		res := p.ProcessCommand(context.Background(), "Create task for Website Revamp: Design homepage")
		if !res.Success || len(res.CreatedTaskIDs) != 1 {
			t.Fatalf("expected one created task, got %+v", res)
		}
		calls := repo.callLog()
		if len(calls) != 2 || calls[0] != "SearchProject:Website Revamp" || calls[1] != "CreateTask:Design homepage@p1" {
			t.Fatalf("unexpected calls %v", calls)
		}
	})

	t.Run("missing project", func(t *testing.T) {
		repo := &recordingRepo{}
		p := newTestPipeline(&scriptedGenerator{reply: reply}, repo)
		res := p.ProcessCommand(context.Background(), "Create task for Website Revamp: Design homepage")
		if res.Success {
			t.Fatal("expected failure when the project cannot be found")
		}
		if len(res.CreatedTaskIDs) != 0 {
			t.Fatalf("expected zero tasks, got %v", res.CreatedTaskIDs)
		}
		for _, c := range repo.callLog() {
			if strings.HasPrefix(c, "CreateTask") {
				t.Fatalf("no task may be created, calls %v", repo.callLog())
			}
		}
	})
}

func TestSafetyBlocksContradictingAction(t *testing.T) {
	gen := &scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Website Revamp\nDESCRIPTION: x"}
	repo := &recordingRepo{}
	p := newTestPipeline(gen, repo)

	res := p.ProcessCommand(context.Background(), "Delete Website Revamp project")
	if res.Success {
		t.Fatal("expected safety block")
	}
	if !strings.Contains(res.Message, "DELETE") || !strings.Contains(res.Message, `"Delete Website Revamp project"`) {
		t.Errorf("message should name the contradiction and quote the request, got %q", res.Message)
	}
	if calls := repo.callLog(); len(calls) != 0 {
		t.Fatalf("expected zero repository calls, got %v", calls)
	}
}

func TestEmptyReply(t *testing.T) {
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "  \n\t"}, repo)
	res := p.ProcessCommand(context.Background(), "Create a project called X")
	if res.Success || !strings.Contains(res.Message, "empty response") {
		t.Fatalf("expected empty response failure, got %+v", res)
	}
	if len(repo.callLog()) != 0 {
		t.Fatal("no repository call expected")
	}
}

func TestNotReadySkipsEverything(t *testing.T) {
	gen := &scriptedGenerator{notReady: true}
	p := newTestPipeline(gen, &recordingRepo{})
	res := p.ProcessCommand(context.Background(), "Create a project called X")
	if res.Success || res.Message != msgNotReady {
		t.Fatalf("unexpected result %+v", res)
	}
	if gen.calls() != 0 {
		t.Fatal("generator must not be called")
	}
}

func TestNilGeneratorIsNotReady(t *testing.T) {
	p := NewPipeline(PipelineOptions{Repository: &recordingRepo{}})
	if res := p.ProcessCommand(context.Background(), "Create a project called X"); res.Message != msgNotReady {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUnknownIntentSkipsModel(t *testing.T) {
	gen := &scriptedGenerator{reply: "ACTION: Create Project\nTITLE: X"}
	p := NewPipeline(PipelineOptions{Generator: gen, Repository: &recordingRepo{}, Classifier: intent.Classifier{Strict: true}})

	res := p.ProcessCommand(context.Background(), "what's the weather like")
	if res.Success || res.Message != msgUnknown {
		t.Fatalf("unexpected result %+v", res)
	}
	if gen.calls() != 0 {
		t.Fatal("model must not be called for an unknown intent")
	}
}

func TestGenerationError(t *testing.T) {
	p := newTestPipeline(&scriptedGenerator{err: errors.New("rate limited")}, &recordingRepo{})
	res := p.ProcessCommand(context.Background(), "Create a project called X")
	if res.Success || res.Message != "AI generation failed: rate limited" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerationNotReadyError(t *testing.T) {
	p := newTestPipeline(&scriptedGenerator{err: provider.ErrNotReady}, &recordingRepo{})
	res := p.ProcessCommand(context.Background(), "Create a project called X")
	if res.Message != msgModelNotReady {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerationCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "ACTION: Create Project\nTITLE: X"}, repo)
	res := p.ProcessCommand(ctx, "Create a project called X")
	if !res.Canceled || res.Success {
		t.Fatalf("expected canceled result, got %+v", res)
	}
	if len(repo.callLog()) != 0 {
		t.Fatal("no repository call expected")
	}
}

func TestParseFailureShowsPreview(t *testing.T) {
	reply := "I am not sure what you mean. " + strings.Repeat("x", 400)
	p := newTestPipeline(&scriptedGenerator{reply: reply}, &recordingRepo{})
	res := p.ProcessCommand(context.Background(), "Create a project called X")
	if res.Success || !strings.HasPrefix(res.Message, "Failed to understand AI response.") {
		t.Fatalf("unexpected result %+v", res)
	}
	_, preview, ok := strings.Cut(res.Message, "Raw response (first 300 chars): ")
	if !ok {
		t.Fatalf("missing preview in %q", res.Message)
	}
	if got := len([]rune(strings.TrimSuffix(preview, "..."))); got != 300 {
		t.Fatalf("expected 300 rune preview, got %d", got)
	}
}

func TestFieldValidationRejectsBatch(t *testing.T) {
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "ACTION: Update Project\nDESCRIPTION: new text"}, repo)
	res := p.ProcessCommand(context.Background(), "Update the project description")
	if res.Success || !strings.Contains(res.Message, "requires a project identifier") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(repo.callLog()) != 0 {
		t.Fatal("no repository call expected")
	}
}

func TestTierPolicyDenies(t *testing.T) {
	repo := &recordingRepo{projects: []board.Project{{ID: "p1", Name: "Old"}}}
	engine := policy.NewDefaultEngine()
	engine.MaxAutoTier = 1
	p := NewPipeline(PipelineOptions{
		Generator:  &scriptedGenerator{reply: "ACTION: Delete Project\nSEARCH: Old"},
		Repository: repo,
		Policy:     engine,
	})
	res := p.ProcessCommand(context.Background(), "Delete the Old project")
	if res.Success || !strings.Contains(res.Message, "approval") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(repo.callLog()) != 0 {
		t.Fatal("no repository call expected")
	}
}

func TestDryRunPlansWithoutExecuting(t *testing.T) {
	repo := &recordingRepo{}
	gen := &scriptedGenerator{reply: "ACTION: Create Project, Create Task\nTITLE: Launch\nTASKS:\n- Plan | Write the plan"}
	p := newTestPipeline(gen, repo)

	res := p.Process(context.Background(), Request{Text: "Create a project called Launch with tasks", DryRun: true})
	if !res.Success || !res.DryRun {
		t.Fatalf("expected dry-run success, got %+v", res)
	}
	if len(res.Actions) != 2 || res.Actions[0] != "create project" || res.Actions[1] != "create task" {
		t.Errorf("unexpected planned actions %v", res.Actions)
	}
	if !strings.Contains(res.Message, "• Create Project") || !strings.Contains(res.Message, "TITLE: Launch") {
		t.Errorf("unexpected plan message %q", res.Message)
	}
	if len(repo.callLog()) != 0 {
		t.Fatalf("dry run must not touch the repository, got %v", repo.callLog())
	}
}

func TestDryRunShowsTaskStatusAndAssignee(t *testing.T) {
	repo := &recordingRepo{}
	gen := &scriptedGenerator{reply: `{"Action":"Create Task","Search Text":"Website","Tasks":[{"Title":"Ship","Description":"Ship it","Status":"done","Assigned To":"alice"}]}`}
	p := newTestPipeline(gen, repo)

	res := p.Process(context.Background(), Request{Text: "Add a task to the Website project", DryRun: true})
	if !res.Success || !res.DryRun {
		t.Fatalf("expected dry-run success, got %+v", res)
	}
	if !strings.Contains(res.Message, "Task details:\n- Ship: status done, assigned to alice") {
		t.Errorf("plan should show what CreateTask will receive, got %q", res.Message)
	}
	if len(repo.callLog()) != 0 {
		t.Fatalf("dry run must not touch the repository, got %v", repo.callLog())
	}
}

func TestPipelineRecordsTimeline(t *testing.T) {
	dir := t.TempDir()
	tl, err := timeline.NewTimelineService(filepath.Join(dir, "timeline.db"))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	defer tl.Close()
	boardStore, err := store.Open(filepath.Join(dir, "board.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer boardStore.Close()

	p := NewPipeline(PipelineOptions{
		Generator:  &scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Website Revamp\nTASKS:\n- Design homepage | Visuals"},
		Repository: boardStore,
		Timeline:   tl,
	})
	res := p.Process(context.Background(), Request{Text: "Create a project called Website Revamp", Sender: "alice", Channel: "cli", TraceID: "trace-42"})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}

	rec, err := tl.GetCommandByTraceID("trace-42")
	if err != nil || rec == nil {
		t.Fatalf("expected recorded command, got %v, %v", rec, err)
	}
	if rec.Intent != "create_project" || rec.Sender != "alice" || rec.Model != "test/scripted" || !rec.Success {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.CreatedProjectID != res.CreatedProjectID {
		t.Errorf("created project mismatch %q vs %q", rec.CreatedProjectID, res.CreatedProjectID)
	}

	decisions, err := tl.ListPolicyDecisions("trace-42")
	if err != nil || len(decisions) != 1 || !decisions[0].Allowed {
		t.Fatalf("expected one allowed decision, got %v, %v", decisions, err)
	}

	found, err := boardStore.SearchProject(context.Background(), "website revamp")
	if err != nil || found.ID != res.CreatedProjectID {
		t.Fatalf("project not stored: %v, %v", found, err)
	}
}

func TestConcurrentCommandsAreIndependent(t *testing.T) {
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Shared"}, repo)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.ProcessCommand(context.Background(), "Create a project called Shared").Success
		}(i)
	}
	wg.Wait()
	for i, ok := range results {
		if !ok {
			t.Fatalf("command %d failed", i)
		}
	}
	if got := len(repo.callLog()); got != 8 {
		t.Fatalf("expected 8 creates, got %d", got)
	}
}
