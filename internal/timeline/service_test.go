package timeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestTimeline(t *testing.T) *TimelineService {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "timeline.db")
	svc, err := NewTimelineService(dbPath)
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Close()
		_ = os.RemoveAll(dir)
	})
	return svc
}

func TestCommandLogRoundTrip(t *testing.T) {
	svc := newTestTimeline(t)

	rec := &CommandRecord{
		TraceID:          "trace-1",
		Sender:           "U123",
		Channel:          "slack",
		Input:            "Create a project called Website",
		Intent:           "create_project",
		Model:            "gemini/gemini-2.0-flash",
		Reply:            "ACTION: Create Project\nPROJECT TITLE: Website",
		Actions:          []string{"Create Project", "Create Task"},
		Success:          true,
		Message:          "Project 'Website' created successfully",
		CreatedProjectID: "p1",
		CreatedTaskIDs:   []string{"t1", "t2"},
		DurationMs:       42,
	}
	if err := svc.LogCommand(rec); err != nil {
		t.Fatalf("log command: %v", err)
	}
	if rec.ID == 0 || rec.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled, got %+v", rec)
	}

	got, err := svc.GetCommandByTraceID("trace-1")
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if got == nil {
		t.Fatal("expected command")
	}
	if got.Input != rec.Input || got.Intent != "create_project" || !got.Success {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Actions) != 2 || got.Actions[1] != "Create Task" {
		t.Errorf("unexpected actions %v", got.Actions)
	}
	if len(got.CreatedTaskIDs) != 2 || got.CreatedTaskIDs[0] != "t1" {
		t.Errorf("unexpected task ids %v", got.CreatedTaskIDs)
	}
	if got.CreatedProjectID != "p1" || got.DurationMs != 42 {
		t.Errorf("unexpected created project / duration %+v", got)
	}
}

func TestLogCommandRequiresTrace(t *testing.T) {
	svc := newTestTimeline(t)
	if err := svc.LogCommand(&CommandRecord{Input: "x"}); err == nil {
		t.Fatal("expected error without trace id")
	}
}

func TestGetCommandMissing(t *testing.T) {
	svc := newTestTimeline(t)
	got, err := svc.GetCommandByTraceID("nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func TestListCommandsNewestFirstAndFilters(t *testing.T) {
	svc := newTestTimeline(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, c := range []struct {
		sender  string
		success bool
	}{
		{"alice", true},
		{"bob", false},
		{"alice", false},
	} {
		err := svc.LogCommand(&CommandRecord{
			TraceID:   "trace-" + string(rune('a'+i)),
			Sender:    c.sender,
			Channel:   "cli",
			Input:     "cmd",
			Success:   c.success,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("log command %d: %v", i, err)
		}
	}

	all, err := svc.ListCommands(CommandFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].TraceID != "trace-c" || all[2].TraceID != "trace-a" {
		t.Fatalf("expected newest first, got %v", traceIDs(all))
	}

	alice, _ := svc.ListCommands(CommandFilter{Sender: "alice"})
	if len(alice) != 2 {
		t.Errorf("expected 2 commands for alice, got %d", len(alice))
	}
	fails, _ := svc.ListCommands(CommandFilter{OnlyFails: true})
	if len(fails) != 2 {
		t.Errorf("expected 2 failures, got %d", len(fails))
	}
	page, _ := svc.ListCommands(CommandFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].TraceID != "trace-b" {
		t.Errorf("unexpected page %v", traceIDs(page))
	}
	if page[0].CreatedTaskIDs != nil {
		t.Errorf("empty task ids should decode to nil, got %v", page[0].CreatedTaskIDs)
	}
}

func TestStats(t *testing.T) {
	svc := newTestTimeline(t)
	svc.LogCommand(&CommandRecord{TraceID: "a", Input: "x", Success: true})
	svc.LogCommand(&CommandRecord{TraceID: "b", Input: "x"})
	svc.LogCommand(&CommandRecord{TraceID: "c", Input: "x", Canceled: true})

	st, err := svc.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Succeeded != 1 || st.Failed != 1 || st.Canceled != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestPolicyDecisionLog(t *testing.T) {
	svc := newTestTimeline(t)
	decisions := []PolicyDecisionRecord{
		{TraceID: "trace-1", Intent: "delete_project", Tier: 2, Sender: "alice", Channel: "slack", Allowed: false, Reason: "intent_mismatch"},
		{TraceID: "trace-1", Intent: "delete_project", Tier: 2, Sender: "alice", Channel: "slack", Allowed: true, Reason: "tier_2_auto_approved"},
		{TraceID: "trace-2", Tier: 0, Allowed: true},
	}
	for i := range decisions {
		if err := svc.LogPolicyDecision(&decisions[i]); err != nil {
			t.Fatalf("log decision: %v", err)
		}
	}

	got, err := svc.ListPolicyDecisions("trace-1")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got[0].Allowed || got[0].Reason != "intent_mismatch" || got[1].Reason != "tier_2_auto_approved" {
		t.Errorf("unexpected decisions %+v", got)
	}
}

func traceIDs(recs []CommandRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.TraceID
	}
	return out
}

func TestReopenKeepsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "timeline.db")
	svc, err := NewTimelineService(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.LogCommand(&CommandRecord{TraceID: "trace-keep", Input: "Delete the Foo project", Model: "openai/gpt-4o-mini"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	svc.Close()

	svc, err = NewTimelineService(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer svc.Close()
	rec, err := svc.GetCommandByTraceID("trace-keep")
	if err != nil || rec == nil {
		t.Fatalf("get: rec=%v err=%v", rec, err)
	}
	if rec.Model != "openai/gpt-4o-mini" || rec.Input != "Delete the Foo project" {
		t.Fatalf("unexpected record %+v", rec)
	}
}
