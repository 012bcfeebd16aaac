// Package executor runs a validated command batch against the project and task
// repositories, one action at a time.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KafClaw/taskclaw/internal/action"
	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/command"
)

// Result is the outcome of one processed command.
type Result struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	Actions          []string `json:"actions"`
	CreatedProjectID string   `json:"createdProjectId,omitempty"`
	CreatedTaskIDs   []string `json:"createdTaskIds"`
	Canceled         bool     `json:"canceled"`
	DryRun           bool     `json:"dryRun"`
}

// Failure builds an unsuccessful result carrying msg.
func Failure(msg string) Result {
	return Result{Message: msg, Actions: []string{}, CreatedTaskIDs: []string{}}
}

// Executor applies actions in order. It holds no per-command state and is safe
// for concurrent use when the repositories are.
type Executor struct {
	projects board.ProjectRepository
	tasks    board.TaskRepository
}

// New creates an executor over the given repositories.
func New(projects board.ProjectRepository, tasks board.TaskRepository) *Executor {
	return &Executor{projects: projects, tasks: tasks}
}

type outcome int

const (
	failed outcome = iota
	succeeded
	stopped
	canceled
)

// run is the state carried between the actions of one batch.
type run struct {
	cmd               command.Command
	resolvedProjectID string
	createdProjectID  string
	createdTaskIDs    []string
	lines             []string
}

func (r *run) say(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// Execute runs actions in order against cmd. A failed project creation or an
// unresolvable project for task creation stops the batch; other failures are
// reported and the batch continues. Cancellation stops the batch and reports
// everything already committed.
func (e *Executor) Execute(ctx context.Context, cmd command.Command, actions []action.Action) Result {
	r := &run{cmd: cmd}
	ok := 0
	final := succeeded

loop:
	for _, a := range actions {
		if ctx.Err() != nil {
			final = canceled
			break
		}
		var out outcome
		switch {
		case action.IsDestructive(a) && !command.Present(r.cmd.SearchText):
			noun := "task"
			if a == action.DeleteProject {
				noun = "project"
			}
			slog.Warn("Executor: destructive action without identifier", "action", string(a))
			r.say("⚠️ Delete operation blocked: No %s identifier specified", noun)
			out = failed
		case a == action.CreateProject:
			out = e.createProject(ctx, r)
		case a == action.CreateTask:
			out = e.createTasks(ctx, r)
		case a == action.UpdateProject:
			out = e.updateProject(ctx, r)
		case a == action.DeleteProject:
			out = e.deleteProject(ctx, r)
		case a == action.UpdateTask:
			out = e.updateTask(ctx, r)
		case a == action.DeleteTask:
			out = e.deleteTask(ctx, r)
		case a == action.AssignTask:
			out = e.assignTask(ctx, r)
		default:
			r.say("Unknown action: %s", string(a))
			out = failed
		}
		switch out {
		case succeeded:
			ok++
		case stopped, canceled:
			final = out
			break loop
		}
	}

	res := Result{
		Success:          final == succeeded && ok > 0,
		Message:          strings.Join(r.lines, "\n"),
		Actions:          make([]string, 0, len(actions)),
		CreatedProjectID: r.createdProjectID,
		CreatedTaskIDs:   append([]string{}, r.createdTaskIDs...),
		Canceled:         final == canceled,
	}
	for _, a := range actions {
		res.Actions = append(res.Actions, string(a))
	}
	if res.Canceled {
		slog.Warn("Executor: batch canceled", "committed_lines", len(r.lines))
		if res.Message == "" {
			res.Message = "Command canceled."
		} else {
			res.Message += "\nCommand canceled."
		}
	}
	return res
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Executor) createProject(ctx context.Context, r *run) outcome {
	title := r.cmd.EffectiveTitle()
	desc := r.cmd.EffectiveDescription()
	if desc == "" {
		desc = title
	}
	p, err := e.projects.CreateProject(ctx, title, desc)
	if err != nil {
		if isCancel(err) {
			return canceled
		}
		slog.Error("Executor: create project failed", "title", title, "error", err)
		r.say("Failed to create project: %s", err.Error())
		return stopped
	}
	r.resolvedProjectID = p.ID
	r.createdProjectID = p.ID
	r.say("Project '%s' created successfully", p.Name)
	slog.Info("Executor: project created", "id", p.ID, "name", p.Name)
	return succeeded
}

func (e *Executor) createTasks(ctx context.Context, r *run) outcome {
	if r.resolvedProjectID == "" {
		if !command.Present(r.cmd.SearchText) {
			r.say("Cannot create tasks: No project ID available. Please specify the project name to search for.")
			return failed
		}
		p, err := e.projects.SearchProject(ctx, *r.cmd.SearchText)
		if err != nil {
			if isCancel(err) {
				return canceled
			}
			slog.Warn("Executor: project for tasks not found", "search", *r.cmd.SearchText, "error", err)
			r.say("Cannot create tasks: Project not found. %s", notFoundDetail(err, *r.cmd.SearchText))
			return stopped
		}
		r.resolvedProjectID = p.ID
	}

	created := 0
	for _, t := range r.cmd.Tasks {
		if ctx.Err() != nil {
			return canceled
		}
		task, err := e.tasks.CreateTask(ctx, board.NewTask{
			Title:       t.Title,
			Description: t.Description,
			ProjectID:   r.resolvedProjectID,
			Status:      board.NormalizeStatus(t.Status),
			AssignedTo:  t.AssignedTo,
		})
		if err != nil {
			if isCancel(err) {
				return canceled
			}
			slog.Error("Executor: create task failed", "title", t.Title, "error", err)
			r.say("Failed to create task '%s': %s", t.Title, err.Error())
			continue
		}
		created++
		r.createdTaskIDs = append(r.createdTaskIDs, task.ID)
		r.say("Task '%s' created", task.Title)
	}
	if created == 0 {
		return failed
	}
	return succeeded
}

func (e *Executor) findProject(ctx context.Context, r *run) (*board.Project, outcome) {
	p, err := e.projects.SearchProject(ctx, command.Value(r.cmd.SearchText))
	if err != nil {
		if isCancel(err) {
			return nil, canceled
		}
		r.say("Project not found: %s", notFoundDetail(err, command.Value(r.cmd.SearchText)))
		return nil, failed
	}
	return p, succeeded
}

func (e *Executor) findTask(ctx context.Context, r *run) (*board.Task, outcome) {
	t, err := e.tasks.SearchTask(ctx, command.Value(r.cmd.SearchText))
	if err != nil {
		if isCancel(err) {
			return nil, canceled
		}
		r.say("Task not found: %s", notFoundDetail(err, command.Value(r.cmd.SearchText)))
		return nil, failed
	}
	return t, succeeded
}

func (e *Executor) updateProject(ctx context.Context, r *run) outcome {
	p, out := e.findProject(ctx, r)
	if out != succeeded {
		return out
	}
	r.resolvedProjectID = p.ID
	updated, err := e.projects.UpdateProject(ctx, p.ID, board.ProjectUpdate{
		Name:        r.cmd.Title,
		Description: r.cmd.Description,
	})
	if err != nil {
		if isCancel(err) {
			return canceled
		}
		r.say("Failed to update project: %s", err.Error())
		return failed
	}
	name := updated.Name
	if name == "" {
		name = p.Name
	}
	r.say("Project '%s' updated successfully", name)
	return succeeded
}

func (e *Executor) deleteProject(ctx context.Context, r *run) outcome {
	p, out := e.findProject(ctx, r)
	if out != succeeded {
		return out
	}
	slog.Warn("Executor: deleting project", "id", p.ID, "name", p.Name)
	if err := e.projects.DeleteProject(ctx, p.ID); err != nil {
		if isCancel(err) {
			return canceled
		}
		r.say("Failed to delete project: %s", err.Error())
		return failed
	}
	r.say("Project '%s' deleted successfully", p.Name)
	return succeeded
}

func (e *Executor) updateTask(ctx context.Context, r *run) outcome {
	t, out := e.findTask(ctx, r)
	if out != succeeded {
		return out
	}
	upd := board.TaskUpdate{
		Title:       r.cmd.Title,
		Description: r.cmd.Description,
		AssignedTo:  r.cmd.AssignedTo,
	}
	if command.Present(r.cmd.Status) {
		s := board.NormalizeStatus(*r.cmd.Status)
		upd.Status = &s
	}
	updated, err := e.tasks.UpdateTask(ctx, t.ID, upd)
	if err != nil {
		if isCancel(err) {
			return canceled
		}
		r.say("Failed to update task: %s", err.Error())
		return failed
	}
	title := updated.Title
	if title == "" {
		title = t.Title
	}
	r.say("Task '%s' updated successfully", title)
	return succeeded
}

func (e *Executor) deleteTask(ctx context.Context, r *run) outcome {
	t, out := e.findTask(ctx, r)
	if out != succeeded {
		return out
	}
	slog.Warn("Executor: deleting task", "id", t.ID, "title", t.Title)
	if err := e.tasks.DeleteTask(ctx, t.ID); err != nil {
		if isCancel(err) {
			return canceled
		}
		r.say("Failed to delete task: %s", err.Error())
		return failed
	}
	r.say("Task '%s' deleted successfully", t.Title)
	return succeeded
}

func (e *Executor) assignTask(ctx context.Context, r *run) outcome {
	t, out := e.findTask(ctx, r)
	if out != succeeded {
		return out
	}
	assignee := command.Value(r.cmd.AssignedTo)
	if _, err := e.tasks.UpdateTask(ctx, t.ID, board.TaskUpdate{AssignedTo: &assignee}); err != nil {
		if isCancel(err) {
			return canceled
		}
		r.say("Failed to assign task: %s", err.Error())
		return failed
	}
	r.say("Task '%s' assigned to %s", t.Title, assignee)
	return succeeded
}

func notFoundDetail(err error, search string) string {
	if errors.Is(err, board.ErrNotFound) {
		return search
	}
	return err.Error()
}
