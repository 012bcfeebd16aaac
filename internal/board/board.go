// Package board holds the project and task model shared by the pipeline and its
// repositories.
package board

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup or fuzzy search finds nothing.
var ErrNotFound = errors.New("not found")

// Task statuses accepted by the backend.
const (
	StatusTodo       = "to-do"
	StatusInProgress = "in-progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
)

// NormalizeStatus maps free text onto a known status. Unknown values become to-do.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return s
	case "todo", "to do", "open":
		return StatusTodo
	case "in progress", "inprogress", "doing", "started":
		return StatusInProgress
	case "complete", "completed", "finished", "closed":
		return StatusDone
	}
	return StatusTodo
}

// Project is a backend project.
type Project struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Task is a backend task.
type Task struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	BlockReason string    `json:"blockReason,omitempty"`
	ProjectID   string    `json:"projectId"`
	AssignedTo  string    `json:"assignedTo,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// User is a backend account, used for assignee lookups.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ProjectUpdate carries optional project fields. Nil fields are left unchanged.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// NewTask describes a task to create.
type NewTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ProjectID   string  `json:"projectId"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
}

// TaskUpdate carries optional task fields. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	BlockReason *string `json:"blockReason,omitempty"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
}

// ProjectRepository manages projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, name, description string) (*Project, error)
	// SearchProject returns the single best fuzzy match or ErrNotFound.
	SearchProject(ctx context.Context, text string) (*Project, error)
	UpdateProject(ctx context.Context, id string, upd ProjectUpdate) (*Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// TaskRepository manages tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, in NewTask) (*Task, error)
	// SearchTask returns the single best fuzzy match or ErrNotFound.
	SearchTask(ctx context.Context, text string) (*Task, error)
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Repository is implemented by stores that manage both projects and tasks.
type Repository interface {
	ProjectRepository
	TaskRepository
}
