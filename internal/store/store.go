// Package store is a SQLite-backed board repository for running without the
// REST backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/KafClaw/taskclaw/internal/board"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'to-do',
	block_reason TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
`

// Store implements board.Repository on a local SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ board.Repository = (*Store)(nil)

// Open opens (or creates) the board database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open board db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, name, description string) (*board.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("Project name is required")
	}
	now := s.now()
	p := &board.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects (id, name, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, p.ID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	slog.Debug("BoardStore: project created", "id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*board.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, created_by, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	var p board.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, board.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]board.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_by, created_at, updated_at
		FROM projects ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []board.Project
	for rows.Next() {
		var p board.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SearchProject(ctx context.Context, text string) (*board.Project, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	i := BestMatch(text, names)
	if i < 0 {
		return nil, fmt.Errorf("%w: no project matching %q", board.ErrNotFound, text)
	}
	return &projects[i], nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, upd board.ProjectUpdate) (*board.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = s.now()
	_, err = s.db.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.UpdatedAt, p.ID)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes the project and its tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return board.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

const taskColumns = `id, project_id, title, description, status, block_reason, assigned_to, created_at, updated_at`

func scanTask(sc interface{ Scan(...any) error }) (board.Task, error) {
	var t board.Task
	err := sc.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.BlockReason,
		&t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) CreateTask(ctx context.Context, in board.NewTask) (*board.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("Task title is required")
	}
	if _, err := s.GetProject(ctx, in.ProjectID); err != nil {
		if errors.Is(err, board.ErrNotFound) {
			return nil, fmt.Errorf("project %s: %w", in.ProjectID, board.ErrNotFound)
		}
		return nil, err
	}
	now := s.now()
	t := &board.Task{
		ID:          uuid.NewString(),
		ProjectID:   in.ProjectID,
		Title:       title,
		Description: in.Description,
		Status:      board.NormalizeStatus(in.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.AssignedTo != nil {
		t.AssignedTo = *in.AssignedTo
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.BlockReason, t.AssignedTo, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*board.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, board.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTasks returns the tasks of one project, or every task when projectID is empty.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]board.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []board.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SearchTask(ctx context.Context, text string) (*board.Task, error) {
	tasks, err := s.ListTasks(ctx, "")
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Title
	}
	i := BestMatch(text, titles)
	if i < 0 {
		return nil, fmt.Errorf("%w: no task matching %q", board.ErrNotFound, text)
	}
	return &tasks[i], nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, upd board.TaskUpdate) (*board.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) != "" {
		t.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = board.NormalizeStatus(*upd.Status)
		if t.Status != board.StatusBlocked {
			t.BlockReason = ""
		}
	}
	if upd.BlockReason != nil {
		t.BlockReason = *upd.BlockReason
	}
	if upd.AssignedTo != nil {
		t.AssignedTo = *upd.AssignedTo
	}
	t.UpdatedAt = s.now()
	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, status = ?, block_reason = ?,
		assigned_to = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.Status, t.BlockReason, t.AssignedTo, t.UpdatedAt, t.ID)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return board.ErrNotFound
	}
	return nil
}
