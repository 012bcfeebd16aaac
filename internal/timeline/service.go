package timeline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type TimelineService struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &TimelineService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *TimelineService) DB() *sql.DB { return s.db }

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// LogCommand stores one processed command and fills in its ID and CreatedAt.
func (s *TimelineService) LogCommand(rec *CommandRecord) error {
	if rec.TraceID == "" {
		return errors.New("trace id required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	taskIDs, err := json.Marshal(nonNil(rec.CreatedTaskIDs))
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`INSERT INTO commands (trace_id, sender, channel, input, intent, model, reply, actions,
		success, canceled, dry_run, message, created_project_id, created_task_ids, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		rec.Sender,
		rec.Channel,
		rec.Input,
		rec.Intent,
		rec.Model,
		rec.Reply,
		strings.Join(rec.Actions, ","),
		rec.Success,
		rec.Canceled,
		rec.DryRun,
		rec.Message,
		rec.CreatedProjectID,
		string(taskIDs),
		rec.DurationMs,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

const commandColumns = `id, trace_id, COALESCE(sender,''), COALESCE(channel,''), input, COALESCE(intent,''),
	COALESCE(model,''), COALESCE(reply,''), COALESCE(actions,''), success, canceled, dry_run, COALESCE(message,''),
	COALESCE(created_project_id,''), COALESCE(created_task_ids,'[]'), duration_ms, created_at`

func scanCommand(sc interface{ Scan(...any) error }) (CommandRecord, error) {
	var r CommandRecord
	var actions, taskIDs string
	err := sc.Scan(&r.ID, &r.TraceID, &r.Sender, &r.Channel, &r.Input, &r.Intent,
		&r.Model, &r.Reply, &actions, &r.Success, &r.Canceled, &r.DryRun, &r.Message,
		&r.CreatedProjectID, &taskIDs, &r.DurationMs, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	if actions != "" {
		r.Actions = strings.Split(actions, ",")
	}
	if err := json.Unmarshal([]byte(taskIDs), &r.CreatedTaskIDs); err != nil {
		return r, fmt.Errorf("decode created task ids: %w", err)
	}
	if len(r.CreatedTaskIDs) == 0 {
		r.CreatedTaskIDs = nil
	}
	return r, nil
}

// ListCommands returns commands newest first.
func (s *TimelineService) ListCommands(filter CommandFilter) ([]CommandRecord, error) {
	query := `SELECT ` + commandColumns + ` FROM commands WHERE 1=1`
	args := []interface{}{}

	if filter.Sender != "" {
		query += " AND sender = ?"
		args = append(args, filter.Sender)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.OnlyFails {
		query += " AND success = 0"
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		r, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetCommandByTraceID returns the command with the given trace id (nil if not found).
func (s *TimelineService) GetCommandByTraceID(traceID string) (*CommandRecord, error) {
	r, err := scanCommand(s.db.QueryRow(`SELECT `+commandColumns+` FROM commands WHERE trace_id = ? LIMIT 1`, traceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// CommandStats counts stored commands.
type CommandStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// Stats returns aggregate counts over all stored commands.
func (s *TimelineService) Stats() (*CommandStats, error) {
	var st CommandStats
	err := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN success = 0 AND canceled = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN canceled = 1 THEN 1 ELSE 0 END), 0)
		FROM commands`).Scan(&st.Total, &st.Succeeded, &st.Failed, &st.Canceled)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// LogPolicyDecision records a policy evaluation result.
func (s *TimelineService) LogPolicyDecision(rec *PolicyDecisionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO policy_decisions (trace_id, intent, tier, sender, channel, allowed, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.Intent, rec.Tier, rec.Sender, rec.Channel, rec.Allowed, rec.Reason, rec.CreatedAt)
	return err
}

// ListPolicyDecisions returns policy decisions matching the given trace_id.
func (s *TimelineService) ListPolicyDecisions(traceID string) ([]PolicyDecisionRecord, error) {
	rows, err := s.db.Query(`SELECT id, COALESCE(trace_id,''), COALESCE(intent,''), tier,
		COALESCE(sender,''), COALESCE(channel,''), allowed, COALESCE(reason,''), created_at
		FROM policy_decisions WHERE trace_id = ? ORDER BY created_at ASC, id ASC`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PolicyDecisionRecord
	for rows.Next() {
		var r PolicyDecisionRecord
		if err := rows.Scan(&r.ID, &r.TraceID, &r.Intent, &r.Tier,
			&r.Sender, &r.Channel, &r.Allowed, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
