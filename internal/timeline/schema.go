package timeline

import (
	"time"
)

const Schema = `
CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	sender TEXT,
	channel TEXT,
	input TEXT NOT NULL,
	intent TEXT,
	model TEXT,
	reply TEXT,
	actions TEXT DEFAULT '',
	success BOOLEAN NOT NULL DEFAULT 0,
	canceled BOOLEAN NOT NULL DEFAULT 0,
	dry_run BOOLEAN NOT NULL DEFAULT 0,
	message TEXT,
	created_project_id TEXT,
	created_task_ids TEXT DEFAULT '[]',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_commands_trace ON commands(trace_id);
CREATE INDEX IF NOT EXISTS idx_commands_created ON commands(created_at);

CREATE TABLE IF NOT EXISTS policy_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	intent TEXT,
	tier INTEGER NOT NULL,
	sender TEXT,
	channel TEXT,
	allowed BOOLEAN NOT NULL,
	reason TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_policy_trace ON policy_decisions(trace_id);
`

// CommandRecord is one processed natural-language command.
type CommandRecord struct {
	ID               int64     `json:"id"`
	TraceID          string    `json:"trace_id"`
	Sender           string    `json:"sender,omitempty"`
	Channel          string    `json:"channel,omitempty"`
	Input            string    `json:"input"`
	Intent           string    `json:"intent,omitempty"`
	Model            string    `json:"model,omitempty"`
	Reply            string    `json:"reply,omitempty"`    // Raw model output
	Actions          []string  `json:"actions,omitempty"`  // Canonical action titles
	Success          bool      `json:"success"`
	Canceled         bool      `json:"canceled,omitempty"`
	DryRun           bool      `json:"dry_run,omitempty"`
	Message          string    `json:"message"`
	CreatedProjectID string    `json:"created_project_id,omitempty"`
	CreatedTaskIDs   []string  `json:"created_task_ids,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// PolicyDecisionRecord stores a safety/policy evaluation for audit.
type PolicyDecisionRecord struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Tier      int       `json:"tier"`
	Sender    string    `json:"sender,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandFilter narrows ListCommands.
type CommandFilter struct {
	Sender    string
	Channel   string
	OnlyFails bool
	Limit     int
	Offset    int
}
