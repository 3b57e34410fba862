package timeline

import (
	"time"
)

// TaskRun is the recorded outcome of one cognitive task.
type TaskRun struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	Phase      string    `json:"phase"`
	Status     string    `json:"status"` // completed, failed
	Priority   int       `json:"priority"`
	ErrorText  string    `json:"error_text,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// PhaseSummary aggregates task runs of one phase.
type PhaseSummary struct {
	Phase     string  `json:"phase"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	AvgMs     float64 `json:"avg_ms"`
}

// AgentStateRecord is a persisted agent phase state. State holds the JSON
// encoding produced by the scheduler.
type AgentStateRecord struct {
	AgentID   string    `json:"agent_id"`
	Phase     string    `json:"phase"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotInfo describes the stored knowledge-graph snapshot.
type SnapshotInfo struct {
	Entities int       `json:"entities"`
	Links    int       `json:"links"`
	Agents   int       `json:"agents"`
	SavedAt  time.Time `json:"saved_at"`
}

const Schema = `
CREATE TABLE IF NOT EXISTS task_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	error_text TEXT DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_task_runs_agent ON task_runs(agent_id, started_at);
CREATE INDEX IF NOT EXISTS idx_task_runs_phase ON task_runs(phase, status);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT DEFAULT '',
	truth_strength REAL NOT NULL DEFAULT 0.5,
	truth_confidence REAL NOT NULL DEFAULT 0,
	sti REAL NOT NULL DEFAULT 0,
	lti REAL NOT NULL DEFAULT 0,
	vlti REAL NOT NULL DEFAULT 0,
	metadata TEXT DEFAULT '{}',
	seq INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS entity_links (
	link_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	target_id TEXT NOT NULL,
	PRIMARY KEY (link_id, position)
);

CREATE TABLE IF NOT EXISTS agent_states (
	agent_id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at DATETIME
);
`
