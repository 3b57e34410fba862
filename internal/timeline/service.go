// Package timeline persists task runs, agent states and knowledge-graph
// snapshots in SQLite.
package timeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cogpy/swarmcog/internal/knowledge"

	_ "modernc.org/sqlite"
)

type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}
	svc, err := NewTimelineServiceFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return svc, nil
}

// NewTimelineServiceFromDB applies the schema to an already opened database.
func NewTimelineServiceFromDB(db *sql.DB) (*TimelineService, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TimelineService{db: db}, nil
}

func (s *TimelineService) DB() *sql.DB { return s.db }

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// RecordTaskRun appends a task outcome.
func (s *TimelineService) RecordTaskRun(run TaskRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO task_runs (task_id, agent_id, phase, status, priority, error_text, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.TaskID, run.AgentID, run.Phase, run.Status, run.Priority, run.ErrorText, run.DurationMs, run.StartedAt.UTC())
	return err
}

// ListTaskRuns returns the most recent runs, newest first. An empty agentID
// lists every agent.
func (s *TimelineService) ListTaskRuns(agentID string, limit int) ([]TaskRun, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, task_id, agent_id, phase, status, priority, COALESCE(error_text, ''), duration_ms, started_at
		FROM task_runs`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var r TaskRun
		if err := rows.Scan(&r.ID, &r.TaskID, &r.AgentID, &r.Phase, &r.Status, &r.Priority, &r.ErrorText, &r.DurationMs, &r.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TaskRunSummary returns completed and failed counts per phase.
func (s *TimelineService) TaskRunSummary() ([]PhaseSummary, error) {
	rows, err := s.db.Query(`
		SELECT phase,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			AVG(duration_ms)
		FROM task_runs
		GROUP BY phase
		ORDER BY phase
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhaseSummary
	for rows.Next() {
		var p PhaseSummary
		if err := rows.Scan(&p.Phase, &p.Completed, &p.Failed, &p.AvgMs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveSnapshot replaces the stored graph and agent states in one transaction.
func (s *TimelineService) SaveSnapshot(records []knowledge.Record, states []AgentStateRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM entity_links`, `DELETE FROM entities`, `DELETE FROM agent_states`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}

	entStmt, err := tx.Prepare(`
		INSERT INTO entities (id, type, name, value, truth_strength, truth_confidence, sti, lti, vlti, metadata, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer entStmt.Close()
	linkStmt, err := tx.Prepare(`INSERT INTO entity_links (link_id, position, target_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer linkStmt.Close()

	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.ID, err)
		}
		if _, err := entStmt.Exec(r.ID, r.Type, r.Name, r.Value,
			r.Truth.Strength, r.Truth.Confidence,
			r.Attention.STI, r.Attention.LTI, r.Attention.VLTI,
			string(meta), i, r.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert entity %s: %w", r.ID, err)
		}
		for pos, target := range r.Outgoing {
			if _, err := linkStmt.Exec(r.ID, pos, target); err != nil {
				return fmt.Errorf("insert link %s[%d]: %w", r.ID, pos, err)
			}
		}
	}

	for _, st := range states {
		if _, err := tx.Exec(`
			INSERT INTO agent_states (agent_id, phase, state, updated_at) VALUES (?, ?, ?, ?)
		`, st.AgentID, st.Phase, st.State, st.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("insert agent state %s: %w", st.AgentID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES ('snapshot_saved_at', ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSnapshot returns the stored records, in their original order, and the
// agent states.
func (s *TimelineService) LoadSnapshot() ([]knowledge.Record, []AgentStateRecord, error) {
	links, err := s.db.Query(`SELECT link_id, target_id FROM entity_links ORDER BY link_id, position`)
	if err != nil {
		return nil, nil, err
	}
	outgoing, err := scanOutgoing(links)
	if err != nil {
		return nil, nil, fmt.Errorf("load entity links: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, type, name, COALESCE(value, ''), truth_strength, truth_confidence, sti, lti, vlti, COALESCE(metadata, '{}'), created_at
		FROM entities ORDER BY seq
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var records []knowledge.Record
	for rows.Next() {
		var r knowledge.Record
		var meta string
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &r.Value,
			&r.Truth.Strength, &r.Truth.Confidence,
			&r.Attention.STI, &r.Attention.LTI, &r.Attention.VLTI,
			&meta, &r.CreatedAt); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
		r.Outgoing = outgoing[r.ID]
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	states, err := s.loadAgentStates()
	if err != nil {
		return nil, nil, err
	}
	return records, states, nil
}

// rowIterator is the part of *sql.Rows scanOutgoing needs.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// scanOutgoing groups link endpoints by link id and closes rows. An iteration
// cut short by the driver is an error, never a truncated endpoint list.
func scanOutgoing(rows rowIterator) (map[string][]string, error) {
	defer rows.Close()
	outgoing := make(map[string][]string)
	for rows.Next() {
		var linkID, target string
		if err := rows.Scan(&linkID, &target); err != nil {
			return nil, err
		}
		outgoing[linkID] = append(outgoing[linkID], target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outgoing, nil
}

func (s *TimelineService) loadAgentStates() ([]AgentStateRecord, error) {
	rows, err := s.db.Query(`SELECT agent_id, phase, state, updated_at FROM agent_states ORDER BY agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentStateRecord
	for rows.Next() {
		var st AgentStateRecord
		if err := rows.Scan(&st.AgentID, &st.Phase, &st.State, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SnapshotInfo summarises the stored snapshot.
func (s *TimelineService) SnapshotInfo() (SnapshotInfo, error) {
	var info SnapshotInfo
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&info.Entities); err != nil {
		return info, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT link_id) FROM entity_links`).Scan(&info.Links); err != nil {
		return info, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM agent_states`).Scan(&info.Agents); err != nil {
		return info, err
	}
	if v, err := s.GetSetting("snapshot_saved_at"); err == nil {
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return info, nil
}

// GetSetting retrieves a setting value by key.
func (s *TimelineService) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetSetting persists a setting value.
func (s *TimelineService) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}
