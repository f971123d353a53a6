package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int    `json:"id"`
	RunID     string `json:"run_id"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// InstanceResult represents a row in the instance_results table.
type InstanceResult struct {
	ID         int    `json:"id"`
	RunID      string `json:"run_id"`
	Instance   string `json:"instance"`
	OS         string `json:"os"`
	Python     string `json:"python"`
	Step       string `json:"step"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
	Findings   string `json:"findings,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// PublishEvent represents a row in the publish_events table.
type PublishEvent struct {
	ID        int    `json:"id"`
	RunID     string `json:"run_id"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Tags      string `json:"tags,omitempty"`
	Timestamp string `json:"timestamp"`
}

// LogRunEvent inserts a run lifecycle event.
func (d *DB) LogRunEvent(runID string, event string, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, detail) VALUES (?, ?, ?)`,
		runID, event, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogInstanceResult inserts a step result for a matrix instance.
func (d *DB) LogInstanceResult(runID string, instance string, osName string, python string,
	step string, passed bool, exitCode int, durationMs int, summary string, findings string) error {
	_, err := d.conn.Exec(
		`INSERT INTO instance_results (run_id, instance, os, python, step, passed, exit_code, duration_ms, summary, findings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, instance, osName, python, step, passed, exitCode, durationMs, summary, findings,
	)
	if err != nil {
		return fmt.Errorf("log instance result: %w", err)
	}
	return nil
}

// LogPublishEvent inserts a publish outcome for a run.
func (d *DB) LogPublishEvent(runID string, outcome string, reason string, tags string) error {
	_, err := d.conn.Exec(
		`INSERT INTO publish_events (run_id, outcome, reason, tags) VALUES (?, ?, ?, ?)`,
		runID, outcome, reason, tags,
	)
	if err != nil {
		return fmt.Errorf("log publish event: %w", err)
	}
	return nil
}

// GetRunEvents returns all events for a run, oldest first.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, detail, timestamp FROM run_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetInstanceResults returns all step results for a run, oldest first.
func (d *DB) GetInstanceResults(runID string) ([]InstanceResult, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, instance, os, python, step, passed, exit_code, duration_ms, summary, findings, timestamp
		 FROM instance_results WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get instance results: %w", err)
	}
	defer rows.Close()

	var results []InstanceResult
	for rows.Next() {
		var r InstanceResult
		var exitCode, durationMs sql.NullInt64
		var summary, findings sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.Instance, &r.OS, &r.Python, &r.Step,
			&r.Passed, &exitCode, &durationMs, &summary, &findings, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan instance result: %w", err)
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if summary.Valid {
			r.Summary = summary.String
		}
		if findings.Valid {
			r.Findings = findings.String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetLastPublishEvent returns the most recent publish event for a run, or nil.
func (d *DB) GetLastPublishEvent(runID string) (*PublishEvent, error) {
	row := d.conn.QueryRow(
		`SELECT id, run_id, outcome, reason, tags, timestamp
		 FROM publish_events WHERE run_id = ? ORDER BY id DESC LIMIT 1`,
		runID,
	)
	var e PublishEvent
	var reason, tags sql.NullString
	err := row.Scan(&e.ID, &e.RunID, &e.Outcome, &reason, &tags, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publish event: %w", err)
	}
	if reason.Valid {
		e.Reason = reason.String
	}
	if tags.Valid {
		e.Tags = tags.String
	}
	return &e, nil
}

// AxisPassRate is the aggregate pass rate for one (os, python) combination.
type AxisPassRate struct {
	OS       string  `json:"os"`
	Python   string  `json:"python"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	PassRate float64 `json:"pass_rate"`
}

// PassRateByAxis aggregates test-step pass rates per (os, python) combination
// across all recorded runs.
func (d *DB) PassRateByAxis() ([]AxisPassRate, error) {
	rows, err := d.conn.Query(
		`SELECT os, python, COUNT(*), SUM(CASE WHEN passed THEN 1 ELSE 0 END)
		 FROM instance_results WHERE step = 'test'
		 GROUP BY os, python ORDER BY os, python`,
	)
	if err != nil {
		return nil, fmt.Errorf("pass rate by axis: %w", err)
	}
	defer rows.Close()

	var rates []AxisPassRate
	for rows.Next() {
		var r AxisPassRate
		if err := rows.Scan(&r.OS, &r.Python, &r.Total, &r.Passed); err != nil {
			return nil, fmt.Errorf("scan pass rate: %w", err)
		}
		if r.Total > 0 {
			r.PassRate = float64(r.Passed) / float64(r.Total)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
