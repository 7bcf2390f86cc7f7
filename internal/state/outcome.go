package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Outcome is the recorded verdict of one scenario within a run.
type Outcome struct {
	RunID    string
	Seq      int
	Scenario string
	Protocol string
	Passed   bool
	Reason   string
	ExitCode int
	Duration time.Duration
	Diff     string // May be empty
}

// AddOutcome appends an outcome to its run.
func (db *DB) AddOutcome(o *Outcome) error {
	_, err := db.Exec(`
		INSERT INTO outcomes (
			run_id, seq, scenario, protocol, passed, reason, exit_code, duration_ms, diff
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID,
		o.Seq,
		o.Scenario,
		o.Protocol,
		o.Passed,
		o.Reason,
		o.ExitCode,
		o.Duration.Milliseconds(),
		nullString(o.Diff),
	)
	if err != nil {
		return fmt.Errorf("failed to add outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns the outcomes of a run in execution order.
func (db *DB) ListOutcomes(runID string) ([]*Outcome, error) {
	rows, err := db.Query(`
		SELECT run_id, seq, scenario, protocol, passed, reason, exit_code, duration_ms, diff
		FROM outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		var o Outcome
		var durationMS int64
		var diff sql.NullString
		if err := rows.Scan(&o.RunID, &o.Seq, &o.Scenario, &o.Protocol, &o.Passed,
			&o.Reason, &o.ExitCode, &durationMS, &diff); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		o.Diff = diff.String
		outcomes = append(outcomes, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}
