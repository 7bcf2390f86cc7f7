package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the verdict of a recorded run.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"

	// StatusAborted marks a run that ended before its matrix started, e.g.
	// because the link could not be provisioned.
	StatusAborted Status = "aborted"
)

// ValidStatuses contains all valid run status values.
var ValidStatuses = []Status{
	StatusRunning,
	StatusPassed,
	StatusFailed,
	StatusAborted,
}

// IsValidStatus returns true if s is a valid status.
func IsValidStatus(s Status) bool {
	for _, valid := range ValidStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// Run is one recorded execution of a matrix.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
	Status     Status
	WorkDir    string
	Matrix     string
	Rzsz       string
	Revision   string // May be empty

	Total   int
	Passed  int
	Failed  int
	Skipped int

	Error string // May be empty
}

var (
	// ErrRunNotFound is returned when no run matches an ID or prefix.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousPrefix is returned when an ID prefix matches several runs.
	ErrAmbiguousPrefix = errors.New("ambiguous run ID prefix")

	// ErrInvalidStatus is returned when an invalid status is provided.
	ErrInvalidStatus = errors.New("invalid status")
)

// CreateRun inserts a new run.
func (db *DB) CreateRun(run *Run) error {
	if !IsValidStatus(run.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, run.Status)
	}

	_, err := db.Exec(`
		INSERT INTO runs (
			id, started_at, status, work_dir, matrix, rzsz, revision, total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeFormat),
		string(run.Status),
		run.WorkDir,
		run.Matrix,
		run.Rzsz,
		nullString(run.Revision),
		run.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the verdict and counters of a run.
func (db *DB) FinishRun(run *Run) error {
	if !IsValidStatus(run.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, run.Status)
	}

	result, err := db.Exec(`
		UPDATE runs SET
			finished_at = ?,
			status = ?,
			total = ?,
			passed = ?,
			failed = ?,
			skipped = ?,
			error = ?
		WHERE id = ?`,
		run.FinishedAt.UTC().Format(timeFormat),
		string(run.Status),
		run.Total,
		run.Passed,
		run.Failed,
		run.Skipped,
		nullString(run.Error),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// timeFormat is fixed width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, started_at, finished_at, status, work_dir, matrix, rzsz,
	revision, total, passed, failed, skipped, error`

// GetRun retrieves a run by its full ID.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunByPrefix retrieves the single run whose ID starts with prefix.
func (db *DB) GetRunByPrefix(prefix string) (*Run, error) {
	if prefix == "" {
		return nil, ErrRunNotFound
	}

	rows, err := db.Query(`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch len(runs) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
		return runs[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAmbiguousPrefix, prefix)
}

// DeleteRun removes a run and its outcomes.
func (db *DB) DeleteRun(id string) error {
	result, err := db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a row into a Run struct.
func scanRun(s scanner) (*Run, error) {
	var run Run
	var finishedAt, revision, errText sql.NullString
	var startedAt string

	err := s.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.Status,
		&run.WorkDir,
		&run.Matrix,
		&run.Rzsz,
		&revision,
		&run.Total,
		&run.Passed,
		&run.Failed,
		&run.Skipped,
		&errText,
	)
	if err != nil {
		return nil, err
	}

	run.Revision = revision.String
	run.Error = errText.String

	run.StartedAt, err = time.Parse(timeFormat, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if finishedAt.Valid {
		run.FinishedAt, err = time.Parse(timeFormat, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
	}

	return &run, nil
}

// nullString converts an empty string to sql.NullString for optional fields.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
