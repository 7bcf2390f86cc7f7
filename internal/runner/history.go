package runner

import (
	"time"

	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/state"
	"github.com/Quidge/modemcheck/internal/validate"
)

// Recorder persists runs as they progress. Recording errors never change
// the verdict of a run.
type Recorder interface {
	Begin(res *Result, m scenario.Matrix) error
	Record(runID string, seq int, sc scenario.Scenario, o validate.Outcome) error
	Finish(res *Result) error
}

// History records runs in the state database.
type History struct {
	DB *state.DB

	WorkDir  string
	Matrix   string
	Rzsz     string
	Revision string
}

// Begin implements Recorder.
func (h *History) Begin(res *Result, m scenario.Matrix) error {
	return h.DB.CreateRun(&state.Run{
		ID:        res.RunID,
		StartedAt: res.StartedAt,
		Status:    state.StatusRunning,
		WorkDir:   h.WorkDir,
		Matrix:    h.Matrix,
		Rzsz:      h.Rzsz,
		Revision:  h.Revision,
		Total:     m.Len(),
	})
}

// Record implements Recorder.
func (h *History) Record(runID string, seq int, sc scenario.Scenario, o validate.Outcome) error {
	return h.DB.AddOutcome(&state.Outcome{
		RunID:    runID,
		Seq:      seq,
		Scenario: sc.Name,
		Protocol: string(sc.Protocol),
		Passed:   o.Passed,
		Reason:   string(o.Reason),
		ExitCode: o.ExitCode,
		Duration: o.Duration,
		Diff:     o.Diff,
	})
}

// Finish implements Recorder.
func (h *History) Finish(res *Result) error {
	run := &state.Run{
		ID:         res.RunID,
		FinishedAt: time.Now(),
		Status:     res.Status(),
		Total:      res.Total,
		Passed:     res.PassedCount(),
		Failed:     res.FailedCount(),
		Skipped:    res.Skipped,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	return h.DB.FinishRun(run)
}
