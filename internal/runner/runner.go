// Package runner drives a whole conformance run: it resets the harness files,
// provisions the link, runs the matrix fail-fast and always tears the link
// down again.
//
// A Controller moves through
//
//	Idle -> Provisioning -> Running -> TornDown
//
// and ends with a Success or Failure verdict. A run that could not provision
// its link goes straight from Provisioning to TornDown with a Failure verdict.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/link"
	"github.com/Quidge/modemcheck/internal/orchestrator"
	"github.com/Quidge/modemcheck/internal/pathutil"
	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/state"
	"github.com/Quidge/modemcheck/internal/validate"
)

// KeepFile is the marker left in an emptied results directory.
const KeepFile = "KEEP"

// State is the lifecycle state of a Controller.
type State int32

const (
	StateIdle State = iota
	StateProvisioning
	StateRunning
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisioning:
		return "provisioning"
	case StateRunning:
		return "running"
	case StateTornDown:
		return "torn down"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Verdict is the final result of a run.
type Verdict int32

const (
	VerdictNone Verdict = iota
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	}
	return "none"
}

// ErrInvalidState is returned when a lifecycle step is called out of order.
var ErrInvalidState = errors.New("invalid controller state")

// Result aggregates the outcomes of one run.
type Result struct {
	RunID string

	// Total is the number of scenarios in the matrix.
	Total int

	// Outcomes holds one entry per executed scenario, in matrix order.
	Outcomes []validate.Outcome

	// Skipped counts scenarios never executed because an earlier one
	// failed or the run was aborted.
	Skipped int

	// Err is set when the run was aborted before or during the matrix,
	// e.g. with link.ErrLinkUnavailable.
	Err error

	StartedAt time.Time
	Duration  time.Duration
}

// Passed reports whether every scenario in the matrix was executed and
// passed.
func (r *Result) Passed() bool {
	if r.Err != nil || r.Skipped > 0 || len(r.Outcomes) != r.Total {
		return false
	}
	for _, o := range r.Outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// PassedCount returns the number of passing outcomes.
func (r *Result) PassedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Passed {
			n++
		}
	}
	return n
}

// FailedCount returns the number of failing outcomes.
func (r *Result) FailedCount() int {
	return len(r.Outcomes) - r.PassedCount()
}

// Status maps the result onto a history status.
func (r *Result) Status() state.Status {
	switch {
	case r.Passed():
		return state.StatusPassed
	case len(r.Outcomes) == 0 && r.Err != nil:
		return state.StatusAborted
	}
	return state.StatusFailed
}

// Controller owns the link and the scenario sequence of a single run. A
// Controller is used once.
type Controller struct {
	Provider     link.Provider
	Orchestrator *orchestrator.Orchestrator

	// ResultsDir is emptied by Reset, except for KeepFile.
	ResultsDir string

	// Logs are truncated by Reset.
	Logs config.LogFiles

	// Reporter, Metrics and Recorder are optional.
	Reporter *Reporter
	Metrics  *Metrics
	Recorder Recorder

	Log *slog.Logger

	state    atomic.Int32
	verdict  atomic.Int32
	link     *link.Link
	teardown sync.Once
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Verdict returns the final verdict, VerdictNone until torn down.
func (c *Controller) Verdict() Verdict {
	return Verdict(c.verdict.Load())
}

// Link returns the provisioned link, or nil.
func (c *Controller) Link() *link.Link {
	return c.link
}

// Reset truncates the harness log files and empties the results directory,
// leaving only the KEEP marker behind.
func (c *Controller) Reset() error {
	for _, path := range []string{c.Logs.Emission, c.Logs.Reception, c.Logs.Link, c.Logs.Harness} {
		if path == "" {
			continue
		}
		if err := pathutil.Truncate(path); err != nil {
			return fmt.Errorf("failed to reset log %s: %w", path, err)
		}
	}

	if c.ResultsDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.ResultsDir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	entries, err := os.ReadDir(c.ResultsDir)
	if err != nil {
		return fmt.Errorf("failed to read results directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == KeepFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.ResultsDir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	if err := pathutil.Truncate(filepath.Join(c.ResultsDir, KeepFile)); err != nil {
		return fmt.Errorf("failed to create %s marker: %w", KeepFile, err)
	}
	return nil
}

// Provision starts the link. It may only be called on an idle controller.
func (c *Controller) Provision(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateProvisioning)) {
		return fmt.Errorf("%w: provision while %s", ErrInvalidState, c.State())
	}

	l, err := c.Provider.Provision(ctx)
	if err != nil {
		return err
	}
	c.link = l
	c.logger().Info("link provisioned", "a", l.EndpointA, "b", l.EndpointB, "pid", l.Pid())

	c.state.Store(int32(StateRunning))
	return nil
}

// RunMatrix executes m in order and stops at the first failing scenario.
// The returned error reports a harness fault or a cancelled context; the
// result is filled in either way.
func (c *Controller) RunMatrix(ctx context.Context, m scenario.Matrix, res *Result) error {
	if c.State() != StateRunning {
		return fmt.Errorf("%w: run matrix while %s", ErrInvalidState, c.State())
	}

	for i, sc := range m.All() {
		if err := ctx.Err(); err != nil {
			res.Skipped = m.Len() - i
			return err
		}
		if !c.link.Alive() {
			res.Skipped = m.Len() - i
			return fmt.Errorf("%w: provider exited before scenario %s", link.ErrLinkUnavailable, sc.Name)
		}

		c.Reporter.Start(i, m.Len(), sc)
		out, err := c.Orchestrator.RunScenario(ctx, sc, c.link)
		if err != nil {
			res.Skipped = m.Len() - i
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}

		res.Outcomes = append(res.Outcomes, out)
		c.Metrics.Observe(sc, out)
		c.Reporter.Outcome(i, m.Len(), out)
		c.record(res.RunID, i, sc, out)

		if !out.Passed {
			res.Skipped = m.Len() - i - 1
			c.logger().Info("stopping after failed scenario", "scenario", sc.Name, "skipped", res.Skipped)
			return nil
		}
	}
	return nil
}

// Teardown stops the link and every transmitter still running. It runs at
// most once; later calls are no-ops.
func (c *Controller) Teardown() {
	c.teardown.Do(func() {
		if c.Orchestrator != nil {
			c.Orchestrator.StopAll()
		}
		if c.link != nil {
			if err := c.link.Close(); err != nil {
				c.logger().Warn("failed to stop link provider", "pid", c.link.Pid(), "error", err)
			}
		}
		c.state.Store(int32(StateTornDown))
		c.logger().Debug("torn down")
	})
}

// Run performs the full lifecycle for m: reset, provision, run, teardown.
// Teardown happens on every path. The returned error is non-nil only when
// the harness itself could not run; a failing matrix is reported through
// the Result.
func (c *Controller) Run(ctx context.Context, m scenario.Matrix) (*Result, error) {
	runID, err := state.NewRunID()
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:     runID,
		Total:     m.Len(),
		StartedAt: time.Now(),
	}

	if err := c.Reset(); err != nil {
		return nil, err
	}

	c.begin(res, m)
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		if res.Passed() {
			c.verdict.Store(int32(VerdictSuccess))
		} else {
			c.verdict.Store(int32(VerdictFailure))
		}
		c.Metrics.Finish(res)
		c.Reporter.Summary(res)
		c.finish(res)
	}()
	defer c.Teardown()

	if err := c.Provision(ctx); err != nil {
		res.Err = err
		res.Skipped = m.Len()
		c.logger().Error("link provisioning failed", "error", err)
		return res, nil
	}

	if err := c.RunMatrix(ctx, m, res); err != nil {
		res.Err = err
		c.logger().Error("run aborted", "error", err)
	}
	return res, nil
}

func (c *Controller) begin(res *Result, m scenario.Matrix) {
	if c.Recorder == nil {
		return
	}
	if err := c.Recorder.Begin(res, m); err != nil {
		c.logger().Warn("failed to record run", "run", res.RunID, "error", err)
	}
}

func (c *Controller) record(runID string, seq int, sc scenario.Scenario, out validate.Outcome) {
	if c.Recorder == nil {
		return
	}
	if err := c.Recorder.Record(runID, seq, sc, out); err != nil {
		c.logger().Warn("failed to record outcome", "run", runID, "scenario", sc.Name, "error", err)
	}
}

func (c *Controller) finish(res *Result) {
	if c.Recorder == nil {
		return
	}
	if err := c.Recorder.Finish(res); err != nil {
		c.logger().Warn("failed to record run result", "run", res.RunID, "error", err)
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
