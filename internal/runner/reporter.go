package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/validate"
)

const (
	// SummaryOK is the last line printed for a fully passing run.
	SummaryOK = "all tests ok"

	// SummaryFailed is the last line printed for any other run.
	SummaryFailed = "at least one test failed"
)

// Reporter prints the human-readable progress of a run. A nil Reporter
// prints nothing.
type Reporter struct {
	W io.Writer

	// Durations adds the scenario duration to each verdict line.
	Durations bool
}

// NewReporter returns a reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{W: w}
}

// Start announces a scenario.
func (r *Reporter) Start(i, total int, sc scenario.Scenario) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.W, "[%d/%d] %s (%s)\n", i+1, total, sc.Name, sc.Protocol)
}

// Outcome prints the verdict line of a scenario.
func (r *Reporter) Outcome(i, total int, o validate.Outcome) {
	if r == nil {
		return
	}
	tag := "PASS"
	if !o.Passed {
		tag = "FAIL"
	}
	line := fmt.Sprintf("%s %s: %s", tag, o.Scenario, o.Message())
	if !o.Passed && o.Reason == validate.ReasonReceptionFailed {
		line += fmt.Sprintf(" (exit status %d)", o.ExitCode)
	}
	if r.Durations {
		line += fmt.Sprintf(" [%s]", o.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(r.W, line)
}

// Summary prints the aggregate lines of a run.
func (r *Reporter) Summary(res *Result) {
	if r == nil {
		return
	}
	if res.Err != nil {
		fmt.Fprintf(r.W, "run aborted: %v\n", res.Err)
	}
	fmt.Fprintf(r.W, "%d scenario(s): %d passed, %d failed, %d skipped\n",
		res.Total, res.PassedCount(), res.FailedCount(), res.Skipped)
	if res.Passed() {
		fmt.Fprintln(r.W, SummaryOK)
	} else {
		fmt.Fprintln(r.W, SummaryFailed)
	}
}
