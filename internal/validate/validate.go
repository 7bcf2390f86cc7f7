// Package validate turns a receiver exit status and a received file into a
// pass/fail outcome.
//
// The exit status is checked first: a receiver that reports failure is never
// compared. A successful receiver is then held to a byte-exact comparison of
// its result file against the reference file.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrReceptionFailed means the receiver exited with a non-zero status.
	ErrReceptionFailed = errors.New("non-zero reception status")

	// ErrContentMismatch means the result file differs from the reference.
	ErrContentMismatch = errors.New("result file differs")
)

// Reason classifies an outcome.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonReceptionFailed Reason = "reception_failed"
	ReasonContentMismatch Reason = "content_mismatch"
)

// Outcome is the verdict for one scenario.
type Outcome struct {
	Scenario string
	Passed   bool
	ExitCode int
	Reason   Reason

	// Diff holds the comparator output on mismatch.
	Diff string

	// Err wraps ErrReceptionFailed or ErrContentMismatch when Passed is false.
	Err error

	Duration time.Duration
}

// Message is the human-readable verdict line.
func (o Outcome) Message() string {
	switch o.Reason {
	case ReasonOK:
		return "test ok"
	case ReasonReceptionFailed:
		return "test failed, reception status not zero"
	case ReasonContentMismatch:
		return "test failed, result file differs, see log file"
	}
	return "test failed"
}

// Comparator decides whether two files are identical. A nil error with
// equal=false is a mismatch; an error means the comparison itself could not
// be carried out. Diagnostics are written to w.
type Comparator interface {
	Compare(ctx context.Context, expected, result string, w io.Writer) (equal bool, err error)
}

// Validator applies the exit-status policy and the comparator.
type Validator struct {
	Comparator Comparator

	// Log receives comparison diagnostics (the harness log).
	Log io.Writer
}

// Validate returns the outcome for a receiver that exited with exitCode and
// was asked to write result. Validate never fails: problems with the files
// themselves are reported as a content mismatch.
func (v *Validator) Validate(ctx context.Context, exitCode int, expected, result string) Outcome {
	if exitCode != 0 {
		return Outcome{
			ExitCode: exitCode,
			Reason:   ReasonReceptionFailed,
			Err:      fmt.Errorf("%w: exit status %d", ErrReceptionFailed, exitCode),
		}
	}

	log := v.Log
	if log == nil {
		log = io.Discard
	}

	var diff limitedBuffer
	equal, err := v.Comparator.Compare(ctx, expected, result, io.MultiWriter(log, &diff))
	if err != nil {
		fmt.Fprintf(log, "%v\n", err)
		return Outcome{
			Reason: ReasonContentMismatch,
			Diff:   diff.String(),
			Err:    fmt.Errorf("%w: %v", ErrContentMismatch, err),
		}
	}
	if !equal {
		return Outcome{
			Reason: ReasonContentMismatch,
			Diff:   diff.String(),
			Err:    fmt.Errorf("%w: %s", ErrContentMismatch, result),
		}
	}

	return Outcome{Passed: true, Reason: ReasonOK}
}

// maxDiff bounds the diagnostic kept on an Outcome; the log gets all of it.
const maxDiff = 16 << 10

type limitedBuffer struct {
	buf       []byte
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := maxDiff - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n[diff truncated]\n"
	}
	return string(b.buf)
}
