// Package orchestrator runs one scenario over a provisioned link: it starts
// the transmitter detached, gives it a head start, runs the receiver in the
// foreground and hands the receiver's exit status to the validator.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Quidge/modemcheck/internal/link"
	"github.com/Quidge/modemcheck/internal/pathutil"
	"github.com/Quidge/modemcheck/internal/proc"
	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/validate"
)

// DefaultSettleDelay is the transmitter head start when no readiness
// pattern is configured.
const DefaultSettleDelay = time.Second

// DefaultDrain is how long a transmitter may keep running after the receiver
// returned before it is stopped.
const DefaultDrain = 2 * time.Second

const readyPoll = 20 * time.Millisecond

// Logs names the per-role log files. Output is appended.
type Logs struct {
	Emission  string
	Reception string
}

// Orchestrator drives the rzsz executable for each scenario.
type Orchestrator struct {
	// Exec is the rzsz executable.
	Exec string

	Speed    int
	StopBits int

	// Settle is the transmitter head start. Zero means DefaultSettleDelay.
	Settle time.Duration

	// ReadyPattern, when set, replaces the fixed head start: the receiver
	// starts once the pattern shows up in the emission log, or after
	// ReadyTimeout.
	ReadyPattern string
	ReadyTimeout time.Duration

	// ReceiveTimeout bounds the receiver. Zero means unbounded.
	ReceiveTimeout time.Duration

	// Drain bounds the wait for the transmitter after the receiver returned.
	// Zero means DefaultDrain.
	Drain time.Duration

	// Env is added to the environment of both sides.
	Env []string

	Logs      Logs
	Validator *validate.Validator
	Log       *slog.Logger

	mu           sync.Mutex
	transmitters []*proc.UnsupervisedTask
}

// TransmitArgs builds the transmitter command line.
func (o *Orchestrator) TransmitArgs(sc scenario.Scenario, l *link.Link) []string {
	args := o.lineArgs(l.EndpointA)
	args = append(args, sc.TransmitArgs()...)
	return append(args, "--tx", "--file", sc.Source)
}

// ReceiveArgs builds the receiver command line.
func (o *Orchestrator) ReceiveArgs(sc scenario.Scenario, l *link.Link) []string {
	args := o.lineArgs(l.EndpointB)
	args = append(args, sc.ReceiveArgs()...)
	return append(args, "--rx", "--file", sc.Result)
}

func (o *Orchestrator) lineArgs(device string) []string {
	return []string{
		"--device", device,
		"--speed", strconv.Itoa(o.Speed),
		"--nb-stop", strconv.Itoa(o.StopBits),
	}
}

// RunScenario executes sc over l. The returned error reports a harness fault
// (an executable that cannot be started, an unwritable log); protocol
// failures are reported through the Outcome.
func (o *Orchestrator) RunScenario(ctx context.Context, sc scenario.Scenario, l *link.Link) (validate.Outcome, error) {
	log := o.logger().With("scenario", sc.Name)
	start := time.Now()

	if err := pathutil.EnsureParent(sc.Result); err != nil {
		return validate.Outcome{}, fmt.Errorf("failed to create result directory: %w", err)
	}
	if err := os.Remove(sc.Result); err != nil && !errors.Is(err, os.ErrNotExist) {
		return validate.Outcome{}, fmt.Errorf("failed to remove stale result: %w", err)
	}

	txArgs := o.TransmitArgs(sc, l)
	offset, tx, err := o.startTransmitter(sc, txArgs)
	if err != nil {
		return validate.Outcome{}, err
	}
	log.Debug("transmitter started", "pid", tx.Pid(), "args", txArgs)

	if err := o.awaitReady(ctx, tx, offset, log); err != nil {
		o.stopTransmitter(tx, 0)
		return validate.Outcome{}, err
	}

	rxArgs := o.ReceiveArgs(sc, l)
	log.Debug("receiver starting", "args", rxArgs)
	code, err := o.receive(ctx, sc, rxArgs)
	if err != nil {
		o.stopTransmitter(tx, 0)
		return validate.Outcome{}, err
	}
	log.Debug("receiver finished", "exit_code", code)

	o.stopTransmitter(tx, o.drain())

	outcome := o.Validator.Validate(ctx, code, sc.Expected, sc.Result)
	outcome.Scenario = sc.Name
	outcome.ExitCode = code
	outcome.Duration = time.Since(start)
	return outcome, nil
}

func (o *Orchestrator) startTransmitter(sc scenario.Scenario, args []string) (int64, *proc.UnsupervisedTask, error) {
	f, err := pathutil.OpenAppend(o.Logs.Emission)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open emission log: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# %s: %s %s\n", sc.Name, o.Exec, strings.Join(args, " "))
	info, err := f.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to stat emission log: %w", err)
	}

	tx, err := proc.Start("transmitter", proc.Spec{
		Path:   o.Exec,
		Args:   args,
		Env:    o.Env,
		Stdout: f,
		Stderr: f,
	})
	if err != nil {
		return 0, nil, err
	}

	o.mu.Lock()
	o.transmitters = append(o.transmitters, tx)
	o.mu.Unlock()

	return info.Size(), tx, nil
}

// awaitReady gives the transmitter its head start. It only fails when ctx
// ends.
func (o *Orchestrator) awaitReady(ctx context.Context, tx *proc.UnsupervisedTask, offset int64, log *slog.Logger) error {
	if o.ReadyPattern == "" {
		return sleep(ctx, o.settle())
	}

	timeout := o.ReadyTimeout
	if timeout <= 0 {
		timeout = o.settle()
	}
	deadline := time.Now().Add(timeout)
	pattern := []byte(o.ReadyPattern)

	for {
		if data, err := os.ReadFile(o.Logs.Emission); err == nil && int64(len(data)) >= offset {
			if bytes.Contains(data[offset:], pattern) {
				return nil
			}
		}
		if !tx.Running() {
			log.Warn("transmitter exited before signalling readiness")
			return nil
		}
		if time.Now().After(deadline) {
			log.Warn("transmitter readiness not observed, starting receiver anyway", "pattern", o.ReadyPattern, "timeout", timeout)
			return nil
		}
		if err := sleep(ctx, readyPoll); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) receive(ctx context.Context, sc scenario.Scenario, args []string) (int, error) {
	f, err := pathutil.OpenAppend(o.Logs.Reception)
	if err != nil {
		return -1, fmt.Errorf("failed to open reception log: %w", err)
	}
	defer f.Close()
	fmt.Fprintf(f, "# %s: %s %s\n", sc.Name, o.Exec, strings.Join(args, " "))

	rxCtx := ctx
	if o.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		rxCtx, cancel = context.WithTimeout(ctx, o.ReceiveTimeout)
		defer cancel()
	}

	code, err := proc.Run(rxCtx, proc.Spec{
		Path:   o.Exec,
		Args:   args,
		Env:    o.Env,
		Stdout: f,
		Stderr: f,
	})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(f, "# %s: receiver killed after %s\n", sc.Name, o.ReceiveTimeout)
		return -1, nil
	}
	return code, err
}

func (o *Orchestrator) stopTransmitter(tx *proc.UnsupervisedTask, drain time.Duration) {
	if drain > 0 {
		select {
		case <-tx.Done():
		case <-time.After(drain):
		}
	}
	if err := tx.Stop(proc.DefaultGrace); err != nil {
		o.logger().Warn("failed to stop transmitter", "pid", tx.Pid(), "error", err)
	}
}

// StopAll stops every transmitter this orchestrator started that is still
// running.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	tasks := o.transmitters
	o.transmitters = nil
	o.mu.Unlock()

	for _, tx := range tasks {
		o.stopTransmitter(tx, 0)
	}
}

// Transmitters returns the transmitter tasks started so far.
func (o *Orchestrator) Transmitters() []*proc.UnsupervisedTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*proc.UnsupervisedTask(nil), o.transmitters...)
}

func (o *Orchestrator) settle() time.Duration {
	if o.Settle > 0 {
		return o.Settle
	}
	return DefaultSettleDelay
}

func (o *Orchestrator) drain() time.Duration {
	if o.Drain > 0 {
		return o.Drain
	}
	return DefaultDrain
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
