package proc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// TaskState is the lifecycle of an UnsupervisedTask.
type TaskState int32

const (
	TaskRunning TaskState = iota + 1
	TaskExited
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskExited:
		return "exited"
	case TaskStopped:
		return "stopped"
	}
	return "unknown"
}

// UnsupervisedTask is a detached process. The harness never waits on its
// result; the only guaranteed operation is Stop. The process is reaped in the
// background so an exited task does not linger as a zombie.
type UnsupervisedTask struct {
	name string
	id   uint64
	cmd  *exec.Cmd

	state    atomic.Int32
	exitCode atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Start launches spec as an unsupervised task. name identifies the task in
// logs ("link", "transmitter").
func Start(name string, spec Spec) (*UnsupervisedTask, error) {
	// The task outlives any caller context; Stop is the only way to end it.
	cmd := spec.command(context.Background())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	t := &UnsupervisedTask{
		name: name,
		id:   counter.Inc(),
		cmd:  cmd,
		done: make(chan struct{}),
	}
	t.state.Store(int32(TaskRunning))
	t.exitCode.Store(-1)

	go t.reap()
	return t, nil
}

func (t *UnsupervisedTask) reap() {
	err := t.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	t.exitCode.Store(int64(code))
	t.state.CompareAndSwap(int32(TaskRunning), int32(TaskExited))
	close(t.done)
}

// Name returns the task label.
func (t *UnsupervisedTask) Name() string { return t.name }

// ID is unique per process for the lifetime of the harness.
func (t *UnsupervisedTask) ID() uint64 { return t.id }

// Pid returns the operating system process id.
func (t *UnsupervisedTask) Pid() int { return t.cmd.Process.Pid }

// State returns the current lifecycle state.
func (t *UnsupervisedTask) State() TaskState { return TaskState(t.state.Load()) }

// Done is closed once the process has exited and been reaped.
func (t *UnsupervisedTask) Done() <-chan struct{} { return t.done }

// Running reports whether the process has not exited yet.
func (t *UnsupervisedTask) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit status once the task has exited, -1 before that
// or when it was killed by a signal.
func (t *UnsupervisedTask) ExitCode() int { return int(t.exitCode.Load()) }

// Stop terminates the task's process group: SIGTERM, then SIGKILL once grace
// elapses. It blocks until the process is reaped. Stop is idempotent and
// safe to call on a task that already exited.
func (t *UnsupervisedTask) Stop(grace time.Duration) error {
	t.stopOnce.Do(func() {
		t.stopErr = t.stop(grace)
	})
	return t.stopErr
}

func (t *UnsupervisedTask) stop(grace time.Duration) error {
	pid := t.Pid()
	if t.Running() {
		t.state.Store(int32(TaskStopped))
	}

	// The group may hold children even when the leader has exited.
	if err := killGroup(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop %s (pid %d): %w", t.name, pid, err)
	}

	if grace <= 0 {
		grace = DefaultGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-t.done:
		_ = killGroup(pid, unix.SIGKILL)
		return nil
	case <-timer.C:
	}

	if err := killGroup(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill %s (pid %d): %w", t.name, pid, err)
	}
	<-t.done
	return nil
}
