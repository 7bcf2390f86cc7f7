// Package proc runs the external programs the harness drives: detached tasks
// whose exit status is never inspected (the link provider, the transmitter)
// and foreground invocations whose exit status is the result.
//
// Every process is started in its own process group so that stopping a task
// also reaches anything it forked.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// DefaultGrace is how long Stop waits after SIGTERM before sending SIGKILL.
const DefaultGrace = 2 * time.Second

// Spec describes a process to start.
type Spec struct {
	// Path is the executable; bare names are looked up in PATH.
	Path string

	// Args excludes the program name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the inherited environment.
	Env []string

	// Stdout and Stderr receive the process output. Passing the same
	// *os.File for both gives the child a single shared descriptor.
	Stdout io.Writer
	Stderr io.Writer
}

func (s Spec) command(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	return cmd
}

// String renders the command line for logs.
func (s Spec) String() string {
	return fmt.Sprintf("%s %v", s.Path, s.Args)
}

// Run starts the process and waits for it. The returned code is the process
// exit status; a process killed by a signal or by ctx reports -1. err is
// non-nil only when the process could not be run at all or ctx ended first.
func Run(ctx context.Context, spec Spec) (int, error) {
	cmd := spec.command(ctx)
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("%s interrupted: %w", spec.Path, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run %s: %w", spec.Path, err)
	}
	return 0, nil
}

// killGroup signals the process group led by pid. A group that is already
// gone is not an error.
func killGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// counter is shared by all tasks so that logs can tell them apart.
var counter atomic.Uint64
