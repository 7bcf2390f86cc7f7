package link

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	"go.bug.st/serial"

	"github.com/Quidge/modemcheck/internal/pathutil"
	"github.com/Quidge/modemcheck/internal/proc"
)

const (
	// KindSocat is the identifier for the socat provider.
	KindSocat = "socat"

	// DefaultWait bounds the wait for the endpoint announcements.
	DefaultWait = time.Second

	pollInterval = 25 * time.Millisecond
)

// DefaultCommand creates two raw, non-echoing pseudo-terminals joined
// back to back. The doubled -d makes socat announce their paths.
var DefaultCommand = []string{"socat", "-d", "-d", "pty,raw,echo=0", "pty,raw,echo=0"}

// endpointPattern matches socat's "N PTY is /dev/pts/X" notice.
var endpointPattern = regexp.MustCompile(`\bN PTY is (\S+)`)

// ParseEndpoints returns the announced endpoint paths in the order they were
// emitted.
func ParseEndpoints(r io.Reader) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if m := endpointPattern.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// SocatProvider provisions a link by running socat, or any program that
// announces its endpoints the same way.
type SocatProvider struct {
	command []string
	logPath string
	wait    time.Duration
	probe   *serial.Mode
	log     *slog.Logger
}

// NewSocat creates a socat provider.
func NewSocat(cfg Config) (Provider, error) {
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	if cfg.LogPath == "" {
		return nil, errors.New("socat provider needs a log file")
	}
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	p := &SocatProvider{
		command: command,
		logPath: cfg.LogPath,
		wait:    wait,
		probe:   cfg.Probe,
		log:     slog.Default().With("provider", KindSocat),
	}
	return p, nil
}

func init() {
	Register(KindSocat, NewSocat)
}

// Provision starts the provider and waits for two endpoint announcements in
// its log. Only the output written after the start is considered.
func (p *SocatProvider) Provision(ctx context.Context) (*Link, error) {
	offset, err := logSize(p.logPath)
	if err != nil {
		return nil, err
	}

	f, err := pathutil.OpenAppend(p.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open link log: %w", err)
	}
	task, err := proc.Start("link", proc.Spec{
		Path:   p.command[0],
		Args:   p.command[1:],
		Stdout: f,
		Stderr: f,
	})
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
	}
	p.log.Debug("link provider started", "pid", task.Pid(), "command", p.command)

	endpoints, err := p.awaitEndpoints(ctx, task, offset)
	if err != nil {
		task.Stop(proc.DefaultGrace)
		return nil, err
	}

	l, err := New(endpoints[0], endpoints[1], task)
	if err != nil {
		task.Stop(proc.DefaultGrace)
		return nil, err
	}

	if p.probe != nil {
		if err := Probe(ctx, l, p.probe); err != nil {
			l.Close()
			return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
		}
	}

	p.log.Info("link ready", "a", l.EndpointA, "b", l.EndpointB, "pid", l.Pid())
	return l, nil
}

func (p *SocatProvider) awaitEndpoints(ctx context.Context, task *proc.UnsupervisedTask, offset int64) ([]string, error) {
	deadline := time.NewTimer(p.wait)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		found, err := readEndpoints(p.logPath, offset)
		if err != nil {
			return nil, err
		}
		if len(found) >= 2 && task.Running() {
			return found[:2], nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, ctx.Err())
		case <-task.Done():
			return nil, fmt.Errorf("%w: provider exited with status %d after reporting %d endpoint(s)",
				ErrLinkUnavailable, task.ExitCode(), len(found))
		case <-deadline.C:
			found, _ = readEndpoints(p.logPath, offset)
			if len(found) >= 2 && task.Running() {
				return found[:2], nil
			}
			return nil, fmt.Errorf("%w: %d endpoint(s) reported within %s", ErrLinkUnavailable, len(found), p.wait)
		case <-tick.C:
		}
	}
}

func readEndpoints(path string, offset int64) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read link log: %w", err)
	}
	if offset > int64(len(data)) {
		offset = 0
	}
	return ParseEndpoints(bytes.NewReader(data[offset:])), nil
}

func logSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat link log: %w", err)
	}
	return info.Size(), nil
}
