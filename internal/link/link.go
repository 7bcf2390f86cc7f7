// Package link provisions the loopback serial link the transfers run over.
//
// A Provider starts an external program that creates two connected
// pseudo-terminal endpoints and reports their paths. The program keeps
// running for as long as the link is needed; the link is valid only while it
// is alive.
//
// Providers are registered by kind, mirroring how callers select them from
// configuration:
//
//	| Kind   | Provisioned by                                   |
//	|--------|--------------------------------------------------|
//	| socat  | socat -d -d pty,raw,echo=0 pty,raw,echo=0        |
//	| static | two existing device paths, nothing is started    |
package link

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.bug.st/serial"

	"github.com/Quidge/modemcheck/internal/proc"
)

// ErrLinkUnavailable is returned when the provider does not report two
// endpoints in time. It is fatal for a run: no scenario executes.
var ErrLinkUnavailable = errors.New("virtual link unavailable")

// Link is a pair of connected endpoints.
type Link struct {
	EndpointA string
	EndpointB string

	task *proc.UnsupervisedTask
}

// New returns a link over existing endpoints, optionally owned by task.
func New(a, b string, task *proc.UnsupervisedTask) (*Link, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrLinkUnavailable)
	}
	if a == b {
		return nil, fmt.Errorf("%w: endpoints are identical (%s)", ErrLinkUnavailable, a)
	}
	return &Link{EndpointA: a, EndpointB: b, task: task}, nil
}

// Pid returns the provider process id, or 0 when nothing was started.
func (l *Link) Pid() int {
	if l.task == nil {
		return 0
	}
	return l.task.Pid()
}

// Alive reports whether the link can still carry traffic.
func (l *Link) Alive() bool {
	if l.task == nil {
		return true
	}
	return l.task.Running()
}

// Close stops the provider process. It is safe to call more than once.
func (l *Link) Close() error {
	if l.task == nil {
		return nil
	}
	return l.task.Stop(proc.DefaultGrace)
}

// Provider creates links.
type Provider interface {
	// Provision starts the link and returns once both endpoints are known.
	// On failure nothing the provider started is left running.
	Provision(ctx context.Context) (*Link, error)
}

// Config selects and configures a provider.
type Config struct {
	// Kind is the registered provider kind, e.g. "socat".
	Kind string

	// Command is the provider program and its arguments.
	Command []string

	// Endpoints are fixed device paths for the static provider.
	Endpoints []string

	// LogPath receives the provider output. The socat provider reads the
	// endpoint announcements back from it.
	LogPath string

	// Wait bounds how long to wait for the endpoints to be announced.
	Wait time.Duration

	// Probe, when non-nil, opens both endpoints with this mode after
	// provisioning and checks that data written on A arrives on B.
	Probe *serial.Mode
}

// Factory creates a provider.
type Factory func(cfg Config) (Provider, error)

var registry = make(map[string]Factory)

// Register registers a provider factory for the given kind.
// This should be called during package init.
func Register(kind string, factory Factory) {
	registry[kind] = factory
}

// Get returns a provider for the given configuration.
func Get(cfg Config) (Provider, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown link provider: %s", cfg.Kind)
	}
	return factory(cfg)
}

// Kinds returns the registered provider kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
