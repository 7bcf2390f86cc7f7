package link

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// KindStatic is the identifier for the static provider.
const KindStatic = "static"

// StaticProvider hands out a fixed pair of endpoints, e.g. two USB serial
// adapters joined by a null-modem cable. Nothing is started or stopped.
type StaticProvider struct {
	a, b  string
	probe *serial.Mode
}

// NewStatic creates a static provider from cfg.Endpoints.
func NewStatic(cfg Config) (Provider, error) {
	if len(cfg.Endpoints) != 2 {
		return nil, fmt.Errorf("static provider needs exactly 2 endpoints, got %d", len(cfg.Endpoints))
	}
	return &StaticProvider{a: cfg.Endpoints[0], b: cfg.Endpoints[1], probe: cfg.Probe}, nil
}

func init() {
	Register(KindStatic, NewStatic)
}

// Provision returns the configured endpoints, probing them when asked to.
func (p *StaticProvider) Provision(ctx context.Context) (*Link, error) {
	l, err := New(p.a, p.b, nil)
	if err != nil {
		return nil, err
	}
	if p.probe != nil {
		if err := Probe(ctx, l, p.probe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
		}
	}
	return l, nil
}
