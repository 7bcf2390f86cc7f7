//go:build conformance

package conformance

import (
	"bytes"
	"testing"

	"github.com/Quidge/modemcheck/internal/link"
	"github.com/Quidge/modemcheck/internal/proc"
)

// ConformanceSuite defines all conformance tests for any Provider.
type ConformanceSuite struct {
	// Provider under test.
	Provider link.Provider

	// Supervised is true when the provider starts a process that Close must
	// stop.
	Supervised bool
}

// Run executes all conformance tests.
func (s *ConformanceSuite) Run(t *testing.T) {
	t.Run("Lifecycle", s.testLifecycle)
	t.Run("Transfer", s.testTransfer)
}

func (s *ConformanceSuite) testLifecycle(t *testing.T) {
	t.Run("DistinctEndpoints", func(t *testing.T) {
		env := NewTestEnv(t, s.Provider)

		if env.Link.EndpointA == env.Link.EndpointB {
			t.Fatalf("endpoints are identical: %s", env.Link.EndpointA)
		}
		env.AssertDevice(env.Link.EndpointA)
		env.AssertDevice(env.Link.EndpointB)
	})

	t.Run("Probe", func(t *testing.T) {
		env := NewTestEnv(t, s.Provider)

		if err := link.Probe(env.Ctx, env.Link, DefaultMode); err != nil {
			t.Fatalf("Probe() returned error: %v", err)
		}
	})

	t.Run("CloseStopsProvider", func(t *testing.T) {
		if !s.Supervised {
			t.Skip("provider starts no process")
		}
		env := NewTestEnv(t, s.Provider)

		pid := env.Link.Pid()
		if !proc.Alive(pid) {
			t.Fatalf("provider %d not running after Provision", pid)
		}
		if err := env.Link.Close(); err != nil {
			t.Fatalf("Close() returned error: %v", err)
		}
		if proc.Alive(pid) {
			t.Errorf("provider %d still running after Close", pid)
		}
	})

	t.Run("ProvisionTwice", func(t *testing.T) {
		first := NewTestEnv(t, s.Provider)
		first.Link.Close()

		second := NewTestEnv(t, s.Provider)
		if err := link.Probe(second.Ctx, second.Link, DefaultMode); err != nil {
			t.Fatalf("second link unusable: %v", err)
		}
	})
}

func (s *ConformanceSuite) testTransfer(t *testing.T) {
	t.Run("AToB", func(t *testing.T) {
		env := NewTestEnv(t, s.Provider)
		a := env.Open(env.Link.EndpointA)
		b := env.Open(env.Link.EndpointB)
		env.AssertTransfer(a, b, []byte("hello over the link"))
	})

	t.Run("BToA", func(t *testing.T) {
		env := NewTestEnv(t, s.Provider)
		a := env.Open(env.Link.EndpointA)
		b := env.Open(env.Link.EndpointB)
		env.AssertTransfer(b, a, []byte("and back again"))
	})

	t.Run("RawBinary", func(t *testing.T) {
		// Raw mode must pass control characters through untouched.
		env := NewTestEnv(t, s.Provider)
		a := env.Open(env.Link.EndpointA)
		b := env.Open(env.Link.EndpointB)

		payload := make([]byte, 0, 256*4)
		for i := 0; i < 4; i++ {
			for c := 0; c < 256; c++ {
				payload = append(payload, byte(c))
			}
		}
		env.AssertTransfer(a, b, payload)
	})

	t.Run("Block1K", func(t *testing.T) {
		env := NewTestEnv(t, s.Provider)
		a := env.Open(env.Link.EndpointA)
		b := env.Open(env.Link.EndpointB)
		env.AssertTransfer(a, b, bytes.Repeat([]byte{0x1A}, 1024))
	})
}
