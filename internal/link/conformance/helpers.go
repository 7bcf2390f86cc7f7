//go:build conformance

package conformance

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/Quidge/modemcheck/internal/link"
)

// DefaultTimeout is the default timeout for test operations.
const DefaultTimeout = 30 * time.Second

// DefaultMode matches the line settings the harness passes to rzsz.
var DefaultMode = &serial.Mode{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// TestEnv holds a provisioned link and assertion helpers.
type TestEnv struct {
	T        *testing.T
	Provider link.Provider
	Link     *link.Link
	Ctx      context.Context
	Cancel   context.CancelFunc
}

// NewTestEnv provisions a link that is closed when the test completes.
func NewTestEnv(t *testing.T, p link.Provider) *TestEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), DefaultTimeout)

	l, err := p.Provision(ctx)
	if err != nil {
		cancel()
		t.Fatalf("failed to provision link: %v", err)
	}

	t.Cleanup(func() {
		l.Close()
		cancel()
	})

	return &TestEnv{
		T:        t,
		Provider: p,
		Link:     l,
		Ctx:      ctx,
		Cancel:   cancel,
	}
}

// Open opens an endpoint with DefaultMode. The port is closed on cleanup.
func (e *TestEnv) Open(path string) serial.Port {
	e.T.Helper()
	port, err := serial.Open(path, DefaultMode)
	if err != nil {
		e.T.Fatalf("failed to open %s: %v", path, err)
	}
	e.T.Cleanup(func() { port.Close() })
	return port
}

// AssertTransfer writes payload on from and fails unless exactly payload
// arrives on to.
func (e *TestEnv) AssertTransfer(from, to serial.Port, payload []byte) {
	e.T.Helper()

	if err := to.SetReadTimeout(100 * time.Millisecond); err != nil {
		e.T.Fatalf("failed to set read timeout: %v", err)
	}

	go func() {
		if _, err := from.Write(payload); err != nil {
			e.T.Errorf("write failed: %v", err)
		}
	}()

	deadline := time.Now().Add(10 * time.Second)
	var got []byte
	buf := make([]byte, 4096)
	for len(got) < len(payload) && time.Now().Before(deadline) {
		n, err := to.Read(buf)
		if err != nil {
			e.T.Fatalf("read failed: %v", err)
		}
		got = append(got, buf[:n]...)
	}

	if !bytes.Equal(got, payload) {
		e.T.Errorf("transfer corrupted: sent %d bytes, received %d", len(payload), len(got))
	}
}

// AssertDevice fails if path does not exist.
func (e *TestEnv) AssertDevice(path string) {
	e.T.Helper()
	if _, err := os.Stat(path); err != nil {
		e.T.Errorf("endpoint %s does not exist: %v", path, err)
	}
}
