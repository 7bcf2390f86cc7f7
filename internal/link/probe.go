package link

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// probeMarker is written on endpoint A and must arrive unchanged on B.
var probeMarker = []byte("modemcheck-probe\n")

// ProbeTimeout bounds the round trip of the probe marker.
const ProbeTimeout = 2 * time.Second

// Probe opens both endpoints of l with mode and checks that bytes written on
// A are read back on B. Both ports are closed before Probe returns.
func Probe(ctx context.Context, l *Link, mode *serial.Mode) error {
	a, err := serial.Open(l.EndpointA, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.EndpointA, err)
	}
	defer a.Close()

	b, err := serial.Open(l.EndpointB, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.EndpointB, err)
	}
	defer b.Close()

	if err := b.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", l.EndpointB, err)
	}
	if _, err := a.Write(probeMarker); err != nil {
		return fmt.Errorf("failed to write to %s: %w", l.EndpointA, err)
	}

	if err := b.SetReadTimeout(100 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout on %s: %w", l.EndpointB, err)
	}

	deadline := time.Now().Add(ProbeTimeout)
	var got []byte
	buf := make([]byte, 64)
	for len(got) < len(probeMarker) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("probe timed out after %s: received %q", ProbeTimeout, got)
		}
		n, err := b.Read(buf)
		if err != nil {
			return fmt.Errorf("failed to read from %s: %w", l.EndpointB, err)
		}
		got = append(got, buf[:n]...)
	}

	if !bytes.Equal(got[:len(probeMarker)], probeMarker) {
		return fmt.Errorf("probe marker corrupted: got %q", got)
	}
	return nil
}
