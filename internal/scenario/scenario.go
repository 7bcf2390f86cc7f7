// Package scenario defines the declarative conformance matrix: which protocol
// variant is exercised, with which option sets, and which source, reference
// and result files a scenario uses.
//
// Scenarios are immutable values. A Matrix is an ordered, read-only sequence
// of scenarios; the run controller iterates it front to back.
package scenario

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Protocol discriminates the transfer variant under test.
type Protocol string

const (
	// XModemChecksum is XMODEM with 128-byte blocks and an 8-bit checksum.
	XModemChecksum Protocol = "xmodem-checksum"

	// XModemCRC is XMODEM with 128-byte blocks and CRC-16.
	XModemCRC Protocol = "xmodem-crc"

	// XModem1K is XMODEM-1K with 1024-byte blocks and CRC-16.
	XModem1K Protocol = "xmodem-1k"

	// YModem is YMODEM batch transfer; the header carries the file length.
	YModem Protocol = "ymodem"
)

// Family groups protocols by how the final block is handled.
type Family string

const (
	// FamilyXModem pads the final block to the block boundary.
	FamilyXModem Family = "xmodem"

	// FamilyYModem reproduces the file length exactly.
	FamilyYModem Family = "ymodem"
)

// Protocols lists every supported protocol in matrix order.
var Protocols = []Protocol{XModemChecksum, XModemCRC, XModem1K, YModem}

// ErrUnknownProtocol is returned for a protocol name that is not supported.
var ErrUnknownProtocol = errors.New("unknown protocol")

// ParseProtocol converts a name into a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return p, nil
}

// Valid reports whether p is a supported protocol.
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// Family returns the protocol family.
func (p Protocol) Family() Family {
	if p == YModem {
		return FamilyYModem
	}
	return FamilyXModem
}

// Flags returns the rzsz options selecting this protocol. They are passed
// identically to transmitter and receiver.
func (p Protocol) Flags() []string {
	switch p {
	case XModemChecksum:
		return []string{"--protocol", "0"}
	case XModemCRC:
		return []string{"--protocol", "0", "--crc"}
	case XModem1K:
		return []string{"--protocol", "0", "--1k"}
	case YModem:
		return []string{"--protocol", "1"}
	}
	return nil
}

// Scenario is one configured conformance test case.
type Scenario struct {
	Name     string
	Protocol Protocol

	// TxOptions and RxOptions are extra option sets forwarded verbatim.
	TxOptions []string
	RxOptions []string

	Source   string
	Expected string
	Result   string
}

// Validate checks that the scenario is complete.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is empty")
	}
	if !s.Protocol.Valid() {
		return fmt.Errorf("scenario %s: %w: %q", s.Name, ErrUnknownProtocol, s.Protocol)
	}
	if s.Source == "" {
		return fmt.Errorf("scenario %s: source file is empty", s.Name)
	}
	if s.Expected == "" {
		return fmt.Errorf("scenario %s: expected file is empty", s.Name)
	}
	if s.Result == "" {
		return fmt.Errorf("scenario %s: result file is empty", s.Name)
	}
	return nil
}

// TransmitArgs returns the option set for the transmitting side.
func (s Scenario) TransmitArgs() []string {
	return s.args(s.TxOptions)
}

// ReceiveArgs returns the option set for the receiving side.
func (s Scenario) ReceiveArgs() []string {
	return s.args(s.RxOptions)
}

func (s Scenario) args(extra []string) []string {
	flags := s.Protocol.Flags()
	out := make([]string, 0, len(flags)+len(extra))
	out = append(out, flags...)
	return append(out, extra...)
}

// Matrix is an ordered sequence of scenarios.
type Matrix struct {
	scenarios []Scenario
}

// NewMatrix builds a Matrix from scenarios, copying the slice so later
// changes by the caller cannot reach the matrix.
func NewMatrix(scenarios ...Scenario) Matrix {
	cp := make([]Scenario, len(scenarios))
	copy(cp, scenarios)
	for i := range cp {
		cp[i].TxOptions = append([]string(nil), cp[i].TxOptions...)
		cp[i].RxOptions = append([]string(nil), cp[i].RxOptions...)
	}
	return Matrix{scenarios: cp}
}

// Len returns the number of scenarios.
func (m Matrix) Len() int {
	return len(m.scenarios)
}

// At returns the i-th scenario.
func (m Matrix) At(i int) Scenario {
	return m.scenarios[i]
}

// All iterates the scenarios in order.
func (m Matrix) All() iter.Seq2[int, Scenario] {
	return func(yield func(int, Scenario) bool) {
		for i, s := range m.scenarios {
			if !yield(i, s) {
				return
			}
		}
	}
}

// Filter returns a matrix restricted to the named scenarios, keeping matrix
// order. Unknown names are an error.
func (m Matrix) Filter(names ...string) (Matrix, error) {
	if len(names) == 0 {
		return m, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Scenario
	for _, s := range m.scenarios {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
			}
		}
		return Matrix{}, fmt.Errorf("unknown scenario(s): %s", strings.Join(missing, ", "))
	}
	return NewMatrix(out...), nil
}

// Validate checks every scenario. Names and result files must be unique.
func (m Matrix) Validate() error {
	if len(m.scenarios) == 0 {
		return errors.New("matrix is empty")
	}
	names := make(map[string]bool, len(m.scenarios))
	results := make(map[string]string, len(m.scenarios))
	for _, s := range m.scenarios {
		if err := s.Validate(); err != nil {
			return err
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate scenario name %q", s.Name)
		}
		names[s.Name] = true
		if other, ok := results[s.Result]; ok {
			return fmt.Errorf("scenarios %s and %s write the same result file %s", other, s.Name, s.Result)
		}
		results[s.Result] = s.Name
	}
	return nil
}
