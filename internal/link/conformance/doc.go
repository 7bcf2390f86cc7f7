// Package conformance provides provider-agnostic conformance tests that verify
// link providers honour the Provider contract against real devices.
//
// # Running Conformance Tests
//
// Conformance tests are gated behind build tags and do not run with regular `go test`.
//
// Run the socat provider suite (needs socat in PATH):
//
//	go test -tags=conformance,socat ./internal/link/conformance
//
// # Adding a New Provider
//
// Create a test file with matching build tags, e.g. static_test.go:
//
//	//go:build conformance && static
//
// and run the suite against the provider:
//
//	func TestStaticConformance(t *testing.T) {
//		p, _ := link.Get(link.Config{Kind: "static", Endpoints: []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}})
//		suite := &ConformanceSuite{Provider: p}
//		suite.Run(t)
//	}
//
// # Test Categories
//
// The conformance suite tests:
//   - Lifecycle: provision, endpoint validity, close
//   - Transfer: bytes written on one endpoint arrive on the other at the harness line settings
package conformance
