//go:build conformance && socat

package conformance

import (
	"path/filepath"
	"testing"

	"github.com/Quidge/modemcheck/internal/link"
)

// TestSocatConformance runs the conformance test suite against socat.
//
// Run with: go test -tags=conformance,socat ./internal/link/conformance
func TestSocatConformance(t *testing.T) {
	p, err := link.Get(link.Config{
		Kind:    link.KindSocat,
		LogPath: filepath.Join(t.TempDir(), "socat.log"),
	})
	if err != nil {
		t.Fatalf("failed to get socat provider: %v", err)
	}

	suite := &ConformanceSuite{
		Provider:   p,
		Supervised: true,
	}
	suite.Run(t)
}
