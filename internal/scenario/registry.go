package scenario

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Quidge/modemcheck/internal/config"
)

// MatrixFactory builds a matrix whose relative paths are anchored at workDir.
type MatrixFactory func(workDir string) Matrix

// registry holds the named matrices.
var registry = make(map[string]MatrixFactory)

// Register registers a matrix factory under name.
// This should be called during package init.
func Register(name string, factory MatrixFactory) {
	registry[name] = factory
}

// Lookup returns the named matrix anchored at workDir.
func Lookup(name, workDir string) (Matrix, error) {
	factory, ok := registry[name]
	if !ok {
		return Matrix{}, fmt.Errorf("unknown matrix: %s (available: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(workDir), nil
}

// Names returns the registered matrix names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromEntries converts declarative scenario entries into a matrix. Option
// strings are split on whitespace and otherwise forwarded untouched.
func FromEntries(entries []config.ScenarioEntry) (Matrix, error) {
	scenarios := make([]Scenario, 0, len(entries))
	for i, e := range entries {
		p, err := ParseProtocol(e.Protocol)
		if err != nil {
			return Matrix{}, fmt.Errorf("scenario %d (%s): %w", i, e.Name, err)
		}
		scenarios = append(scenarios, Scenario{
			Name:      e.Name,
			Protocol:  p,
			TxOptions: strings.Fields(e.TxOptions),
			RxOptions: strings.Fields(e.RxOptions),
			Source:    e.Source,
			Expected:  e.Expected,
			Result:    e.Result,
		})
	}
	return NewMatrix(scenarios...), nil
}

// FromConfig selects the matrix described by a merged configuration:
// explicit scenarios win over a named matrix.
func FromConfig(cfg config.MergedConfig) (Matrix, error) {
	var (
		m   Matrix
		err error
	)
	if len(cfg.Scenarios) > 0 {
		m, err = FromEntries(cfg.Scenarios)
	} else {
		m, err = Lookup(cfg.Matrix, cfg.WorkDir)
	}
	if err != nil {
		return Matrix{}, err
	}
	if err := m.Validate(); err != nil {
		return Matrix{}, fmt.Errorf("invalid matrix: %w", err)
	}
	return m, nil
}

// nominalSources are the fixture files of the nominal matrix.
var nominalSources = []struct {
	name string
	size int64
}{
	{"test_00128bytes.txt", 128},
	{"test_01254bytes.txt", 1254},
	{"test_32800bytes.txt", 32800},
	{"test_263000bytes.bin", 263000},
}

// nominalExpected names the reference fixture for each protocol and source.
// The reference file name records the block size and the padded length for
// the small fixtures, or the source length for the large ones.
var nominalExpected = map[Protocol][]string{
	XModemChecksum: {
		"files/test_00128bytes.txt",
		"expected_results/test_blksize_128_01280bytes.txt",
		"expected_results/test_blksize_128_32800bytes.txt",
		"expected_results/test_blksize_128_263000bytes.bin",
	},
	XModemCRC: {
		"files/test_00128bytes.txt",
		"expected_results/test_blksize_128_01280bytes.txt",
		"expected_results/test_blksize_128_32800bytes.txt",
		"expected_results/test_blksize_128_263000bytes.bin",
	},
	XModem1K: {
		"files/test_00128bytes.txt",
		"expected_results/test_blksize_1024_01254bytes.txt",
		"expected_results/test_blksize_128_32800bytes.txt",
		"expected_results/test_blksize_1024_263000bytes.bin",
	},
	YModem: {
		"files/test_00128bytes.txt",
		"files/test_01254bytes.txt",
		"files/test_32800bytes.txt",
		"files/test_263000bytes.bin",
	},
}

// NominalMatrix returns the nominal matrix: every fixture through every
// protocol, XMODEM variants first, with options identical on both sides.
func NominalMatrix(workDir string) Matrix {
	var scenarios []Scenario
	n := 0
	for _, p := range Protocols {
		for i, src := range nominalSources {
			n++
			scenarios = append(scenarios, Scenario{
				Name:     fmt.Sprintf("%02d-%s-%d", n, p, src.size),
				Protocol: p,
				Source:   filepath.Join(workDir, "files", src.name),
				Expected: filepath.Join(workDir, nominalExpected[p][i]),
				Result:   filepath.Join(workDir, "tests_results", fmt.Sprintf("%d-%s", n, src.name)),
			})
		}
	}
	return NewMatrix(scenarios...)
}

func init() {
	Register("nominal", NominalMatrix)
}
