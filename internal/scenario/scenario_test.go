package scenario

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quidge/modemcheck/internal/config"
)

func TestParseProtocol(t *testing.T) {
	for _, p := range Protocols {
		got, err := ParseProtocol(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParseProtocol("  XMODEM-1K ")
	require.NoError(t, err)
	assert.Equal(t, XModem1K, got)

	_, err = ParseProtocol("zmodem")
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

func TestProtocolFlagsAndFamily(t *testing.T) {
	tests := []struct {
		protocol Protocol
		flags    []string
		family   Family
	}{
		{XModemChecksum, []string{"--protocol", "0"}, FamilyXModem},
		{XModemCRC, []string{"--protocol", "0", "--crc"}, FamilyXModem},
		{XModem1K, []string{"--protocol", "0", "--1k"}, FamilyXModem},
		{YModem, []string{"--protocol", "1"}, FamilyYModem},
	}

	for _, tt := range tests {
		t.Run(string(tt.protocol), func(t *testing.T) {
			assert.Equal(t, tt.flags, tt.protocol.Flags())
			assert.Equal(t, tt.family, tt.protocol.Family())
		})
	}
}

func TestScenarioArgs(t *testing.T) {
	s := Scenario{
		Name:      "crc",
		Protocol:  XModemCRC,
		TxOptions: []string{"--timeout", "3"},
	}

	assert.Equal(t, []string{"--protocol", "0", "--crc", "--timeout", "3"}, s.TransmitArgs())
	assert.Equal(t, []string{"--protocol", "0", "--crc"}, s.ReceiveArgs())
}

func TestMatrixIsImmutable(t *testing.T) {
	opts := []string{"--a"}
	in := []Scenario{{Name: "one", Protocol: YModem, TxOptions: opts, Source: "s", Expected: "e", Result: "r"}}
	m := NewMatrix(in...)

	in[0].Name = "changed"
	opts[0] = "--b"

	assert.Equal(t, "one", m.At(0).Name)
	assert.Equal(t, []string{"--a"}, m.At(0).TxOptions)
}

func TestMatrixValidate(t *testing.T) {
	valid := Scenario{Name: "a", Protocol: YModem, Source: "s", Expected: "e", Result: "r1"}

	tests := []struct {
		name      string
		scenarios []Scenario
		wantErr   string
	}{
		{"valid", []Scenario{valid}, ""},
		{"empty", nil, "matrix is empty"},
		{"unknown protocol", []Scenario{{Name: "x", Protocol: "zmodem", Source: "s", Expected: "e", Result: "r"}}, "unknown protocol"},
		{"missing expected", []Scenario{{Name: "x", Protocol: YModem, Source: "s", Result: "r"}}, "expected file is empty"},
		{"duplicate name", []Scenario{valid, {Name: "a", Protocol: YModem, Source: "s", Expected: "e", Result: "r2"}}, "duplicate scenario name"},
		{"duplicate result", []Scenario{valid, {Name: "b", Protocol: YModem, Source: "s", Expected: "e", Result: "r1"}}, "same result file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMatrix(tt.scenarios...).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMatrixFilter(t *testing.T) {
	m := NominalMatrix("/w")

	sub, err := m.Filter(m.At(5).Name, m.At(1).Name)
	require.NoError(t, err)
	require.Equal(t, 2, sub.Len())
	assert.Equal(t, m.At(1).Name, sub.At(0).Name, "matrix order is kept")
	assert.Equal(t, m.At(5).Name, sub.At(1).Name)

	_, err = m.Filter("nope")
	assert.ErrorContains(t, err, "nope")

	all, err := m.Filter()
	require.NoError(t, err)
	assert.Equal(t, m.Len(), all.Len())
}

func TestMatrixAllStopsEarly(t *testing.T) {
	m := NominalMatrix("/w")
	seen := 0
	for i := range m.All() {
		seen++
		if i == 2 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestNominalMatrix(t *testing.T) {
	m, err := Lookup("nominal", "/srv/tests")
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	require.Equal(t, 16, m.Len())

	first := m.At(0)
	assert.Equal(t, XModemChecksum, first.Protocol)
	assert.Equal(t, "/srv/tests/files/test_00128bytes.txt", first.Source)
	assert.Equal(t, first.Source, first.Expected, "128 bytes is a whole block")
	assert.Equal(t, "/srv/tests/tests_results/1-test_00128bytes.txt", first.Result)

	second := m.At(1)
	assert.Equal(t, "/srv/tests/expected_results/test_blksize_128_01280bytes.txt", second.Expected)

	for i, s := range m.All() {
		if s.Protocol == YModem {
			assert.Equal(t, s.Source, s.Expected, "ymodem scenario %d must expect the source unchanged", i)
		}
		assert.Equal(t, s.TransmitArgs(), s.ReceiveArgs(), "nominal options are identical on both sides")
	}

	assert.Equal(t, YModem, m.At(12).Protocol, "ymodem runs after every xmodem variant")

	_, err = Lookup("missing", "/srv/tests")
	assert.ErrorContains(t, err, "unknown matrix")
	assert.Contains(t, Names(), "nominal")
}

func TestFromConfig(t *testing.T) {
	t.Run("explicit scenarios win", func(t *testing.T) {
		cfg := config.MergedConfig{
			WorkDir: "/w",
			Matrix:  "nominal",
			Scenarios: []config.ScenarioEntry{{
				Name:      "neg",
				Protocol:  "xmodem-crc",
				TxOptions: "--crc  --extra",
				Source:    "/w/a",
				Expected:  "/w/a",
				Result:    "/w/r",
			}},
		}
		m, err := FromConfig(cfg)
		require.NoError(t, err)
		require.Equal(t, 1, m.Len())
		assert.Equal(t, []string{"--crc", "--extra"}, m.At(0).TxOptions)
	})

	t.Run("named matrix", func(t *testing.T) {
		m, err := FromConfig(config.MergedConfig{WorkDir: "/w", Matrix: "nominal"})
		require.NoError(t, err)
		assert.Equal(t, 16, m.Len())
	})

	t.Run("bad protocol", func(t *testing.T) {
		_, err := FromConfig(config.MergedConfig{Scenarios: []config.ScenarioEntry{{Name: "x", Protocol: "kermit"}}})
		assert.ErrorIs(t, err, ErrUnknownProtocol)
	})
}

func TestExpectedLength(t *testing.T) {
	tests := []struct {
		protocol Protocol
		size     int64
		want     int64
	}{
		{XModemChecksum, 0, 0},
		{XModemChecksum, 1, 128},
		{XModemChecksum, 128, 128},
		{XModemChecksum, 1254, 1280},
		{XModemChecksum, 32800, 32896},
		{XModemChecksum, 263000, 263040},
		{XModemCRC, 1254, 1280},
		{XModem1K, 128, 128},
		{XModem1K, 129, 1024},
		{XModem1K, 1024, 1024},
		{XModem1K, 1254, 2048},
		{XModem1K, 32800, 32896},
		{XModem1K, 263000, 263168},
		{YModem, 0, 0},
		{YModem, 1254, 1254},
		{YModem, 263000, 263000},
	}

	for _, tt := range tests {
		got := ExpectedLength(tt.protocol, tt.size)
		assert.Equal(t, tt.want, got, "%s with %d bytes", tt.protocol, tt.size)
	}
}

func TestExpectedLengthProperties(t *testing.T) {
	for _, p := range []Protocol{XModemChecksum, XModemCRC, XModem1K} {
		for n := int64(0); n <= 3*BlockSize1K; n++ {
			got := ExpectedLength(p, n)
			require.GreaterOrEqual(t, got, n)
			require.Zero(t, got%BlockSize128, "%s: %d bytes is not block aligned", p, n)
			require.Less(t, got-n, int64(BlockSize(p)), "%s: padding of %d bytes exceeds a block", p, n)
		}
	}
}

func TestBuildExpected(t *testing.T) {
	src := bytes.Repeat([]byte("0123456789"), 126)[:1254]

	var out bytes.Buffer
	require.NoError(t, BuildExpected(XModemChecksum, bytes.NewReader(src), int64(len(src)), &out))

	got := out.Bytes()
	require.Len(t, got, 1280)
	assert.Equal(t, src, got[:1254])
	assert.Equal(t, bytes.Repeat([]byte{PadByte}, 26), got[1254:])

	out.Reset()
	require.NoError(t, BuildExpected(YModem, bytes.NewReader(src), int64(len(src)), &out))
	assert.Equal(t, src, out.Bytes())

	out.Reset()
	err := BuildExpected(XModemCRC, bytes.NewReader(src[:10]), 20, &out)
	assert.Error(t, err, "short source must fail")
}

func TestWriteAndCheckExpected(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "files", "test_00128bytes.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, bytes.Repeat([]byte{'a'}, 130), 0644))

	expected := filepath.Join(dir, "expected_results", "ref.txt")
	require.NoError(t, WriteExpected(XModemCRC, source, expected))

	data, err := os.ReadFile(expected)
	require.NoError(t, err)
	assert.Len(t, data, 256)

	ok, err := CheckExpected(XModemCRC, source, expected)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckExpected(YModem, source, expected)
	require.NoError(t, err)
	assert.False(t, ok, "ymodem reference must not be padded")

	_, err = CheckExpected(XModemCRC, filepath.Join(dir, "missing"), expected)
	assert.Error(t, err)
}
