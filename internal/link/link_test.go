package link

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quidge/modemcheck/internal/proc"
)

const socatLog = `2026/10/17 10:00:00 socat[4242] N PTY is /dev/pts/7
2026/10/17 10:00:00 socat[4242] N PTY is /dev/pts/8
2026/10/17 10:00:00 socat[4242] N starting data transfer loop with FDs [5,5] and [7,7]
`

func TestParseEndpoints(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want []string
	}{
		{"socat output", socatLog, []string{"/dev/pts/7", "/dev/pts/8"}},
		{"empty", "", nil},
		{"one endpoint", "socat[1] N PTY is /dev/pts/3\n", []string{"/dev/pts/3"}},
		{"noise only", "socat[1] E openpty: no such device\n", nil},
		{"no trailing newline", "N PTY is /dev/pts/1\nN PTY is /dev/pts/2", []string{"/dev/pts/1", "/dev/pts/2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEndpoints(strings.NewReader(tt.log)))
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New("/dev/pts/1", "/dev/pts/2", nil)
	require.NoError(t, err)
	assert.Zero(t, l.Pid())
	assert.True(t, l.Alive())
	assert.NoError(t, l.Close())

	_, err = New("/dev/pts/1", "", nil)
	assert.ErrorIs(t, err, ErrLinkUnavailable)

	_, err = New("/dev/pts/1", "/dev/pts/1", nil)
	assert.ErrorIs(t, err, ErrLinkUnavailable)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{KindSocat, KindStatic}, Kinds())

	_, err := Get(Config{Kind: "usb"})
	assert.ErrorContains(t, err, "unknown link provider")

	_, err = Get(Config{Kind: KindSocat})
	assert.Error(t, err, "socat needs a log path")

	_, err = Get(Config{Kind: KindStatic, Endpoints: []string{"/dev/ttyUSB0"}})
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	p, err := Get(Config{Kind: KindStatic, Endpoints: []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}})
	require.NoError(t, err)

	l, err := p.Provision(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", l.EndpointA)
	assert.Equal(t, "/dev/ttyUSB1", l.EndpointB)
	assert.NoError(t, l.Close())
}

// fakeProvider writes a script that records its pid, prints the given
// announcements like socat does and then blocks (or exits with exitCode when
// non-negative).
func fakeProvider(t *testing.T, endpoints []string, exitCode int) (command []string, pidFile string) {
	t.Helper()
	dir := t.TempDir()
	pidFile = filepath.Join(dir, "pid")

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("echo $$ > " + pidFile + "\n")
	for _, e := range endpoints {
		b.WriteString(`echo "2026/10/17 10:00:00 socat[$$] N PTY is ` + e + `" >&2` + "\n")
	}
	if exitCode >= 0 {
		b.WriteString("exit " + strconv.Itoa(exitCode) + "\n")
	} else {
		b.WriteString("exec sleep 60\n")
	}

	script := filepath.Join(dir, "fake-socat")
	require.NoError(t, os.WriteFile(script, []byte(b.String()), 0755))
	return []string{script}, pidFile
}

func readPid(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func TestSocatProvision(t *testing.T) {
	command, pidFile := fakeProvider(t, []string{"/tmp/fake-a", "/tmp/fake-b"}, -1)
	logPath := filepath.Join(t.TempDir(), "socat.log")

	p, err := Get(Config{Kind: KindSocat, Command: command, LogPath: logPath, Wait: 5 * time.Second})
	require.NoError(t, err)

	l, err := p.Provision(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	assert.Equal(t, "/tmp/fake-a", l.EndpointA)
	assert.Equal(t, "/tmp/fake-b", l.EndpointB)
	assert.True(t, l.Alive())

	pid := readPid(t, pidFile)
	assert.Equal(t, pid, l.Pid())
	assert.True(t, proc.Alive(pid))

	require.NoError(t, l.Close())
	assert.False(t, proc.Alive(pid), "provider still running after Close")
	assert.False(t, l.Alive())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "N PTY is /tmp/fake-a")
}

func TestSocatProvisionSingleEndpoint(t *testing.T) {
	command, pidFile := fakeProvider(t, []string{"/tmp/only-one"}, -1)
	logPath := filepath.Join(t.TempDir(), "socat.log")

	p, err := NewSocat(Config{Command: command, LogPath: logPath, Wait: 300 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Provision(t.Context())
	require.ErrorIs(t, err, ErrLinkUnavailable)
	assert.Contains(t, err.Error(), "1 endpoint(s)")

	pid := readPid(t, pidFile)
	assert.False(t, proc.Alive(pid), "provider must be stopped when provisioning fails")
}

func TestSocatProvisionProviderExits(t *testing.T) {
	command, _ := fakeProvider(t, nil, 1)
	logPath := filepath.Join(t.TempDir(), "socat.log")

	p, err := NewSocat(Config{Command: command, LogPath: logPath, Wait: 5 * time.Second})
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Provision(t.Context())
	require.ErrorIs(t, err, ErrLinkUnavailable)
	assert.Contains(t, err.Error(), "exited with status 1")
	assert.Less(t, time.Since(start), 5*time.Second, "an exited provider must not wait for the full timeout")
}

func TestSocatProvisionIgnoresStaleLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "socat.log")
	require.NoError(t, os.WriteFile(logPath, []byte(socatLog), 0644))

	command, _ := fakeProvider(t, nil, -1)
	p, err := NewSocat(Config{Command: command, LogPath: logPath, Wait: 300 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Provision(t.Context())
	assert.ErrorIs(t, err, ErrLinkUnavailable)
}

func TestSocatProvisionMissingExecutable(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "socat.log")
	p, err := NewSocat(Config{Command: []string{filepath.Join(t.TempDir(), "no-socat")}, LogPath: logPath})
	require.NoError(t, err)

	_, err = p.Provision(t.Context())
	assert.ErrorIs(t, err, ErrLinkUnavailable)
}
