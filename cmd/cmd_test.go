package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/rzsztest"
	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/state"
)

// execute runs the root command with args and returns what it printed on
// stdout. Flags are reset afterwards so that tests do not leak into each
// other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	if testing.Verbose() && stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}
	resetFlags(rootCmd)
	return stdout.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate points the global configuration and the data directory at dir so
// that the user's own files are never read or written.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MODEMCHECK_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 1}
	if err.Error() != "exit status 1" {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := errors.Join(errors.New("context"), err)
	var exitErr *ExitError
	if !errors.As(wrapped, &exitErr) || exitErr.Code != 1 {
		t.Errorf("errors.As failed on %v", wrapped)
	}
}

func TestListGolden(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	out, err := execute(t, "list", "-C", dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "list_nominal", []byte(out))
}

func TestListNames(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	out, err := execute(t, "list", "--names", "-C", dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	names := strings.Split(strings.TrimSpace(out), "\n")
	if len(names) != 16 {
		t.Fatalf("expected 16 scenarios, got %d:\n%s", len(names), out)
	}
	if names[0] != "01-xmodem-checksum-128" {
		t.Errorf("first scenario = %q", names[0])
	}
	if names[15] != "16-ymodem-263000" {
		t.Errorf("last scenario = %q", names[15])
	}
}

func TestListUnknownMatrix(t *testing.T) {
	isolate(t)

	_, err := execute(t, "list", "--matrix", "nope", "-C", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unknown matrix: nope") {
		t.Errorf("expected unknown matrix error, got %v", err)
	}
}

func TestInitCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	if _, err := execute(t, "init", "-C", dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !config.ProjectConfigExists(dir) {
		t.Fatal("modemcheck.yaml was not created")
	}

	if _, err := execute(t, "init", "-C", dir); err == nil {
		t.Error("expected error when modemcheck.yaml exists")
	}
	if _, err := execute(t, "init", "--force", "--minimal", "-C", dir); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, config.ProjectConfigFilename))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != config.ProjectConfigMinimalTemplate {
		t.Errorf("unexpected content:\n%s", data)
	}

	// The template must load.
	if _, err := execute(t, "list", "--names", "-C", dir); err != nil {
		t.Errorf("list with generated template failed: %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ProjectConfigFilename), `version: 1
results_dir: out
env:
  SECRET: hunter2
`)

	out, err := execute(t, "config", "show", "-C", dir)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}

	for _, want := range []string{
		"work_dir: " + dir,
		"results_dir: " + filepath.Join(dir, "out"),
		"provider: socat",
		"speed: 115200",
		"settle: 1s",
		"- SECRET",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("environment values must not be printed")
	}
}

func TestExpectCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	source := bytes.Repeat([]byte("0123456789"), 125)
	source = append(source, "1234"...)
	writeFile(t, filepath.Join(dir, "files", "in.txt"), string(source))
	writeFile(t, filepath.Join(dir, config.ProjectConfigFilename), `version: 1
scenarios:
  - name: checksum
    protocol: xmodem-checksum
    source: files/in.txt
    expected: expected_results/in_128.txt
    result: tests_results/1-in.txt
  - name: crc
    protocol: xmodem-crc
    source: files/in.txt
    expected: expected_results/in_128.txt
    result: tests_results/2-in.txt
  - name: ymodem
    protocol: ymodem
    source: files/in.txt
    expected: files/in.txt
    result: tests_results/3-in.txt
`)

	out, err := execute(t, "expect", "-C", dir)
	if err != nil {
		t.Fatalf("expect failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wrote   expected_results/in_128.txt (1,280 bytes)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "ok      files/in.txt (1,254 bytes)") {
		t.Errorf("source used as reference should only be checked:\n%s", out)
	}

	got, err := os.ReadFile(filepath.Join(dir, "expected_results", "in_128.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1280 {
		t.Fatalf("expected 1280 bytes, got %d", len(got))
	}
	if !bytes.Equal(got[:1254], source) {
		t.Error("reference does not start with the source")
	}
	if !bytes.Equal(got[1254:], bytes.Repeat([]byte{scenario.PadByte}, 26)) {
		t.Error("reference is not padded with 0x1A")
	}

	if _, err := execute(t, "expect", "--check", "-C", dir); err != nil {
		t.Errorf("expect --check failed on fresh references: %v", err)
	}

	writeFile(t, filepath.Join(dir, "expected_results", "in_128.txt"), string(source))
	out, err = execute(t, "expect", "--check", "-C", dir)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if !strings.Contains(out, "DIFFERS expected_results/in_128.txt") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// runProject prepares a test directory driven by the fake rzsz and link
// provider. rxOptions are given to the second of two scenarios.
func runProject(t *testing.T, rxOptions string) (dir string, db string) {
	t.Helper()
	home := isolate(t)
	dir = t.TempDir()
	bin := t.TempDir()

	rzsz := rzsztest.WriteRzsz(t, bin)
	provider, _ := rzsztest.WriteProvider(t, bin)

	writeFile(t, filepath.Join(home, "config.yaml"), `version: 1
rzsz: `+rzsz+`
link:
  provider: socat
  command: [`+provider[0]+`]
  wait: 5s
timing:
  settle: 20ms
comparator:
  kind: bytes
`)

	writeFile(t, filepath.Join(dir, "files", "a.txt"), "first file\n")
	writeFile(t, filepath.Join(dir, "files", "b.txt"), "second file\n")
	writeFile(t, filepath.Join(dir, config.ProjectConfigFilename), `version: 1
scenarios:
  - name: first
    protocol: ymodem
    source: files/a.txt
    expected: files/a.txt
    result: tests_results/1-a.txt
  - name: second
    protocol: ymodem
    rx_options: "`+rxOptions+`"
    source: files/b.txt
    expected: files/b.txt
    result: tests_results/2-b.txt
`)

	return dir, filepath.Join(home, "history.db")
}

func TestRunCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir, db := runProject(t, "")
	metrics := filepath.Join(t.TempDir(), "modemcheck.prom")

	out, err := execute(t, "run", "-C", dir, "--history", db, "--metrics-file", metrics)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.HasSuffix(out, "all tests ok\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "PASS second: test ok") {
		t.Errorf("missing verdict line:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(dir, "tests_results", "KEEP")); err != nil {
		t.Errorf("KEEP marker missing: %v", err)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "modemcheck_last_run_success 1") {
		t.Errorf("unexpected metrics:\n%s", data)
	}

	out, err = execute(t, "history", "--db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one run, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "passed") || !strings.Contains(lines[1], "2/2") {
		t.Errorf("unexpected run line: %q", lines[1])
	}

	id := strings.Fields(lines[1])[0]
	out, err = execute(t, "history", "show", id, "--db", db)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(out, "Scenarios: 2 passed, 0 failed, 0 skipped of 2") {
		t.Errorf("unexpected run details:\n%s", out)
	}
	if !strings.Contains(out, "Matrix:    modemcheck.yaml") {
		t.Errorf("unexpected matrix label:\n%s", out)
	}
}

func TestRunCommandFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir, db := runProject(t, "--fail")

	out, err := execute(t, "run", "-C", dir, "--history", db)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit status 1, got %v\n%s", err, out)
	}
	if !strings.HasSuffix(out, "at least one test failed\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL second: test failed, reception status not zero") {
		t.Errorf("missing failure line:\n%s", out)
	}

	out, err = execute(t, "history", "--status", "failed", "--db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "1/2") {
		t.Errorf("expected one passed scenario out of two:\n%s", out)
	}
}

func TestRunCommandOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir, _ := runProject(t, "--fail")

	out, err := execute(t, "run", "-C", dir, "--no-history", "--only", "first")
	if err != nil {
		t.Fatalf("run --only failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "second") {
		t.Errorf("filtered scenario ran:\n%s", out)
	}
}

func TestHistoryEmpty(t *testing.T) {
	isolate(t)
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, "history", "--db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if strings.TrimSpace(out) != "No runs found." {
		t.Errorf("unexpected output: %q", out)
	}

	_, err = execute(t, "history", "show", "0190", "--db", db)
	if err == nil || !strings.Contains(err.Error(), `no run matches "0190"`) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestHistoryLimit(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := state.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now().Add(-time.Hour)
	for i := range 3 {
		id, err := state.NewRunID()
		if err != nil {
			t.Fatal(err)
		}
		run := &state.Run{
			ID:        id,
			StartedAt: start.Add(time.Duration(i) * time.Minute),
			Status:    state.StatusPassed,
			WorkDir:   "/tmp/tests",
			Matrix:    "nominal",
			Rzsz:      "/usr/bin/rzsz",
			Total:     16,
		}
		if err := db.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	out, err := execute(t, "history", "--limit", "2", "--db", path)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "Showing 2 of 3 runs") {
		t.Errorf("expected limit hint, got:\n%s", out)
	}

	out, err = execute(t, "history", "--limit", "0", "--db", path)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if strings.Contains(out, "Showing") {
		t.Errorf("unexpected limit hint:\n%s", out)
	}
	if got := strings.Count(out, "nominal"); got != 3 {
		t.Errorf("listed %d runs, want 3:\n%s", got, out)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Sep 17"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatTimeAgo(now, now.Add(-tt.ago)); got != tt.want {
				t.Errorf("formatTimeAgo(-%s) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
}

func TestEnviron(t *testing.T) {
	got := environ(map[string]string{"B": "2", "A": "1"})
	if strings.Join(got, ",") != "A=1,B=2" {
		t.Errorf("environ() = %v", got)
	}
	if environ(nil) != nil {
		t.Error("environ(nil) should be nil")
	}
}
