// Package rzsztest provides stand-in programs for tests that drive the
// harness end to end without socat or a real rzsz build.
//
// The fake link provider announces two endpoints inside a temporary
// directory and then blocks like socat does. The fake rzsz "transfers" a file
// by moving it through that directory: the transmitter publishes the source
// file, the receiver waits for it and writes it to its result path. Neither
// pads, so references must equal their sources.
//
// Extra options understood by the fake rzsz:
//
//	--fail     receiver exits 1 without writing a result
//	--corrupt  receiver appends a byte to the result
//	--linger   transmitter keeps running after publishing
//	--silent   transmitter never publishes and keeps running
//	--ready    transmitter prints READY once published
package rzsztest

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const rzszScript = `#!/bin/sh
dev= file= mode= fail= corrupt= linger= silent= ready=
while [ $# -gt 0 ]; do
	case "$1" in
	--device) dev=$2; shift ;;
	--file) file=$2; shift ;;
	--speed|--nb-stop|--protocol) shift ;;
	--tx) mode=tx ;;
	--rx) mode=rx ;;
	--fail) fail=1 ;;
	--corrupt) corrupt=1 ;;
	--linger) linger=1 ;;
	--silent) silent=1 ;;
	--ready) ready=1 ;;
	esac
	shift
done

wire="$(dirname "$dev")/wire"
echo "fake rzsz $mode on $dev file $file"

if [ "$mode" = tx ]; then
	[ -n "$silent" ] && exec sleep 60
	rm -f "$wire"
	cp "$file" "$wire.tmp" && mv "$wire.tmp" "$wire" || exit 3
	[ -n "$ready" ] && echo READY
	[ -n "$linger" ] && exec sleep 60
	exit 0
fi

if [ "$mode" = rx ]; then
	[ -n "$fail" ] && exit 1
	i=0
	while [ ! -f "$wire" ]; do
		i=$((i+1))
		[ $i -gt 500 ] && exit 2
		sleep 0.01
	done
	mv "$wire" "$file" || exit 4
	[ -n "$corrupt" ] && printf X >> "$file"
	exit 0
fi

exit 64
`

// WriteRzsz writes the fake rzsz executable into dir and returns its path.
func WriteRzsz(t testing.TB, dir string) string {
	t.Helper()
	return writeScript(t, dir, "rzsz", rzszScript)
}

// WriteProvider writes a fake link provider into dir. It announces
// <dir>/pty-a and <dir>/pty-b and blocks until killed. Its pid is written
// to the returned pid file.
func WriteProvider(t testing.TB, dir string) (command []string, pidFile string) {
	t.Helper()
	pidFile = filepath.Join(dir, "provider.pid")

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("echo $$ > " + strconv.Quote(pidFile) + "\n")
	for _, name := range []string{"pty-a", "pty-b"} {
		b.WriteString(`echo "2026/10/17 10:00:00 socat[$$] N PTY is ` + filepath.Join(dir, name) + `" >&2` + "\n")
	}
	b.WriteString("exec sleep 60\n")

	return []string{writeScript(t, dir, "fake-socat", b.String())}, pidFile
}

// WriteBrokenProvider writes a provider that exits without announcing
// anything.
func WriteBrokenProvider(t testing.TB, dir string) []string {
	t.Helper()
	return []string{writeScript(t, dir, "broken-socat", "#!/bin/sh\necho 'E openpty failed' >&2\nexit 1\n")}
}

// ReadPid returns the pid recorded in path, or 0 if there is none.
func ReadPid(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func writeScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
