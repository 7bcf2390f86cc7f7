package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Quidge/modemcheck/internal/proc"
)

// ExternalComparator runs a diff-like program as `Command... expected result`.
// Exit status 0 means identical; any other status is a mismatch.
type ExternalComparator struct {
	Command []string
}

// Compare implements Comparator.
func (c ExternalComparator) Compare(ctx context.Context, expected, result string, w io.Writer) (bool, error) {
	if len(c.Command) == 0 {
		return false, errors.New("comparator command is empty")
	}
	args := append(append([]string(nil), c.Command[1:]...), expected, result)
	code, err := proc.Run(ctx, proc.Spec{
		Path:   c.Command[0],
		Args:   args,
		Stdout: w,
		Stderr: w,
	})
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// maxDiffLines is the largest file, in lines, that gets a line diff.
const maxDiffLines = 20000

// ByteComparator compares files in process. On mismatch it writes a unified
// diff for text files and an offset summary for binary ones.
type ByteComparator struct{}

// Compare implements Comparator.
func (ByteComparator) Compare(ctx context.Context, expected, result string, w io.Writer) (bool, error) {
	want, err := os.ReadFile(expected)
	if err != nil {
		return false, fmt.Errorf("failed to read reference file: %w", err)
	}
	got, err := os.ReadFile(result)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "result file %s is missing\n", result)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read result file: %w", err)
	}

	if bytes.Equal(want, got) {
		return true, nil
	}

	if isText(want) && isText(got) {
		a := difflib.SplitLines(string(want))
		b := difflib.SplitLines(string(got))
		if len(a) <= maxDiffLines && len(b) <= maxDiffLines {
			diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        a,
				B:        b,
				FromFile: expected,
				ToFile:   result,
				Context:  3,
			})
			if err != nil {
				return false, fmt.Errorf("failed to diff %s: %w", result, err)
			}
			io.WriteString(w, diff)
			return false, nil
		}
	}

	fmt.Fprintln(w, Summarize(expected, result, want, got))
	return false, nil
}

// Summarize describes how two byte slices differ.
func Summarize(expected, result string, want, got []byte) string {
	off := FirstDifference(want, got)
	switch {
	case off < 0:
		return fmt.Sprintf("Files %s and %s are identical", expected, result)
	case off >= len(want):
		return fmt.Sprintf("Files %s and %s differ: %d extra byte(s) in result starting at offset %d",
			expected, result, len(got)-len(want), off)
	case off >= len(got):
		return fmt.Sprintf("Files %s and %s differ: result is %d byte(s) short, ends at offset %d",
			expected, result, len(want)-len(got), off)
	}
	return fmt.Sprintf("Files %s and %s differ: sizes %d and %d, first difference at offset %d (0x%02x != 0x%02x)",
		expected, result, len(want), len(got), off, want[off], got[off])
}

// FirstDifference returns the offset of the first differing byte, or -1
// when a and b are equal.
func FirstDifference(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) == len(b) {
		return -1
	}
	return n
}

func isText(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0) < 0
}

// NewComparator returns the comparator for kind: "bytes" or "diff".
func NewComparator(kind string, command []string) (Comparator, error) {
	switch kind {
	case "bytes":
		return ByteComparator{}, nil
	case "diff", "":
		if len(command) == 0 {
			command = []string{"diff"}
		}
		return ExternalComparator{Command: command}, nil
	}
	return nil, fmt.Errorf("unknown comparator: %s", kind)
}
