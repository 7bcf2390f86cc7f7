package scenario

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Quidge/modemcheck/internal/pathutil"
)

// PadByte fills the unused tail of the final XMODEM block (ASCII SUB).
const PadByte byte = 0x1A

const (
	// BlockSize128 is the XMODEM checksum/CRC block payload.
	BlockSize128 = 128

	// BlockSize1K is the XMODEM-1K block payload.
	BlockSize1K = 1024
)

// BlockSize returns the payload size of one block for p, or 0 when the
// protocol transfers an exact length.
func BlockSize(p Protocol) int {
	switch p {
	case XModemChecksum, XModemCRC:
		return BlockSize128
	case XModem1K:
		return BlockSize1K
	}
	return 0
}

// ExpectedLength returns the number of bytes a receiver writes for a source
// of n bytes.
//
// YMODEM carries the length in its header, so the result is n. XMODEM pads the
// final block. In 1K mode a remainder of at most 128 bytes is sent as a
// single 128-byte block rather than a padded 1024-byte one.
func ExpectedLength(p Protocol, n int64) int64 {
	switch p {
	case XModemChecksum, XModemCRC:
		return roundUp(n, BlockSize128)
	case XModem1K:
		full := n / BlockSize1K * BlockSize1K
		rem := n - full
		switch {
		case rem == 0:
			return full
		case rem <= BlockSize128:
			return full + BlockSize128
		default:
			return full + BlockSize1K
		}
	}
	return n
}

func roundUp(n int64, size int64) int64 {
	return (n + size - 1) / size * size
}

// BuildExpected copies n bytes of src to dst and appends the pad bytes the
// protocol adds to the final block.
func BuildExpected(p Protocol, src io.Reader, n int64, dst io.Writer) error {
	copied, err := io.CopyN(dst, src, n)
	if err != nil {
		return fmt.Errorf("failed to copy source after %d bytes: %w", copied, err)
	}
	pad := ExpectedLength(p, n) - n
	if pad == 0 {
		return nil
	}
	if _, err := dst.Write(bytes.Repeat([]byte{PadByte}, int(pad))); err != nil {
		return fmt.Errorf("failed to write padding: %w", err)
	}
	return nil
}

// WriteExpected materialises the reference file for source at expected.
func WriteExpected(p Protocol, source, expected string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := pathutil.EnsureParent(expected); err != nil {
		return err
	}
	out, err := os.Create(expected)
	if err != nil {
		return err
	}

	if err := BuildExpected(p, in, info.Size(), out); err != nil {
		out.Close()
		return fmt.Errorf("failed to build %s: %w", expected, err)
	}
	return out.Close()
}

// CheckExpected reports whether expected holds exactly the reference bytes
// for source under p. A nil error with ok=false means the file differs.
func CheckExpected(p Protocol, source, expected string) (bool, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return false, err
	}
	var want bytes.Buffer
	if err := BuildExpected(p, bytes.NewReader(src), int64(len(src)), &want); err != nil {
		return false, err
	}
	got, err := os.ReadFile(expected)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want.Bytes(), got), nil
}
