package ethereum

import (
	"encoding/binary"
	"fmt"
)

// WordSize is the width of an ABI head slot.
const WordSize = 32

// LeftPad returns b left-padded with zero bytes to width. Values wider than
// width are rejected instead of truncated.
func LeftPad(b []byte, width int) ([]byte, error) {
	if len(b) > width {
		return nil, fmt.Errorf("value of %d bytes exceeds width %d", len(b), width)
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	return out, nil
}

// RightPad returns b right-padded with zero bytes to width. Values wider than
// width are rejected instead of truncated.
func RightPad(b []byte, width int) ([]byte, error) {
	if len(b) > width {
		return nil, fmt.Errorf("value of %d bytes exceeds width %d", len(b), width)
	}
	out := make([]byte, width)
	copy(out, b)
	return out, nil
}

// Uint32BE encodes v as 4 big-endian bytes.
func Uint32BE(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

// PaddingFor returns the number of zero bytes needed to round n up to a
// multiple of WordSize.
func PaddingFor(n int) int {
	return (WordSize - n%WordSize) % WordSize
}

// PaddedLen rounds n up to a multiple of WordSize.
func PaddedLen(n int) int {
	return n + PaddingFor(n)
}
