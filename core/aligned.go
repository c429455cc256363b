package vpt

import (
	"io"

	"github.com/meigma/vpt/core/internal/sizing"
)

// AlignedBytes returns a zeroed buffer of length n that starts on an
// 8-byte boundary.
func AlignedBytes(n int) []byte {
	return sizing.AlignedBytes(n)
}

// Aligned returns b if it already starts on an 8-byte boundary and an
// aligned copy otherwise.
func Aligned(b []byte) []byte {
	if sizing.IsSliceAligned(b) {
		return b
	}
	return sizing.AlignedCopy(b)
}

// ReadAligned reads r to EOF into 8-byte aligned memory. It returns
// ErrSizeOverflow if r yields more than maxSize bytes.
func ReadAligned(r io.Reader, maxSize uint64) ([]byte, error) {
	return sizing.ReadAllWithLimit(r, maxSize, ErrSizeOverflow)
}
