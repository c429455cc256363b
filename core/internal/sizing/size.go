// Package sizing provides alignment arithmetic, safe size conversions and
// aligned buffer allocation for the container format.
package sizing

import (
	"io"
	"math"
	"unsafe"
)

// Alignment is the byte alignment of the header and of every program record.
const Alignment = 8

// Align8 rounds n up to the next multiple of 8.
func Align8(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// IsAligned reports whether p is 8-byte aligned.
func IsAligned(p unsafe.Pointer) bool {
	return uintptr(p)%Alignment == 0
}

// IsSliceAligned reports whether the first byte of b is 8-byte aligned.
// An empty slice with a nil data pointer is reported as aligned.
func IsSliceAligned(b []byte) bool {
	return IsAligned(unsafe.Pointer(unsafe.SliceData(b)))
}

// ToUint32 converts a uint64 to uint32, returning overflowErr if it doesn't fit.
func ToUint32(size uint64, overflowErr error) (uint32, error) {
	if size > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(size), nil
}

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// AlignedBytes returns a zeroed slice of length n whose first byte is
// 8-byte aligned. The backing array is allocated as []uint64 so the
// alignment does not depend on allocator size classes.
func AlignedBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	words := make([]uint64, (n+Alignment-1)/Alignment)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}

// AlignedCopy returns an 8-byte aligned copy of b.
func AlignedCopy(b []byte) []byte {
	out := AlignedBytes(len(b))
	copy(out, b)
	return out
}

// ReadAllWithLimit reads up to maxSize bytes from r into aligned storage.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	if IsSliceAligned(data) {
		return data, nil
	}
	return AlignedCopy(data), nil
}
