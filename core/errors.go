package vpt

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation defects. A *Defect unwraps to exactly one
// of these, so callers can use errors.Is.
var (
	// ErrSizeMismatch is returned when the buffer is shorter than the header
	// or than the size the header declares.
	ErrSizeMismatch = errors.New("vpt: size mismatch")

	// ErrAlignmentMismatch is returned when the table does not start on an
	// 8-byte boundary.
	ErrAlignmentMismatch = errors.New("vpt: alignment mismatch")

	// ErrMagicMismatch is returned when the buffer does not start with Magic.
	ErrMagicMismatch = errors.New("vpt: magic mismatch")

	// ErrVersionMismatch is returned when the table version is not
	// compatible with the consumer version.
	ErrVersionMismatch = errors.New("vpt: version mismatch")

	// ErrVendorMismatch is returned when the table was built for another vendor.
	ErrVendorMismatch = errors.New("vpt: vendor mismatch")
)

var (
	// ErrSizeOverflow is returned when a table would not fit the 32-bit
	// size fields of the format.
	ErrSizeOverflow = errors.New("vpt: size overflow")

	// ErrTruncated is yielded by strict iteration when the table ends before
	// the declared number of programs was read.
	ErrTruncated = errors.New("vpt: truncated program table")

	// ErrTooManyFiles is returned when Create finds more files than allowed.
	ErrTooManyFiles = errors.New("vpt: too many files")
)

// DefectKind identifies why validation rejected a buffer.
type DefectKind uint8

const (
	DefectSizeMismatch DefectKind = iota + 1
	DefectAlignmentMismatch
	DefectMagicMismatch
	DefectVersionMismatch
	DefectVendorMismatch
)

// String returns the name of the defect kind.
func (k DefectKind) String() string {
	switch k {
	case DefectSizeMismatch:
		return "size mismatch"
	case DefectAlignmentMismatch:
		return "alignment mismatch"
	case DefectMagicMismatch:
		return "magic mismatch"
	case DefectVersionMismatch:
		return "version mismatch"
	case DefectVendorMismatch:
		return "vendor mismatch"
	default:
		return "unknown"
	}
}

// sentinel returns the sentinel error for k.
func (k DefectKind) sentinel() error {
	switch k {
	case DefectSizeMismatch:
		return ErrSizeMismatch
	case DefectAlignmentMismatch:
		return ErrAlignmentMismatch
	case DefectMagicMismatch:
		return ErrMagicMismatch
	case DefectVersionMismatch:
		return ErrVersionMismatch
	case DefectVendorMismatch:
		return ErrVendorMismatch
	default:
		return nil
	}
}

// Defect describes a rejected buffer. Only the fields relevant to Kind
// are set; the found values come straight from the header so a mismatched
// build can be diagnosed without parsing it again.
type Defect struct {
	Kind DefectKind

	// Want and Have are byte counts for DefectSizeMismatch.
	Want uint64
	Have uint64

	// Addr is the rejected start address for DefectAlignmentMismatch.
	Addr uintptr

	// Magic is the magic found for DefectMagicMismatch.
	Magic uint32

	// Version is the version found and Consumer the version it was
	// checked against, for DefectVersionMismatch.
	Version  Version
	Consumer Version

	// VendorID is the vendor found and ExpectedVendorID the one the caller
	// asked for, for DefectVendorMismatch.
	VendorID         uint32
	ExpectedVendorID uint32
}

// Error implements the error interface.
func (d *Defect) Error() string {
	switch d.Kind {
	case DefectSizeMismatch:
		return fmt.Sprintf("%v: need %d bytes, have %d", ErrSizeMismatch, d.Want, d.Have)
	case DefectAlignmentMismatch:
		return fmt.Sprintf("%v: address %#x is not %d-byte aligned", ErrAlignmentMismatch, d.Addr, Alignment)
	case DefectMagicMismatch:
		return fmt.Sprintf("%v: found 0x%08x, want 0x%08x", ErrMagicMismatch, d.Magic, Magic)
	case DefectVersionMismatch:
		return fmt.Sprintf("%v: found %s, consumer %s", ErrVersionMismatch, d.Version, d.Consumer)
	case DefectVendorMismatch:
		return fmt.Sprintf("%v: found 0x%08x, want 0x%08x", ErrVendorMismatch, d.VendorID, d.ExpectedVendorID)
	default:
		return "vpt: unknown defect"
	}
}

// Unwrap returns the sentinel error for the defect kind.
func (d *Defect) Unwrap() error {
	return d.Kind.sentinel()
}

// shortBuffer reports a buffer too small to hold a header.
func shortBuffer(n int) *Defect {
	return &Defect{Kind: DefectSizeMismatch, Want: HeaderSize, Have: uint64(n)} //nolint:gosec // len is never negative
}
