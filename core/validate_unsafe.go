package vpt

import (
	"unsafe"

	"github.com/meigma/vpt/core/internal/sizing"
)

// ValidateAt validates a program table that starts at p and returns a View
// over the size its header declares.
//
// ValidateAt is unsafe. No length is supplied, so it cannot check that
// the memory at p is large enough. The caller must guarantee that:
//
//   - at least HeaderSize bytes starting at p are readable, and
//   - once the header is accepted, Header.Size bytes starting at p are
//     readable and stay unmodified for as long as the View or anything
//     derived from it is in use.
//
// Violating either condition is undefined behavior. Within that contract
// ValidateAt performs the alignment, magic, version and vendor checks of
// Validate and rejects declared sizes smaller than the header. A nil p is
// rejected as a size mismatch.
func ValidateAt(p unsafe.Pointer, vendorID uint32, opts ...ValidateOption) (View, error) {
	cfg := validateConfig{consumer: CurrentVersion}
	if len(opts) > 0 {
		cfg = newValidateConfig(opts)
	}

	if p == nil {
		return View{}, shortBuffer(0)
	}
	if !sizing.IsAligned(p) {
		return View{}, &Defect{Kind: DefectAlignmentMismatch, Addr: uintptr(p)}
	}

	h := decodeHeader(unsafe.Slice((*byte)(p), HeaderSize))
	if err := checkHeader(&h, vendorID, &cfg); err != nil {
		return View{}, err
	}

	v := View{b: unsafe.Slice((*byte)(p), h.Size)}
	if cfg.strict {
		if err := v.checkLayout(); err != nil {
			return View{}, err
		}
	}
	return v, nil
}
