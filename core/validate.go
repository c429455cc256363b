package vpt

import (
	"unsafe"

	"github.com/meigma/vpt/core/internal/sizing"
)

// ValidateOption configures Validate and ValidateAt.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	consumer Version
	strict   bool
}

// WithConsumerVersion validates against v instead of CurrentVersion.
func WithConsumerVersion(v Version) ValidateOption {
	return func(cfg *validateConfig) {
		cfg.consumer = v
	}
}

// WithStrictLayout additionally walks exactly ProgramCount records and
// requires them to end at the declared size. Any disagreement is reported
// as a size mismatch.
func WithStrictLayout() ValidateOption {
	return func(cfg *validateConfig) {
		cfg.strict = true
	}
}

// newValidateConfig applies opts to a fresh config. Options escape, so the
// config lives on the heap; callers skip it when there are no options.
func newValidateConfig(opts []ValidateOption) validateConfig {
	cfg := validateConfig{consumer: CurrentVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate checks that b holds a program table built for vendorID and
// returns a View over exactly the declared size of the table.
//
// The checks run in order and stop at the first failure: header fits,
// 8-byte start alignment, magic, version, vendor, declared size fits.
// Bytes past the declared size are ignored and never reachable from the
// returned View. Validate does not copy b, and without options it does not
// allocate on success.
func Validate(b []byte, vendorID uint32, opts ...ValidateOption) (View, error) {
	cfg := validateConfig{consumer: CurrentVersion}
	if len(opts) > 0 {
		cfg = newValidateConfig(opts)
	}

	if len(b) < HeaderSize {
		return View{}, shortBuffer(len(b))
	}
	if !sizing.IsSliceAligned(b) {
		return View{}, &Defect{
			Kind: DefectAlignmentMismatch,
			Addr: uintptr(unsafe.Pointer(unsafe.SliceData(b))),
		}
	}

	h := decodeHeader(b)
	if err := checkHeader(&h, vendorID, &cfg); err != nil {
		return View{}, err
	}
	if uint64(len(b)) < uint64(h.Size) {
		return View{}, &Defect{Kind: DefectSizeMismatch, Want: uint64(h.Size), Have: uint64(len(b))}
	}

	v := View{b: b[:h.Size:h.Size]}
	if cfg.strict {
		if err := v.checkLayout(); err != nil {
			return View{}, err
		}
	}
	return v, nil
}

// checkHeader applies the magic, version and vendor checks, then rejects
// declared sizes too small to contain the header itself.
func checkHeader(h *Header, vendorID uint32, cfg *validateConfig) error {
	if h.Magic != Magic {
		return &Defect{Kind: DefectMagicMismatch, Magic: h.Magic}
	}
	if !cfg.consumer.CompatibleWith(h.Version) {
		return &Defect{Kind: DefectVersionMismatch, Version: h.Version, Consumer: cfg.consumer}
	}
	if h.VendorID != vendorID {
		return &Defect{Kind: DefectVendorMismatch, VendorID: h.VendorID, ExpectedVendorID: vendorID}
	}
	if h.Size < HeaderSize {
		return &Defect{Kind: DefectSizeMismatch, Want: HeaderSize, Have: uint64(h.Size)}
	}
	return nil
}

// checkLayout walks ProgramCount records and requires every record to lie
// inside the view and the last one to end exactly at the declared size.
func (v View) checkLayout() error {
	h := v.Header()
	size := uint64(len(v.b))
	off := uint64(HeaderSize)
	for range h.ProgramCount {
		if size-off < ProgramHeaderSize {
			return &Defect{Kind: DefectSizeMismatch, Want: off + ProgramHeaderSize, Have: size}
		}
		ph := decodeProgramHeader(v.b[off:])
		stride := RecordSize(uint64(ph.NameLen), uint64(ph.PayloadLen))
		if stride > size-off {
			return &Defect{Kind: DefectSizeMismatch, Want: off + stride, Have: size}
		}
		off += stride
	}
	if off != size {
		return &Defect{Kind: DefectSizeMismatch, Want: off, Have: size}
	}
	return nil
}
