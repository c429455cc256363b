package vpt

import (
	"math"

	"github.com/meigma/vpt/core/internal/sizing"
)

// Builder accumulates named payloads and serializes them into a program table.
//
// Programs are written in the order they were added. Names are not sorted
// or deduplicated. A Builder is not safe for concurrent use.
type Builder struct {
	vendorID uint32
	programs []pendingProgram
}

type pendingProgram struct {
	name    []byte
	payload []byte
}

// NewBuilder returns an empty Builder that stamps vendorID into the header.
func NewBuilder(vendorID uint32) *Builder {
	return &Builder{vendorID: vendorID}
}

// VendorID returns the vendor id the table will carry.
func (b *Builder) VendorID() uint32 {
	return b.vendorID
}

// Add appends a program. The builder keeps its own copy of name and
// payload, so callers may reuse both slices once Add returns.
func (b *Builder) Add(name, payload []byte) {
	buf := make([]byte, len(payload)+len(name))
	copy(buf, payload)
	copy(buf[len(payload):], name)
	b.appendProgram(buf, len(payload))
}

// AddString appends a program with a string name.
func (b *Builder) AddString(name string, payload []byte) {
	buf := make([]byte, len(payload)+len(name))
	copy(buf, payload)
	copy(buf[len(payload):], name)
	b.appendProgram(buf, len(payload))
}

// appendProgram records a program stored as payload followed by name in buf.
func (b *Builder) appendProgram(buf []byte, payloadLen int) {
	b.programs = append(b.programs, pendingProgram{
		payload: buf[:payloadLen:payloadLen],
		name:    buf[payloadLen:],
	})
}

// Len returns the number of pending programs.
func (b *Builder) Len() int {
	return len(b.programs)
}

// Size returns the size in bytes of the table Build would produce, or
// math.MaxUint64 if that size does not fit in a uint64.
func (b *Builder) Size() uint64 {
	total, ok := b.size()
	if !ok {
		return math.MaxUint64
	}
	return total
}

func (b *Builder) size() (uint64, bool) {
	total := uint64(HeaderSize)
	for i := range b.programs {
		p := &b.programs[i]
		var ok bool
		total, ok = sizing.AddUint64(total, RecordSize(uint64(len(p.name)), uint64(len(p.payload))))
		if !ok {
			return 0, false
		}
	}
	return total, true
}

// Build serializes the pending programs and resets the builder.
//
// The result is allocated once at its final size and starts on an 8-byte
// boundary, so it can be passed to Validate directly. Build returns
// ErrSizeOverflow if the table would not fit in the 32-bit size field.
func (b *Builder) Build() ([]byte, error) {
	total, ok := b.size()
	if !ok {
		return nil, ErrSizeOverflow
	}
	size, err := sizing.ToUint32(total, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	count, err := sizing.ToUint32(uint64(len(b.programs)), ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	n, err := sizing.ToInt(total, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}

	out := sizing.AlignedBytes(n)
	h := Header{
		Magic:        Magic,
		Version:      CurrentVersion,
		VendorID:     b.vendorID,
		Size:         size,
		ProgramCount: count,
	}
	h.put(out)

	off := HeaderSize
	for i := range b.programs {
		p := &b.programs[i]
		ProgramHeader{
			NameLen:    uint32(len(p.name)),    //nolint:gosec // bounded by size
			PayloadLen: uint32(len(p.payload)), //nolint:gosec // bounded by size
		}.put(out[off:])
		off += ProgramHeaderSize
		off += copy(out[off:], p.payload)
		off += copy(out[off:], p.name)
		// Padding is already zero.
		off = int(sizing.Align8(uint64(off))) //nolint:gosec // bounded by n
	}

	b.programs = nil
	return out, nil
}
