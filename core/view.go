package vpt

import (
	"fmt"
	"iter"

	"github.com/meigma/vpt/core/internal/sizing"
)

// View is a validated, read-only program table.
//
// A View aliases the caller's buffer and is truncated to the size its
// header declares. It never copies or modifies the buffer; callers must not
// modify the buffer while the View or any Program derived from it is in use.
// Views are safe for concurrent use by multiple goroutines.
type View struct {
	b []byte
}

// Bytes returns the table bytes, exactly Header().Size long.
// The returned slice aliases the caller's buffer and must be treated as immutable.
func (v View) Bytes() []byte {
	return v.b
}

// Size returns the table size in bytes.
func (v View) Size() int {
	return len(v.b)
}

// Header returns the decoded table header.
func (v View) Header() Header {
	if len(v.b) < HeaderSize {
		return Header{}
	}
	return decodeHeader(v.b)
}

// Iter returns an iterator positioned at the first program.
// Each call starts from the beginning; iterators do not share state.
func (v View) Iter() Iterator {
	return Iterator{b: v.b, off: HeaderSize}
}

// Programs returns an iterator over all programs in table order.
//
// Iteration is lenient: it ends when fewer than ProgramHeaderSize bytes
// remain, or when a record's payload and name would run past the end of
// the table. ProgramCount is not consulted; use ProgramsStrict to enforce it.
func (v View) Programs() iter.Seq[Program] {
	return func(yield func(Program) bool) {
		it := v.Iter()
		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if !yield(p) {
				return
			}
		}
	}
}

// ProgramsStrict returns an iterator over exactly Header().ProgramCount
// programs. If the table ends early, the iterator yields a zero Program
// with an error wrapping ErrTruncated and stops.
func (v View) ProgramsStrict() iter.Seq2[Program, error] {
	return func(yield func(Program, error) bool) {
		want := v.Header().ProgramCount
		it := v.Iter()
		for i := range want {
			p, ok := it.Next()
			if !ok {
				yield(Program{}, fmt.Errorf("%w: read %d of %d programs", ErrTruncated, i, want))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Len returns the number of programs lenient iteration yields.
func (v View) Len() int {
	n := 0
	it := v.Iter()
	for _, ok := it.Next(); ok; _, ok = it.Next() {
		n++
	}
	return n
}

// Lookup returns the first program with the given name.
//
// Lookup is a linear scan; callers that look up many names should build
// their own index from Programs.
func (v View) Lookup(name string) (Program, bool) {
	it := v.Iter()
	for p, ok := it.Next(); ok; p, ok = it.Next() {
		if string(p.name) == name {
			return p, true
		}
	}
	return Program{}, false
}

// Program is one named payload inside a View.
//
// Name and Payload alias the View's buffer and are only valid while the
// buffer is alive and unmodified. Their capacity is clipped to their length.
type Program struct {
	name    []byte
	payload []byte
	offset  int
}

// Name returns the program name.
func (p Program) Name() []byte {
	return p.name
}

// Payload returns the program payload.
func (p Program) Payload() []byte {
	return p.payload
}

// Offset returns the byte offset of the program record from the table start.
func (p Program) Offset() int {
	return p.offset
}

// Iterator walks the programs of a View. The zero value yields nothing.
// An Iterator must not be copied while in use by more than one goroutine.
type Iterator struct {
	b   []byte
	off int
}

// Next returns the next program, or false when iteration is over.
// Once Next returns false it keeps returning false.
func (it *Iterator) Next() (Program, bool) {
	rem := len(it.b) - it.off
	if rem < ProgramHeaderSize {
		return Program{}, false
	}

	ph := decodeProgramHeader(it.b[it.off:])
	body := uint64(ph.PayloadLen) + uint64(ph.NameLen)
	if body > uint64(rem-ProgramHeaderSize) {
		it.off = len(it.b)
		return Program{}, false
	}

	start := it.off + ProgramHeaderSize
	payloadEnd := start + int(ph.PayloadLen)
	nameEnd := payloadEnd + int(ph.NameLen)
	p := Program{
		payload: it.b[start:payloadEnd:payloadEnd],
		name:    it.b[payloadEnd:nameEnd:nameEnd],
		offset:  it.off,
	}

	// The final record's padding may be cut off by the declared size.
	stride := sizing.Align8(ProgramHeaderSize + body)
	if stride >= uint64(rem) {
		it.off = len(it.b)
	} else {
		it.off += int(stride)
	}
	return p, true
}
