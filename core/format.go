package vpt

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/vpt/core/internal/sizing"
)

// Magic identifies a program table. It is the first field of every header.
const Magic uint32 = 0x675c3ed9

const (
	// HeaderSize is the encoded size of Header in bytes.
	HeaderSize = 24

	// ProgramHeaderSize is the encoded size of ProgramHeader in bytes.
	ProgramHeaderSize = 8

	// Alignment is the required alignment of the table start and of
	// every program record, relative to the table start.
	Alignment = sizing.Alignment
)

// CurrentVersion is the format version written by Builder and accepted
// by Validate unless WithConsumerVersion overrides it.
var CurrentVersion = Version{Major: 0, Minor: 1}

// Header layout:
//
//	offset 0   magic          u32
//	offset 4   version major  u16
//	offset 6   version minor  u16
//	offset 8   vendor id      u32
//	offset 12  total size     u32
//	offset 16  program count  u32
//	offset 20  reserved       u32 (zero)
const (
	offMagic    = 0
	offMajor    = 4
	offMinor    = 6
	offVendor   = 8
	offSize     = 12
	offCount    = 16
	offReserved = 20
)

// Version is a format version.
type Version struct {
	Major uint16
	Minor uint16
}

// CompatibleWith reports whether a consumer at version v can read a table
// written at version found.
//
// The major versions must match. On the 0.x line the minor versions must
// also match exactly; from 1.0 on, found.Minor must be at least v.Minor.
func (v Version) CompatibleWith(found Version) bool {
	if v.Major != found.Major {
		return false
	}
	if v.Major == 0 {
		return v.Minor == found.Minor
	}
	return found.Minor >= v.Minor
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Header describes a whole program table.
type Header struct {
	Magic    uint32
	Version  Version
	VendorID uint32

	// Size is the byte length of the table including the header.
	Size uint32

	// ProgramCount is the number of programs the producer wrote. It is
	// advisory; lenient iteration never relies on it.
	ProgramCount uint32
}

// ParseHeader decodes the header at the start of b without validating it.
// It returns a size mismatch Defect if b is shorter than HeaderSize.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, shortBuffer(len(b))
	}
	return decodeHeader(b), nil
}

// decodeHeader reads a header from the first HeaderSize bytes of b.
func decodeHeader(b []byte) Header {
	_ = b[HeaderSize-1]
	return Header{
		Magic: binary.LittleEndian.Uint32(b[offMagic:]),
		Version: Version{
			Major: binary.LittleEndian.Uint16(b[offMajor:]),
			Minor: binary.LittleEndian.Uint16(b[offMinor:]),
		},
		VendorID:     binary.LittleEndian.Uint32(b[offVendor:]),
		Size:         binary.LittleEndian.Uint32(b[offSize:]),
		ProgramCount: binary.LittleEndian.Uint32(b[offCount:]),
	}
}

// put encodes h into the first HeaderSize bytes of b.
func (h *Header) put(b []byte) {
	_ = b[HeaderSize-1]
	binary.LittleEndian.PutUint32(b[offMagic:], h.Magic)
	binary.LittleEndian.PutUint16(b[offMajor:], h.Version.Major)
	binary.LittleEndian.PutUint16(b[offMinor:], h.Version.Minor)
	binary.LittleEndian.PutUint32(b[offVendor:], h.VendorID)
	binary.LittleEndian.PutUint32(b[offSize:], h.Size)
	binary.LittleEndian.PutUint32(b[offCount:], h.ProgramCount)
	binary.LittleEndian.PutUint32(b[offReserved:], 0)
}

// ProgramHeader precedes each program record. The payload follows it
// directly, then the name, then zero padding to the next 8-byte boundary.
type ProgramHeader struct {
	NameLen    uint32
	PayloadLen uint32
}

// decodeProgramHeader reads a program header from the first
// ProgramHeaderSize bytes of b.
func decodeProgramHeader(b []byte) ProgramHeader {
	_ = b[ProgramHeaderSize-1]
	return ProgramHeader{
		NameLen:    binary.LittleEndian.Uint32(b[0:]),
		PayloadLen: binary.LittleEndian.Uint32(b[4:]),
	}
}

// put encodes ph into the first ProgramHeaderSize bytes of b.
func (ph ProgramHeader) put(b []byte) {
	_ = b[ProgramHeaderSize-1]
	binary.LittleEndian.PutUint32(b[0:], ph.NameLen)
	binary.LittleEndian.PutUint32(b[4:], ph.PayloadLen)
}

// RecordSize returns the number of bytes a program with the given name and
// payload lengths occupies, including its header and padding.
func RecordSize(nameLen, payloadLen uint64) uint64 {
	return sizing.Align8(ProgramHeaderSize + nameLen + payloadLen)
}
