// Package testutil provides helpers for building program tables in tests.
//
// The encoder here is written independently of the vpt package so tests can
// cross-check Builder output and craft malformed tables that Builder refuses
// to produce.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meigma/vpt/core/internal/sizing"
)

// Magic mirrors the format magic so malformed tables can be crafted
// without importing the package under test.
const Magic uint32 = 0x675c3ed9

// Header field offsets.
const (
	OffsetMagic    = 0
	OffsetMajor    = 4
	OffsetMinor    = 6
	OffsetVendorID = 8
	OffsetSize     = 12
	OffsetCount    = 16
)

// TestProgram is one program in a RawTable.
type TestProgram struct {
	Name    string
	Payload []byte
}

// RawTable describes a table to encode byte by byte.
type RawTable struct {
	Magic    uint32
	Major    uint16
	Minor    uint16
	VendorID uint32

	// Size overrides the size field when non-zero.
	Size uint32

	// Count overrides the program count field when non-nil.
	Count *uint32

	Programs []TestProgram
}

// NewRawTable returns a well-formed 0.1 table description.
func NewRawTable(vendorID uint32, programs ...TestProgram) RawTable {
	return RawTable{
		Magic:    Magic,
		Major:    0,
		Minor:    1,
		VendorID: vendorID,
		Programs: programs,
	}
}

// Encode serializes the table into 8-byte aligned memory.
func (r RawTable) Encode() []byte {
	total := 24
	for _, p := range r.Programs {
		total += int(sizing.Align8(uint64(8 + len(p.Name) + len(p.Payload))))
	}
	out := sizing.AlignedBytes(total)

	size := uint32(total) //nolint:gosec // test tables are small
	if r.Size != 0 {
		size = r.Size
	}
	count := uint32(len(r.Programs)) //nolint:gosec // test tables are small
	if r.Count != nil {
		count = *r.Count
	}

	le := binary.LittleEndian
	le.PutUint32(out[OffsetMagic:], r.Magic)
	le.PutUint16(out[OffsetMajor:], r.Major)
	le.PutUint16(out[OffsetMinor:], r.Minor)
	le.PutUint32(out[OffsetVendorID:], r.VendorID)
	le.PutUint32(out[OffsetSize:], size)
	le.PutUint32(out[OffsetCount:], count)

	off := 24
	for _, p := range r.Programs {
		le.PutUint32(out[off:], uint32(len(p.Name)))      //nolint:gosec // test tables are small
		le.PutUint32(out[off+4:], uint32(len(p.Payload))) //nolint:gosec // test tables are small
		copy(out[off+8:], p.Payload)
		copy(out[off+8+len(p.Payload):], p.Name)
		off += int(sizing.Align8(uint64(8 + len(p.Name) + len(p.Payload))))
	}
	return out
}

// Count returns a pointer to n for RawTable.Count.
func Count(n uint32) *uint32 {
	return &n
}

// Aligned returns an 8-byte aligned copy of b.
func Aligned(b []byte) []byte {
	return sizing.AlignedCopy(b)
}

// Misaligned returns a copy of b that starts one byte past an 8-byte boundary.
func Misaligned(b []byte) []byte {
	buf := sizing.AlignedBytes(len(b) + 1)
	copy(buf[1:], b)
	return buf[1:]
}

// PutUint32 returns an aligned copy of b with the little-endian uint32 at off replaced.
func PutUint32(b []byte, off int, v uint32) []byte {
	out := Aligned(b)
	binary.LittleEndian.PutUint32(out[off:], v)
	return out
}

// PutUint16 returns an aligned copy of b with the little-endian uint16 at off replaced.
func PutUint16(b []byte, off int, v uint16) []byte {
	out := Aligned(b)
	binary.LittleEndian.PutUint16(out[off:], v)
	return out
}

// WriteFiles writes files (slash paths relative to dir) for tests.
func WriteFiles(tb testing.TB, dir string, files map[string][]byte) {
	tb.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}
}

// MockCache implements a basic concurrency-safe digest-keyed cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte)}
}

// Get returns cached bytes for a digest.
func (c *MockCache) Get(digest string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[digest]
	return data, ok
}

// Put stores a copy of data under digest.
func (c *MockCache) Put(digest string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[digest] = append([]byte(nil), data...)
	c.puts++
	return nil
}

// Delete removes cached bytes for a digest.
func (c *MockCache) Delete(digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, digest)
	return nil
}

// Puts returns how many times Put was called (for test assertions).
func (c *MockCache) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}
