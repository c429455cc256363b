// Package vpt implements the versioned program table: a single contiguous,
// 8-byte aligned buffer that maps program names to compiled payloads.
//
// A table is a 24-byte header followed by program records:
//
//	header   magic u32 | major u16 | minor u16 | vendor u32 | size u32 | count u32 | reserved u32
//	record   name_len u32 | payload_len u32 | payload | name | zero padding to 8 bytes
//
// Producers use Builder (or Create for a directory of payload files).
// Consumers call Validate with the vendor id they expect and iterate the
// returned View. Validation and iteration never copy the buffer and do not
// allocate on success; every Program aliases the validated buffer.
//
// All integers are little-endian.
package vpt
