// Package registry pushes and pulls program tables to and from OCI
// registries.
//
// A table is stored as an OCI 1.1 artifact: an empty config, one layer
// holding the table bytes (optionally zstd compressed in transit) and a
// manifest annotated with the vendor id, format version and program count.
// Pull checks the vendor annotation before downloading, verifies the layer
// digest, copies the table into 8-byte aligned memory and validates it.
//
// The client uses the oras subpackage for low-level OCI operations and an
// optional cache.BlobCache to avoid downloading the same layer twice.
package registry
