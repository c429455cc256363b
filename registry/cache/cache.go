// Package cache defines the storage interface the registry client uses to
// avoid downloading the same program table layer twice.
package cache

// BlobCache caches layer bytes by content digest.
//
// Keys are OCI digest strings ("sha256:<hex>"). Values are the raw layer
// bytes as stored in the registry, so implementations can verify an entry
// against its key. Implementations must be safe for concurrent use.
type BlobCache interface {
	// Get returns the cached bytes for a digest.
	Get(digest string) (data []byte, ok bool)

	// Put caches raw layer bytes by digest.
	Put(digest string, data []byte) error

	// Delete removes a cached entry. Deleting a missing entry is not an error.
	Delete(digest string) error
}
