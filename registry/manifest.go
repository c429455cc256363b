package registry

import (
	"fmt"
	"strconv"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest wraps an OCI manifest for a program table.
//
// It provides convenient access to the table layer descriptor and the
// annotations Push writes.
type Manifest struct {
	raw         ocispec.Manifest
	digest      string
	layer       ocispec.Descriptor
	compression Compression
	created     time.Time
}

// Digest returns the manifest digest.
func (m *Manifest) Digest() string {
	return m.digest
}

// Layer returns the descriptor for the table layer.
func (m *Manifest) Layer() ocispec.Descriptor {
	return m.layer
}

// Compression reports how the table layer is encoded.
func (m *Manifest) Compression() Compression {
	return m.compression
}

// Annotations returns the manifest annotations.
func (m *Manifest) Annotations() map[string]string {
	return m.raw.Annotations
}

// Created returns the creation timestamp from annotations.
//
// Returns zero time if the annotation is not present or cannot be parsed.
func (m *Manifest) Created() time.Time {
	return m.created
}

// VendorID returns the vendor id annotation. The second result is false
// when the annotation is missing or malformed.
func (m *Manifest) VendorID() (uint32, bool) {
	s, ok := m.raw.Annotations[AnnotationVendorID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// Version returns the format version annotation, or "" if absent.
func (m *Manifest) Version() string {
	return m.raw.Annotations[AnnotationVersion]
}

// ProgramCount returns the program count annotation. The second result is
// false when the annotation is missing or malformed.
func (m *Manifest) ProgramCount() (uint32, bool) {
	s, ok := m.raw.Annotations[AnnotationProgramCount]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Raw returns the underlying OCI manifest.
func (m *Manifest) Raw() ocispec.Manifest {
	return m.raw
}

// parseManifest parses an OCI manifest into a Manifest.
func parseManifest(manifest *ocispec.Manifest, digest string) (*Manifest, error) {
	if manifest.MediaType != ocispec.MediaTypeImageManifest {
		return nil, fmt.Errorf("%w: unexpected manifest media type %q", ErrInvalidManifest, manifest.MediaType)
	}
	if manifest.ArtifactType != ArtifactType {
		return nil, fmt.Errorf("%w: unexpected artifact type %q", ErrInvalidManifest, manifest.ArtifactType)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("%w: expected 1 layer, got %d", ErrInvalidManifest, len(manifest.Layers))
	}

	layer := manifest.Layers[0]
	compression, ok := compressionFor(layer.MediaType)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected layer media type %q", ErrInvalidManifest, layer.MediaType)
	}
	if err := layer.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid layer digest %q: %v", ErrInvalidManifest, layer.Digest, err)
	}
	if layer.Size < 0 {
		return nil, fmt.Errorf("%w: negative layer size %d", ErrInvalidManifest, layer.Size)
	}

	var created time.Time
	if ts, ok := manifest.Annotations[ocispec.AnnotationCreated]; ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			created = t
		}
	}

	return &Manifest{
		raw:         *manifest,
		digest:      digest,
		layer:       layer,
		compression: compression,
		created:     created,
	}, nil
}
