package registry

import (
	"fmt"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	orasregistry "oras.land/oras-go/v2/registry"
)

// parsedRef holds parsed reference information.
type parsedRef struct {
	registry   string
	repository string
	reference  string // tag or digest
}

// parseRef parses a reference string into its components.
func parseRef(ref string) (parsedRef, error) {
	r, err := orasregistry.ParseReference(ref)
	if err != nil {
		return parsedRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidReference, ref, err)
	}
	return parsedRef{
		registry:   r.Registry,
		repository: r.Repository,
		reference:  r.Reference,
	}, nil
}

// isDigest reports whether the reference is a digest rather than a tag.
func isDigest(ref string) bool {
	_, err := digest.Parse(ref)
	return err == nil
}

// requireTag returns the tag of ref, failing for digest or bare references.
func requireTag(ref string) (string, error) {
	parsed, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	if parsed.reference == "" || isDigest(parsed.reference) {
		return "", fmt.Errorf("%w: reference must include a tag", ErrInvalidReference)
	}
	return parsed.reference, nil
}

// descriptorFromDigest creates a minimal descriptor from a digest string.
// The descriptor has size 0 which signals to FetchManifest to accept any size.
func descriptorFromDigest(dgst string) (ocispec.Descriptor, error) {
	d, err := digest.Parse(dgst)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: invalid digest %q", ErrInvalidReference, dgst)
	}
	return ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    d,
	}, nil
}
