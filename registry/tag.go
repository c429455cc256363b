package registry

import (
	"context"
	"fmt"
)

// Tag creates or updates a tag pointing to an existing program table manifest.
//
// The ref specifies the repository and new tag (e.g., "registry.com/repo:latest").
// The digest must be the full digest of an existing manifest (e.g., "sha256:abc...").
func (c *Client) Tag(ctx context.Context, ref, digest string) error {
	tag, err := requireTag(ref)
	if err != nil {
		return err
	}
	if !isDigest(digest) {
		return fmt.Errorf("%w: invalid digest %q", ErrInvalidReference, digest)
	}

	// ORAS needs the media type to fetch the manifest when tagging, so the
	// digest is resolved to a full descriptor first.
	desc, err := c.oci.Resolve(ctx, ref, digest)
	if err != nil {
		return mapOCIError(err)
	}

	c.log().Debug("tagging manifest", "ref", ref, "digest", digest)
	return mapOCIError(c.oci.Tag(ctx, ref, &desc, tag))
}
