package registry

import (
	"context"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Fetch retrieves the manifest for a program table without downloading
// the table itself.
//
// This is useful for inspecting table metadata or checking if a table
// exists without the overhead of downloading the layer.
func (c *Client) Fetch(ctx context.Context, ref string) (*Manifest, error) {
	parsed, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	if parsed.reference == "" {
		return nil, fmt.Errorf("%w: reference must include a tag or digest", ErrInvalidReference)
	}

	desc, err := c.resolve(ctx, ref, parsed.reference)
	if err != nil {
		return nil, err
	}

	raw, _, err := c.oci.FetchManifest(ctx, ref, &desc)
	if err != nil {
		return nil, mapOCIError(err)
	}

	return parseManifest(&raw, desc.Digest.String())
}

// resolve turns a tag or digest into a manifest descriptor.
func (c *Client) resolve(ctx context.Context, ref, reference string) (ocispec.Descriptor, error) {
	if isDigest(reference) {
		c.log().Debug("resolving reference", "ref", ref, "type", "digest")
		return descriptorFromDigest(reference)
	}

	c.log().Debug("resolving reference", "ref", ref, "type", "tag")
	desc, err := c.oci.Resolve(ctx, ref, reference)
	if err != nil {
		return ocispec.Descriptor{}, mapOCIError(err)
	}
	return desc, nil
}
