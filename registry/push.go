package registry

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	vpt "github.com/meigma/vpt/core"
)

// Push pushes a program table to an OCI registry.
//
// The table is validated against vendorID first, then pushed as a single
// layer with a manifest describing it. The ref must include a tag
// (e.g., "registry.com/repo:v1.0.0"). The returned descriptor points at
// the pushed manifest.
//
// Use WithTags to apply additional tags to the same manifest.
func (c *Client) Push(ctx context.Context, ref string, table []byte, vendorID uint32, opts ...PushOption) (ocispec.Descriptor, error) {
	cfg := pushConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tag, err := requireTag(ref)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	view, err := vpt.Validate(vpt.Aligned(table), vendorID)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push: %w", err)
	}

	c.log().Info("pushing program table",
		"ref", ref,
		"programs", view.Len(),
		"size", view.Size(),
		"compression", cfg.compression.String(),
	)

	configDesc, err := c.pushEmptyConfig(ctx, ref)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push config: %w", err)
	}

	layerData, err := encodeLayer(view.Bytes(), cfg.compression)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	layerDesc := ocispec.Descriptor{
		MediaType: cfg.compression.mediaType(),
		Digest:    digest.FromBytes(layerData),
		Size:      int64(len(layerData)),
	}
	if err := c.oci.PushBlob(ctx, ref, &layerDesc, bytes.NewReader(layerData)); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push table layer: %w", mapOCIError(err))
	}

	manifest := buildManifest(&configDesc, &layerDesc, view, cfg.annotations)
	manifestDesc, err := c.oci.PushManifest(ctx, ref, tag, &manifest)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push manifest: %w", mapOCIError(err))
	}

	for _, additionalTag := range cfg.tags {
		if tagErr := c.oci.Tag(ctx, ref, &manifestDesc, additionalTag); tagErr != nil {
			return ocispec.Descriptor{}, fmt.Errorf("tag %q: %w", additionalTag, mapOCIError(tagErr))
		}
	}

	c.log().Debug("pushed program table", "ref", ref, "digest", manifestDesc.Digest.String())
	return manifestDesc, nil
}

// pushEmptyConfig pushes the empty JSON config blob required by OCI manifests.
func (c *Client) pushEmptyConfig(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	desc := ocispec.DescriptorEmptyJSON
	if err := c.oci.PushBlob(ctx, ref, &desc, bytes.NewReader(desc.Data)); err != nil {
		return ocispec.Descriptor{}, mapOCIError(err)
	}
	desc.Data = nil
	return desc, nil
}

// encodeLayer returns the layer bytes for the chosen compression.
func encodeLayer(table []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return table, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(table, make([]byte, 0, len(table)/2)), nil
	default:
		return nil, fmt.Errorf("push: unknown compression %d", compression)
	}
}

// buildManifest creates an OCI manifest for a program table.
func buildManifest(configDesc, layerDesc *ocispec.Descriptor, view vpt.View, customAnnotations map[string]string) ocispec.Manifest {
	h := view.Header()
	annotations := make(map[string]string, len(customAnnotations)+4)
	maps.Copy(annotations, customAnnotations)
	annotations[AnnotationVendorID] = fmt.Sprintf("0x%08x", h.VendorID)
	annotations[AnnotationVersion] = h.Version.String()
	annotations[AnnotationProgramCount] = strconv.FormatUint(uint64(h.ProgramCount), 10)
	if _, ok := annotations[ocispec.AnnotationCreated]; !ok {
		annotations[ocispec.AnnotationCreated] = time.Now().UTC().Format(time.RFC3339)
	}

	return ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       *configDesc,
		Layers:       []ocispec.Descriptor{*layerDesc},
		Annotations:  annotations,
	}
}
