package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	vpt "github.com/meigma/vpt/core"
)

// Archive is a pulled and validated program table.
type Archive struct {
	manifest *Manifest
	view     vpt.View
}

// Manifest returns the manifest the table was pulled from.
func (a *Archive) Manifest() *Manifest {
	return a.manifest
}

// View returns the validated table. The view owns its buffer.
func (a *Archive) View() vpt.View {
	return a.view
}

// Bytes returns the table bytes.
func (a *Archive) Bytes() []byte {
	return a.view.Bytes()
}

// Pull retrieves a program table from an OCI registry and validates it
// against vendorID.
//
// Manifests whose vendor annotation names a different vendor are rejected
// before the layer is downloaded. Concurrent pulls of the same layer share
// a single download.
func (c *Client) Pull(ctx context.Context, ref string, vendorID uint32, opts ...PullOption) (*Archive, error) {
	cfg := pullConfig{
		maxSize:          defaultMaxSize,
		maxDecoderMemory: defaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c.log().Info("pulling program table", "ref", ref)

	manifest, err := c.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if id, ok := manifest.VendorID(); ok && id != vendorID {
		return nil, fmt.Errorf("%w: manifest is for vendor 0x%08x, want 0x%08x", ErrVendorMismatch, id, vendorID)
	}

	layer := manifest.Layer()
	if cfg.maxSize > 0 && layer.Size > cfg.maxSize {
		return nil, fmt.Errorf("%w: layer is %d bytes, limit %d", ErrTooLarge, layer.Size, cfg.maxSize)
	}

	raw, fromCache, err := c.layerBytes(ctx, ref, &layer, &cfg)
	if err != nil {
		return nil, err
	}

	table, err := decodeLayer(raw, manifest.Compression(), &cfg)
	if err != nil {
		return nil, err
	}

	view, err := vpt.Validate(table, vendorID, cfg.validateOpts...)
	if err != nil {
		var d *vpt.Defect
		if errors.As(err, &d) && d.Kind == vpt.DefectVendorMismatch {
			return nil, fmt.Errorf("%w: table is for vendor 0x%08x, want 0x%08x", ErrVendorMismatch, d.VendorID, d.ExpectedVendorID)
		}
		return nil, fmt.Errorf("validate program table: %w", err)
	}

	if !fromCache && !cfg.skipCache && c.cache != nil {
		if err := c.cache.Put(layer.Digest.String(), raw); err != nil {
			c.log().Warn("failed to cache table layer", "digest", shortDigest(layer.Digest.String()), "error", err)
		}
	}

	c.log().Debug("pulled program table",
		"ref", ref,
		"digest", manifest.Digest(),
		"programs", view.Len(),
		"cached", fromCache,
	)
	return &Archive{manifest: manifest, view: view}, nil
}

// layerBytes returns the raw layer, from cache when possible. Downloads
// of the same digest in flight at the same time are shared.
func (c *Client) layerBytes(ctx context.Context, ref string, layer *ocispec.Descriptor, cfg *pullConfig) ([]byte, bool, error) {
	key := layer.Digest.String()
	if data, ok := c.tryCache(key, layer, cfg); ok {
		return data, true, nil
	}

	ch := c.downloads.DoChan(key, func() (any, error) {
		return c.downloadLayer(ctx, ref, layer)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.log().Debug("shared layer download", "digest", shortDigest(key))
		}
		data, _ := res.Val.([]byte) //nolint:errcheck // DoChan only ever yields []byte
		return data, false, nil
	}
}

// tryCache attempts to get the layer from cache, returning (data, true) on hit.
func (c *Client) tryCache(key string, layer *ocispec.Descriptor, cfg *pullConfig) ([]byte, bool) {
	if cfg.skipCache || c.cache == nil {
		return nil, false
	}

	cached, ok := c.cache.Get(key)
	if !ok {
		c.log().Debug("layer cache miss", "digest", shortDigest(key))
		return nil, false
	}

	if err := verifyLayer(cached, layer); err != nil {
		c.log().Warn("corrupted layer cache entry deleted", "digest", shortDigest(key))
		_ = c.cache.Delete(key) //nolint:errcheck // best-effort cleanup
		return nil, false
	}

	c.log().Debug("layer cache hit", "digest", shortDigest(key), "size", len(cached))
	return cached, true
}

// downloadLayer fetches the layer into aligned memory and verifies it.
func (c *Client) downloadLayer(ctx context.Context, ref string, layer *ocispec.Descriptor) ([]byte, error) {
	rc, err := c.oci.FetchBlob(ctx, ref, layer)
	if err != nil {
		return nil, fmt.Errorf("fetch table layer: %w", mapOCIError(err))
	}
	defer rc.Close()

	data, err := vpt.ReadAligned(rc, uint64(layer.Size)) //nolint:gosec // size checked non-negative in parseManifest
	if errors.Is(err, vpt.ErrSizeOverflow) {
		return nil, fmt.Errorf("read table layer: %w: more than %d bytes", ErrDigestMismatch, layer.Size)
	}
	if err != nil {
		return nil, fmt.Errorf("read table layer: %w", err)
	}

	if err := verifyLayer(data, layer); err != nil {
		c.log().Warn("layer verification failed", "digest", layer.Digest.String(), "error", err)
		return nil, fmt.Errorf("read table layer: %w", err)
	}
	return data, nil
}

// verifyLayer checks data against the layer's size and digest.
func verifyLayer(data []byte, layer *ocispec.Descriptor) error {
	if int64(len(data)) != layer.Size {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrDigestMismatch, layer.Size, len(data))
	}
	if err := layer.Digest.Validate(); err != nil {
		return fmt.Errorf("%w: invalid digest %q: %v", ErrInvalidManifest, layer.Digest, err)
	}
	if computed := layer.Digest.Algorithm().FromBytes(data); computed != layer.Digest {
		return fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, layer.Digest, computed)
	}
	return nil
}

// decodeLayer turns raw layer bytes into an aligned table buffer.
func decodeLayer(raw []byte, compression Compression, cfg *pullConfig) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return vpt.Aligned(raw), nil
	case CompressionZstd:
		limit := uint64(vpt.DefaultMaxTableSize)
		if cfg.maxSize > 0 {
			limit = min(limit, uint64(cfg.maxSize))
		}

		decOpts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
		if cfg.maxDecoderMemory > 0 {
			decOpts = append(decOpts, zstd.WithDecoderMaxMemory(cfg.maxDecoderMemory))
		}
		dec, err := zstd.NewReader(bytes.NewReader(raw), decOpts...)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		table, err := vpt.ReadAligned(dec, limit)
		if errors.Is(err, vpt.ErrSizeOverflow) {
			return nil, fmt.Errorf("%w: decoded table exceeds %d bytes", ErrTooLarge, limit)
		}
		if err != nil {
			return nil, fmt.Errorf("decode zstd layer: %w", err)
		}
		return table, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidManifest, compression)
	}
}

func shortDigest(d string) string {
	return d[:min(19, len(d))]
}
