package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"

	vpt "github.com/meigma/vpt/core"
	"github.com/meigma/vpt/registry/oras"
)

const (
	testVendor uint32 = 0x1234_5678
	testRef           = "registry.example.com/programs:v1"
)

var errNotImplemented = errors.New("not implemented in mock")

// mockOCIClient is a test mock for OCIClient. Methods can be configured via
// function fields or will return errNotImplemented by default.
type mockOCIClient struct {
	PushBlobFunc      func(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error
	FetchBlobFunc     func(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error)
	PushManifestFunc  func(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error)
	FetchManifestFunc func(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error)
	ResolveFunc       func(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error)
	TagFunc           func(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error
}

func (m *mockOCIClient) PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error {
	if m.PushBlobFunc != nil {
		return m.PushBlobFunc(ctx, repoRef, desc, r)
	}
	return errNotImplemented
}

func (m *mockOCIClient) FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	if m.FetchBlobFunc != nil {
		return m.FetchBlobFunc(ctx, repoRef, desc)
	}
	return nil, errNotImplemented
}

func (m *mockOCIClient) PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	if m.PushManifestFunc != nil {
		return m.PushManifestFunc(ctx, repoRef, tag, manifest)
	}
	return ocispec.Descriptor{}, errNotImplemented
}

func (m *mockOCIClient) FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	if m.FetchManifestFunc != nil {
		return m.FetchManifestFunc(ctx, repoRef, expected)
	}
	return ocispec.Manifest{}, nil, errNotImplemented
}

func (m *mockOCIClient) Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, repoRef, ref)
	}
	return ocispec.Descriptor{}, errNotImplemented
}

func (m *mockOCIClient) Tag(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error {
	if m.TagFunc != nil {
		return m.TagFunc(ctx, repoRef, desc, tag)
	}
	return errNotImplemented
}

// memOCI is an in-memory OCIClient that behaves like a single repository.
type memOCI struct {
	mu        sync.Mutex
	blobs     map[digest.Digest][]byte
	manifests map[digest.Digest][]byte
	tags      map[string]digest.Digest

	blobFetches     atomic.Int32
	manifestFetches atomic.Int32

	// gate, when set, blocks FetchBlob until it is closed or ctx ends.
	gate chan struct{}
}

var _ OCIClient = (*memOCI)(nil)

func newMemOCI() *memOCI {
	return &memOCI{
		blobs:     make(map[digest.Digest][]byte),
		manifests: make(map[digest.Digest][]byte),
		tags:      make(map[string]digest.Digest),
	}
}

func (m *memOCI) PushBlob(_ context.Context, _ string, desc *ocispec.Descriptor, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if got := digest.FromBytes(data); got != desc.Digest {
		return fmt.Errorf("%w: blob %s, got %s", oras.ErrDigestMismatch, desc.Digest, got)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[desc.Digest] = data
	return nil
}

func (m *memOCI) FetchBlob(ctx context.Context, _ string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	m.blobFetches.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	data, ok := m.blobs[desc.Digest]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", oras.ErrNotFound, desc.Digest)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memOCI) PushManifest(_ context.Context, _, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: manifest.ArtifactType,
		Digest:       digest.FromBytes(raw),
		Size:         int64(len(raw)),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[desc.Digest] = raw
	m.tags[tag] = desc.Digest
	return desc, nil
}

func (m *memOCI) FetchManifest(_ context.Context, _ string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	m.manifestFetches.Add(1)
	m.mu.Lock()
	raw, ok := m.manifests[expected.Digest]
	m.mu.Unlock()
	if !ok {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: manifest %s", oras.ErrNotFound, expected.Digest)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: %v", oras.ErrManifestInvalid, err)
	}
	return manifest, raw, nil
}

func (m *memOCI) Resolve(_ context.Context, _, ref string) (ocispec.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := digest.Parse(ref)
	if err != nil {
		var ok bool
		if d, ok = m.tags[ref]; !ok {
			return ocispec.Descriptor{}, fmt.Errorf("%w: tag %s", oras.ErrNotFound, ref)
		}
	}
	raw, ok := m.manifests[d]
	if !ok {
		return ocispec.Descriptor{}, fmt.Errorf("%w: manifest %s", oras.ErrNotFound, d)
	}
	return ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    d,
		Size:      int64(len(raw)),
	}, nil
}

func (m *memOCI) Tag(_ context.Context, _ string, desc *ocispec.Descriptor, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.manifests[desc.Digest]; !ok {
		return fmt.Errorf("%w: manifest %s", oras.ErrNotFound, desc.Digest)
	}
	m.tags[tag] = desc.Digest
	return nil
}

// putManifest stores a hand-built manifest and its layer under tag.
func (m *memOCI) putManifest(t *testing.T, tag string, manifest *ocispec.Manifest, layer []byte) {
	t.Helper()

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	d := digest.FromBytes(raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[d] = raw
	m.tags[tag] = d
	if layer != nil {
		m.blobs[digest.FromBytes(layer)] = layer
	}
}

// buildTable returns a table holding the given name/payload pairs.
func buildTable(t *testing.T, vendor uint32, pairs ...string) []byte {
	t.Helper()

	require.Zero(t, len(pairs)%2, "pairs must be name/payload")
	b := vpt.NewBuilder(vendor)
	for i := 0; i < len(pairs); i += 2 {
		b.AddString(pairs[i], []byte(pairs[i+1]))
	}
	table, err := b.Build()
	require.NoError(t, err)
	return table
}

// tableManifest returns a manifest describing layer with the given annotations.
func tableManifest(layer []byte, mediaType string, annotations map[string]string) ocispec.Manifest {
	return ocispec.Manifest{
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       ocispec.DescriptorEmptyJSON,
		Layers: []ocispec.Descriptor{{
			MediaType: mediaType,
			Digest:    digest.FromBytes(layer),
			Size:      int64(len(layer)),
		}},
		Annotations: annotations,
	}
}
