package registry

import vpt "github.com/meigma/vpt/core"

// PullOption configures a Pull operation.
type PullOption func(*pullConfig)

type pullConfig struct {
	skipCache bool
	// maxSize limits both the downloaded layer and the decoded table.
	// A value <= 0 disables the limit.
	maxSize int64
	// maxDecoderMemory caps the zstd decoder's window allocation.
	maxDecoderMemory uint64
	validateOpts     []vpt.ValidateOption
}

const (
	defaultMaxSize          = 256 << 20 // 256 MiB
	defaultMaxDecoderMemory = 64 << 20  // 64 MiB
)

// WithMaxSize sets the maximum number of bytes allowed for the table layer
// and for the decoded table.
//
// Use a value <= 0 to disable the limit. Tables can never exceed 4 GiB.
func WithMaxSize(maxBytes int64) PullOption {
	return func(cfg *pullConfig) {
		cfg.maxSize = maxBytes
	}
}

// WithMaxDecoderMemory caps the memory the zstd decoder may allocate for
// its window. It has no effect on uncompressed layers.
func WithMaxDecoderMemory(limit uint64) PullOption {
	return func(cfg *pullConfig) {
		cfg.maxDecoderMemory = limit
	}
}

// WithPullSkipCache bypasses the blob cache.
//
// This forces a fresh download from the registry even if cached data
// exists. The downloaded layer is not written back to the cache.
func WithPullSkipCache() PullOption {
	return func(cfg *pullConfig) {
		cfg.skipCache = true
	}
}

// WithValidateOptions passes options to vpt.Validate for the pulled table.
func WithValidateOptions(opts ...vpt.ValidateOption) PullOption {
	return func(cfg *pullConfig) {
		cfg.validateOpts = append(cfg.validateOpts, opts...)
	}
}
