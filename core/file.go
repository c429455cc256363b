package vpt

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/meigma/vpt/core/internal/sizing"
)

// DefaultMaxTableSize is the largest table ReadFile loads unless
// ReadWithMaxSize overrides it. It is the largest size the header can declare.
const DefaultMaxTableSize = math.MaxUint32

// ReadOption configures ReadFile.
type ReadOption func(*readConfig)

type readConfig struct {
	maxSize      uint64
	validateOpts []ValidateOption
	logger       *slog.Logger
}

// ReadWithMaxSize limits how many bytes ReadFile loads.
// Zero uses DefaultMaxTableSize.
func ReadWithMaxSize(n uint64) ReadOption {
	return func(cfg *readConfig) {
		cfg.maxSize = n
	}
}

// ReadWithValidateOptions passes options through to Validate.
func ReadWithValidateOptions(opts ...ValidateOption) ReadOption {
	return func(cfg *readConfig) {
		cfg.validateOpts = append(cfg.validateOpts, opts...)
	}
}

// ReadWithLogger sets the logger for ReadFile.
func ReadWithLogger(logger *slog.Logger) ReadOption {
	return func(cfg *readConfig) {
		cfg.logger = logger
	}
}

// ReadFile loads the table at path into 8-byte aligned memory and validates
// it for vendorID. The returned View owns the loaded buffer.
func ReadFile(path string, vendorID uint32, opts ...ReadOption) (View, error) {
	cfg := readConfig{maxSize: DefaultMaxTableSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSize == 0 {
		cfg.maxSize = DefaultMaxTableSize
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return View{}, err
	}
	defer f.Close()

	data, err := sizing.ReadAllWithLimit(f, cfg.maxSize, ErrSizeOverflow)
	if err != nil {
		return View{}, fmt.Errorf("read %s: %w", path, err)
	}

	v, err := Validate(data, vendorID, cfg.validateOpts...)
	if err != nil {
		logger.Warn("rejected program table", "path", path, "error", err)
		return View{}, fmt.Errorf("validate %s: %w", path, err)
	}

	logger.Debug("loaded program table", "path", path, "size", v.Size(), "programs", v.Header().ProgramCount)
	return v, nil
}
