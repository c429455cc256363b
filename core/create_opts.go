package vpt

import "log/slog"

// DefaultMaxFiles is the default limit used when no MaxFiles option is set.
const DefaultMaxFiles = 65_536

// createConfig holds configuration for table creation.
type createConfig struct {
	maxFiles       int
	maxPayloadSize int64
	trimExt        string
	prefix         string
	concurrency    int
	logger         *slog.Logger
}

// CreateOption configures table creation.
type CreateOption func(*createConfig)

// CreateWithMaxFiles limits the number of files included in the table.
// Zero uses DefaultMaxFiles. Negative means no limit.
func CreateWithMaxFiles(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxFiles = n
	}
}

// CreateWithMaxPayloadSize limits the size of a single payload file.
// Zero or negative uses the largest size the format can describe.
func CreateWithMaxPayloadSize(n int64) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxPayloadSize = n
	}
}

// CreateWithTrimExt strips ext from program names, so "lib/util.luac"
// becomes "lib/util" with ext ".luac". Files without the extension keep
// their full name.
func CreateWithTrimExt(ext string) CreateOption {
	return func(cfg *createConfig) {
		cfg.trimExt = ext
	}
}

// CreateWithConcurrency sets how many payload files are read in parallel.
// Values < 1 use GOMAXPROCS.
func CreateWithConcurrency(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.concurrency = n
	}
}

// CreateWithLogger sets the logger for table creation.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}

// CreateWithPrefix places every program under prefix, so "util" becomes
// "lib/util" with prefix "lib". The prefix is normalized with NormalizeName.
func CreateWithPrefix(prefix string) CreateOption {
	return func(cfg *createConfig) {
		cfg.prefix = NormalizeName(prefix)
	}
}
