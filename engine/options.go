package engine

import "log/slog"

// Option configures an Engine.
type Option func(*config)

type config struct {
	// memoryLimitPages caps each instance's memory in 64 KiB pages.
	// 0 keeps the wazero default (65536 pages = 4 GiB).
	memoryLimitPages uint32
	interpreter      bool
	logger           *slog.Logger
}

// WithMemoryLimitPages caps the linear memory of every instance, in 64 KiB
// pages. 256 = 16 MiB, 1024 = 64 MiB.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithInterpreter selects the wazero interpreter instead of the compiler.
// The interpreter runs on every platform Go supports.
func WithInterpreter() Option {
	return func(c *config) {
		c.interpreter = true
	}
}

// WithLogger sets the logger for engine operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
