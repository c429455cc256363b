package engine

import "errors"

// Sentinel errors for engine operations.
var (
	// ErrDuplicateName is returned when two programs in a table share a name.
	ErrDuplicateName = errors.New("engine: duplicate program name")

	// ErrModuleNotFound is returned when a ModuleSet has no module with the
	// requested name.
	ErrModuleNotFound = errors.New("engine: module not found")
)
