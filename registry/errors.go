package registry

import (
	"errors"
	"fmt"

	vpt "github.com/meigma/vpt/core"
)

// Sentinel errors for client operations.
var (
	// ErrNotFound is returned when no program table exists at the reference.
	ErrNotFound = errors.New("registry: not found")

	// ErrInvalidReference is returned when a reference string is malformed.
	ErrInvalidReference = errors.New("registry: invalid reference")

	// ErrInvalidManifest is returned when a manifest is not a valid program table manifest.
	ErrInvalidManifest = errors.New("registry: invalid program table manifest")

	// ErrDigestMismatch is returned when content does not match its expected digest.
	ErrDigestMismatch = errors.New("registry: digest mismatch")

	// ErrTooLarge is returned when a layer exceeds the configured size limit.
	ErrTooLarge = errors.New("registry: program table too large")

	// ErrVendorMismatch is returned when a table was produced for a different
	// vendor. It also matches vpt.ErrVendorMismatch.
	ErrVendorMismatch = fmt.Errorf("registry: %w", vpt.ErrVendorMismatch)
)
