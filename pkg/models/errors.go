package models

import "errors"

// Error taxonomy shared across the cache core. Handlers translate these to
// wire-level error codes; internal code only ever returns errors.
var (
	// ErrNotInit is returned when the cache is used before initialization.
	ErrNotInit = errors.New("cache must be initialized before use")

	// ErrNotFound is returned for an unknown store backend or model scope.
	ErrNotFound = errors.New("not found")

	// ErrParam is returned for invalid arguments such as length mismatches
	// or an out-of-range threshold.
	ErrParam = errors.New("invalid parameter")

	// ErrRemove is returned when a removal could not be applied.
	ErrRemove = errors.New("remove failed")

	// ErrCache is the generic core failure.
	ErrCache = errors.New("cache error")
)
