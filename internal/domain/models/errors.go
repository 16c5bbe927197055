package models

import "errors"

// Sentinel errors of the signal pipeline. Wrapped with stage context at the
// point of failure; matched with errors.Is at the boundaries.
var (
	// ErrInsufficientData means fewer bars than the largest indicator
	// window (or twice that, for training) requires.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedSeries means non-monotonic or duplicate timestamps, or a
	// negative price or volume. Rejected before any computation.
	ErrMalformedSeries = errors.New("malformed series")

	// ErrCorruptModelBundle means a persisted model set failed to load as a
	// coherent unit. Callers fall back to the untrained state.
	ErrCorruptModelBundle = errors.New("corrupt model bundle")

	// ErrModelNotFound means no persisted model set exists for the symbol.
	ErrModelNotFound = errors.New("model not found")
)
