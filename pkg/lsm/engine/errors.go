package engine

import "errors"

var (
	// ErrInvalidKey is returned for an empty or whitespace-only key.
	ErrInvalidKey = errors.New("lsm: key must be a non-empty string")

	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("lsm: engine is closed")
)
