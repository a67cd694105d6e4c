package state

import "errors"

var (
	// ErrInvalidCheckpoint is latched when a revert targets an unknown or
	// already discarded checkpoint.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)
