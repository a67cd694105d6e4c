package execution

import "errors"

var (
	// ErrNodeNotReady is returned when a snapshot is requested before the
	// node finished initialising.
	ErrNodeNotReady = errors.New("execution node is not ready")

	// ErrChainMismatch indicates the node serves a different chain than configured.
	ErrChainMismatch = errors.New("execution node chain mismatch")
)
