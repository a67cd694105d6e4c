package simulator

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
)

// Engine errors abort a run and are never reported as execution outcomes.
var (
	// ErrProviderUnavailable indicates the state provider could not serve the run.
	ErrProviderUnavailable = errors.New("state provider unavailable")

	// ErrTimeBudgetExceeded indicates the run did not finish within its time budget.
	ErrTimeBudgetExceeded = interpreter.ErrTimeBudgetExceeded

	// ErrInvariant indicates an internal invariant was violated.
	ErrInvariant = errors.New("internal invariant violated")
)

// Request validation errors.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrMalformedAddress = errors.New("malformed address")
	ErrMalformedHex     = errors.New("malformed hex data")
	ErrInvalidValue     = errors.New("invalid value")
	ErrInvalidFormat    = errors.New("invalid output format")
	ErrGasLimit         = errors.New("gas limit out of range")
)

// RequestError is returned for requests rejected before execution.
type RequestError struct {
	Field string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidRequest so callers can test for the whole class.
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// IsRequestError reports whether err is a request error.
func IsRequestError(err error) bool {
	var reqErr *RequestError

	return errors.As(err, &reqErr)
}
