package interpreter

import (
	"errors"
)

// Execution errors. These terminate a single frame and are reported to the
// parent as a failed call; they never abort the run.
var (
	ErrOutOfGas                 = errors.New("out of gas")
	ErrCodeStoreOutOfGas        = errors.New("contract creation code storage out of gas")
	ErrDepth                    = errors.New("max call depth exceeded")
	ErrInsufficientBalance      = errors.New("insufficient balance for transfer")
	ErrContractAddressCollision = errors.New("contract address collision")
	ErrExecutionReverted        = errors.New("execution reverted")
	ErrMaxCodeSizeExceeded      = errors.New("max code size exceeded")
	ErrMaxInitCodeSizeExceeded  = errors.New("max initcode size exceeded")
	ErrInvalidJump              = errors.New("invalid jump destination")
	ErrWriteProtection          = errors.New("write protection")
	ErrReturnDataOutOfBounds    = errors.New("return data out of bounds")
	ErrGasUintOverflow          = errors.New("gas uint64 overflow")
	ErrInvalidCode              = errors.New("invalid code: must not begin with 0xef")
	ErrNonceUintOverflow        = errors.New("nonce uint64 overflow")
	ErrStackUnderflow           = errors.New("stack underflow")
	ErrStackOverflow            = errors.New("stack limit reached")
	ErrInvalidOpCode            = errors.New("invalid opcode")
)

// Engine errors. These abort the whole run.
var (
	ErrTimeBudgetExceeded = errors.New("time budget exceeded")
	ErrStateUnavailable   = errors.New("state provider unavailable")
)

// ErrorKind classifies a frame failure.
type ErrorKind string

// Failure kinds reported in results.
const (
	KindNone                     ErrorKind = ""
	KindReverted                 ErrorKind = "Reverted"
	KindOutOfGas                 ErrorKind = "OutOfGas"
	KindInvalidOpcode            ErrorKind = "InvalidOpcode"
	KindStackUnderflow           ErrorKind = "StackUnderflow"
	KindStackOverflow            ErrorKind = "StackOverflow"
	KindInvalidJump              ErrorKind = "InvalidJump"
	KindWriteProtection          ErrorKind = "WriteProtection"
	KindReturnDataOutOfBounds    ErrorKind = "ReturnDataOutOfBounds"
	KindCodeSizeExceeded         ErrorKind = "CodeSizeExceeded"
	KindContractAddressCollision ErrorKind = "ContractAddressCollision"
	KindInsufficientBalance      ErrorKind = "InsufficientBalance"
	KindMaxCallDepth             ErrorKind = "MaxCallDepth"
	KindGasUintOverflow          ErrorKind = "GasUintOverflow"
	KindInvalidCode              ErrorKind = "InvalidCode"
	KindNonceOverflow            ErrorKind = "NonceOverflow"
	KindUnknown                  ErrorKind = "Unknown"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrExecutionReverted, KindReverted},
	{ErrOutOfGas, KindOutOfGas},
	{ErrCodeStoreOutOfGas, KindOutOfGas},
	{ErrInvalidOpCode, KindInvalidOpcode},
	{ErrStackUnderflow, KindStackUnderflow},
	{ErrStackOverflow, KindStackOverflow},
	{ErrInvalidJump, KindInvalidJump},
	{ErrWriteProtection, KindWriteProtection},
	{ErrReturnDataOutOfBounds, KindReturnDataOutOfBounds},
	{ErrMaxCodeSizeExceeded, KindCodeSizeExceeded},
	{ErrMaxInitCodeSizeExceeded, KindCodeSizeExceeded},
	{ErrContractAddressCollision, KindContractAddressCollision},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrDepth, KindMaxCallDepth},
	{ErrGasUintOverflow, KindGasUintOverflow},
	{ErrInvalidCode, KindInvalidCode},
	{ErrNonceUintOverflow, KindNonceOverflow},
}

// KindOf returns the failure kind of a frame error. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindUnknown
}
