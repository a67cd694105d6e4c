package interpreter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Frame is one nested execution context. Frames live on the EVM's explicit
// frame stack; a frame never outlives its parent.
type Frame struct {
	parent *Frame

	kind  CallKind
	depth int

	caller      common.Address
	address     common.Address
	codeAddress common.Address
	input       []byte
	value       *uint256.Int
	readOnly    bool

	code      []byte
	codeHash  common.Hash
	jumpdests bitvec

	gas      uint64
	startGas uint64

	pc         uint64
	stack      *Stack
	memory     *Memory
	returnData []byte

	// checkpoint is the state view checkpoint taken before the frame's
	// value transfer; failures revert to it.
	checkpoint int

	// Output window in the parent's memory for call frames.
	retOffset uint64
	retSize   uint64
}

// Depth returns the nesting level of the frame, 1 for the root.
func (f *Frame) Depth() int {
	return f.depth
}

// Kind returns the frame type.
func (f *Frame) Kind() CallKind {
	return f.kind
}

// Address returns the account whose storage the frame operates on.
func (f *Frame) Address() common.Address {
	return f.address
}

// Caller returns msg.sender of the frame.
func (f *Frame) Caller() common.Address {
	return f.caller
}

// StackData returns the operand stack, bottom first.
func (f *Frame) StackData() []uint256.Int {
	if f.stack == nil {
		return nil
	}

	return f.stack.Data()
}

// MemoryData returns the frame memory.
func (f *Frame) MemoryData() []byte {
	if f.memory == nil {
		return nil
	}

	return f.memory.Data()
}

// Gas returns the remaining gas of the frame.
func (f *Frame) Gas() uint64 {
	return f.gas
}

func (f *Frame) useGas(gas uint64) bool {
	if f.gas < gas {
		return false
	}

	f.gas -= gas

	return true
}

func (f *Frame) getOp(n uint64) OpCode {
	if n < uint64(len(f.code)) {
		return OpCode(f.code[n])
	}

	return STOP
}

func (f *Frame) validJumpdest(dest *uint256.Int) bool {
	udest, overflow := dest.Uint64WithOverflow()
	if overflow {
		return false
	}

	if f.jumpdests == nil {
		f.jumpdests = codeBitmap(f.code)
	}

	return validJumpdest(f.code, f.jumpdests, udest)
}

// runnable reports whether the frame has bytecode to interpret.
func (f *Frame) runnable() bool {
	return len(f.code) > 0
}

// frameResult is the terminal outcome of a frame.
type frameResult struct {
	ret     []byte
	gasLeft uint64
	err     error
}
