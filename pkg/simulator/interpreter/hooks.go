package interpreter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallKind is the type of a frame.
type CallKind uint8

// Frame kinds.
const (
	FrameCall CallKind = iota
	FrameCallCode
	FrameDelegateCall
	FrameStaticCall
	FrameCreate
	FrameCreate2
	FrameSelfDestruct
)

var callKindNames = [...]string{
	FrameCall:         "CALL",
	FrameCallCode:     "CALLCODE",
	FrameDelegateCall: "DELEGATECALL",
	FrameStaticCall:   "STATICCALL",
	FrameCreate:       "CREATE",
	FrameCreate2:      "CREATE2",
	FrameSelfDestruct: "SELFDESTRUCT",
}

func (k CallKind) String() string {
	if int(k) < len(callKindNames) {
		return callKindNames[k]
	}

	return "UNKNOWN"
}

// IsCreate reports whether k deploys a contract.
func (k CallKind) IsCreate() bool {
	return k == FrameCreate || k == FrameCreate2
}

// ParseCallKind is the inverse of CallKind.String.
func ParseCallKind(s string) (CallKind, bool) {
	for i, name := range callKindNames {
		if name == s {
			return CallKind(i), true
		}
	}

	return 0, false
}

type (
	// EnterHook is called when a frame starts. Depth is 1 for the root frame.
	EnterHook func(depth int, kind CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int)

	// ExitHook is called when a frame ends. err is nil on success and
	// ErrExecutionReverted for REVERT; reverted reports whether the frame's
	// state changes were discarded.
	ExitHook func(depth int, output []byte, gasUsed uint64, err error, reverted bool)

	// OpcodeHook is called once per executed instruction after its gas cost
	// is known and before it runs. err is set when the instruction cannot run.
	OpcodeHook func(pc uint64, op OpCode, gas, cost uint64, scope *Frame, err error)
)

// Hooks are the extension points of the interpreter. Nil hooks are skipped;
// hooks observe and never influence execution.
type Hooks struct {
	OnEnter  EnterHook
	OnExit   ExitHook
	OnOpcode OpcodeHook
}
