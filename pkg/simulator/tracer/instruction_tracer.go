package tracer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/holiman/uint256"
)

// Instruction is a single executed instruction.
type Instruction struct {
	PC      uint64
	Op      interpreter.OpCode
	Gas     uint64
	GasCost uint64
	Depth   int
	FrameID uint32
	// Stack is a copy of the operand stack, bottom first, limited to the
	// topmost MaxStackItems entries. It is nil once MaxBytes is used up.
	Stack []uint256.Int
	Error string
}

// InstructionTracerConfig bounds what an InstructionTracer records. Zero
// values are unbounded.
type InstructionTracerConfig struct {
	MaxInstructions int
	MaxStackItems   int
	// MaxBytes bounds the recorded size of the whole log. Entries keep
	// being recorded without their stack until the bare entries alone no
	// longer fit.
	MaxBytes int
}

const (
	// instructionSize is the recorded size of an entry without its stack.
	instructionSize = 64
	// stackWordSize is the recorded size of one stack item.
	stackWordSize = 32
)

// InstructionTracer keeps an append-only log of executed instructions.
type InstructionTracer struct {
	cfg InstructionTracerConfig

	frames    *FrameTracker
	log       []Instruction
	size      int
	truncated bool
}

// NewInstructionTracer creates an InstructionTracer.
func NewInstructionTracer(cfg InstructionTracerConfig) *InstructionTracer {
	return &InstructionTracer{
		cfg:    cfg,
		frames: NewFrameTracker(),
	}
}

// Hooks returns the interpreter hooks feeding the tracer.
func (t *InstructionTracer) Hooks() *interpreter.Hooks {
	return &interpreter.Hooks{
		OnEnter: func(depth int, _ interpreter.CallKind, _, _ common.Address, _ []byte, _ uint64, _ *uint256.Int) {
			t.frames.Enter(depth)
		},
		OnExit: func(int, []byte, uint64, error, bool) {
			t.frames.Exit()
		},
		OnOpcode: t.onOpcode,
	}
}

// Truncated reports whether entries or stack items were dropped.
func (t *InstructionTracer) Truncated() bool {
	return t.truncated
}

// Size returns the recorded size of the log in bytes.
func (t *InstructionTracer) Size() int {
	return t.size
}

// Instructions returns the recorded log in execution order.
func (t *InstructionTracer) Instructions() []Instruction {
	return t.log
}

func (t *InstructionTracer) onOpcode(pc uint64, op interpreter.OpCode, gas, cost uint64, scope *interpreter.Frame, err error) {
	if t.cfg.MaxInstructions > 0 && len(t.log) >= t.cfg.MaxInstructions {
		t.truncated = true

		return
	}

	if t.cfg.MaxBytes > 0 && t.size+instructionSize > t.cfg.MaxBytes {
		t.truncated = true

		return
	}

	data := scope.StackData()
	if t.cfg.MaxStackItems > 0 && len(data) > t.cfg.MaxStackItems {
		data = data[len(data)-t.cfg.MaxStackItems:]
		t.truncated = true
	}

	size := instructionSize + len(data)*stackWordSize
	if t.cfg.MaxBytes > 0 && t.size+size > t.cfg.MaxBytes {
		data = nil
		size = instructionSize
		t.truncated = true
	}

	entry := Instruction{
		PC:      pc,
		Op:      op,
		Gas:     gas,
		GasCost: cost,
		Depth:   scope.Depth(),
		FrameID: t.frames.CurrentFrameID(),
	}

	if len(data) > 0 {
		entry.Stack = append([]uint256.Int(nil), data...)
	}

	if err != nil {
		entry.Error = err.Error()
	}

	t.size += size
	t.log = append(t.log, entry)
}
