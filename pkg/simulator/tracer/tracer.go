// Package tracer records observations of a simulation run through the
// interpreter hooks. Recording never alters execution: once a recording
// budget is exhausted further records are dropped and Truncated reports true.
package tracer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/holiman/uint256"
)

// Tracer is implemented by CallTracer and InstructionTracer.
type Tracer interface {
	Hooks() *interpreter.Hooks
	Truncated() bool
}

// Combine merges several hook sets into one. Nil entries and nil hooks are
// skipped, and hooks fire in argument order.
func Combine(hooks ...*interpreter.Hooks) *interpreter.Hooks {
	var (
		enters  []interpreter.EnterHook
		exits   []interpreter.ExitHook
		opcodes []interpreter.OpcodeHook
	)

	for _, h := range hooks {
		if h == nil {
			continue
		}

		if h.OnEnter != nil {
			enters = append(enters, h.OnEnter)
		}

		if h.OnExit != nil {
			exits = append(exits, h.OnExit)
		}

		if h.OnOpcode != nil {
			opcodes = append(opcodes, h.OnOpcode)
		}
	}

	combined := &interpreter.Hooks{}

	if len(enters) > 0 {
		combined.OnEnter = func(depth int, kind interpreter.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
			for _, fn := range enters {
				fn(depth, kind, from, to, input, gas, value)
			}
		}
	}

	if len(exits) > 0 {
		combined.OnExit = func(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
			for _, fn := range exits {
				fn(depth, output, gasUsed, err, reverted)
			}
		}
	}

	if len(opcodes) > 0 {
		combined.OnOpcode = func(pc uint64, op interpreter.OpCode, gas, cost uint64, scope *interpreter.Frame, err error) {
			for _, fn := range opcodes {
				fn(pc, op, gas, cost, scope, err)
			}
		}
	}

	return combined
}
