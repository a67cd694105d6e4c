package tracer

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/holiman/uint256"
)

// CallFrame is a node of the call tree.
type CallFrame struct {
	Type         interpreter.CallKind
	From         common.Address
	To           common.Address
	Input        []byte
	Output       []byte
	Value        *uint256.Int
	Gas          uint64
	GasUsed      uint64
	Error        string
	ErrorKind    interpreter.ErrorKind
	RevertReason string
	TraceAddress []int
	Calls        []*CallFrame
}

// CallTracerConfig configures a CallTracer.
type CallTracerConfig struct {
	// FollowCalls records nested frames. When false only the root is kept.
	FollowCalls bool
	// MaxCallNodes bounds the number of recorded nodes. Zero is unbounded.
	MaxCallNodes int
}

// CallTracer builds the call tree of a run.
type CallTracer struct {
	cfg CallTracerConfig

	root *CallFrame
	// open holds one entry per active frame; nil entries are frames that
	// were not recorded.
	open      []*CallFrame
	nodes     int
	truncated bool
}

// NewCallTracer creates a CallTracer.
func NewCallTracer(cfg CallTracerConfig) *CallTracer {
	return &CallTracer{cfg: cfg}
}

// Hooks returns the interpreter hooks feeding the tracer.
func (t *CallTracer) Hooks() *interpreter.Hooks {
	return &interpreter.Hooks{
		OnEnter: t.onEnter,
		OnExit:  t.onExit,
	}
}

// Truncated reports whether nodes were dropped because of MaxCallNodes.
func (t *CallTracer) Truncated() bool {
	return t.truncated
}

// Root returns the recorded tree, or nil when nothing was entered.
func (t *CallTracer) Root() *CallFrame {
	return t.root
}

// Finish sets the transaction level gas figures on the root node.
func (t *CallTracer) Finish(gasLimit, gasUsed uint64) {
	if t.root == nil {
		return
	}

	t.root.Gas = gasLimit
	t.root.GasUsed = gasUsed
}

func (t *CallTracer) onEnter(_ int, kind interpreter.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
	node := &CallFrame{
		Type:  kind,
		From:  from,
		To:    to,
		Input: common.CopyBytes(input),
		Gas:   gas,
	}

	if value != nil {
		node.Value = new(uint256.Int).Set(value)
	}

	if len(t.open) == 0 && t.root == nil {
		t.root = node
		t.nodes++
		t.open = append(t.open, node)

		return
	}

	var parent *CallFrame
	if len(t.open) > 0 {
		parent = t.open[len(t.open)-1]
	}

	switch {
	case !t.cfg.FollowCalls || parent == nil:
		node = nil
	case t.cfg.MaxCallNodes > 0 && t.nodes >= t.cfg.MaxCallNodes:
		t.truncated = true
		node = nil
	default:
		node.TraceAddress = append(append(make([]int, 0, len(parent.TraceAddress)+1), parent.TraceAddress...), len(parent.Calls))
		parent.Calls = append(parent.Calls, node)
		t.nodes++
	}

	t.open = append(t.open, node)
}

func (t *CallTracer) onExit(_ int, output []byte, gasUsed uint64, err error, _ bool) {
	if len(t.open) == 0 {
		return
	}

	node := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]

	if node == nil {
		return
	}

	node.Output = common.CopyBytes(output)
	node.GasUsed = gasUsed

	if err == nil {
		return
	}

	node.Error = err.Error()
	node.ErrorKind = interpreter.KindOf(err)

	if errors.Is(err, interpreter.ErrExecutionReverted) {
		if reason, uerr := abi.UnpackRevert(output); uerr == nil {
			node.RevertReason = reason
		}
	}
}
