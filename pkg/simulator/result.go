package simulator

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/tracer"
	"github.com/holiman/uint256"
)

// Amount is a 256-bit unsigned integer encoded as a decimal string.
type Amount uint256.Int

// NewAmount copies v into an Amount. A nil v is zero.
func NewAmount(v *uint256.Int) Amount {
	if v == nil {
		return Amount{}
	}

	return Amount(*v)
}

// Int returns the amount as a uint256.
func (a Amount) Int() *uint256.Int {
	v := uint256.Int(a)

	return &v
}

func (a Amount) String() string {
	return a.Int().Dec()
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := uint256.FromDecimal(string(text))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", text, err)
	}

	*a = Amount(*v)

	return nil
}

// Result is the outcome of a completed simulation. Slices are nil when
// empty and byte fields are never nil, so the JSON form decodes back into
// an identical value.
type Result struct {
	Success         bool           `json:"success"`
	ChainID         uint64         `json:"chain_id"`
	Chain           string         `json:"chain"`
	BlockNumber     uint64         `json:"block_number"`
	TransactionHash *common.Hash   `json:"transaction_hash,omitempty"`
	From            common.Address `json:"from"`
	To              common.Address `json:"to"`
	Value           Amount         `json:"value"`
	GasLimit        uint64         `json:"gas_limit"`
	GasUsed         uint64         `json:"gas_used"`
	GasRefund       uint64         `json:"gas_refund"`
	ReturnData      hexutil.Bytes  `json:"return_data"`
	Error           *ErrorInfo     `json:"error,omitempty"`
	RevertReason    string         `json:"revert_reason,omitempty"`
	Logs            []Log          `json:"logs,omitempty"`
	StateDiff       []AccountDiff  `json:"state_diff,omitempty"`
	CallTrace       *CallTrace     `json:"call_trace,omitempty"`
	Instructions    []Instruction  `json:"instruction_trace,omitempty"`
	TraceTruncated  bool           `json:"trace_truncated"`
}

// ErrorInfo describes why the transaction failed.
type ErrorInfo struct {
	Kind    interpreter.ErrorKind `json:"kind"`
	Message string                `json:"message"`
}

// Log is an emitted event.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics,omitempty"`
	Data    hexutil.Bytes  `json:"data"`
	Index   uint           `json:"index"`
}

// AccountDiff lists the changed fields of one account.
type AccountDiff struct {
	Address common.Address  `json:"address"`
	Balance *BalanceChange  `json:"balance,omitempty"`
	Nonce   *NonceChange    `json:"nonce,omitempty"`
	Code    *CodeChange     `json:"code,omitempty"`
	Storage []StorageChange `json:"storage,omitempty"`
}

type BalanceChange struct {
	From Amount `json:"from"`
	To   Amount `json:"to"`
}

type NonceChange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

type CodeChange struct {
	From hexutil.Bytes `json:"from"`
	To   hexutil.Bytes `json:"to"`
}

type StorageChange struct {
	Slot common.Hash `json:"slot"`
	From common.Hash `json:"from"`
	To   common.Hash `json:"to"`
}

// CallTrace is a node of the call tree.
type CallTrace struct {
	Type         string                `json:"type"`
	From         common.Address        `json:"from"`
	To           common.Address        `json:"to"`
	Input        hexutil.Bytes         `json:"input"`
	Output       hexutil.Bytes         `json:"output"`
	Value        Amount                `json:"value"`
	Gas          uint64                `json:"gas"`
	GasUsed      uint64                `json:"gas_used"`
	Success      bool                  `json:"success"`
	Error        string                `json:"error,omitempty"`
	ErrorKind    interpreter.ErrorKind `json:"error_kind,omitempty"`
	RevertReason string                `json:"revert_reason,omitempty"`
	TraceAddress []int                 `json:"trace_address,omitempty"`
	Calls        []*CallTrace          `json:"calls,omitempty"`
}

// Instruction is one executed instruction.
type Instruction struct {
	PC      uint64   `json:"pc"`
	Op      string   `json:"op"`
	Gas     uint64   `json:"gas"`
	GasCost uint64   `json:"gas_cost"`
	Depth   int      `json:"depth"`
	FrameID uint32   `json:"frame_id"`
	Stack   []string `json:"stack,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func bytesOf(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}

	return common.CopyBytes(b)
}

// buildResult assembles the Result of a finished run.
func buildResult(c *call, block state.BlockContext, out *interpreter.ExecutionResult, view *state.View, calls *tracer.CallTracer, instructions *tracer.InstructionTracer) *Result {
	res := &Result{
		Success:         !out.Failed(),
		ChainID:         c.network.ID,
		Chain:           c.network.Name,
		BlockNumber:     block.Number,
		TransactionHash: c.txHash,
		From:            c.from,
		To:              c.to,
		Value:           NewAmount(c.value),
		GasLimit:        c.gas,
		GasUsed:         out.GasUsed,
		GasRefund:       out.Refund,
		ReturnData:      bytesOf(out.ReturnData),
		Logs:            buildLogs(view),
		StateDiff:       buildDiff(view.Diff()),
		CallTrace:       buildCallTrace(calls.Root()),
	}

	if out.Err != nil {
		res.Error = &ErrorInfo{Kind: out.Kind(), Message: out.Err.Error()}

		if errors.Is(out.Err, interpreter.ErrExecutionReverted) {
			if reason, err := abi.UnpackRevert(out.ReturnData); err == nil {
				res.RevertReason = reason
			}
		}
	}

	res.TraceTruncated = calls.Truncated()

	if instructions != nil {
		res.Instructions = buildInstructions(instructions.Instructions())
		res.TraceTruncated = res.TraceTruncated || instructions.Truncated()
	}

	return res
}

func buildLogs(view *state.View) []Log {
	var logs []Log

	for _, l := range view.Logs() {
		entry := Log{
			Address: l.Address,
			Data:    bytesOf(l.Data),
			Index:   l.Index,
		}

		if len(l.Topics) > 0 {
			entry.Topics = append([]common.Hash(nil), l.Topics...)
		}

		logs = append(logs, entry)
	}

	return logs
}

func buildDiff(diffs []state.AccountDiff) []AccountDiff {
	var out []AccountDiff

	for _, d := range diffs {
		entry := AccountDiff{Address: d.Address}

		if d.BalancePre != nil && d.BalancePost != nil {
			entry.Balance = &BalanceChange{From: NewAmount(d.BalancePre), To: NewAmount(d.BalancePost)}
		}

		if d.NoncePre != nil && d.NoncePost != nil {
			entry.Nonce = &NonceChange{From: *d.NoncePre, To: *d.NoncePost}
		}

		if d.CodeChanged {
			entry.Code = &CodeChange{From: bytesOf(d.CodePre), To: bytesOf(d.CodePost)}
		}

		for _, s := range d.Storage {
			entry.Storage = append(entry.Storage, StorageChange{Slot: s.Slot, From: s.Pre, To: s.Post})
		}

		out = append(out, entry)
	}

	return out
}

func buildCallTrace(frame *tracer.CallFrame) *CallTrace {
	if frame == nil {
		return nil
	}

	node := &CallTrace{
		Type:         frame.Type.String(),
		From:         frame.From,
		To:           frame.To,
		Input:        bytesOf(frame.Input),
		Output:       bytesOf(frame.Output),
		Value:        NewAmount(frame.Value),
		Gas:          frame.Gas,
		GasUsed:      frame.GasUsed,
		Success:      frame.Error == "",
		Error:        frame.Error,
		ErrorKind:    frame.ErrorKind,
		RevertReason: frame.RevertReason,
	}

	if len(frame.TraceAddress) > 0 {
		node.TraceAddress = append([]int(nil), frame.TraceAddress...)
	}

	for _, child := range frame.Calls {
		node.Calls = append(node.Calls, buildCallTrace(child))
	}

	return node
}

func buildInstructions(log []tracer.Instruction) []Instruction {
	if len(log) == 0 {
		return nil
	}

	out := make([]Instruction, len(log))

	for i, ins := range log {
		entry := Instruction{
			PC:      ins.PC,
			Op:      ins.Op.String(),
			Gas:     ins.Gas,
			GasCost: ins.GasCost,
			Depth:   ins.Depth,
			FrameID: ins.FrameID,
			Error:   ins.Error,
		}

		if len(ins.Stack) > 0 {
			entry.Stack = make([]string, len(ins.Stack))
			for j := range ins.Stack {
				entry.Stack[j] = ins.Stack[j].Hex()
			}
		}

		out[i] = entry
	}

	return out
}
