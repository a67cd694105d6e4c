package interpreter_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethpandaops/execution-simulator/internal/testutil"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	target = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	callee = common.HexToAddress("0x0000000000000000000000000000000000ca11ee")
)

func newSnapshot() *state.MemorySnapshot {
	return state.NewMemorySnapshot(state.BlockContext{Number: 100, Time: 1_700_000_000, GasLimit: 30_000_000})
}

func execute(t *testing.T, snap state.Snapshot, msg interpreter.Message, cfg interpreter.Config, hooks *interpreter.Hooks) (*interpreter.ExecutionResult, *state.View) {
	t.Helper()

	view := state.NewView(snap)
	evm := interpreter.New(cfg, view, snap.Block(), hooks)

	res, err := evm.Execute(context.Background(), msg)
	require.NoError(t, err)

	return res, view
}

func call(code []byte) (*state.MemorySnapshot, interpreter.Message) {
	snap := newSnapshot().WithCode(target, code)

	return snap, interpreter.Message{From: sender, To: target, Gas: 1_000_000}
}

func TestExecuteArithmetic(t *testing.T) {
	code := testutil.NewProgram().Push(2).Push(3).Op(interpreter.ADD).ReturnTop().Bytes()

	snap, msg := call(code)
	res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	assert.False(t, res.Failed())
	assert.Equal(t, uint64(5), new(uint256.Int).SetBytes(res.ReturnData).Uint64())
	assert.Equal(t, uint64(21_022), res.GasUsed)
	assert.Equal(t, interpreter.KindNone, res.Kind())
}

func TestExecuteWraparound(t *testing.T) {
	code := testutil.NewProgram().Push(1).Push(0).Op(interpreter.SUB).ReturnTop().Bytes()

	snap, msg := call(code)
	res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)

	allOnes := new(uint256.Int).SetAllOne()
	assert.Equal(t, allOnes.Bytes(), res.ReturnData)
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		kind interpreter.ErrorKind
	}{
		{
			name: "stack underflow",
			code: testutil.NewProgram().Op(interpreter.ADD).Bytes(),
			kind: interpreter.KindStackUnderflow,
		},
		{
			name: "invalid jump",
			code: testutil.NewProgram().Push(5).Op(interpreter.JUMP).Bytes(),
			kind: interpreter.KindInvalidJump,
		},
		{
			name: "jump into push data",
			code: testutil.NewProgram().Push(4).Op(interpreter.JUMP).Append(byte(interpreter.PUSH1), byte(interpreter.JUMPDEST)).Bytes(),
			kind: interpreter.KindInvalidJump,
		},
		{
			name: "invalid opcode",
			code: testutil.NewProgram().Op(interpreter.INVALID).Bytes(),
			kind: interpreter.KindInvalidOpcode,
		},
		{
			name: "return data out of bounds",
			code: testutil.NewProgram().Push(1).Push(0).Push(0).Op(interpreter.RETURNDATACOPY).Bytes(),
			kind: interpreter.KindReturnDataOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, msg := call(tt.code)
			res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

			require.Error(t, res.Err)
			assert.True(t, res.Failed())
			assert.False(t, res.Reverted())
			assert.Equal(t, tt.kind, res.Kind())
			assert.Equal(t, msg.Gas, res.GasUsed, "failures consume all gas")
		})
	}
}

func TestExecuteOutOfGas(t *testing.T) {
	p, loop := testutil.NewProgram().Jumpdest()
	code := p.Push(loop).Op(interpreter.JUMP).Bytes()

	snap, msg := call(code)
	msg.Gas = 50_000

	res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

	assert.ErrorIs(t, res.Err, interpreter.ErrOutOfGas)
	assert.Equal(t, interpreter.KindOutOfGas, res.Kind())
	assert.Equal(t, uint64(50_000), res.GasUsed)
}

func TestExecuteIntrinsicGas(t *testing.T) {
	snap, msg := call(testutil.NewProgram().Op(interpreter.STOP).Bytes())
	msg.Gas = 20_000

	res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

	assert.Equal(t, interpreter.KindOutOfGas, res.Kind())
	assert.Equal(t, uint64(20_000), res.GasUsed)
}

func TestExecuteRevertDiscardsState(t *testing.T) {
	code := testutil.NewProgram().
		Sstore(1, 42).
		Mstore(0xdead, 0).
		Revert(30, 2).
		Bytes()

	snap, msg := call(code)
	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	assert.True(t, res.Reverted())
	assert.Equal(t, interpreter.KindReverted, res.Kind())
	assert.Equal(t, []byte{0xde, 0xad}, res.ReturnData)
	assert.Less(t, res.GasUsed, msg.Gas, "revert returns unused gas")
	assert.Equal(t, common.Hash{}, view.GetState(target, common.BigToHash(common.Big1)))
	assert.Empty(t, view.Diff())
}

func TestExecuteCaughtChildRevert(t *testing.T) {
	child := testutil.NewProgram().Sstore(1, 7).Revert(0, 0).Bytes()
	parent := testutil.NewProgram().
		Sstore(2, 9).
		Call(nil, callee, 0, 0, 0, 0, 0).
		ReturnTop().
		Bytes()

	snap := newSnapshot().WithCode(target, parent).WithCode(callee, child)
	res, view := execute(t, snap, interpreter.Message{From: sender, To: target, Gas: 1_000_000}, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	assert.True(t, new(uint256.Int).SetBytes(res.ReturnData).IsZero(), "child status")
	assert.Equal(t, common.BigToHash(common.Big0), view.GetState(callee, common.BigToHash(common.Big1)))
	assert.Equal(t, common.BytesToHash([]byte{9}), view.GetState(target, common.BytesToHash([]byte{2})))
}

func TestExecuteStaticCallWriteProtection(t *testing.T) {
	child := testutil.NewProgram().Sstore(1, 1).Op(interpreter.STOP).Bytes()
	parent := testutil.NewProgram().
		StaticCall(nil, callee, 0, 0, 0, 0).
		ReturnTop().
		Bytes()

	var exits []error

	hooks := &interpreter.Hooks{
		OnExit: func(depth int, _ []byte, _ uint64, err error, _ bool) {
			if depth == 2 {
				exits = append(exits, err)
			}
		},
	}

	snap := newSnapshot().WithCode(target, parent).WithCode(callee, child)
	res, _ := execute(t, snap, interpreter.Message{From: sender, To: target, Gas: 1_000_000}, interpreter.Config{}, hooks)

	require.NoError(t, res.Err)
	assert.True(t, new(uint256.Int).SetBytes(res.ReturnData).IsZero())
	require.Len(t, exits, 1)
	assert.ErrorIs(t, exits[0], interpreter.ErrWriteProtection)
}

func TestExecuteDepthLimit(t *testing.T) {
	code := testutil.NewProgram().
		Call(nil, target, 0, 0, 0, 0, 0).
		Op(interpreter.POP, interpreter.STOP).
		Bytes()

	var (
		maxDepth    int
		depthErrors []int
		frames      int
	)

	hooks := &interpreter.Hooks{
		OnEnter: func(depth int, _ interpreter.CallKind, _, _ common.Address, _ []byte, _ uint64, _ *uint256.Int) {
			maxDepth = max(maxDepth, depth)
			frames++
		},
		OnExit: func(depth int, _ []byte, gasUsed uint64, err error, _ bool) {
			if errors.Is(err, interpreter.ErrDepth) {
				depthErrors = append(depthErrors, depth)
				assert.Zero(t, gasUsed)
			}
		},
	}

	snap, msg := call(code)
	res, _ := execute(t, snap, msg, interpreter.Config{MaxCallDepth: 8}, hooks)

	require.NoError(t, res.Err, "hitting the depth limit only fails the attempted call")
	assert.Equal(t, 10, maxDepth)
	assert.Equal(t, 10, frames)
	assert.Equal(t, []int{10}, depthErrors)
	assert.Equal(t, interpreter.KindMaxCallDepth, interpreter.KindOf(interpreter.ErrDepth))
}

func TestExecuteValueTransfer(t *testing.T) {
	snap := newSnapshot().WithBalance(sender, uint256.NewInt(100))
	msg := interpreter.Message{From: sender, To: callee, Value: uint256.NewInt(40), Gas: 100_000}

	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, uint64(21_000), res.GasUsed)
	assert.Equal(t, uint256.NewInt(60), view.GetBalance(sender))
	assert.Equal(t, uint256.NewInt(40), view.GetBalance(callee))
}

func TestExecuteInsufficientBalance(t *testing.T) {
	snap := newSnapshot().WithBalance(sender, uint256.NewInt(10))
	msg := interpreter.Message{From: sender, To: callee, Value: uint256.NewInt(40), Gas: 100_000}

	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	assert.Equal(t, interpreter.KindInsufficientBalance, res.Kind())
	assert.Equal(t, uint256.NewInt(10), view.GetBalance(sender))
	assert.Empty(t, view.Diff())
}

func TestExecuteChildInsufficientBalance(t *testing.T) {
	code := testutil.NewProgram().
		Call(nil, callee, 5, 0, 0, 0, 0).
		ReturnTop().
		Bytes()

	var (
		entered int
		exits   []error
	)

	hooks := &interpreter.Hooks{
		OnEnter: func(int, interpreter.CallKind, common.Address, common.Address, []byte, uint64, *uint256.Int) {
			entered++
		},
		OnExit: func(_ int, _ []byte, _ uint64, err error, _ bool) {
			exits = append(exits, err)
		},
	}

	snap, msg := call(code)
	res, view := execute(t, snap, msg, interpreter.Config{}, hooks)

	require.NoError(t, res.Err)
	assert.True(t, new(uint256.Int).SetBytes(res.ReturnData).IsZero())
	assert.Equal(t, 2, entered, "the unaffordable call is reported as a failed leaf")
	require.Len(t, exits, 2)
	assert.ErrorIs(t, exits[0], interpreter.ErrInsufficientBalance)
	assert.NoError(t, exits[1])
	assert.Empty(t, view.Diff())
}

func TestExecuteCreateDepthLimit(t *testing.T) {
	runtime := testutil.NewProgram().Push(0x2a).ReturnTop().Bytes()
	initCode := testutil.InitCode(runtime)

	// Every frame calls itself until the depth limit, the deepest one
	// attempts a CREATE2.
	code := testutil.NewProgram().
		Call(nil, target, 0, 0, 0, 0, 0).
		Op(interpreter.POP).
		StoreCode(initCode, 0).
		Create2(0, 0, uint64(len(initCode)), 1).
		Op(interpreter.POP, interpreter.STOP).
		Bytes()

	var kinds []interpreter.ErrorKind

	hooks := &interpreter.Hooks{
		OnExit: func(_ int, _ []byte, _ uint64, err error, _ bool) {
			if err != nil {
				kinds = append(kinds, interpreter.KindOf(err))
			}
		},
	}

	snap, msg := call(code)
	res, _ := execute(t, snap, msg, interpreter.Config{MaxCallDepth: 2}, hooks)

	require.NoError(t, res.Err)

	depthFailures := 0

	for _, kind := range kinds {
		if kind == interpreter.KindMaxCallDepth {
			depthFailures++
		}
	}

	// The deepest frame has both its CALL and its CREATE2 rejected.
	assert.Equal(t, 2, depthFailures)
}

func TestExecuteCreate2(t *testing.T) {
	runtime := testutil.NewProgram().Push(0x2a).ReturnTop().Bytes()
	initCode := testutil.InitCode(runtime)

	factory := testutil.NewProgram().
		StoreCode(initCode, 0).
		Create2(0, 0, uint64(len(initCode)), 1).
		ReturnTop().
		Bytes()

	snap, msg := call(factory)
	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)

	salt := common.BigToHash(common.Big1)
	expected := crypto.CreateAddress2(target, salt, crypto.Keccak256(initCode))

	assert.Equal(t, expected, common.BytesToAddress(res.ReturnData))
	assert.Equal(t, runtime, view.GetCode(expected))
	assert.Equal(t, uint64(1), view.GetNonce(expected))
	assert.Equal(t, uint64(1), view.GetNonce(target))
}

func TestExecuteCreateCollision(t *testing.T) {
	initCode := testutil.InitCode([]byte{byte(interpreter.STOP)})
	salt := common.BigToHash(common.Big1)
	existing := crypto.CreateAddress2(target, salt, crypto.Keccak256(initCode))

	factory := testutil.NewProgram().
		StoreCode(initCode, 0).
		Create2(0, 0, uint64(len(initCode)), 1).
		ReturnTop().
		Bytes()

	snap, msg := call(factory)
	snap.WithNonce(existing, 1)

	res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	assert.True(t, new(uint256.Int).SetBytes(res.ReturnData).IsZero())
}

func TestExecutePrecompiles(t *testing.T) {
	word := common.LeftPadBytes([]byte{0xde, 0xad, 0xbe, 0xef}, 32)
	digest := sha256.Sum256(word)

	tests := []struct {
		name     string
		addr     common.Address
		expected []byte
	}{
		{name: "identity", addr: common.BytesToAddress([]byte{4}), expected: word},
		{name: "sha256", addr: common.BytesToAddress([]byte{2}), expected: digest[:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := testutil.NewProgram().
				Mstore(0xdeadbeef, 0).
				StaticCall(nil, tt.addr, 0, 32, 32, 32).
				Op(interpreter.POP).
				Return(32, 32).
				Bytes()

			snap, msg := call(code)
			res, _ := execute(t, snap, msg, interpreter.Config{}, nil)

			require.NoError(t, res.Err)
			assert.Equal(t, tt.expected, res.ReturnData)
		})
	}
}

func TestExecuteSstoreRefund(t *testing.T) {
	code := testutil.NewProgram().Sstore(1, 0).Op(interpreter.STOP).Bytes()

	snap, msg := call(code)
	snap.WithStorage(target, common.BigToHash(common.Big1), common.BigToHash(common.Big1))

	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, uint64(4_800), res.Refund)
	assert.Equal(t, uint64(21_205), res.GasUsed)

	diff := view.Diff()
	require.Len(t, diff, 1)
	require.Len(t, diff[0].Storage, 1)
	assert.Equal(t, common.Hash{}, diff[0].Storage[0].Post)
}

func TestExecuteLogs(t *testing.T) {
	code := testutil.NewProgram().
		Mstore(0xff, 0).
		Push(0xabc).Push(32).Push(0).Op(interpreter.LOG1).
		Op(interpreter.STOP).
		Bytes()

	snap, msg := call(code)
	res, view := execute(t, snap, msg, interpreter.Config{}, nil)

	require.NoError(t, res.Err)
	require.Len(t, view.Logs(), 1)

	log := view.Logs()[0]
	assert.Equal(t, target, log.Address)
	assert.Equal(t, []common.Hash{common.BigToHash(uint256.NewInt(0xabc).ToBig())}, log.Topics)
	assert.Equal(t, uint64(100), log.BlockNumber)
}

func TestExecuteHooksOrder(t *testing.T) {
	child := testutil.NewProgram().Push(1).ReturnTop().Bytes()
	parent := testutil.NewProgram().
		Call(nil, callee, 0, 0, 0, 0, 32).
		Op(interpreter.POP).
		Return(0, 32).
		Bytes()

	var events []string

	hooks := &interpreter.Hooks{
		OnEnter: func(depth int, kind interpreter.CallKind, from, to common.Address, _ []byte, _ uint64, _ *uint256.Int) {
			events = append(events, "enter "+kind.String()+" "+to.Hex())
		},
		OnExit: func(depth int, output []byte, _ uint64, err error, _ bool) {
			events = append(events, "exit")
		},
	}

	snap := newSnapshot().WithCode(target, parent).WithCode(callee, child)
	res, _ := execute(t, snap, interpreter.Message{From: sender, To: target, Gas: 1_000_000}, interpreter.Config{}, hooks)

	require.NoError(t, res.Err)
	assert.Equal(t, uint64(1), new(uint256.Int).SetBytes(res.ReturnData).Uint64())
	assert.Equal(t, []string{
		"enter CALL " + target.Hex(),
		"enter CALL " + callee.Hex(),
		"exit",
		"exit",
	}, events)
}

func TestExecuteOpcodeHook(t *testing.T) {
	code := testutil.NewProgram().Push(1).Push(2).Op(interpreter.ADD, interpreter.STOP).Bytes()

	var ops []interpreter.OpCode

	hooks := &interpreter.Hooks{
		OnOpcode: func(_ uint64, op interpreter.OpCode, _, _ uint64, _ *interpreter.Frame, _ error) {
			ops = append(ops, op)
		},
	}

	snap, msg := call(code)
	res, _ := execute(t, snap, msg, interpreter.Config{}, hooks)

	require.NoError(t, res.Err)
	assert.Equal(t, []interpreter.OpCode{interpreter.PUSH1, interpreter.PUSH1, interpreter.ADD, interpreter.STOP}, ops)
	assert.Equal(t, uint64(4), res.Steps)
}

func TestExecuteDeadline(t *testing.T) {
	p, loop := testutil.NewProgram().Jumpdest()
	code := p.Push(loop).Op(interpreter.JUMP).Bytes()

	snap, msg := call(code)
	msg.Gas = 1 << 50

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	evm := interpreter.New(interpreter.Config{DeadlineCheckInterval: 16}, state.NewView(snap), snap.Block(), nil)

	res, err := evm.Execute(ctx, msg)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, interpreter.ErrTimeBudgetExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingSnapshot struct {
	*state.MemorySnapshot
}

func (failingSnapshot) Storage(common.Address, common.Hash) (common.Hash, error) {
	return common.Hash{}, errors.New("connection reset")
}

func TestExecuteProviderFailure(t *testing.T) {
	code := testutil.NewProgram().Sload(1).ReturnTop().Bytes()

	snap, msg := call(code)
	view := state.NewView(failingSnapshot{snap})
	evm := interpreter.New(interpreter.Config{}, view, snap.Block(), nil)

	res, err := evm.Execute(context.Background(), msg)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, interpreter.ErrStateUnavailable)
}

func TestExecuteSingleUse(t *testing.T) {
	snap, msg := call(testutil.NewProgram().Op(interpreter.STOP).Bytes())
	evm := interpreter.New(interpreter.Config{}, state.NewView(snap), snap.Block(), nil)

	_, err := evm.Execute(context.Background(), msg)
	require.NoError(t, err)

	_, err = evm.Execute(context.Background(), msg)
	assert.Error(t, err)
}

func TestExecuteCreateNonceOverflow(t *testing.T) {
	initCode := testutil.InitCode(testutil.NewProgram().Push(1).ReturnTop().Bytes())

	factory := testutil.NewProgram().
		StoreCode(initCode, 0).
		Create2(0, 0, uint64(len(initCode)), 1).
		ReturnTop().
		Bytes()

	var exits []error

	hooks := &interpreter.Hooks{
		OnExit: func(_ int, _ []byte, _ uint64, err error, _ bool) {
			exits = append(exits, err)
		},
	}

	snap, msg := call(factory)
	snap.WithNonce(target, ^uint64(0))

	res, view := execute(t, snap, msg, interpreter.Config{}, hooks)

	require.NoError(t, res.Err)
	assert.True(t, new(uint256.Int).SetBytes(res.ReturnData).IsZero())
	require.Len(t, exits, 2)
	assert.Equal(t, interpreter.KindNonceOverflow, interpreter.KindOf(exits[0]))
	assert.Equal(t, ^uint64(0), view.GetNonce(target))
}
