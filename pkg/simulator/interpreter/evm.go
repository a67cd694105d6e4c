package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
	"github.com/holiman/uint256"
)

// DefaultDeadlineCheckInterval is the number of instructions between two
// deadline checks.
const DefaultDeadlineCheckInterval = 1024

// StateDB is the state an EVM executes against.
type StateDB interface {
	CreateAccount(addr common.Address)
	Exist(addr common.Address) bool
	Empty(addr common.Address) bool

	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)

	GetNonce(addr common.Address) uint64
	SetNonce(addr common.Address, nonce uint64)

	GetCode(addr common.Address) []byte
	GetCodeSize(addr common.Address) int
	GetCodeHash(addr common.Address) common.Hash
	SetCode(addr common.Address, code []byte)

	GetState(addr common.Address, slot common.Hash) common.Hash
	SetState(addr common.Address, slot, value common.Hash)
	GetCommittedState(addr common.Address, slot common.Hash) common.Hash

	GetTransientState(addr common.Address, slot common.Hash) common.Hash
	SetTransientState(addr common.Address, slot, value common.Hash)

	SelfDestruct(addr common.Address)
	IsNewContract(addr common.Address) bool

	AddRefund(gas uint64)
	SubRefund(gas uint64)
	GetRefund() uint64

	AddLog(log *types.Log)

	AddAddressToAccessList(addr common.Address)
	AddSlotToAccessList(addr common.Address, slot common.Hash)
	AddressInAccessList(addr common.Address) bool
	SlotInAccessList(addr common.Address, slot common.Hash) (addressOk, slotOk bool)

	Snapshot() int
	RevertToSnapshot(id int)

	Finalise()
	Err() error
}

// Compile-time check that the state view can back an EVM.
var _ StateDB = (*state.View)(nil)

// Config holds the execution limits of an EVM.
type Config struct {
	ChainID uint64

	// MaxCallDepth is the number of nested frames allowed below the root.
	MaxCallDepth int

	// DeadlineCheckInterval is the number of instructions between context
	// checks. The context is also checked on every frame entry.
	DeadlineCheckInterval uint64
}

// Message is the top-level call to execute.
type Message struct {
	From  common.Address
	To    common.Address
	Input []byte
	Value *uint256.Int
	Gas   uint64
}

// ExecutionResult is the outcome of the root frame.
type ExecutionResult struct {
	ReturnData []byte
	// Err is nil on success, ErrExecutionReverted on REVERT and the failure
	// otherwise.
	Err     error
	GasUsed uint64
	Refund  uint64
	Steps   uint64
}

// Failed reports whether the root frame did not succeed.
func (r *ExecutionResult) Failed() bool {
	return r.Err != nil
}

// Reverted reports whether the root frame ended with REVERT.
func (r *ExecutionResult) Reverted() bool {
	return errors.Is(r.Err, ErrExecutionReverted)
}

// Kind classifies the outcome.
func (r *ExecutionResult) Kind() ErrorKind {
	return KindOf(r.Err)
}

var cancunInstructionSet = newCancunInstructionSet()

// EVM executes a single message. Nested calls are run on an explicit frame
// stack rather than by recursion. An EVM is not safe for concurrent use and
// must not be reused.
type EVM struct {
	cfg   Config
	state StateDB
	block state.BlockContext
	hooks Hooks
	table *JumpTable

	origin   common.Address
	gasPrice *uint256.Int

	frames []*Frame
	result *frameResult

	// callGasTemp carries the forwarded gas from a call's gas function to
	// its instruction.
	callGasTemp uint64
	steps       uint64
	bitmaps     map[common.Hash]bitvec
}

// New creates an EVM over db. hooks may be nil.
func New(cfg Config, db StateDB, block state.BlockContext, hooks *Hooks) *EVM {
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = int(params.CallCreateDepth)
	}

	if cfg.DeadlineCheckInterval == 0 {
		cfg.DeadlineCheckInterval = DefaultDeadlineCheckInterval
	}

	evm := &EVM{
		cfg:      cfg,
		state:    db,
		block:    block,
		table:    cancunInstructionSet,
		gasPrice: new(uint256.Int),
		bitmaps:  make(map[common.Hash]bitvec),
	}

	if hooks != nil {
		evm.hooks = *hooks
	}

	return evm
}

// Execute runs msg to completion. Frame failures, including failure of the
// root frame, are reported in the result; the returned error is reserved for
// conditions that abort the run (deadline, state provider failure).
func (evm *EVM) Execute(ctx context.Context, msg Message) (*ExecutionResult, error) {
	if evm.result != nil || len(evm.frames) > 0 {
		return nil, errors.New("evm already executed a message")
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeBudgetExceeded, err)
	}

	value := msg.Value
	if value == nil {
		value = new(uint256.Int)
	}

	evm.origin = msg.From

	// EIP-2929 and EIP-3651 pre-warmed addresses.
	evm.state.AddAddressToAccessList(msg.From)
	evm.state.AddAddressToAccessList(msg.To)
	evm.state.AddAddressToAccessList(evm.block.Coinbase)

	for _, addr := range PrecompileAddresses() {
		evm.state.AddAddressToAccessList(addr)
	}

	root := &Frame{
		kind:        FrameCall,
		depth:       1,
		caller:      msg.From,
		address:     msg.To,
		codeAddress: msg.To,
		input:       msg.Input,
		value:       value,
		startGas:    msg.Gas,
	}

	intrinsic, err := IntrinsicGas(msg.Input)

	switch {
	case err != nil:
		evm.abortRoot(root, err)
	case msg.Gas < intrinsic:
		evm.abortRoot(root, ErrOutOfGas)
	default:
		root.gas = msg.Gas - intrinsic
		root.startGas = root.gas

		if evm.state.GetBalance(msg.From).Lt(value) {
			evm.abortRoot(root, ErrInsufficientBalance)

			break
		}

		evm.start(root)

		if err := evm.run(ctx); err != nil {
			return nil, err
		}
	}

	if err := evm.state.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}

	evm.state.Finalise()

	res := evm.result
	gasUsed := msg.Gas - res.gasLeft
	refund := min(evm.state.GetRefund(), gasUsed/params.RefundQuotientEIP3529)

	return &ExecutionResult{
		ReturnData: res.ret,
		Err:        res.err,
		GasUsed:    gasUsed - refund,
		Refund:     refund,
		Steps:      evm.steps,
	}, nil
}

// abortRoot ends the run before the root frame could start. Unlike frame
// failures, gas not spent on intrinsic costs is kept.
func (evm *EVM) abortRoot(f *Frame, err error) {
	evm.captureEnter(f)

	if evm.hooks.OnExit != nil {
		evm.hooks.OnExit(f.depth, nil, f.startGas-f.gas, err, true)
	}

	evm.result = &frameResult{gasLeft: f.gas, err: err}
}

// run drives the frame stack until the root frame has exited.
func (evm *EVM) run(ctx context.Context) error {
	for len(evm.frames) > 0 {
		f := evm.frames[len(evm.frames)-1]

		res, done, err := evm.interpret(ctx, f)
		if err != nil {
			return err
		}

		if done {
			evm.exit(f, res)
		}
	}

	return nil
}

// interpret executes f until it halts or starts a child frame.
func (evm *EVM) interpret(ctx context.Context, f *Frame) (frameResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return frameResult{}, false, fmt.Errorf("%w: %w", ErrTimeBudgetExceeded, err)
	}

	for {
		evm.steps++

		if evm.steps%evm.cfg.DeadlineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return frameResult{}, false, fmt.Errorf("%w: %w", ErrTimeBudgetExceeded, err)
			}
		}

		var (
			pc        = f.pc
			op        = f.getOp(pc)
			operation = evm.table[op]
			gasBefore = f.gas
			cost      = operation.constantGas
		)

		if sLen := f.stack.Len(); sLen < operation.minStack {
			return evm.fault(f, op, gasBefore, cost, fmt.Errorf("%w (%d <=> %d)", ErrStackUnderflow, sLen, operation.minStack)), true, nil
		} else if sLen > operation.maxStack {
			return evm.fault(f, op, gasBefore, cost, fmt.Errorf("%w (%d > %d)", ErrStackOverflow, sLen, operation.maxStack)), true, nil
		}

		if !f.useGas(cost) {
			return evm.fault(f, op, gasBefore, cost, ErrOutOfGas), true, nil
		}

		var memorySize uint64

		if operation.memorySize != nil {
			memSize, overflow := operation.memorySize(f.stack)
			if overflow {
				return evm.fault(f, op, gasBefore, cost, ErrGasUintOverflow), true, nil
			}

			if memorySize, overflow = math.SafeMul(toWordSize(memSize), 32); overflow {
				return evm.fault(f, op, gasBefore, cost, ErrGasUintOverflow), true, nil
			}
		}

		if operation.dynamicGas != nil {
			dynamicCost, err := operation.dynamicGas(evm, f, f.stack, f.memory, memorySize)
			cost += dynamicCost

			if err != nil {
				return evm.fault(f, op, gasBefore, cost, err), true, nil
			}

			if !f.useGas(dynamicCost) {
				return evm.fault(f, op, gasBefore, cost, ErrOutOfGas), true, nil
			}
		}

		if evm.hooks.OnOpcode != nil {
			evm.hooks.OnOpcode(pc, op, gasBefore, cost, f, nil)
		}

		if memorySize > 0 {
			f.memory.resize(memorySize)
		}

		ret, err := operation.execute(&f.pc, evm, f)

		if serr := evm.state.Err(); serr != nil {
			return frameResult{}, false, fmt.Errorf("%w: %w", ErrStateUnavailable, serr)
		}

		if err != nil {
			if errors.Is(err, ErrExecutionReverted) {
				return frameResult{ret: ret, gasLeft: f.gas, err: err}, true, nil
			}

			return frameResult{err: err}, true, nil
		}

		if operation.halts {
			return frameResult{ret: ret, gasLeft: f.gas}, true, nil
		}

		f.pc++

		if evm.frames[len(evm.frames)-1] != f {
			return frameResult{}, false, nil
		}
	}
}

func (evm *EVM) fault(f *Frame, op OpCode, gas, cost uint64, err error) frameResult {
	if evm.hooks.OnOpcode != nil {
		evm.hooks.OnOpcode(f.pc, op, gas, cost, f, err)
	}

	return frameResult{err: err}
}

// call starts a CALL, CALLCODE, DELEGATECALL or STATICCALL child of parent.
func (evm *EVM) call(parent *Frame, kind CallKind, addr common.Address, input []byte, gas uint64, value *uint256.Int, retOffset, retSize uint64) {
	f := &Frame{
		parent:      parent,
		kind:        kind,
		depth:       parent.depth + 1,
		codeAddress: addr,
		input:       input,
		readOnly:    parent.readOnly || kind == FrameStaticCall,
		gas:         gas,
		startGas:    gas,
		retOffset:   retOffset,
		retSize:     retSize,
	}

	switch kind {
	case FrameCallCode:
		f.caller, f.address, f.value = parent.address, parent.address, value
	case FrameDelegateCall:
		f.caller, f.address, f.value = parent.caller, parent.address, value
	case FrameStaticCall:
		f.caller, f.address, f.value = parent.address, addr, new(uint256.Int)
	default:
		f.caller, f.address, f.value = parent.address, addr, value
	}

	if parent.depth > evm.cfg.MaxCallDepth {
		evm.reject(f, ErrDepth)

		return
	}

	// The transfer must be covered before a frame exists.
	if (kind == FrameCall || kind == FrameCallCode) && evm.state.GetBalance(parent.address).Lt(value) {
		evm.reject(f, ErrInsufficientBalance)

		return
	}

	evm.start(f)
}

// start takes the frame checkpoint, moves the call value and enters f.
func (evm *EVM) start(f *Frame) {
	f.checkpoint = evm.state.Snapshot()

	if f.kind == FrameCall {
		if !evm.state.Exist(f.address) {
			// Calling a non-existent account without value leaves it absent.
			if _, isPrecompile := precompiles[f.address]; isPrecompile || !f.value.IsZero() {
				evm.state.CreateAccount(f.address)
			}
		}

		evm.transfer(f.caller, f.address, f.value)
	}

	f.code = evm.state.GetCode(f.codeAddress)
	f.codeHash = evm.state.GetCodeHash(f.codeAddress)

	evm.enter(f)
}

// create starts a CREATE or CREATE2 child of parent with the given initcode.
func (evm *EVM) create(parent *Frame, kind CallKind, initCode []byte, gas uint64, value, salt *uint256.Int) {
	nonce := evm.state.GetNonce(parent.address)

	var addr common.Address
	if kind == FrameCreate2 {
		addr = crypto.CreateAddress2(parent.address, salt.Bytes32(), crypto.Keccak256(initCode))
	} else {
		addr = crypto.CreateAddress(parent.address, nonce)
	}

	f := &Frame{
		parent:      parent,
		kind:        kind,
		depth:       parent.depth + 1,
		caller:      parent.address,
		address:     addr,
		codeAddress: addr,
		value:       value,
		code:        initCode,
		gas:         gas,
		startGas:    gas,
	}

	switch {
	case parent.depth > evm.cfg.MaxCallDepth:
		evm.reject(f, ErrDepth)

		return
	case evm.state.GetBalance(parent.address).Lt(value):
		evm.reject(f, ErrInsufficientBalance)

		return
	case nonce+1 < nonce:
		evm.reject(f, ErrNonceUintOverflow)

		return
	}

	evm.state.SetNonce(parent.address, nonce+1)
	evm.state.AddAddressToAccessList(addr)

	f.checkpoint = evm.state.Snapshot()

	codeHash := evm.state.GetCodeHash(addr)
	if evm.state.GetNonce(addr) != 0 || (codeHash != (common.Hash{}) && codeHash != types.EmptyCodeHash) {
		evm.captureEnter(f)
		evm.exit(f, frameResult{err: ErrContractAddressCollision})

		return
	}

	evm.state.CreateAccount(addr)
	evm.state.SetNonce(addr, 1)
	evm.transfer(parent.address, addr, value)

	evm.enter(f)
}

// reject fails f before it becomes a frame: observers see a frame that
// ended with err at once, the forwarded gas is returned to the parent and a
// zero status pushed. No checkpoint is taken and the frame stack is untouched.
func (evm *EVM) reject(f *Frame, err error) {
	evm.captureEnter(f)

	if evm.hooks.OnExit != nil {
		evm.hooks.OnExit(f.depth, nil, 0, err, true)
	}

	parent := f.parent
	parent.gas += f.startGas
	parent.returnData = nil
	parent.stack.push(new(uint256.Int))
}

// enter records the frame start and either completes it immediately
// (precompile, no code) or pushes it on the frame stack.
func (evm *EVM) enter(f *Frame) {
	evm.captureEnter(f)

	if !f.kind.IsCreate() {
		if p, ok := precompiles[f.codeAddress]; ok {
			evm.exit(f, runPrecompile(p, f.input, f.gas))

			return
		}
	}

	if !f.runnable() {
		evm.exit(f, frameResult{gasLeft: f.gas})

		return
	}

	f.stack = newStack()
	f.memory = newMemory()

	if !f.kind.IsCreate() {
		f.jumpdests = evm.bitmap(f.codeHash, f.code)
	}

	evm.frames = append(evm.frames, f)
}

// exit finalises f and hands its outcome to the parent.
func (evm *EVM) exit(f *Frame, res frameResult) {
	if f.kind.IsCreate() && res.err == nil {
		res = evm.deposit(f, res)
	}

	if res.err != nil {
		evm.state.RevertToSnapshot(f.checkpoint)

		if !errors.Is(res.err, ErrExecutionReverted) {
			res.gasLeft = 0
			res.ret = nil
		}
	}

	if evm.hooks.OnExit != nil {
		evm.hooks.OnExit(f.depth, res.ret, f.startGas-res.gasLeft, res.err, res.err != nil)
	}

	if n := len(evm.frames); n > 0 && evm.frames[n-1] == f {
		evm.frames[n-1] = nil
		evm.frames = evm.frames[:n-1]
	}

	if f.parent == nil {
		evm.result = &res

		return
	}

	evm.resume(f.parent, f, res)
}

// deposit stores the code returned by a successful create frame.
func (evm *EVM) deposit(f *Frame, res frameResult) frameResult {
	switch {
	case len(res.ret) > params.MaxCodeSize:
		res.err = ErrMaxCodeSizeExceeded
	case len(res.ret) > 0 && res.ret[0] == 0xEF:
		res.err = ErrInvalidCode
	default:
		cost := uint64(len(res.ret)) * params.CreateDataGas
		if res.gasLeft < cost {
			res.err = ErrCodeStoreOutOfGas

			break
		}

		res.gasLeft -= cost

		if len(res.ret) > 0 {
			evm.state.SetCode(f.address, res.ret)
		}
	}

	return res
}

// resume returns the child's gas, output and status to the parent.
func (evm *EVM) resume(parent, child *Frame, res frameResult) {
	parent.gas += res.gasLeft

	reverted := errors.Is(res.err, ErrExecutionReverted)

	var status uint256.Int

	if child.kind.IsCreate() {
		if res.err == nil {
			status.SetBytes(child.address.Bytes())
		}

		parent.returnData = nil
		if reverted {
			parent.returnData = res.ret
		}
	} else {
		if res.err == nil {
			status.SetOne()
		}

		if res.err == nil || reverted {
			parent.memory.set(child.retOffset, min(child.retSize, uint64(len(res.ret))), res.ret)
		}

		parent.returnData = res.ret
	}

	parent.stack.push(&status)
}

func (evm *EVM) transfer(from, to common.Address, value *uint256.Int) {
	if value.IsZero() {
		return
	}

	evm.state.SubBalance(from, value)
	evm.state.AddBalance(to, value)
}

func (evm *EVM) bitmap(codeHash common.Hash, code []byte) bitvec {
	if codeHash == (common.Hash{}) || codeHash == types.EmptyCodeHash {
		return codeBitmap(code)
	}

	if bits, ok := evm.bitmaps[codeHash]; ok {
		return bits
	}

	bits := codeBitmap(code)
	evm.bitmaps[codeHash] = bits

	return bits
}

func (evm *EVM) captureEnter(f *Frame) {
	if evm.hooks.OnEnter == nil {
		return
	}

	from := f.caller
	if f.parent != nil {
		from = f.parent.address
	}

	input := f.input
	if f.kind.IsCreate() {
		input = f.code
	}

	evm.hooks.OnEnter(f.depth, f.kind, from, f.codeAddress, input, f.startGas, f.value)
}

// Steps returns the number of instructions executed so far.
func (evm *EVM) Steps() uint64 {
	return evm.steps
}
