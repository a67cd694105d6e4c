package interpreter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

func opCreate(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	if f.readOnly {
		return nil, ErrWriteProtection
	}

	var (
		value        = f.stack.pop()
		offset, size = f.stack.pop(), f.stack.pop()
		input        = f.memory.getCopy(offset.Uint64(), size.Uint64())
		gas          = f.gas
	)

	// EIP-150: all but one 64th is forwarded.
	gas -= gas / 64
	f.useGas(gas)

	evm.create(f, FrameCreate, input, gas, &value, nil)

	return nil, nil
}

func opCreate2(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	if f.readOnly {
		return nil, ErrWriteProtection
	}

	var (
		endowment    = f.stack.pop()
		offset, size = f.stack.pop(), f.stack.pop()
		salt         = f.stack.pop()
		input        = f.memory.getCopy(offset.Uint64(), size.Uint64())
		gas          = f.gas
	)

	gas -= gas / 64
	f.useGas(gas)

	evm.create(f, FrameCreate2, input, gas, &endowment, &salt)

	return nil, nil
}

func opCall(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	stack := f.stack

	// The requested gas was replaced by the forwarded gas in the gas function.
	stack.pop()

	gas := evm.callGasTemp
	addr, value, inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop()
	toAddr := common.Address(addr.Bytes20())

	if f.readOnly && !value.IsZero() {
		return nil, ErrWriteProtection
	}

	if !value.IsZero() {
		gas += params.CallStipend
	}

	args := f.memory.getCopy(inOffset.Uint64(), inSize.Uint64())
	evm.call(f, FrameCall, toAddr, args, gas, &value, retOffset.Uint64(), retSize.Uint64())

	return nil, nil
}

func opCallCode(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	stack := f.stack
	stack.pop()

	gas := evm.callGasTemp
	addr, value, inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop()
	toAddr := common.Address(addr.Bytes20())

	if !value.IsZero() {
		gas += params.CallStipend
	}

	args := f.memory.getCopy(inOffset.Uint64(), inSize.Uint64())
	evm.call(f, FrameCallCode, toAddr, args, gas, &value, retOffset.Uint64(), retSize.Uint64())

	return nil, nil
}

func opDelegateCall(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	stack := f.stack
	stack.pop()

	gas := evm.callGasTemp
	addr, inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop()
	toAddr := common.Address(addr.Bytes20())

	args := f.memory.getCopy(inOffset.Uint64(), inSize.Uint64())
	evm.call(f, FrameDelegateCall, toAddr, args, gas, f.value, retOffset.Uint64(), retSize.Uint64())

	return nil, nil
}

func opStaticCall(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	stack := f.stack
	stack.pop()

	gas := evm.callGasTemp
	addr, inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop(), stack.pop()
	toAddr := common.Address(addr.Bytes20())

	args := f.memory.getCopy(inOffset.Uint64(), inSize.Uint64())
	evm.call(f, FrameStaticCall, toAddr, args, gas, new(uint256.Int), retOffset.Uint64(), retSize.Uint64())

	return nil, nil
}

// opSelfdestruct follows EIP-6780: the balance always moves to the
// beneficiary, but the account is only removed when it was created in the
// same run.
func opSelfdestruct(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	if f.readOnly {
		return nil, ErrWriteProtection
	}

	addr := f.stack.pop()
	beneficiary := common.Address(addr.Bytes20())
	balance := evm.state.GetBalance(f.address)

	evm.state.SubBalance(f.address, balance)
	evm.state.AddBalance(beneficiary, balance)

	if evm.state.IsNewContract(f.address) {
		evm.state.SelfDestruct(f.address)
	}

	if evm.hooks.OnEnter != nil {
		evm.hooks.OnEnter(f.depth+1, FrameSelfDestruct, f.address, beneficiary, []byte{}, 0, balance)
	}

	if evm.hooks.OnExit != nil {
		evm.hooks.OnExit(f.depth+1, []byte{}, 0, nil, false)
	}

	return nil, nil
}
