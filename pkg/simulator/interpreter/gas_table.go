package interpreter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
)

func gasMemoryOnly(_ *EVM, _ *Frame, _ *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return memoryGasCost(mem, memorySize)
}

// memoryCopierGas charges memory expansion plus a per-word copy fee on the
// length found at stack position stackpos.
func memoryCopierGas(stackpos int) gasFunc {
	return func(_ *EVM, _ *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		gas, err := memoryGasCost(mem, memorySize)
		if err != nil {
			return 0, err
		}

		words, overflow := stack.Back(stackpos).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}

		if words, overflow = math.SafeMul(toWordSize(words), params.CopyGas); overflow {
			return 0, ErrGasUintOverflow
		}

		if gas, overflow = math.SafeAdd(gas, words); overflow {
			return 0, ErrGasUintOverflow
		}

		return gas, nil
	}
}

func gasKeccak256(_ *EVM, _ *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}

	wordGas, overflow := stack.Back(1).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}

	if wordGas, overflow = math.SafeMul(toWordSize(wordGas), params.Keccak256WordGas); overflow {
		return 0, ErrGasUintOverflow
	}

	if gas, overflow = math.SafeAdd(gas, wordGas); overflow {
		return 0, ErrGasUintOverflow
	}

	return gas, nil
}

func gasExp(_ *EVM, _ *Frame, stack *Stack, _ *Memory, _ uint64) (uint64, error) {
	expByteLen := uint64((stack.Back(1).BitLen() + 7) / 8)

	gas, overflow := math.SafeMul(expByteLen, params.ExpByteEIP158)
	if overflow {
		return 0, ErrGasUintOverflow
	}

	return gas, nil
}

func makeGasLog(n uint64) gasFunc {
	return func(_ *EVM, _ *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		requestedSize, overflow := stack.Back(1).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}

		gas, err := memoryGasCost(mem, memorySize)
		if err != nil {
			return 0, err
		}

		if gas, overflow = math.SafeAdd(gas, n*params.LogTopicGas); overflow {
			return 0, ErrGasUintOverflow
		}

		var memorySizeGas uint64
		if memorySizeGas, overflow = math.SafeMul(requestedSize, params.LogDataGas); overflow {
			return 0, ErrGasUintOverflow
		}

		if gas, overflow = math.SafeAdd(gas, memorySizeGas); overflow {
			return 0, ErrGasUintOverflow
		}

		return gas, nil
	}
}

func gasCreate(_ *EVM, _ *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return createGas(stack, mem, memorySize, false)
}

func gasCreate2(_ *EVM, _ *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return createGas(stack, mem, memorySize, true)
}

// createGas charges EIP-3860 initcode words, and for CREATE2 the hashing of
// the initcode.
func createGas(stack *Stack, mem *Memory, memorySize uint64, hashed bool) (uint64, error) {
	gas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}

	size, overflow := stack.Back(2).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}

	if size > params.MaxInitCodeSize {
		return 0, ErrMaxInitCodeSizeExceeded
	}

	perWord := params.InitCodeWordGas
	if hashed {
		perWord += params.Keccak256WordGas
	}

	// size is bounded by MaxInitCodeSize, so this cannot overflow.
	moreGas := perWord * toWordSize(size)

	if gas, overflow = math.SafeAdd(gas, moreGas); overflow {
		return 0, ErrGasUintOverflow
	}

	return gas, nil
}

// gasSLoad implements EIP-2929 warm and cold storage reads.
func gasSLoad(evm *EVM, f *Frame, stack *Stack, _ *Memory, _ uint64) (uint64, error) {
	slot := common.Hash(stack.peek().Bytes32())

	if _, slotPresent := evm.state.SlotInAccessList(f.address, slot); !slotPresent {
		evm.state.AddSlotToAccessList(f.address, slot)

		return params.ColdSloadCostEIP2929, nil
	}

	return params.WarmStorageReadCostEIP2929, nil
}

// gasSStore implements EIP-2200 net metering with the EIP-2929 access costs
// and the EIP-3529 refund schedule.
func gasSStore(evm *EVM, f *Frame, stack *Stack, _ *Memory, _ uint64) (uint64, error) {
	if f.gas <= params.SstoreSentryGasEIP2200 {
		return 0, ErrOutOfGas
	}

	var (
		y, x    = stack.Back(1), stack.peek()
		slot    = common.Hash(x.Bytes32())
		value   = common.Hash(y.Bytes32())
		current = evm.state.GetState(f.address, slot)
		cost    = uint64(0)
	)

	if _, slotPresent := evm.state.SlotInAccessList(f.address, slot); !slotPresent {
		cost = params.ColdSloadCostEIP2929
		evm.state.AddSlotToAccessList(f.address, slot)
	}

	if current == value {
		return cost + params.WarmStorageReadCostEIP2929, nil
	}

	original := evm.state.GetCommittedState(f.address, slot)
	clearingRefund := params.SstoreClearsScheduleRefundEIP3529

	if original == current {
		if original == (common.Hash{}) {
			return cost + params.SstoreSetGasEIP2200, nil
		}

		if value == (common.Hash{}) {
			evm.state.AddRefund(clearingRefund)
		}

		return cost + (params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929), nil
	}

	if original != (common.Hash{}) {
		if current == (common.Hash{}) {
			evm.state.SubRefund(clearingRefund)
		} else if value == (common.Hash{}) {
			evm.state.AddRefund(clearingRefund)
		}
	}

	if original == value {
		if original == (common.Hash{}) {
			evm.state.AddRefund(params.SstoreSetGasEIP2200 - params.WarmStorageReadCostEIP2929)
		} else {
			evm.state.AddRefund((params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929) - params.WarmStorageReadCostEIP2929)
		}
	}

	return cost + params.WarmStorageReadCostEIP2929, nil
}

// coldAccountCost warms addr and returns the cold surcharge on top of the
// warm read already charged as constant gas.
func coldAccountCost(evm *EVM, addr common.Address) uint64 {
	if evm.state.AddressInAccessList(addr) {
		return 0
	}

	evm.state.AddAddressToAccessList(addr)

	return params.ColdAccountAccessCostEIP2929 - params.WarmStorageReadCostEIP2929
}

func gasAccountCheck(evm *EVM, _ *Frame, stack *Stack, _ *Memory, _ uint64) (uint64, error) {
	return coldAccountCost(evm, common.Address(stack.peek().Bytes20())), nil
}

func gasExtCodeCopy(evm *EVM, f *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryCopierGas(3)(evm, f, stack, mem, memorySize)
	if err != nil {
		return 0, err
	}

	var overflow bool
	if gas, overflow = math.SafeAdd(gas, coldAccountCost(evm, common.Address(stack.peek().Bytes20()))); overflow {
		return 0, ErrGasUintOverflow
	}

	return gas, nil
}

// makeCallGas builds the dynamic gas of the call family. The forwarded gas
// is stored in evm.callGasTemp for the instruction to pick up.
func makeCallGas(kind CallKind) gasFunc {
	return func(evm *EVM, f *Frame, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		addr := common.Address(stack.Back(1).Bytes20())

		coldCost := coldAccountCost(evm, addr)
		if !f.useGas(coldCost) {
			return 0, ErrOutOfGas
		}

		// The cold surcharge is charged up front, so the forwarded gas is
		// computed on what remains. It is added back into the total below.
		defer func() { f.gas += coldCost }()

		base, err := memoryGasCost(mem, memorySize)
		if err != nil {
			return 0, err
		}

		transfersValue := (kind == FrameCall || kind == FrameCallCode) && !stack.Back(2).IsZero()

		var overflow bool

		if transfersValue {
			if base, overflow = math.SafeAdd(base, params.CallValueTransferGas); overflow {
				return 0, ErrGasUintOverflow
			}
		}

		if kind == FrameCall && transfersValue && evm.state.Empty(addr) {
			if base, overflow = math.SafeAdd(base, params.CallNewAccountGas); overflow {
				return 0, ErrGasUintOverflow
			}
		}

		evm.callGasTemp, err = callGas(f.gas, base, stack.Back(0))
		if err != nil {
			return 0, err
		}

		total, overflow := math.SafeAdd(base, evm.callGasTemp)
		if overflow {
			return 0, ErrGasUintOverflow
		}

		if total, overflow = math.SafeAdd(total, coldCost); overflow {
			return 0, ErrGasUintOverflow
		}

		return total, nil
	}
}

var (
	gasCall                 = makeCallGas(FrameCall)
	gasCallCode             = makeCallGas(FrameCallCode)
	gasDelegateOrStaticCall = makeCallGas(FrameStaticCall)
)

func gasSelfdestruct(evm *EVM, f *Frame, stack *Stack, _ *Memory, _ uint64) (uint64, error) {
	var (
		gas     uint64
		address = common.Address(stack.peek().Bytes20())
	)

	if !evm.state.AddressInAccessList(address) {
		evm.state.AddAddressToAccessList(address)
		gas = params.ColdAccountAccessCostEIP2929
	}

	if evm.state.Empty(address) && !evm.state.GetBalance(f.address).IsZero() {
		gas += params.CreateBySelfdestructGas
	}

	return gas, nil
}
