package interpreter

import (
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Gas tiers of the base instructions.
const (
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10
	GasExtStep     uint64 = 20
)

// maxMemorySize is the largest memory size whose expansion gas fits in a uint64.
const maxMemorySize = 0x1FFFFFFFE0

func toWordSize(size uint64) uint64 {
	if size > ^uint64(0)-31 {
		return ^uint64(0)/32 + 1
	}

	return (size + 31) / 32
}

// memoryGasCost returns the gas needed to grow mem to newMemSize bytes.
func memoryGasCost(mem *Memory, newMemSize uint64) (uint64, error) {
	if newMemSize == 0 {
		return 0, nil
	}

	if newMemSize > maxMemorySize {
		return 0, ErrGasUintOverflow
	}

	newMemSizeWords := toWordSize(newMemSize)
	newMemSize = newMemSizeWords * 32

	if newMemSize > uint64(mem.Len()) {
		square := newMemSizeWords * newMemSizeWords
		linCoef := newMemSizeWords * params.MemoryGas
		quadCoef := square / params.QuadCoeffDiv
		newTotalFee := linCoef + quadCoef

		fee := newTotalFee - mem.lastGasCost
		mem.lastGasCost = newTotalFee

		return fee, nil
	}

	return 0, nil
}

// callGas applies the EIP-150 all-but-one-64th rule to the requested gas.
func callGas(availableGas, base uint64, callCost *uint256.Int) (uint64, error) {
	if availableGas < base {
		return 0, ErrOutOfGas
	}

	availableGas -= base
	gas := availableGas - availableGas/64

	if !callCost.IsUint64() || gas < callCost.Uint64() {
		return gas, nil
	}

	return callCost.Uint64(), nil
}

// IntrinsicGas returns the gas charged before the first instruction of a
// message call with the given calldata.
func IntrinsicGas(data []byte) (uint64, error) {
	gas := params.TxGas

	if len(data) == 0 {
		return gas, nil
	}

	var nz uint64

	for _, b := range data {
		if b != 0 {
			nz++
		}
	}

	z := uint64(len(data)) - nz

	nonZeroGas, overflow := math.SafeMul(nz, params.TxDataNonZeroGasEIP2028)
	if overflow {
		return 0, ErrGasUintOverflow
	}

	zeroGas, overflow := math.SafeMul(z, params.TxDataZeroGas)
	if overflow {
		return 0, ErrGasUintOverflow
	}

	gas, overflow = math.SafeAdd(gas, nonZeroGas)
	if overflow {
		return 0, ErrGasUintOverflow
	}

	gas, overflow = math.SafeAdd(gas, zeroGas)
	if overflow {
		return 0, ErrGasUintOverflow
	}

	return gas, nil
}
