package interpreter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func opStop(_ *uint64, _ *EVM, _ *Frame) ([]byte, error) {
	return nil, nil
}

func opAdd(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Add(&x, y)

	return nil, nil
}

func opSub(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Sub(&x, y)

	return nil, nil
}

func opMul(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Mul(&x, y)

	return nil, nil
}

func opDiv(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Div(&x, y)

	return nil, nil
}

func opSdiv(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.SDiv(&x, y)

	return nil, nil
}

func opMod(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Mod(&x, y)

	return nil, nil
}

func opSmod(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.SMod(&x, y)

	return nil, nil
}

func opExp(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	base, exponent := f.stack.pop(), f.stack.peek()
	exponent.Exp(&base, exponent)

	return nil, nil
}

func opSignExtend(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	back, num := f.stack.pop(), f.stack.peek()
	num.ExtendSign(num, &back)

	return nil, nil
}

func opNot(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x := f.stack.peek()
	x.Not(x)

	return nil, nil
}

func opLt(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	setBool(y, x.Lt(y))

	return nil, nil
}

func opGt(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	setBool(y, x.Gt(y))

	return nil, nil
}

func opSlt(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	setBool(y, x.Slt(y))

	return nil, nil
}

func opSgt(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	setBool(y, x.Sgt(y))

	return nil, nil
}

func opEq(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	setBool(y, x.Eq(y))

	return nil, nil
}

func opIszero(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x := f.stack.peek()
	setBool(x, x.IsZero())

	return nil, nil
}

func setBool(z *uint256.Int, b bool) {
	if b {
		z.SetOne()
	} else {
		z.Clear()
	}
}

func opAnd(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.And(&x, y)

	return nil, nil
}

func opOr(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Or(&x, y)

	return nil, nil
}

func opXor(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y := f.stack.pop(), f.stack.peek()
	y.Xor(&x, y)

	return nil, nil
}

func opByte(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	th, val := f.stack.pop(), f.stack.peek()
	val.Byte(&th)

	return nil, nil
}

func opAddmod(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y, z := f.stack.pop(), f.stack.pop(), f.stack.peek()
	z.AddMod(&x, &y, z)

	return nil, nil
}

func opMulmod(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x, y, z := f.stack.pop(), f.stack.pop(), f.stack.peek()
	z.MulMod(&x, &y, z)

	return nil, nil
}

// opSHL shifts value left by shift bits; shifts of 256 or more yield zero.
func opSHL(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	shift, value := f.stack.pop(), f.stack.peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}

	return nil, nil
}

func opSHR(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	shift, value := f.stack.pop(), f.stack.peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}

	return nil, nil
}

func opSAR(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	shift, value := f.stack.pop(), f.stack.peek()
	if shift.GtUint64(255) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}

		return nil, nil
	}

	value.SRsh(value, uint(shift.Uint64()))

	return nil, nil
}

func opKeccak256(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	offset, size := f.stack.pop(), f.stack.peek()
	data := f.memory.getPtr(offset.Uint64(), size.Uint64())
	size.SetBytes(crypto.Keccak256(data))

	return nil, nil
}

func opAddress(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetBytes(f.address.Bytes()))

	return nil, nil
}

func opBalance(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	slot := f.stack.peek()
	address := common.Address(slot.Bytes20())
	slot.Set(evm.state.GetBalance(address))

	return nil, nil
}

func opOrigin(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetBytes(evm.origin.Bytes()))

	return nil, nil
}

func opCaller(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetBytes(f.caller.Bytes()))

	return nil, nil
}

func opCallValue(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).Set(f.value))

	return nil, nil
}

func opCallDataLoad(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	x := f.stack.peek()
	if offset, overflow := x.Uint64WithOverflow(); !overflow {
		data := getData(f.input, offset, 32)
		x.SetBytes(data)
	} else {
		x.Clear()
	}

	return nil, nil
}

func opCallDataSize(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(uint64(len(f.input))))

	return nil, nil
}

func opCallDataCopy(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	var (
		memOffset  = f.stack.pop()
		dataOffset = f.stack.pop()
		length     = f.stack.pop()
	)

	dataOffset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOffset64 = ^uint64(0)
	}

	// These values are checked for overflow during gas cost calculation.
	memOffset64 := memOffset.Uint64()
	length64 := length.Uint64()
	f.memory.set(memOffset64, length64, getData(f.input, dataOffset64, length64))

	return nil, nil
}

func opReturnDataSize(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(uint64(len(f.returnData))))

	return nil, nil
}

func opReturnDataCopy(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	var (
		memOffset  = f.stack.pop()
		dataOffset = f.stack.pop()
		length     = f.stack.pop()
	)

	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return nil, ErrReturnDataOutOfBounds
	}

	end := new(uint256.Int).Add(&dataOffset, &length)

	end64, overflow := end.Uint64WithOverflow()
	if overflow || uint64(len(f.returnData)) < end64 {
		return nil, ErrReturnDataOutOfBounds
	}

	f.memory.set(memOffset.Uint64(), length.Uint64(), f.returnData[offset64:end64])

	return nil, nil
}

func opExtCodeSize(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	slot := f.stack.peek()
	slot.SetUint64(uint64(evm.state.GetCodeSize(slot.Bytes20())))

	return nil, nil
}

func opCodeSize(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(uint64(len(f.code))))

	return nil, nil
}

func opCodeCopy(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	var (
		memOffset  = f.stack.pop()
		codeOffset = f.stack.pop()
		length     = f.stack.pop()
	)

	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = ^uint64(0)
	}

	codeCopy := getData(f.code, uint64CodeOffset, length.Uint64())
	f.memory.set(memOffset.Uint64(), length.Uint64(), codeCopy)

	return nil, nil
}

func opExtCodeCopy(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	var (
		a          = f.stack.pop()
		memOffset  = f.stack.pop()
		codeOffset = f.stack.pop()
		length     = f.stack.pop()
	)

	uint64CodeOffset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		uint64CodeOffset = ^uint64(0)
	}

	addr := common.Address(a.Bytes20())
	code := evm.state.GetCode(addr)
	codeCopy := getData(code, uint64CodeOffset, length.Uint64())
	f.memory.set(memOffset.Uint64(), length.Uint64(), codeCopy)

	return nil, nil
}

// opExtCodeHash returns zero for non-existent and empty accounts, and the
// empty code hash for existing accounts without code.
func opExtCodeHash(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	slot := f.stack.peek()
	address := common.Address(slot.Bytes20())

	if evm.state.Empty(address) {
		slot.Clear()
	} else {
		slot.SetBytes(evm.state.GetCodeHash(address).Bytes())
	}

	return nil, nil
}

func opGasprice(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).Set(evm.gasPrice))

	return nil, nil
}

// opBlockhash returns zero: block history is not part of the state snapshot.
func opBlockhash(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.peek().Clear()

	return nil, nil
}

func opCoinbase(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetBytes(evm.block.Coinbase.Bytes()))

	return nil, nil
}

func opTimestamp(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(evm.block.Time))

	return nil, nil
}

func opNumber(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(evm.block.Number))

	return nil, nil
}

func opRandom(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetBytes(evm.block.PrevRandao.Bytes()))

	return nil, nil
}

func opGasLimit(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(evm.block.GasLimit))

	return nil, nil
}

func opChainID(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(evm.cfg.ChainID))

	return nil, nil
}

func opSelfBalance(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	f.stack.push(evm.state.GetBalance(f.address))

	return nil, nil
}

func opBaseFee(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	baseFee := new(uint256.Int)
	if evm.block.BaseFee != nil {
		baseFee.Set(evm.block.BaseFee)
	}

	f.stack.push(baseFee)

	return nil, nil
}

// opBlobHash returns zero: simulated messages carry no blobs.
func opBlobHash(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.peek().Clear()

	return nil, nil
}

func opBlobBaseFee(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int))

	return nil, nil
}

func opPop(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.pop()

	return nil, nil
}

func opMload(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	v := f.stack.peek()
	offset := v.Uint64()
	v.SetBytes(f.memory.getPtr(offset, 32))

	return nil, nil
}

func opMstore(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	mStart, val := f.stack.pop(), f.stack.pop()
	f.memory.set32(mStart.Uint64(), &val)

	return nil, nil
}

func opMstore8(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	off, val := f.stack.pop(), f.stack.pop()
	f.memory.store[off.Uint64()] = byte(val.Uint64())

	return nil, nil
}

func opMcopy(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	var (
		dst    = f.stack.pop()
		src    = f.stack.pop()
		length = f.stack.pop()
	)

	// Offsets and length are bounded by the memory expansion check.
	f.memory.copyWithin(dst.Uint64(), src.Uint64(), length.Uint64())

	return nil, nil
}

func opSload(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	loc := f.stack.peek()
	hash := common.Hash(loc.Bytes32())
	val := evm.state.GetState(f.address, hash)
	loc.SetBytes(val.Bytes())

	return nil, nil
}

func opSstore(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	if f.readOnly {
		return nil, ErrWriteProtection
	}

	loc, val := f.stack.pop(), f.stack.pop()
	evm.state.SetState(f.address, loc.Bytes32(), val.Bytes32())

	return nil, nil
}

func opTload(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	loc := f.stack.peek()
	hash := common.Hash(loc.Bytes32())
	val := evm.state.GetTransientState(f.address, hash)
	loc.SetBytes(val.Bytes())

	return nil, nil
}

func opTstore(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
	if f.readOnly {
		return nil, ErrWriteProtection
	}

	loc, val := f.stack.pop(), f.stack.pop()
	evm.state.SetTransientState(f.address, loc.Bytes32(), val.Bytes32())

	return nil, nil
}

func opJump(pc *uint64, _ *EVM, f *Frame) ([]byte, error) {
	pos := f.stack.pop()
	if !f.validJumpdest(&pos) {
		return nil, ErrInvalidJump
	}

	// The loop increments pc after every instruction.
	*pc = pos.Uint64() - 1

	return nil, nil
}

func opJumpi(pc *uint64, _ *EVM, f *Frame) ([]byte, error) {
	pos, cond := f.stack.pop(), f.stack.pop()
	if !cond.IsZero() {
		if !f.validJumpdest(&pos) {
			return nil, ErrInvalidJump
		}

		*pc = pos.Uint64() - 1
	}

	return nil, nil
}

func opJumpdest(_ *uint64, _ *EVM, _ *Frame) ([]byte, error) {
	return nil, nil
}

func opPc(pc *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(*pc))

	return nil, nil
}

func opMsize(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(uint64(f.memory.Len())))

	return nil, nil
}

func opGas(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int).SetUint64(f.gas))

	return nil, nil
}

func opPush0(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	f.stack.push(new(uint256.Int))

	return nil, nil
}

func opReturn(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	offset, size := f.stack.pop(), f.stack.pop()

	return f.memory.getCopy(offset.Uint64(), size.Uint64()), nil
}

func opRevert(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
	offset, size := f.stack.pop(), f.stack.pop()

	return f.memory.getCopy(offset.Uint64(), size.Uint64()), ErrExecutionReverted
}

func opUndefined(pc *uint64, _ *EVM, f *Frame) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrInvalidOpCode, f.getOp(*pc))
}

func makeLog(size int) executionFunc {
	return func(_ *uint64, evm *EVM, f *Frame) ([]byte, error) {
		if f.readOnly {
			return nil, ErrWriteProtection
		}

		topics := make([]common.Hash, size)
		mStart, mSize := f.stack.pop(), f.stack.pop()

		for i := 0; i < size; i++ {
			addr := f.stack.pop()
			topics[i] = addr.Bytes32()
		}

		evm.state.AddLog(&types.Log{
			Address:     f.address,
			Topics:      topics,
			Data:        f.memory.getCopy(mStart.Uint64(), mSize.Uint64()),
			BlockNumber: evm.block.Number,
		})

		return nil, nil
	}
}

// makePush pushes the size bytes following pc, zero-padded past the end of
// the code.
func makePush(size uint64, pushByteSize int) executionFunc {
	return func(pc *uint64, _ *EVM, f *Frame) ([]byte, error) {
		codeLen := uint64(len(f.code))

		start := min(codeLen, *pc+1)
		end := min(codeLen, start+uint64(pushByteSize))

		integer := new(uint256.Int)
		f.stack.push(integer.SetBytes(common.RightPadBytes(f.code[start:end], pushByteSize)))

		*pc += size

		return nil, nil
	}
}

func makeDup(size int) executionFunc {
	return func(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
		f.stack.dup(size)

		return nil, nil
	}
}

func makeSwap(size int) executionFunc {
	return func(_ *uint64, _ *EVM, f *Frame) ([]byte, error) {
		f.stack.swap(size)

		return nil, nil
	}
}

// getData returns size bytes of data starting at start, zero-padded when
// the range runs past the end.
func getData(data []byte, start, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}

	end := start + size
	if end > length || end < start {
		end = length
	}

	return common.RightPadBytes(data[start:end], int(size))
}
