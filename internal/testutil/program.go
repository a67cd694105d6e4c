package testutil

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/holiman/uint256"
)

// Program assembles EVM bytecode for tests.
type Program struct {
	code []byte
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{}
}

// Bytes returns the assembled code.
func (p *Program) Bytes() []byte {
	return common.CopyBytes(p.code)
}

// Len returns the current code length, usable as a jump target.
func (p *Program) Len() uint64 {
	return uint64(len(p.code))
}

// Op appends raw opcodes.
func (p *Program) Op(ops ...interpreter.OpCode) *Program {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}

	return p
}

// Append appends raw bytes.
func (p *Program) Append(data ...byte) *Program {
	p.code = append(p.code, data...)

	return p
}

// Push appends the shortest PUSH for v. Supported types are the unsigned
// integers, int, []byte, common.Address, common.Hash and *uint256.Int.
func (p *Program) Push(v any) *Program {
	var data []byte

	switch val := v.(type) {
	case int:
		data = new(uint256.Int).SetUint64(uint64(val)).Bytes()
	case uint64:
		data = new(uint256.Int).SetUint64(val).Bytes()
	case uint32:
		data = new(uint256.Int).SetUint64(uint64(val)).Bytes()
	case []byte:
		data = val
	case common.Address:
		data = val.Bytes()
	case common.Hash:
		data = new(uint256.Int).SetBytes(val.Bytes()).Bytes()
	case *uint256.Int:
		data = val.Bytes()
	default:
		panic(fmt.Sprintf("unsupported push type %T", v))
	}

	if len(data) == 0 {
		return p.Op(interpreter.PUSH0)
	}

	if len(data) > 32 {
		panic(fmt.Sprintf("push of %d bytes", len(data)))
	}

	p.code = append(p.code, byte(interpreter.PUSH1)+byte(len(data)-1))
	p.code = append(p.code, data...)

	return p
}

// Jumpdest appends a JUMPDEST and returns its offset.
func (p *Program) Jumpdest() (*Program, uint64) {
	pc := p.Len()
	p.Op(interpreter.JUMPDEST)

	return p, pc
}

// Mstore stores a word at offset.
func (p *Program) Mstore(value any, offset uint64) *Program {
	return p.Push(value).Push(offset).Op(interpreter.MSTORE)
}

// Sstore writes value to slot.
func (p *Program) Sstore(slot, value any) *Program {
	return p.Push(value).Push(slot).Op(interpreter.SSTORE)
}

// Sload pushes the value of slot.
func (p *Program) Sload(slot any) *Program {
	return p.Push(slot).Op(interpreter.SLOAD)
}

// Return returns memory [offset, offset+size).
func (p *Program) Return(offset, size uint64) *Program {
	return p.Push(size).Push(offset).Op(interpreter.RETURN)
}

// Revert reverts with memory [offset, offset+size).
func (p *Program) Revert(offset, size uint64) *Program {
	return p.Push(size).Push(offset).Op(interpreter.REVERT)
}

// ReturnTop returns the word on top of the stack.
func (p *Program) ReturnTop() *Program {
	return p.Push(0).Op(interpreter.MSTORE).Return(0, 32)
}

// Call appends a CALL. A nil gas forwards all available gas.
func (p *Program) Call(gas any, addr common.Address, value, inOffset, inSize, retOffset, retSize uint64) *Program {
	p.Push(retSize).Push(retOffset).Push(inSize).Push(inOffset).Push(value).Push(addr)

	return p.gas(gas).Op(interpreter.CALL)
}

// StaticCall appends a STATICCALL.
func (p *Program) StaticCall(gas any, addr common.Address, inOffset, inSize, retOffset, retSize uint64) *Program {
	p.Push(retSize).Push(retOffset).Push(inSize).Push(inOffset).Push(addr)

	return p.gas(gas).Op(interpreter.STATICCALL)
}

// DelegateCall appends a DELEGATECALL.
func (p *Program) DelegateCall(gas any, addr common.Address, inOffset, inSize, retOffset, retSize uint64) *Program {
	p.Push(retSize).Push(retOffset).Push(inSize).Push(inOffset).Push(addr)

	return p.gas(gas).Op(interpreter.DELEGATECALL)
}

func (p *Program) gas(gas any) *Program {
	if gas == nil {
		return p.Op(interpreter.GAS)
	}

	return p.Push(gas)
}

// Create2 deploys the code held in memory [offset, offset+size) with salt.
func (p *Program) Create2(value, offset, size uint64, salt any) *Program {
	return p.Push(salt).Push(size).Push(offset).Push(value).Op(interpreter.CREATE2)
}

// StoreCode copies code into memory starting at offset, one word per MSTORE.
func (p *Program) StoreCode(code []byte, offset uint64) *Program {
	for i := 0; i < len(code); i += 32 {
		word := make([]byte, 32)
		copy(word, code[i:])
		p.Push(word).Push(offset + uint64(i)).Op(interpreter.MSTORE)
	}

	return p
}

// InitCode wraps runtime in a constructor that returns it.
func InitCode(runtime []byte) []byte {
	size := uint16(len(runtime))
	hi, lo := byte(size>>8), byte(size)

	ctor := []byte{
		byte(interpreter.PUSH2), hi, lo,
		byte(interpreter.PUSH2), 0x00, 13,
		byte(interpreter.PUSH0),
		byte(interpreter.CODECOPY),
		byte(interpreter.PUSH2), hi, lo,
		byte(interpreter.PUSH0),
		byte(interpreter.RETURN),
	}

	return append(ctor, runtime...)
}

// RevertData returns the ABI encoding of Error(reason).
func RevertData(reason string) []byte {
	padded := (len(reason) + 31) / 32 * 32

	data := []byte{0x08, 0xc3, 0x79, 0xa0}
	data = append(data, common.LeftPadBytes([]byte{0x20}, 32)...)
	data = append(data, new(uint256.Int).SetUint64(uint64(len(reason))).PaddedBytes(32)...)
	data = append(data, common.RightPadBytes([]byte(reason), padded)...)

	return data
}

// RevertWith reverts with Error(reason).
func (p *Program) RevertWith(reason string) *Program {
	data := RevertData(reason)

	return p.StoreCode(data, 0).Revert(0, uint64(len(data)))
}
