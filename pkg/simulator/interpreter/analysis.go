package interpreter

// bitvec marks which code offsets are opcodes (1) rather than push data (0).
type bitvec []byte

func (bits bitvec) set(pos uint64) {
	bits[pos/8] |= 0x80 >> (pos % 8)
}

func (bits bitvec) isSet(pos uint64) bool {
	return bits[pos/8]&(0x80>>(pos%8)) != 0
}

// codeBitmap collects the positions of instruction starts in code.
func codeBitmap(code []byte) bitvec {
	bits := make(bitvec, len(code)/8+1)

	for pc := uint64(0); pc < uint64(len(code)); {
		bits.set(pc)

		op := OpCode(code[pc])
		pc++

		if op.IsPush() {
			pc += uint64(op - PUSH1 + 1)
		}
	}

	return bits
}

// validJumpdest reports whether dest is a JUMPDEST that is not push data.
func validJumpdest(code []byte, bits bitvec, udest uint64) bool {
	if udest >= uint64(len(code)) {
		return false
	}

	if OpCode(code[udest]) != JUMPDEST {
		return false
	}

	return bits.isSet(udest)
}
