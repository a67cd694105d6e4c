package interpreter

import (
	"github.com/holiman/uint256"
)

// Memory is the word-addressed scratch memory of a single frame.
type Memory struct {
	store       []byte
	lastGasCost uint64
}

func newMemory() *Memory {
	return &Memory{}
}

// set copies value into memory. The region must already be allocated.
func (m *Memory) set(offset, size uint64, value []byte) {
	if size > 0 {
		copy(m.store[offset:offset+size], value)
	}
}

func (m *Memory) set32(offset uint64, val *uint256.Int) {
	b := val.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

func (m *Memory) resize(size uint64) {
	if uint64(len(m.store)) < size {
		m.store = append(m.store, make([]byte, size-uint64(len(m.store)))...)
	}
}

// getCopy returns an independent copy of [offset, offset+size).
func (m *Memory) getCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}

	cpy := make([]byte, size)
	copy(cpy, m.store[offset:offset+size])

	return cpy
}

func (m *Memory) getPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}

	return m.store[offset : offset+size]
}

func (m *Memory) copyWithin(dst, src, length uint64) {
	if length == 0 {
		return
	}

	copy(m.store[dst:], m.store[src:src+length])
}

// Len returns the allocated size in bytes.
func (m *Memory) Len() int {
	return len(m.store)
}

// Data returns the backing slice.
func (m *Memory) Data() []byte {
	return m.store
}
