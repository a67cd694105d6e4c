package interpreter

import (
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Stack is the operand stack of a single frame.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Data returns the underlying items, bottom first. Callers must not modify it.
func (st *Stack) Data() []uint256.Int {
	return st.data
}

// Len returns the number of items on the stack.
func (st *Stack) Len() int {
	return len(st.data)
}

func (st *Stack) push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *Stack) pop() uint256.Int {
	ret := st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]

	return ret
}

func (st *Stack) peek() *uint256.Int {
	return &st.data[len(st.data)-1]
}

// Back returns the n'th item from the top.
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[len(st.data)-n-1]
}

func (st *Stack) swap(n int) {
	st.data[len(st.data)-n-1], st.data[len(st.data)-1] = st.data[len(st.data)-1], st.data[len(st.data)-n-1]
}

func (st *Stack) dup(n int) {
	st.push(&st.data[len(st.data)-n])
}

func maxStack(pop, push int) int {
	return int(params.StackLimit) + pop - push
}

func minStack(pops, _ int) int {
	return pops
}
