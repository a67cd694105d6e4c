package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrameTracker(t *testing.T) {
	ft := NewFrameTracker()

	assert.Equal(t, uint32(0), ft.CurrentFrameID())
	assert.Equal(t, uint32(0), ft.Frames())
}

func TestFrameTracker_SingleCall(t *testing.T) {
	ft := NewFrameTracker()

	assert.Equal(t, uint32(0), ft.Enter(1))
	assert.Equal(t, uint32(0), ft.CurrentFrameID())

	assert.Equal(t, uint32(1), ft.Enter(2))
	assert.Equal(t, uint32(1), ft.CurrentFrameID())

	ft.Exit()
	assert.Equal(t, uint32(0), ft.CurrentFrameID())
}

func TestFrameTracker_SiblingCalls(t *testing.T) {
	ft := NewFrameTracker()
	ft.Enter(1)

	// Siblings at the same depth get distinct IDs.
	ft.Enter(2)
	ft.Exit()

	assert.Equal(t, uint32(2), ft.Enter(2))
	assert.Equal(t, uint32(2), ft.CurrentFrameID())

	ft.Exit()
	assert.Equal(t, uint32(3), ft.Frames())
}

func TestFrameTracker_NestedCalls(t *testing.T) {
	ft := NewFrameTracker()
	ft.Enter(1)
	ft.Enter(2)
	ft.Enter(3)

	assert.Equal(t, uint32(2), ft.CurrentFrameID())

	ft.Exit()
	assert.Equal(t, uint32(1), ft.CurrentFrameID())

	ft.Exit()
	assert.Equal(t, uint32(0), ft.CurrentFrameID())
}

func TestFrameTracker_RootIsNeverPopped(t *testing.T) {
	ft := NewFrameTracker()
	ft.Enter(1)
	ft.Exit()
	ft.Exit()

	assert.Equal(t, uint32(0), ft.CurrentFrameID())
	assert.Equal(t, uint32(1), ft.Frames())
}
