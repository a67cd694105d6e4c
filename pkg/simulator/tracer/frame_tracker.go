package tracer

// Frame is a single active call frame seen by a FrameTracker.
type Frame struct {
	ID    uint32 // Sequential frame ID within the run
	Depth int    // EVM depth level
}

// FrameTracker assigns sequential frame IDs as frames are entered and
// keeps the stack of active frames.
type FrameTracker struct {
	stack  []Frame // Stack of active call frames
	nextID uint32  // Next frame ID to assign
}

// NewFrameTracker creates an empty FrameTracker. The first entered frame
// gets ID 0.
func NewFrameTracker() *FrameTracker {
	return &FrameTracker{}
}

// Enter registers a new active frame at depth and returns its ID.
func (ft *FrameTracker) Enter(depth int) uint32 {
	id := ft.nextID
	ft.stack = append(ft.stack, Frame{ID: id, Depth: depth})
	ft.nextID++

	return id
}

// Exit leaves the active frame. The outermost frame is never popped so
// that late records still resolve to the root.
func (ft *FrameTracker) Exit() {
	if len(ft.stack) <= 1 {
		return
	}

	ft.stack = ft.stack[:len(ft.stack)-1]
}

// CurrentFrameID returns the ID of the active frame.
func (ft *FrameTracker) CurrentFrameID() uint32 {
	if len(ft.stack) == 0 {
		return 0
	}

	return ft.stack[len(ft.stack)-1].ID
}

// Frames returns the number of frames entered so far.
func (ft *FrameTracker) Frames() uint32 {
	return ft.nextID
}
