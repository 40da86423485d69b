package audio

import (
	"sync"
)

// FrameRing is a bounded FIFO of frames between the synthesis pipeline
// and a slow delivery consumer. Push never blocks: when the ring is
// full the incoming frame is rejected and the caller decides whether
// to drop or back off. Pop blocks until a frame arrives or the ring is
// closed.
type FrameRing struct {
	frames []Frame
	size   int
	read   int
	write  int
	closed bool
	mu     sync.Mutex
	cond   *sync.Cond
}

// NewFrameRing creates a ring holding up to size-1 frames.
func NewFrameRing(size int) *FrameRing {
	r := &FrameRing{
		frames: make([]Frame, size),
		size:   size,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push appends a frame. Returns false when the ring is full or closed.
func (r *FrameRing) Push(frame Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || (r.write+1)%r.size == r.read {
		return false
	}

	r.frames[r.write] = frame
	r.write = (r.write + 1) % r.size
	r.cond.Signal()
	return true
}

// Pop removes the oldest frame, blocking until one is available.
// Returns false once the ring is closed and drained.
func (r *FrameRing) Pop() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.read == r.write && !r.closed {
		r.cond.Wait()
	}

	if r.read == r.write {
		return Frame{}, false
	}

	frame := r.frames[r.read]
	r.frames[r.read] = Frame{}
	r.read = (r.read + 1) % r.size
	return frame, true
}

// Len returns the number of buffered frames.
func (r *FrameRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// Clear discards all buffered frames.
func (r *FrameRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.read != r.write {
		r.frames[r.read] = Frame{}
		r.read = (r.read + 1) % r.size
	}
}

// Close wakes all blocked readers. Buffered frames remain readable
// until drained.
func (r *FrameRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}
