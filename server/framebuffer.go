package batteria

import (
	"log/slog"
	"math"
	"sync"
	"time"

	Bt "github.com/maroda/batteria/types"
)

const (
	// DefaultFrameMaxAge is the rolling window kept behind "now"
	DefaultFrameMaxAge = 2 * time.Second

	// DefaultFrameMaxCount caps the window regardless of age
	DefaultFrameMaxCount = 20
)

// FrameBuffer is a bounded, time-windowed store of recent camera frames.
// Frames arrive in timestamp order from a single producer stream,
// and are read concurrently by the impact path.
// All reads are copy-out: a returned Frame is never mutated here.
type FrameBuffer struct {
	mu       sync.Mutex
	frames   []Bt.Frame
	maxAge   time.Duration
	maxCount int
	clock    func() float64 // Unix seconds
}

// NewFrameBuffer returns a buffer bounded by maxAge and maxCount,
// whichever is stricter at any instant.
// Zero or negative arguments fall back to the defaults.
func NewFrameBuffer(maxAge time.Duration, maxCount int) *FrameBuffer {
	return NewFrameBufferWithClock(maxAge, maxCount, unixNow)
}

// NewFrameBufferWithClock takes the wall clock as an injected dependency,
// called by NewFrameBuffer and testable with a fixed clock
func NewFrameBufferWithClock(maxAge time.Duration, maxCount int, clock func() float64) *FrameBuffer {
	if maxAge <= 0 {
		maxAge = DefaultFrameMaxAge
	}
	if maxCount <= 0 {
		maxCount = DefaultFrameMaxCount
	}
	return &FrameBuffer{
		frames:   make([]Bt.Frame, 0, maxCount),
		maxAge:   maxAge,
		maxCount: maxCount,
		clock:    clock,
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Add inserts a frame and runs the eviction policy.
// A zero Timestamp is filled from the clock at call time.
func (fb *FrameBuffer) Add(frame Bt.Frame) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if frame.Timestamp == 0 {
		frame.Timestamp = fb.clock()
	}

	// bounded-capacity insert: oldest dropped first when full
	if len(fb.frames) == fb.maxCount {
		fb.frames = fb.frames[1:]
	}
	fb.frames = append(fb.frames, frame)

	fb.evictStale()
}

// evictStale drops frames older than maxAge behind the clock,
// but never the most recent frame, even a stale one.
// Caller holds fb.mu.
func (fb *FrameBuffer) evictStale() {
	cutoff := fb.clock() - fb.maxAge.Seconds()
	for len(fb.frames) > 1 && fb.frames[0].Timestamp < cutoff {
		fb.frames = fb.frames[1:]
	}
}

// Latest returns the most recently inserted frame.
// The second return is false when the buffer is empty.
func (fb *FrameBuffer) Latest() (Bt.Frame, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.frames) == 0 {
		return Bt.Frame{}, false
	}
	return fb.frames[len(fb.frames)-1], true
}

// AtTime returns the frame whose timestamp is closest to target.
// Ties resolve to the earliest-inserted candidate.
// O(n) over the window, which is small and bounded.
func (fb *FrameBuffer) AtTime(target float64) (Bt.Frame, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.frames) == 0 {
		return Bt.Frame{}, false
	}

	closest := fb.frames[0]
	minDiff := math.Inf(1)
	for _, f := range fb.frames {
		diff := math.Abs(f.Timestamp - target)
		if diff < minDiff {
			minDiff = diff
			closest = f
		}
	}
	return closest, true
}

// Clear empties the buffer.
func (fb *FrameBuffer) Clear() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.frames = fb.frames[:0]
	slog.Info("Cleared frame buffer")
}

// Size returns the current frame count.
func (fb *FrameBuffer) Size() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	return len(fb.frames)
}
