package batteria

import (
	"log/slog"
	"sync"

	Bt "github.com/maroda/batteria/types"
)

// SegmentationStore holds the single most recent calibration snapshot.
// Last calibration wins, the slot is replaced whole: readers never see
// a snapshot with only some of its segments.
type SegmentationStore struct {
	mu       sync.Mutex
	snapshot *Bt.Snapshot
	clock    func() float64
}

func NewSegmentationStore() *SegmentationStore {
	return &SegmentationStore{clock: unixNow}
}

// Store atomically replaces the current snapshot.
// A zero Timestamp is filled from the clock at call time.
func (ss *SegmentationStore) Store(snap Bt.Snapshot) {
	if snap.Timestamp == 0 {
		snap.Timestamp = ss.clock()
	}

	// copy the segment slice so the caller cannot reach the stored state
	held := snap
	held.Segments = append([]Bt.Segment(nil), snap.Segments...)

	ss.mu.Lock()
	ss.snapshot = &held
	ss.mu.Unlock()

	slog.Info("Stored calibration snapshot",
		slog.Int("segments", len(held.Segments)),
		slog.Float64("timestamp", held.Timestamp))
}

// Current returns a copy of the current snapshot.
// The second return is false when no calibration has been stored.
func (ss *SegmentationStore) Current() (Bt.Snapshot, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.snapshot == nil {
		return Bt.Snapshot{}, false
	}

	out := *ss.snapshot
	out.Segments = append([]Bt.Segment(nil), ss.snapshot.Segments...)
	return out, true
}

// IsCalibrated is true iff a snapshot exists with at least one segment.
func (ss *SegmentationStore) IsCalibrated() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.snapshot != nil && len(ss.snapshot.Segments) > 0
}

// Clear resets to uncalibrated.
func (ss *SegmentationStore) Clear() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	ss.snapshot = nil
	slog.Info("Cleared segmentation store")
}

// SegmentCount returns the number of segments in the current snapshot.
func (ss *SegmentationStore) SegmentCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.snapshot == nil {
		return 0
	}
	return len(ss.snapshot.Segments)
}
