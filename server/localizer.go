package batteria

import (
	"context"
	"errors"
	"log/slog"
	"time"

	Bt "github.com/maroda/batteria/types"
)

// DefaultOracleTimeout bounds the position-detection call.
// Inference can take hundreds of milliseconds; past this,
// the impact path stops waiting and falls back.
const DefaultOracleTimeout = 500 * time.Millisecond

var (
	// ErrNotCalibrated means there is no snapshot with segments to match against.
	ErrNotCalibrated = errors.New("not calibrated: no segments stored")

	// ErrNoFrame means the frame buffer had nothing to hand the oracle.
	ErrNoFrame = errors.New("no frame available")
)

// PositionDetector is the external vision oracle that finds the
// strike position in a frame. It may block and it may fail:
// both are treated as "no position" by the localizer.
type PositionDetector interface {
	Detect(ctx context.Context, frame Bt.Frame) (Bt.Position, bool, error)
}

// Calibrator is the external vision oracle that segments a frame
// into regions of interest. Consumed by the calibration supervisor.
type Calibrator interface {
	Segment(ctx context.Context, frame Bt.Frame) (Bt.Snapshot, error)
}

// HitLocalizer decides, for one impact, which segment was struck
// and which drum pad it maps to. It holds no mutable state beyond
// its configuration, so one instance serves all impacts.
//
// The detector call is the only blocking step, and it runs on
// local copies: Localize never touches FrameBuffer or
// SegmentationStore locks.
type HitLocalizer struct {
	detector PositionDetector // nil means always fall back
	mapper   PadMapper
	timeout  time.Duration
}

func NewHitLocalizer(detector PositionDetector, mapper PadMapper, timeout time.Duration) *HitLocalizer {
	if mapper == nil {
		mapper = NewCyclicPadMap()
	}
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	return &HitLocalizer{
		detector: detector,
		mapper:   mapper,
		timeout:  timeout,
	}
}

// Localize correlates one impact with the calibration snapshot.
//
// The position to test comes from precise when supplied, otherwise
// from the detector oracle bounded by the configured timeout.
// With a position, the first segment containing it wins, in snapshot
// order. Without one, or when nothing contains it, the fallback rule
// picks the largest high-confidence segment. The fallback always
// produces a result when the snapshot has at least one segment.
func (hl *HitLocalizer) Localize(ctx context.Context, frame Bt.Frame, snap Bt.Snapshot, eventTS int64, precise *Bt.Position) (Bt.HitResult, error) {
	if len(snap.Segments) == 0 {
		slog.Warn("No segments available for hit localization")
		return Bt.HitResult{}, ErrNotCalibrated
	}

	pos := precise
	if pos == nil && hl.detector != nil {
		octx, cancel := context.WithTimeout(ctx, hl.timeout)
		p, ok, err := hl.detector.Detect(octx, frame)
		cancel()
		switch {
		case err != nil:
			// oracle failure is never a hard error
			slog.Warn("Position oracle failed, using fallback", slog.Any("Error", err))
		case ok:
			pos = &p
		}
	}

	seg := SelectSegment(snap.Segments, pos)

	center := Bt.Position{
		X: seg.Bbox[0] + seg.Bbox[2]/2,
		Y: seg.Bbox[1] + seg.Bbox[3]/2,
	}

	pad := hl.mapper.Pad(seg)
	slog.Info("Hit localized",
		slog.String("pad", pad),
		slog.Int("segment", seg.ID),
		slog.Float64("confidence", seg.Confidence))

	return Bt.HitResult{
		DrumPad:    pad,
		Material:   seg.Material,
		SegmentID:  seg.ID,
		Position:   center,
		Confidence: seg.Confidence,
		Bbox:       seg.Bbox,
		Timestamp:  eventTS,
		StickPos:   pos,
	}, nil
}

// SelectSegment applies the matching rule to a non-empty segment list.
//
// With a position, segments are scanned in snapshot order and the
// first bounding box containing the point wins. Overlaps resolve by
// that order alone, never by confidence or area.
//
// Without a position, or when no box contains it, candidates are the
// segments with confidence above 0.5 (all of them when that set is
// empty) and the largest area wins, ties to the first occurrence.
func SelectSegment(segments []Bt.Segment, pos *Bt.Position) Bt.Segment {
	if pos != nil {
		for _, seg := range segments {
			x, y, w, h := seg.Bbox[0], seg.Bbox[1], seg.Bbox[2], seg.Bbox[3]
			if x <= pos.X && pos.X <= x+w && y <= pos.Y && pos.Y <= y+h {
				slog.Info("Hit position matched segment",
					slog.Int("segment", seg.ID),
					slog.String("class", seg.Class))
				return seg
			}
		}
		slog.Info("Hit position not inside any segment, using fallback")
	}

	candidates := make([]Bt.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Confidence > 0.5 {
			candidates = append(candidates, seg)
		}
	}
	if len(candidates) == 0 {
		candidates = segments
	}

	// stable max by area
	largest := candidates[0]
	for _, seg := range candidates[1:] {
		if seg.Area > largest.Area {
			largest = seg
		}
	}
	return largest
}
