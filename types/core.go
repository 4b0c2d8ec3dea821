package types

/*

	These are the "immutable" core types of Batteria,
	provided for cross-package use (e.g. Plugins) and testing.

	There are no functions defined here.
	Struct constructors are housed in their own packages.
	Methods taking these types should create local aliases,
	for example: type Segments []Bt.Segment

*/

// Frame is one captured camera image.
// The Payload is opaque to the core: encoded image bytes,
// or a reference key when the capture side keeps the pixels.
// Timestamp is Unix seconds, monotonic-comparable within a stream.
type Frame struct {
	Payload   []byte
	Timestamp float64
}

// Position is a point in pixel space.
type Position struct {
	X float64
	Y float64
}

// Segment is one detected region of interest.
// Bbox is x, y, w, h in pixels with w, h >= 0.
// ID is unique within a Snapshot and follows detection order.
type Segment struct {
	ID         int
	Bbox       [4]float64
	Confidence float64 // detector confidence in [0,1]
	Class      string  // detector class label
	Material   string  // classified surface material, may be empty
	Area       float64 // w*h, precomputed by the calibrator
}

// Snapshot is one full calibration: the ordered set of Segments
// detected in a single pass, valid until the next calibration.
// A Snapshot with zero Segments means "not calibrated".
type Snapshot struct {
	Segments  []Segment
	Timestamp float64
}

// ImpactEvent is one physical hit reported by the percussion sensor.
// Seq increases monotonically per connection.
// Timestamp is epoch milliseconds as reported by the hardware.
type ImpactEvent struct {
	Seq       int64
	Velocity  float64 // hardware-reported, >= 0
	Magnitude float64 // derived when the sensor omits it
	Timestamp int64
}

// HitResult is the outcome of correlating one ImpactEvent
// with the current calibration. Produced once, published, discarded.
// Position is the bounding-box center of the chosen Segment.
// Material echoes the chosen Segment's surface material.
// StickPos is the oracle-detected strike position when one was
// available for the match, nil when the fallback rule decided.
type HitResult struct {
	DrumPad    string
	Material   string
	SegmentID  int
	Position   Position
	Confidence float64
	Bbox       [4]float64
	Timestamp  int64
	StickPos   *Position
}
