package batteria

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	Bt "github.com/maroda/batteria/types"
)

const oracleWebTimeout = 10 * time.Second

// HTTPDoer is the client seam for oracle requests,
// testable with dependency injection
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Shared HTTP Client
// - to reuse existing endpoint connections
// - to avoid stale connections that eat up OS FDs
var sharedOracleClient = &http.Client{
	Timeout: oracleWebTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	},
}

// HostedOracle answers detection queries from a hosted model service.
// It implements both PositionDetector and Calibrator; either URL may
// be empty when that half is unused.
type HostedOracle struct {
	DetectURL  string
	SegmentURL string
	Client     HTTPDoer
}

func NewHostedOracle(detectURL, segmentURL string) *HostedOracle {
	return &HostedOracle{
		DetectURL:  detectURL,
		SegmentURL: segmentURL,
		Client:     sharedOracleClient,
	}
}

// frameRequest ships the frame to the model service.
type frameRequest struct {
	Frame string `json:"frame"` // base64-encoded image
}

// detection is one object the model found.
type detection struct {
	ID         int        `json:"id"`
	Bbox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassName  string     `json:"class_name"`
	Material   string     `json:"material"`
	Area       float64    `json:"area"`
	Center     XY         `json:"center"`
}

type detectResponse struct {
	Detections []detection `json:"detections"`
	Count      int         `json:"count"`
}

type segmentResponse struct {
	Segments  []detection `json:"segments"`
	Count     int         `json:"count"`
	Timestamp float64     `json:"timestamp"`
}

func (o *HostedOracle) post(ctx context.Context, url string, frame Bt.Frame, out any) error {
	body, err := json.Marshal(frameRequest{
		Frame: base64.StdEncoding.EncodeToString(frame.Payload),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Close Error", slog.Any("Error", err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Detect asks the hosted model for the strike position in a frame.
// The best-confidence detection's center wins; no detections means
// no position, which is not an error.
func (o *HostedOracle) Detect(ctx context.Context, frame Bt.Frame) (Bt.Position, bool, error) {
	if o.DetectURL == "" {
		return Bt.Position{}, false, nil
	}

	var dr detectResponse
	if err := o.post(ctx, o.DetectURL, frame, &dr); err != nil {
		return Bt.Position{}, false, err
	}
	if len(dr.Detections) == 0 {
		return Bt.Position{}, false, nil
	}

	best := dr.Detections[0]
	for _, d := range dr.Detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return Bt.Position{X: best.Center.X, Y: best.Center.Y}, true, nil
}

// Segment asks the hosted model to segment a frame into regions.
func (o *HostedOracle) Segment(ctx context.Context, frame Bt.Frame) (Bt.Snapshot, error) {
	if o.SegmentURL == "" {
		return Bt.Snapshot{}, fmt.Errorf("no segmentation endpoint configured")
	}

	var sr segmentResponse
	if err := o.post(ctx, o.SegmentURL, frame, &sr); err != nil {
		return Bt.Snapshot{}, err
	}

	segments := make([]Bt.Segment, 0, len(sr.Segments))
	for _, d := range sr.Segments {
		area := d.Area
		if area == 0 {
			area = d.Bbox[2] * d.Bbox[3]
		}
		segments = append(segments, Bt.Segment{
			ID:         d.ID,
			Bbox:       d.Bbox,
			Confidence: d.Confidence,
			Class:      d.ClassName,
			Material:   d.Material,
			Area:       area,
		})
	}
	return Bt.Snapshot{Segments: segments, Timestamp: sr.Timestamp}, nil
}
