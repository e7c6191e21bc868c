// Package source reads recorded pose-landmark streams and normalizes every
// supported encoding into models.Frame at ingestion.
//
// One frame per line (JSON Lines). Accepted shapes:
//
//	[[x,y,vis], ...]                                     bare list
//	{"frame":3,"landmarks":[{"x":..,"y":..,"visibility":..}, null, ...]}
//	{"frame":3,"landmarks":[[x,y,vis], ...]}
//	{"frame":3,"landmark":[...]}                         detector proto naming
//	{"frame":3,"mediapipe":{"left_shoulder":{"x":..,"y":..,"visibility":..}}}
//
// Optional keys: "confidence", "time" (RFC3339), "timestamp_ms".
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/meltforce/posecoach/internal/models"
)

const maxLineSize = 4 << 20

// Reader yields frames from a JSON Lines stream.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	next    int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// Next returns the next frame, or io.EOF when the stream is exhausted.
// Frames without an explicit index are numbered sequentially.
func (r *Reader) Next() (models.Frame, error) {
	for r.scanner.Scan() {
		r.line++
		data := bytes.TrimSpace(r.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		frame, hasIndex, err := parseFrame(data)
		if err != nil {
			return models.Frame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		if !hasIndex {
			frame.Index = r.next
		}
		r.next = frame.Index + 1
		return frame, nil
	}
	if err := r.scanner.Err(); err != nil {
		return models.Frame{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return models.Frame{}, io.EOF
}

// ParseFrame decodes a single frame in any accepted shape.
func ParseFrame(data []byte) (models.Frame, error) {
	frame, _, err := parseFrame(bytes.TrimSpace(data))
	return frame, err
}

// ParseFrameIndexed is ParseFrame that also reports whether the payload
// carried its own frame index.
func ParseFrameIndexed(data []byte) (models.Frame, bool, error) {
	return parseFrame(bytes.TrimSpace(data))
}

type rawFrame struct {
	Frame       *int                `json:"frame"`
	Time        string              `json:"time"`
	TimestampMS *int64              `json:"timestamp_ms"`
	Confidence  *float64            `json:"confidence"`
	Landmarks   json.RawMessage     `json:"landmarks"`
	Landmark    json.RawMessage     `json:"landmark"`
	Mediapipe   map[string]rawPoint `json:"mediapipe"`
}

type rawPoint struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Visibility *float64 `json:"visibility"`
}

func parseFrame(data []byte) (models.Frame, bool, error) {
	if len(data) == 0 {
		return models.Frame{}, false, fmt.Errorf("empty frame")
	}
	if data[0] == '[' {
		set, err := parseList(data)
		return models.Frame{Landmarks: set}, false, err
	}

	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Frame{}, false, fmt.Errorf("decoding frame: %w", err)
	}

	frame := models.Frame{Confidence: raw.Confidence}
	hasIndex := raw.Frame != nil
	if hasIndex {
		frame.Index = *raw.Frame
	}
	switch {
	case raw.Time != "":
		t, err := time.Parse(time.RFC3339Nano, raw.Time)
		if err != nil {
			return frame, hasIndex, fmt.Errorf("parsing time %q: %w", raw.Time, err)
		}
		frame.Time = t
	case raw.TimestampMS != nil:
		frame.Time = time.UnixMilli(*raw.TimestampMS).UTC()
	}

	var err error
	switch {
	case len(raw.Landmarks) > 0 && string(raw.Landmarks) != "null":
		frame.Landmarks, err = parseList(raw.Landmarks)
	case len(raw.Landmark) > 0 && string(raw.Landmark) != "null":
		frame.Landmarks, err = parseList(raw.Landmark)
	case raw.Mediapipe != nil:
		frame.Landmarks, err = parseNamed(raw.Mediapipe)
	default:
		frame.Landmarks = models.LandmarkSet{}
	}
	return frame, hasIndex, err
}

func parseList(data json.RawMessage) (models.LandmarkSet, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding landmark list: %w", err)
	}
	set := make(models.LandmarkSet, len(items))
	for i, item := range items {
		lm, err := parseLandmark(item)
		if err != nil {
			return nil, fmt.Errorf("landmark %d: %w", i, err)
		}
		set[i] = lm
	}
	return set, nil
}

func parseLandmark(item json.RawMessage) (models.Landmark, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || string(item) == "null" {
		return models.Landmark{}, nil
	}
	if item[0] == '[' {
		var vals []float64
		if err := json.Unmarshal(item, &vals); err != nil {
			return models.Landmark{}, err
		}
		if len(vals) < 2 || len(vals) > 4 {
			return models.Landmark{}, fmt.Errorf("want 2 to 4 coordinates, got %d", len(vals))
		}
		lm := models.Landmark{Point2D: models.Point2D{X: vals[0], Y: vals[1]}, Visibility: 1, Present: true}
		// [x, y, z, visibility] carries depth in the third slot.
		switch len(vals) {
		case 3:
			lm.Visibility = vals[2]
		case 4:
			lm.Visibility = vals[3]
		}
		return lm, nil
	}

	var p rawPoint
	if err := json.Unmarshal(item, &p); err != nil {
		return models.Landmark{}, err
	}
	return p.landmark()
}

func (p rawPoint) landmark() (models.Landmark, error) {
	if p.X == nil || p.Y == nil {
		return models.Landmark{}, fmt.Errorf("landmark needs x and y")
	}
	lm := models.Landmark{Point2D: models.Point2D{X: *p.X, Y: *p.Y}, Visibility: 1, Present: true}
	if p.Visibility != nil {
		lm.Visibility = *p.Visibility
	}
	return lm, nil
}

func parseNamed(points map[string]rawPoint) (models.LandmarkSet, error) {
	set := make(models.LandmarkSet, models.NumLandmarks)
	for name, p := range points {
		idx, ok := models.JointIndex(name)
		if !ok {
			continue
		}
		lm, err := p.landmark()
		if err != nil {
			return nil, fmt.Errorf("landmark %s: %w", name, err)
		}
		set[idx] = lm
	}
	return set, nil
}
