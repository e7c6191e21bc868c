package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Label is the classifier verdict for a frame.
type Label int

const (
	LabelIncorrect Label = iota
	LabelCorrect
	LabelUnknown
)

// LabelFromClass maps a classifier output index to a Label. Indices other
// than 0 and 1 map to LabelUnknown.
func LabelFromClass(class int) Label {
	switch class {
	case 0:
		return LabelIncorrect
	case 1:
		return LabelCorrect
	default:
		return LabelUnknown
	}
}

func (l Label) String() string {
	switch l {
	case LabelIncorrect:
		return "Incorrect"
	case LabelCorrect:
		return "Correct"
	default:
		return "Unknown"
	}
}

// ParseLabel is the inverse of Label.String.
func ParseLabel(s string) (Label, error) {
	switch s {
	case "Incorrect":
		return LabelIncorrect, nil
	case "Correct":
		return LabelCorrect, nil
	case "Unknown":
		return LabelUnknown, nil
	}
	return LabelUnknown, fmt.Errorf("unknown label %q", s)
}

func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Outcome records which stage of evaluation a frame ended in.
type Outcome int

const (
	OutcomeLowConfidence Outcome = iota
	OutcomeIncomplete
	OutcomeEvaluated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLowConfidence:
		return "low_confidence"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeEvaluated:
		return "evaluated"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Frame is one unit of work from a pose source. Confidence is nil when the
// source did not report one.
type Frame struct {
	Index      int
	Time       time.Time
	Landmarks  LandmarkSet
	Confidence *float64
}

// EvaluationResult is the per-frame output of the evaluator.
type EvaluationResult struct {
	Outcome    Outcome     `json:"outcome"`
	Angles     AngleVector `json:"angles,omitempty"`
	Confidence float64     `json:"confidence"`
	Label      Label       `json:"label"`
	Feedback   string      `json:"feedback"`

	// LogErr is set when the frame was evaluated but appending it to the
	// session log failed.
	LogErr error `json:"-"`
}

// LogRecord is one persisted row of a session log. FrameIndex and Time
// identify the frame for stores that key on it; the CSV log omits them.
type LogRecord struct {
	FrameIndex int
	Time       time.Time
	Angles     []float64
	Confidence float64
	Feedback   string
	Label      Label
}

// SessionRow is a row of the sessions table.
type SessionRow struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	FeatureSet string    `json:"feature_set"`
	AngleNames []string  `json:"angle_names"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// EvaluationRow is a row of the evaluations table.
type EvaluationRow struct {
	SessionID  uuid.UUID `json:"session_id"`
	FrameIndex int       `json:"frame_index"`
	Time       time.Time `json:"time"`
	Angles     []float64 `json:"angles"`
	Confidence float64   `json:"confidence"`
	Feedback   string    `json:"feedback"`
	Label      string    `json:"label"`
}
