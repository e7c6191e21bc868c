package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/models"
)

// ErrFrameExists is returned when the session already holds the frame index.
var ErrFrameExists = errors.New("frame already stored")

// EvaluationInserter is the slice of DB a Sink needs.
type EvaluationInserter interface {
	InsertEvaluations(ctx context.Context, rows []models.EvaluationRow) (int64, error)
}

// Sink stores evaluated frames of one session. It satisfies evaluate.Sink.
type Sink struct {
	store     EvaluationInserter
	sessionID uuid.UUID
}

// NewSink returns a Sink writing into the given session.
func NewSink(store EvaluationInserter, sessionID uuid.UUID) *Sink {
	return &Sink{store: store, sessionID: sessionID}
}

// Append inserts one frame. A frame the store skipped as a duplicate is
// reported as ErrFrameExists.
func (s *Sink) Append(ctx context.Context, rec models.LogRecord) error {
	row := models.EvaluationRow{
		SessionID:  s.sessionID,
		FrameIndex: rec.FrameIndex,
		Time:       rec.Time,
		Angles:     rec.Angles,
		Confidence: rec.Confidence,
		Feedback:   rec.Feedback,
		Label:      rec.Label.String(),
	}
	n, err := s.store.InsertEvaluations(ctx, []models.EvaluationRow{row})
	if err != nil {
		return fmt.Errorf("storing frame %d: %w", rec.FrameIndex, err)
	}
	if n == 0 {
		return fmt.Errorf("storing frame %d: %w", rec.FrameIndex, ErrFrameExists)
	}
	return nil
}
