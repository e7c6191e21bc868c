package evaluate

import (
	"context"
	"errors"

	"github.com/meltforce/posecoach/internal/models"
)

// MultiSink appends each record to every sink, joining their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec models.LogRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
