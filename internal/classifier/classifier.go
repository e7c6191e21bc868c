// Package classifier defines the boundary to the trained pose model and
// provides the implementations the binaries can be wired with.
package classifier

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a feature vector's length differs
// from the model's declared input size. It signals that the extractor's
// feature set and the trained model have drifted apart.
var ErrDimensionMismatch = errors.New("feature vector dimension mismatch")

// Classifier maps a fixed-length feature vector to a class index.
type Classifier interface {
	InputDim() int
	Classify(ctx context.Context, features []float64) (int, error)
}

// CheckDim returns ErrDimensionMismatch when len(features) != want.
func CheckDim(features []float64, want int) error {
	if len(features) != want {
		return fmt.Errorf("%w: got %d features, model expects %d", ErrDimensionMismatch, len(features), want)
	}
	return nil
}
