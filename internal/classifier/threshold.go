package classifier

import "context"

// Threshold is a rule-based stand-in for a trained model: a frame is class 1
// (correct) when every watched feature lies within [Low, High].
type Threshold struct {
	Dim     int
	Indices []int
	Low     float64
	High    float64
}

// NewHipThreshold watches the first two features, which are the left and
// right hip angles in the evaluation feature set.
func NewHipThreshold(dim int, low, high float64) *Threshold {
	return &Threshold{Dim: dim, Indices: []int{0, 1}, Low: low, High: high}
}

func (t *Threshold) InputDim() int { return t.Dim }

func (t *Threshold) Classify(_ context.Context, features []float64) (int, error) {
	if err := CheckDim(features, t.Dim); err != nil {
		return 0, err
	}
	for _, i := range t.Indices {
		if i >= len(features) {
			continue
		}
		if v := features[i]; v < t.Low || v > t.High {
			return 0, nil
		}
	}
	return 1, nil
}
