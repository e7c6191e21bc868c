package evaluate

import "strings"

// HipRule produces coaching text from the left and right hip angles.
type HipRule struct {
	LeftIndex  int
	RightIndex int
	Low        float64
	High       float64
}

// DefaultHipRule watches features 0 and 1 with a [85, 95] degree band.
func DefaultHipRule() HipRule {
	return HipRule{LeftIndex: 0, RightIndex: 1, Low: 85, High: 95}
}

// Feedback returns the coaching text for a complete angle vector. Both sides
// in band yield a single positive message; otherwise each side is judged on
// its own and the messages are joined with a space.
func (r HipRule) Feedback(values []float64) string {
	if r.LeftIndex >= len(values) || r.RightIndex >= len(values) {
		return ""
	}
	left, right := values[r.LeftIndex], values[r.RightIndex]

	if r.inBand(left) && r.inBand(right) {
		return "Good posture on both sides!"
	}

	var msgs []string
	if m := r.side(left, "left"); m != "" {
		msgs = append(msgs, m)
	}
	if m := r.side(right, "right"); m != "" {
		msgs = append(msgs, m)
	}
	return strings.Join(msgs, " ")
}

func (r HipRule) inBand(v float64) bool {
	return v >= r.Low && v <= r.High
}

func (r HipRule) side(v float64, name string) string {
	switch {
	case v < r.Low:
		return "Straighten up your back on the " + name + " side!"
	case v > r.High:
		return "Lower your hips slightly on the " + name + " side!"
	}
	return ""
}
