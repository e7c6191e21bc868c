// Package extract turns a frame's landmarks into the angle vector and
// aggregate confidence consumed by the evaluator.
package extract

import (
	"errors"
	"fmt"

	"github.com/meltforce/posecoach/internal/geometry"
	"github.com/meltforce/posecoach/internal/models"
)

// Reasons recorded on missing angle entries.
const (
	ReasonDegenerate = "degenerate geometry"
)

// Extractor computes a fixed feature set of angles.
type Extractor struct {
	features models.FeatureSet
}

// New creates an Extractor for the given feature set.
func New(fs models.FeatureSet) *Extractor {
	return &Extractor{features: fs}
}

// Features returns the feature set the extractor computes.
func (e *Extractor) Features() models.FeatureSet {
	return e.features
}

// Dim returns the length of the produced angle vectors.
func (e *Extractor) Dim() int {
	return e.features.Len()
}

// Extract computes one entry per angle spec. A missing landmark invalidates
// only the angles that reference it.
func (e *Extractor) Extract(set models.LandmarkSet) models.AngleVector {
	out := make(models.AngleVector, len(e.features.Specs))
	for i, spec := range e.features.Specs {
		out[i] = angleFor(set, spec)
	}
	return out
}

func angleFor(set models.LandmarkSet, spec models.AngleSpec) models.AngleValue {
	v := models.AngleValue{Name: spec.Name}

	a, ok := set.At(spec.A)
	if !ok {
		v.Reason = missingReason(spec.A)
		return v
	}
	b, ok := set.At(spec.Vertex)
	if !ok {
		v.Reason = missingReason(spec.Vertex)
		return v
	}
	c, ok := set.At(spec.C)
	if !ok {
		v.Reason = missingReason(spec.C)
		return v
	}

	deg, err := geometry.Angle(a.Point2D, b.Point2D, c.Point2D)
	if err != nil {
		if errors.Is(err, geometry.ErrDegenerate) {
			v.Reason = ReasonDegenerate
		} else {
			v.Reason = err.Error()
		}
		return v
	}
	v.Degrees = deg
	v.Present = true
	return v
}

func missingReason(idx int) string {
	if name := models.JointName(idx); name != "" {
		return fmt.Sprintf("missing landmark %d (%s)", idx, name)
	}
	return fmt.Sprintf("missing landmark %d", idx)
}

// Confidence returns the mean visibility across all landmark slots, or 0
// for an empty set. Absent slots count as visibility 0.
func Confidence(set models.LandmarkSet) float64 {
	if len(set) == 0 {
		return 0
	}
	var sum float64
	for _, lm := range set {
		if lm.Present {
			sum += lm.Visibility
		}
	}
	return sum / float64(len(set))
}

// FillConfidence sets a frame's confidence from its landmark visibilities
// when the pose source did not report one.
func FillConfidence(f *models.Frame) {
	if f.Confidence != nil {
		return
	}
	c := Confidence(f.Landmarks)
	f.Confidence = &c
}
