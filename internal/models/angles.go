package models

import (
	"errors"
	"fmt"
	"strings"
)

// AngleSpec names the interior angle at Vertex formed by landmarks A and C.
type AngleSpec struct {
	Name   string `json:"name"`
	A      int    `json:"a"`
	Vertex int    `json:"vertex"`
	C      int    `json:"c"`
}

// FeatureSet is an ordered list of angles. Its order and length are part of
// the classifier's trained input contract.
type FeatureSet struct {
	Name  string      `json:"name"`
	Specs []AngleSpec `json:"specs"`
}

// Names returns the angle names in feature order.
func (fs FeatureSet) Names() []string {
	names := make([]string, len(fs.Specs))
	for i, s := range fs.Specs {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of angles in the set.
func (fs FeatureSet) Len() int {
	return len(fs.Specs)
}

// EvaluationFeatures is the six-angle vector scored by the live evaluator.
// The first two entries are the left and right hip angles used by the
// feedback rules.
var EvaluationFeatures = FeatureSet{
	Name: "evaluation",
	Specs: []AngleSpec{
		{Name: "left_hip_angle", A: LeftShoulder, Vertex: LeftHip, C: LeftKnee},
		{Name: "right_hip_angle", A: RightShoulder, Vertex: RightHip, C: RightKnee},
		{Name: "left_shoulder_angle", A: LeftHip, Vertex: LeftShoulder, C: RightShoulder},
		{Name: "right_shoulder_angle", A: LeftShoulder, Vertex: RightShoulder, C: RightHip},
		{Name: "left_knee_angle", A: LeftHip, Vertex: LeftKnee, C: RightKnee},
		{Name: "right_knee_angle", A: RightHip, Vertex: RightKnee, C: LeftKnee},
	},
}

// TrainingFeatures is the six-angle vector extracted from recorded exercise
// videos when building training datasets.
var TrainingFeatures = FeatureSet{
	Name: "training",
	Specs: []AngleSpec{
		{Name: "leftHipAngle", A: LeftShoulder, Vertex: LeftHip, C: LeftKnee},
		{Name: "rightHipAngle", A: RightShoulder, Vertex: RightHip, C: RightKnee},
		{Name: "leftElbowAngle", A: LeftShoulder, Vertex: LeftElbow, C: LeftWrist},
		{Name: "rightElbowAngle", A: RightShoulder, Vertex: RightElbow, C: RightWrist},
		{Name: "leftKneeAngle", A: LeftHip, Vertex: LeftKnee, C: LeftAnkle},
		{Name: "rightKneeAngle", A: RightHip, Vertex: RightKnee, C: RightAnkle},
	},
}

// FeatureSets lists the built-in feature sets.
var FeatureSets = []FeatureSet{EvaluationFeatures, TrainingFeatures}

// FeatureSetByName returns a built-in feature set.
func FeatureSetByName(name string) (FeatureSet, error) {
	for _, fs := range FeatureSets {
		if fs.Name == name {
			return fs, nil
		}
	}
	return FeatureSet{}, fmt.Errorf("unknown feature set %q", name)
}

// AngleValue is one entry of an AngleVector. When Present is false, Degrees
// carries no meaning and Reason says why the angle could not be computed.
type AngleValue struct {
	Name    string  `json:"name"`
	Degrees float64 `json:"degrees"`
	Present bool    `json:"present"`
	Reason  string  `json:"reason,omitempty"`
}

// AngleVector is the ordered set of angles extracted from one frame.
type AngleVector []AngleValue

// ErrIncompleteVector is returned when numeric values are requested from a
// vector that has missing entries.
var ErrIncompleteVector = errors.New("angle vector is incomplete")

// Complete reports whether every entry is present.
func (v AngleVector) Complete() bool {
	for _, a := range v {
		if !a.Present {
			return false
		}
	}
	return true
}

// Missing returns the names of absent entries.
func (v AngleVector) Missing() []string {
	var names []string
	for _, a := range v {
		if !a.Present {
			names = append(names, a.Name)
		}
	}
	return names
}

// Names returns the entry names in order.
func (v AngleVector) Names() []string {
	names := make([]string, len(v))
	for i, a := range v {
		names[i] = a.Name
	}
	return names
}

// Values returns the angles in degrees. Fails with ErrIncompleteVector if any
// entry is missing; no default is ever substituted.
func (v AngleVector) Values() ([]float64, error) {
	out := make([]float64, len(v))
	for i, a := range v {
		if !a.Present {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteVector, strings.Join(v.Missing(), ", "))
		}
		out[i] = a.Degrees
	}
	return out, nil
}
