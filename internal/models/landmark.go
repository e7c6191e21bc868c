package models

import "strings"

// Pose landmark indices following the MediaPipe BlazePose convention.
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

var jointNames = [NumLandmarks]string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// JointName returns the snake_case name of a landmark index, or "" if out of range.
func JointName(i int) string {
	if i < 0 || i >= NumLandmarks {
		return ""
	}
	return jointNames[i]
}

// JointIndex resolves a joint name to its landmark index. Accepts snake_case
// ("left_shoulder"), camelCase ("leftShoulder") and upper-case enum style
// ("LEFT_SHOULDER").
func JointIndex(name string) (int, bool) {
	key := normalizeJointName(name)
	for i, n := range jointNames {
		if strings.ReplaceAll(n, "_", "") == key {
			return i, true
		}
	}
	return 0, false
}

func normalizeJointName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}

// Point2D is a position in normalized image coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is a single detected joint. Present is false for slots the pose
// source did not deliver.
type Landmark struct {
	Point2D
	Visibility float64 `json:"visibility"`
	Present    bool    `json:"present"`
}

// LandmarkSet holds one frame's landmarks indexed by joint.
type LandmarkSet []Landmark

// At returns the landmark at index i. The second result is false when the
// index is out of range or the slot is absent.
func (s LandmarkSet) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(s) {
		return Landmark{}, false
	}
	lm := s[i]
	if !lm.Present {
		return Landmark{}, false
	}
	return lm, true
}

// PresentCount returns the number of delivered landmarks.
func (s LandmarkSet) PresentCount() int {
	n := 0
	for _, lm := range s {
		if lm.Present {
			n++
		}
	}
	return n
}
