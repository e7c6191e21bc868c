package evaluate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/models"
)

type fakeClassifier struct {
	dim   int
	class int
	calls int
	err   error
}

func (f *fakeClassifier) InputDim() int { return f.dim }

func (f *fakeClassifier) Classify(_ context.Context, features []float64) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if err := classifier.CheckDim(features, f.dim); err != nil {
		return 0, err
	}
	return f.class, nil
}

type memSink struct {
	records []models.LogRecord
	err     error
}

func (m *memSink) Append(_ context.Context, rec models.LogRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conf(v float64) *float64 { return &v }

// poseWithHips builds a full landmark set with fixed shoulders and hips; the
// knee positions decide the hip angles.
func poseWithHips(leftKnee, rightKnee models.Point2D) models.LandmarkSet {
	set := make(models.LandmarkSet, models.NumLandmarks)
	place := func(i int, x, y float64) {
		set[i] = models.Landmark{Point2D: models.Point2D{X: x, Y: y}, Visibility: 1, Present: true}
	}
	for i := range set {
		place(i, 0.5, 0.05+float64(i)*0.01)
	}
	place(models.LeftShoulder, 0.40, 0.20)
	place(models.RightShoulder, 0.60, 0.20)
	place(models.LeftHip, 0.40, 0.50)
	place(models.RightHip, 0.60, 0.50)
	set[models.LeftKnee] = models.Landmark{Point2D: leftKnee, Visibility: 1, Present: true}
	set[models.RightKnee] = models.Landmark{Point2D: rightKnee, Visibility: 1, Present: true}
	return set
}

var (
	// Knees level with the hips, pointing outwards: 90 degree hips.
	leftKnee90  = models.Point2D{X: 0.20, Y: 0.50}
	rightKnee90 = models.Point2D{X: 0.80, Y: 0.50}
	// Knees raised towards the shoulders: acute hip angle (about 34 degrees).
	leftKneeLow  = models.Point2D{X: 0.20, Y: 0.20}
	rightKneeLow = models.Point2D{X: 0.80, Y: 0.20}
	// Knees dropped below the hips: obtuse hip angle (about 146 degrees).
	leftKneeHigh  = models.Point2D{X: 0.20, Y: 0.80}
	rightKneeHigh = models.Point2D{X: 0.80, Y: 0.80}
)

func newEvaluator(t *testing.T, cls classifier.Classifier, sink Sink) *Evaluator {
	t.Helper()
	ev, err := New(extract.New(models.EvaluationFeatures), cls, sink, DefaultOptions(), quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ev
}

// TestLowConfidenceGate verifies frames below the threshold get the exact
// retry message with no classification and no log write.
func TestLowConfidenceGate(t *testing.T) {
	cls := &fakeClassifier{dim: 6, class: 1}
	sink := &memSink{}
	ev := newEvaluator(t, cls, sink)

	res, err := ev.Evaluate(context.Background(), models.Frame{
		Landmarks:  poseWithHips(leftKnee90, rightKnee90),
		Confidence: conf(0.4),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Feedback != "Pose not detected clearly. Try again." {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if res.Outcome != models.OutcomeLowConfidence {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if res.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", res.Confidence)
	}
	if cls.calls != 0 || len(sink.records) != 0 {
		t.Errorf("classifier calls = %d, log writes = %d, want 0/0", cls.calls, len(sink.records))
	}
}

// TestMissingConfidence verifies an absent confidence score is treated as
// below threshold.
func TestMissingConfidence(t *testing.T) {
	cls := &fakeClassifier{dim: 6, class: 1}
	sink := &memSink{}
	ev := newEvaluator(t, cls, sink)

	res, err := ev.Evaluate(context.Background(), models.Frame{Landmarks: poseWithHips(leftKnee90, rightKnee90)})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome != models.OutcomeLowConfidence || res.Feedback != MsgLowConfidence {
		t.Errorf("result = %+v", res)
	}
	if cls.calls != 0 || len(sink.records) != 0 {
		t.Error("nil confidence must not classify or log")
	}
}

// TestIncompletePose verifies a missing landmark blocks classification and logging.
func TestIncompletePose(t *testing.T) {
	cls := &fakeClassifier{dim: 6, class: 1}
	sink := &memSink{}
	ev := newEvaluator(t, cls, sink)

	set := poseWithHips(leftKnee90, rightKnee90)
	set[models.RightHip] = models.Landmark{}

	res, err := ev.Evaluate(context.Background(), models.Frame{Landmarks: set, Confidence: conf(0.9)})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Feedback != "Pose not fully detected." {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if res.Outcome != models.OutcomeIncomplete {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if cls.calls != 0 || len(sink.records) != 0 {
		t.Error("incomplete pose must not classify or log")
	}
}

// TestGoodPosture verifies 90 degree hips on both sides produce the positive
// message and a logged record.
func TestGoodPosture(t *testing.T) {
	cls := &fakeClassifier{dim: 6, class: 1}
	sink := &memSink{}
	ev := newEvaluator(t, cls, sink)

	res, err := ev.Evaluate(context.Background(), models.Frame{
		Landmarks:  poseWithHips(leftKnee90, rightKnee90),
		Confidence: conf(0.9),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !strings.Contains(res.Feedback, "Good posture on both sides!") {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if res.Label != models.LabelCorrect {
		t.Errorf("label = %v, want Correct", res.Label)
	}
	if len(sink.records) != 1 {
		t.Fatalf("log writes = %d, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if len(rec.Angles) != 6 || rec.Confidence != 0.9 || rec.Label != models.LabelCorrect || rec.Feedback != res.Feedback {
		t.Errorf("record = %+v", rec)
	}
}

// TestSideFeedback verifies each side is judged independently.
func TestSideFeedback(t *testing.T) {
	tests := []struct {
		name       string
		left       models.Point2D
		right      models.Point2D
		contains   []string
		notContain []string
	}{
		{
			name:       "left too closed",
			left:       leftKneeLow,
			right:      rightKnee90,
			contains:   []string{"Straighten up your back on the left side!"},
			notContain: []string{"Lower your hips slightly on the left side!", "right side", "Good posture"},
		},
		{
			name:     "right too open",
			left:     leftKnee90,
			right:    rightKneeHigh,
			contains: []string{"Lower your hips slightly on the right side!"},
			notContain: []string{
				"left side", "Good posture",
			},
		},
		{
			name:  "both sides off",
			left:  leftKneeHigh,
			right: rightKneeLow,
			contains: []string{
				"Lower your hips slightly on the left side! Straighten up your back on the right side!",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvaluator(t, &fakeClassifier{dim: 6}, nil)
			res, err := ev.Evaluate(context.Background(), models.Frame{
				Landmarks:  poseWithHips(tt.left, tt.right),
				Confidence: conf(1),
			})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(res.Feedback, s) {
					t.Errorf("feedback %q missing %q", res.Feedback, s)
				}
			}
			for _, s := range tt.notContain {
				if strings.Contains(res.Feedback, s) {
					t.Errorf("feedback %q should not contain %q", res.Feedback, s)
				}
			}
			if res.Label != models.LabelIncorrect {
				t.Errorf("label = %v, want Incorrect", res.Label)
			}
		})
	}
}

// TestHipRuleValues exercises the rule on raw angle values, including the
// band edges.
func TestHipRuleValues(t *testing.T) {
	r := DefaultHipRule()
	tests := []struct {
		left, right float64
		want        string
	}{
		{90, 90, "Good posture on both sides!"},
		{85, 95, "Good posture on both sides!"},
		{70, 90, "Straighten up your back on the left side!"},
		{100, 90, "Lower your hips slightly on the left side!"},
		{90, 84.9, "Straighten up your back on the right side!"},
		{70, 120, "Straighten up your back on the left side! Lower your hips slightly on the right side!"},
	}
	for _, tt := range tests {
		values := []float64{tt.left, tt.right, 0, 0, 0, 0}
		if got := r.Feedback(values); got != tt.want {
			t.Errorf("Feedback(%v, %v) = %q, want %q", tt.left, tt.right, got, tt.want)
		}
	}
}

// TestUnknownClass verifies indices outside {0,1} map to Unknown.
func TestUnknownClass(t *testing.T) {
	ev := newEvaluator(t, &fakeClassifier{dim: 6, class: 7}, nil)
	res, err := ev.Evaluate(context.Background(), models.Frame{
		Landmarks:  poseWithHips(leftKnee90, rightKnee90),
		Confidence: conf(0.8),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Label != models.LabelUnknown {
		t.Errorf("label = %v, want Unknown", res.Label)
	}
}

// TestDimensionMismatchAtConstruction verifies drift between the feature set
// and the classifier is caught before any frame is processed.
func TestDimensionMismatchAtConstruction(t *testing.T) {
	_, err := New(extract.New(models.EvaluationFeatures), &fakeClassifier{dim: 9}, nil, DefaultOptions(), quietLogger())
	if !errors.Is(err, classifier.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

// TestClassifierErrorIsFatal verifies classification errors surface as errors.
func TestClassifierErrorIsFatal(t *testing.T) {
	sink := &memSink{}
	boom := errors.New("model crashed")
	ev := newEvaluator(t, &fakeClassifier{dim: 6, err: boom}, sink)

	_, err := ev.Evaluate(context.Background(), models.Frame{
		Landmarks:  poseWithHips(leftKnee90, rightKnee90),
		Confidence: conf(0.8),
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if len(sink.records) != 0 {
		t.Error("failed frame must not be logged")
	}
}

// TestSinkFailureSurfaced verifies a log failure keeps the feedback but is
// reported on the result.
func TestSinkFailureSurfaced(t *testing.T) {
	diskFull := errors.New("disk full")
	ev := newEvaluator(t, &fakeClassifier{dim: 6, class: 1}, &memSink{err: diskFull})

	res, err := ev.Evaluate(context.Background(), models.Frame{
		Landmarks:  poseWithHips(leftKnee90, rightKnee90),
		Confidence: conf(0.8),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Feedback != "Good posture on both sides!" {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if !errors.Is(res.LogErr, diskFull) {
		t.Errorf("LogErr = %v, want %v", res.LogErr, diskFull)
	}
}

// TestMultiSink verifies fan-out and error joining.
func TestMultiSink(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("b failed")}
	err := MultiSink{a, b}.Append(context.Background(), models.LogRecord{Label: models.LabelCorrect})
	if err == nil || !strings.Contains(err.Error(), "b failed") {
		t.Errorf("err = %v", err)
	}
	if len(a.records) != 1 {
		t.Errorf("a records = %d, want 1", len(a.records))
	}
}
