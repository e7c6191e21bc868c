// Package evaluate runs the per-frame pose evaluation: confidence gate,
// completeness check, classification, rule feedback and session logging.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/models"
)

// Terminal messages for frames that are not classified.
const (
	MsgLowConfidence = "Pose not detected clearly. Try again."
	MsgIncomplete    = "Pose not fully detected."
	MsgNoFeedback    = "No pose detected"
)

// DefaultConfidenceThreshold is the minimum mean landmark visibility.
const DefaultConfidenceThreshold = 0.5

// Sink receives one record per classified frame.
type Sink interface {
	Append(ctx context.Context, rec models.LogRecord) error
}

// Options configures an Evaluator.
type Options struct {
	ConfidenceThreshold float64
	Rules               HipRule
}

// DefaultOptions returns the stock confidence gate and hip band.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Rules:               DefaultHipRule(),
	}
}

// Evaluator is stateless across frames apart from the sink it appends to.
type Evaluator struct {
	ext  *extract.Extractor
	cls  classifier.Classifier
	sink Sink
	opts Options
	log  *slog.Logger
}

// New wires an evaluator. It fails with classifier.ErrDimensionMismatch when
// the extractor's feature count differs from the classifier's input size.
// sink may be nil, in which case nothing is logged.
func New(ext *extract.Extractor, cls classifier.Classifier, sink Sink, opts Options, log *slog.Logger) (*Evaluator, error) {
	if ext.Dim() != cls.InputDim() {
		return nil, fmt.Errorf("%w: feature set %q has %d angles, classifier expects %d",
			classifier.ErrDimensionMismatch, ext.Features().Name, ext.Dim(), cls.InputDim())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{ext: ext, cls: cls, sink: sink, opts: opts, log: log}, nil
}

// Extractor returns the extractor the evaluator was built with.
func (e *Evaluator) Extractor() *extract.Extractor {
	return e.ext
}

// Evaluate processes one frame. Low confidence and incomplete landmark sets
// are reported through the result's Outcome, not as errors. An error is
// returned only when classification fails; a sink failure is logged and
// carried in the result's LogErr.
func (e *Evaluator) Evaluate(ctx context.Context, frame models.Frame) (*models.EvaluationResult, error) {
	res := &models.EvaluationResult{Label: models.LabelUnknown}

	if frame.Confidence == nil || *frame.Confidence < e.opts.ConfidenceThreshold {
		if frame.Confidence != nil {
			res.Confidence = *frame.Confidence
		}
		res.Outcome = models.OutcomeLowConfidence
		res.Feedback = MsgLowConfidence
		return res, nil
	}
	res.Confidence = *frame.Confidence

	res.Angles = e.ext.Extract(frame.Landmarks)
	values, err := res.Angles.Values()
	if err != nil {
		e.log.Debug("pose incomplete", "frame", frame.Index, "missing", res.Angles.Missing())
		res.Outcome = models.OutcomeIncomplete
		res.Feedback = MsgIncomplete
		return res, nil
	}

	class, err := e.cls.Classify(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("classifying frame %d: %w", frame.Index, err)
	}
	res.Label = models.LabelFromClass(class)
	res.Outcome = models.OutcomeEvaluated

	feedback := e.opts.Rules.Feedback(values)
	if feedback == "" {
		feedback = MsgNoFeedback
	}
	res.Feedback = feedback

	if e.sink != nil {
		rec := models.LogRecord{
			FrameIndex: frame.Index,
			Time:       frame.Time,
			Angles:     values,
			Confidence: res.Confidence,
			Feedback:   feedback,
			Label:      res.Label,
		}
		if err := e.sink.Append(ctx, rec); err != nil {
			e.log.Error("session log append failed", "frame", frame.Index, "error", err)
			res.LogErr = err
		}
	}

	return res, nil
}
