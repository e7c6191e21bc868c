package evaluate

import (
	"fmt"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/config"
)

// OptionsFromConfig builds evaluator options from the evaluator section.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = cfg.Evaluator.ConfidenceThreshold
	opts.Rules.Low = cfg.Evaluator.HipLow
	opts.Rules.High = cfg.Evaluator.HipHigh
	return opts
}

// ClassifierFromConfig selects the classifier backend: a local MLP model,
// a remote inference service, or the hip threshold rule. The input size
// defaults to the configured feature set's length.
func ClassifierFromConfig(cfg *config.Config) (classifier.Classifier, error) {
	dim := cfg.Classifier.InputDim
	if dim == 0 {
		dim = cfg.FeatureSet().Len()
	}

	switch {
	case cfg.Classifier.ModelPath != "":
		m, err := classifier.LoadMLP(cfg.Classifier.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
		return m, nil
	case cfg.Classifier.RemoteURL != "":
		return classifier.NewRemote(cfg.Classifier.RemoteURL, dim), nil
	default:
		return classifier.NewHipThreshold(dim, cfg.Evaluator.HipLow, cfg.Evaluator.HipHigh), nil
	}
}
