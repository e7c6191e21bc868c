package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Layer activations supported in model exports.
const (
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
	ActivationLinear  = "linear"
)

// ModelFile is the JSON export of a trained dense network. Weights are stored
// input-major: Weights[i][j] connects input i to output j.
type ModelFile struct {
	InputName string      `json:"input_name"`
	InputDim  int         `json:"input_dim"`
	Classes   []string    `json:"classes"`
	Layers    []LayerFile `json:"layers"`
}

// LayerFile is one dense layer of a ModelFile.
type LayerFile struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type denseLayer struct {
	w          *mat.Dense // out x in
	b          *mat.VecDense
	activation string
}

// MLP is a feed-forward network evaluated with gonum.
type MLP struct {
	inputName string
	inputDim  int
	classes   []string
	layers    []denseLayer
}

// LoadMLP reads a JSON model export from disk.
func LoadMLP(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	var mf ModelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing model file: %w", err)
	}
	return NewMLP(mf)
}

// NewMLP builds a network from a decoded model export, validating that layer
// shapes chain from the input dimension to the class count.
func NewMLP(mf ModelFile) (*MLP, error) {
	if mf.InputDim <= 0 {
		return nil, fmt.Errorf("model input_dim must be positive, got %d", mf.InputDim)
	}
	if len(mf.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}

	m := &MLP{inputName: mf.InputName, inputDim: mf.InputDim, classes: mf.Classes}
	in := mf.InputDim
	for li, lf := range mf.Layers {
		if len(lf.Weights) != in {
			return nil, fmt.Errorf("layer %d: weights have %d rows, want %d", li, len(lf.Weights), in)
		}
		out := len(lf.Bias)
		if out == 0 {
			return nil, fmt.Errorf("layer %d: empty bias", li)
		}
		switch lf.Activation {
		case ActivationReLU, ActivationSoftmax, ActivationLinear:
		case "":
			lf.Activation = ActivationLinear
		default:
			return nil, fmt.Errorf("layer %d: unsupported activation %q", li, lf.Activation)
		}

		w := mat.NewDense(out, in, nil)
		for i, row := range lf.Weights {
			if len(row) != out {
				return nil, fmt.Errorf("layer %d: weight row %d has %d columns, want %d", li, i, len(row), out)
			}
			for j, v := range row {
				w.Set(j, i, v)
			}
		}
		m.layers = append(m.layers, denseLayer{
			w:          w,
			b:          mat.NewVecDense(out, append([]float64(nil), lf.Bias...)),
			activation: lf.Activation,
		})
		in = out
	}

	if len(mf.Classes) > 0 && len(mf.Classes) != in {
		return nil, fmt.Errorf("model declares %d classes but output layer has %d units", len(mf.Classes), in)
	}
	return m, nil
}

// InputDim returns the declared input size.
func (m *MLP) InputDim() int { return m.inputDim }

// InputName returns the name of the model's input tensor.
func (m *MLP) InputName() string { return m.inputName }

// Classes returns the class names in output order, if the export declared them.
func (m *MLP) Classes() []string { return m.classes }

// Probabilities runs the forward pass and returns the output layer.
func (m *MLP) Probabilities(features []float64) ([]float64, error) {
	if err := CheckDim(features, m.inputDim); err != nil {
		return nil, err
	}
	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	for _, l := range m.layers {
		r, _ := l.w.Dims()
		y := mat.NewVecDense(r, nil)
		y.MulVec(l.w, x)
		y.AddVec(y, l.b)
		activate(y, l.activation)
		x = y
	}
	return x.RawVector().Data, nil
}

// Classify returns the index of the highest-scoring output.
func (m *MLP) Classify(_ context.Context, features []float64) (int, error) {
	probs, err := m.Probabilities(features)
	if err != nil {
		return 0, err
	}
	return argmax(probs), nil
}

func activate(v *mat.VecDense, activation string) {
	n := v.Len()
	switch activation {
	case ActivationReLU:
		for i := 0; i < n; i++ {
			if v.AtVec(i) < 0 {
				v.SetVec(i, 0)
			}
		}
	case ActivationSoftmax:
		maxv := math.Inf(-1)
		for i := 0; i < n; i++ {
			maxv = math.Max(maxv, v.AtVec(i))
		}
		var sum float64
		for i := 0; i < n; i++ {
			e := math.Exp(v.AtVec(i) - maxv)
			v.SetVec(i, e)
			sum += e
		}
		v.ScaleVec(1/sum, v)
	}
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
