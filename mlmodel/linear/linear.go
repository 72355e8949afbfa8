// Package linear implements a small CPU ml model backend: a linear classifier over per-cell mean
// colors, with weights read from a JSON artifact.
package linear

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/mlmodel"
)

// BackendName is the registry name of this backend.
const BackendName = "linear"

//go:embed default_model.json
var defaultArtifact []byte

func init() {
	mlmodel.Register(BackendName, func(ctx context.Context, conf mlmodel.Config, logger logging.Logger) (mlmodel.Service, error) {
		if conf.Device != mlmodel.DeviceCPU {
			return nil, mlmodel.NewAcceleratorUnavailableError(BackendName, conf.Device)
		}
		if _, err := mlmodel.DecodeAttributes[struct{}](conf.Attributes); err != nil {
			return nil, err
		}
		data := defaultArtifact
		if conf.ModelPath != "" {
			var err error
			if data, err = os.ReadFile(conf.ModelPath); err != nil {
				return nil, errors.Wrap(err, "cannot read linear model artifact")
			}
		}
		art, err := ParseArtifact(data)
		if err != nil {
			return nil, err
		}
		logger.Debugw("opened linear ml model", "name", art.Name, "labels", len(art.Labels), "grid", art.Grid)
		return NewModel(art)
	})
}

// Artifact is the serialized form of a linear model. Weights has one row per label; each row holds
// a mean red, green and blue value in [0, 1] for every grid cell, row-major.
type Artifact struct {
	Name        string      `json:"name"`
	Labels      []string    `json:"labels"`
	InputWidth  int         `json:"input_width"`
	InputHeight int         `json:"input_height"`
	Grid        int         `json:"grid"`
	Weights     [][]float64 `json:"weights"`
	Bias        []float64   `json:"bias"`
}

// ParseArtifact decodes and validates an artifact.
func ParseArtifact(data []byte) (Artifact, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return Artifact{}, errors.Wrap(err, "cannot parse linear model artifact")
	}
	if art.Grid == 0 {
		art.Grid = 1
	}
	if err := art.validate(); err != nil {
		return Artifact{}, err
	}
	return art, nil
}

func (art Artifact) validate() error {
	if len(art.Labels) == 0 {
		return errors.New("linear model artifact has no labels")
	}
	if art.Grid < 0 || art.InputWidth < art.Grid || art.InputHeight < art.Grid {
		return errors.Errorf("linear model input %dx%d cannot be split into a %d grid", art.InputWidth, art.InputHeight, art.Grid)
	}
	if len(art.Weights) != len(art.Labels) {
		return errors.Errorf("linear model has %d weight rows for %d labels", len(art.Weights), len(art.Labels))
	}
	features := art.features()
	for i, row := range art.Weights {
		if len(row) != features {
			return errors.Errorf("linear model weight row %d has %d values, expected %d", i, len(row), features)
		}
	}
	if len(art.Bias) != len(art.Labels) {
		return errors.Errorf("linear model has %d biases for %d labels", len(art.Bias), len(art.Labels))
	}
	return nil
}

func (art Artifact) features() int {
	return 3 * art.Grid * art.Grid
}

// Model is an opened linear model.
type Model struct {
	art     Artifact
	weights *mat.Dense
	bias    *mat.VecDense

	mu     sync.Mutex
	closed bool
}

// NewModel builds a model from a validated artifact.
func NewModel(art Artifact) (*Model, error) {
	if err := art.validate(); err != nil {
		return nil, err
	}
	features := art.features()
	backing := make([]float64, 0, len(art.Labels)*features)
	for _, row := range art.Weights {
		backing = append(backing, row...)
	}
	return &Model{
		art:     art,
		weights: mat.NewDense(len(art.Labels), features, backing),
		bias:    mat.NewVecDense(len(art.Bias), append([]float64(nil), art.Bias...)),
	}, nil
}

// Infer expects a float32 [1, height, width, 3] image tensor with values in [0, 1] and returns a
// softmaxed probability tensor.
func (m *Model) Infer(ctx context.Context, tensors ml.Tensors) (ml.Tensors, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errors.New("linear model is closed")
	}
	in, ok := tensors[ml.ImageInputName]
	if !ok {
		return nil, errors.Errorf("missing %q input tensor", ml.ImageInputName)
	}
	shape := in.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != m.art.InputHeight || shape[2] != m.art.InputWidth || shape[3] != 3 {
		return nil, errors.Errorf("expected input shape [1 %d %d 3], got %v", m.art.InputHeight, m.art.InputWidth, shape)
	}
	pixels, ok := in.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("expected float32 input, got %T", in.Data())
	}

	x := mat.NewVecDense(m.art.features(), m.cellMeans(pixels))
	var logits mat.VecDense
	logits.MulVec(m.weights, x)
	logits.AddVec(&logits, m.bias)

	probs := softmax(logits.RawVector().Data)
	return ml.Tensors{"probability": tensor.New(tensor.WithShape(1, len(probs)), tensor.WithBacking(probs))}, nil
}

// cellMeans averages each color channel over every grid cell.
func (m *Model) cellMeans(pixels []float32) []float64 {
	w, h, g := m.art.InputWidth, m.art.InputHeight, m.art.Grid
	sums := make([]float64, m.art.features())
	counts := make([]float64, g*g)
	for y := 0; y < h; y++ {
		cy := y * g / h
		for x := 0; x < w; x++ {
			cell := cy*g + x*g/w
			i := (y*w + x) * 3
			sums[cell*3] += float64(pixels[i])
			sums[cell*3+1] += float64(pixels[i+1])
			sums[cell*3+2] += float64(pixels[i+2])
			counts[cell]++
		}
	}
	for i := range sums {
		sums[i] /= counts[i/3]
	}
	return sums
}

func softmax(logits []float64) []float32 {
	maxVal := floats.Max(logits)
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(l - maxVal)
	}
	floats.Scale(1/floats.Sum(exps), exps)
	out := make([]float32, len(exps))
	for i, e := range exps {
		out[i] = float32(e)
	}
	return out
}

// Metadata describes a float32 image input and a probability output carrying the labels.
func (m *Model) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	return mlmodel.MLMetadata{
		ModelName: m.art.Name,
		ModelType: "image_classifier",
		Inputs: []mlmodel.TensorInfo{{
			Name:     ml.ImageInputName,
			DataType: ml.Float32,
			Shape:    []int{1, m.art.InputHeight, m.art.InputWidth, 3},
		}},
		Outputs: []mlmodel.TensorInfo{{
			Name:     "probability",
			DataType: ml.Float32,
			Shape:    []int{1, len(m.art.Labels)},
			Extra:    map[string]interface{}{"labels": m.art.Labels},
		}},
	}, nil
}

// Close releases the model; later inferences fail.
func (m *Model) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
