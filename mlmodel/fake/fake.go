// Package fake implements a scripted ml model backend. It returns configured scores regardless of
// its input, which makes classifier behavior deterministic in tests and demos.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gorgonia.org/tensor"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/mlmodel"
)

// BackendName is the registry name of this backend.
const BackendName = "fake"

func init() {
	mlmodel.Register(BackendName, func(ctx context.Context, conf mlmodel.Config, logger logging.Logger) (mlmodel.Service, error) {
		attrs, err := mlmodel.DecodeAttributes[Config](conf.Attributes)
		if err != nil {
			return nil, err
		}
		for _, d := range attrs.UnavailableDevices {
			if mlmodel.Device(d) == conf.Device {
				return nil, mlmodel.NewAcceleratorUnavailableError(BackendName, conf.Device)
			}
		}
		m, err := NewModel(*attrs)
		if err != nil {
			return nil, err
		}
		logger.Debugw("opened fake ml model", "device", conf.Device, "labels", len(attrs.Labels))
		return m, nil
	})
}

// Config are the attributes of a fake model.
type Config struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	// Error makes every inference fail with this message.
	Error              string   `json:"error"`
	UnavailableDevices []string `json:"unavailable_devices"`
	InputWidth         int      `json:"input_width"`
	InputHeight        int      `json:"input_height"`
	InputType          string   `json:"input_type"`
}

// Model is a scripted mlmodel.Service.
type Model struct {
	mu      sync.Mutex
	conf    Config
	scores  []float64
	err     error
	hold    chan struct{}
	entered chan struct{}
	closed  bool

	infers atomic.Int64
	closes atomic.Int64
}

// NewModel returns a model that reports conf.Scores for conf.Labels.
func NewModel(conf Config) (*Model, error) {
	if len(conf.Labels) != len(conf.Scores) {
		return nil, errors.Errorf("fake model has %d labels but %d scores", len(conf.Labels), len(conf.Scores))
	}
	if conf.InputWidth <= 0 {
		conf.InputWidth = 224
	}
	if conf.InputHeight <= 0 {
		conf.InputHeight = 224
	}
	if conf.InputType == "" {
		conf.InputType = ml.UInt8
	}
	m := &Model{conf: conf, scores: append([]float64(nil), conf.Scores...)}
	if conf.Error != "" {
		m.err = errors.New(conf.Error)
	}
	return m, nil
}

// SetScores replaces the scores returned by later inferences.
func (m *Model) SetScores(scores []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append([]float64(nil), scores...)
}

// SetError makes later inferences fail with err; nil restores success.
func (m *Model) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes the next inferences block until release is called. entered is closed once an
// inference is blocked.
func (m *Model) Hold() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold := make(chan struct{})
	m.hold = hold
	m.entered = make(chan struct{})
	var once sync.Once
	return m.entered, func() {
		once.Do(func() {
			m.mu.Lock()
			m.hold = nil
			m.mu.Unlock()
			close(hold)
		})
	}
}

// Infer returns the scripted probabilities. It ignores its input apart from requiring one.
func (m *Model) Infer(ctx context.Context, tensors ml.Tensors) (ml.Tensors, error) {
	m.infers.Inc()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("fake model is closed")
	}
	hold, entered := m.hold, m.entered
	if hold != nil && entered != nil {
		select {
		case <-entered:
		default:
			close(entered)
		}
	}
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := tensors[ml.ImageInputName]; !ok {
		return nil, errors.Errorf("missing %q input tensor", ml.ImageInputName)
	}
	probs := make([]float32, len(m.scores))
	for i, s := range m.scores {
		probs[i] = float32(s)
	}
	return ml.Tensors{"probability": tensor.New(tensor.WithShape(1, len(probs)), tensor.WithBacking(probs))}, nil
}

// Metadata describes a single image input and a single probability output.
func (m *Model) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	return mlmodel.MLMetadata{
		ModelName: "fake",
		ModelType: "image_classifier",
		Inputs: []mlmodel.TensorInfo{{
			Name:     ml.ImageInputName,
			DataType: m.conf.InputType,
			Shape:    []int{1, m.conf.InputHeight, m.conf.InputWidth, 3},
		}},
		Outputs: []mlmodel.TensorInfo{{
			Name:     "probability",
			DataType: ml.Float32,
			Shape:    []int{1, len(m.conf.Labels)},
			Extra:    map[string]interface{}{"labels": m.conf.Labels},
		}},
	}, nil
}

// Close marks the model closed; later inferences fail.
func (m *Model) Close(ctx context.Context) error {
	m.closes.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Infers returns how many inferences were attempted.
func (m *Model) Infers() int64 {
	return m.infers.Load()
}

// Closes returns how many times Close was called.
func (m *Model) Closes() int64 {
	return m.closes.Load()
}
