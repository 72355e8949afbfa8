// Package engine turns an ml model backend into an image classifier: it owns the loaded model,
// adapts bitmaps to the model input and converts model outputs into classifications.
package engine

import (
	"bufio"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/mlmodel"
	"go.viam.com/livevision/vision/classification"
)

// Engine is a loaded image classifier. It is not safe for concurrent Infer calls.
type Engine struct {
	logger logging.Logger
	svc    mlmodel.Service
	device mlmodel.Device

	inWidth, inHeight uint
	inType            string
	labels            []string
	outNameMap        *sync.Map

	mu       sync.RWMutex
	released bool
}

// Load opens the configured backend, preferring conf.Device. A backend that reports its
// accelerator as unavailable is reopened on the CPU.
func Load(ctx context.Context, conf mlmodel.Config, logger logging.Logger) (*Engine, error) {
	ctx, span := trace.StartSpan(ctx, "engine::Load")
	defer span.End()

	if conf.Device == "" {
		conf.Device = mlmodel.DeviceCPU
	}
	svc, err := mlmodel.Open(ctx, conf, logger)
	if err != nil && errors.Is(err, mlmodel.ErrAcceleratorUnavailable) && conf.Device != mlmodel.DeviceCPU {
		logger.Warnw("accelerator unavailable, falling back to cpu", "backend", conf.Backend, "device", conf.Device, "error", err)
		conf.Device = mlmodel.DeviceCPU
		svc, err = mlmodel.Open(ctx, conf, logger)
	}
	if err != nil {
		return nil, newModelLoadError(err, "backend %q", conf.Backend)
	}
	e, err := NewFromService(ctx, svc, conf.Device, conf.LabelPath, logger)
	if err != nil {
		if closeErr := svc.Close(ctx); closeErr != nil {
			logger.Warnw("cannot close model after failed load", "error", closeErr)
		}
		return nil, err
	}
	logger.Infow("model loaded", "backend", conf.Backend, "device", e.device, "labels", len(e.labels))
	return e, nil
}

// NewFromService wraps an already opened backend running on device. Input shape, input type and
// labels are read from the model metadata; labelPath is used when the metadata has no labels.
func NewFromService(
	ctx context.Context,
	svc mlmodel.Service,
	device mlmodel.Device,
	labelPath string,
	logger logging.Logger,
) (*Engine, error) {
	md, err := svc.Metadata(ctx)
	if err != nil {
		return nil, newModelLoadError(err, "cannot read model metadata")
	}
	if len(md.Inputs) < 1 {
		return nil, errors.Wrap(ErrModelLoad, "model has no inputs")
	}
	shape := md.Inputs[0].Shape
	if len(shape) != 4 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, errors.Wrapf(ErrModelLoad, "expected a [1 height width 3] image input, got %v", shape)
	}
	labels, err := getLabels(md, labelPath, logger)
	if err != nil {
		return nil, newModelLoadError(err, "")
	}
	return &Engine{
		logger:     logger,
		svc:        svc,
		device:     device,
		inHeight:   uint(shape[1]),
		inWidth:    uint(shape[2]),
		inType:     md.Inputs[0].DataType,
		labels:     labels,
		outNameMap: &sync.Map{},
	}, nil
}

func getLabels(md mlmodel.MLMetadata, labelPath string, logger logging.Logger) ([]string, error) {
	if len(md.Outputs) > 0 {
		switch v := md.Outputs[0].Extra["labels"].(type) {
		case []string:
			return v, nil
		case []interface{}:
			return lo.Map(v, func(l interface{}, _ int) string {
				s, _ := l.(string)
				return s
			}), nil
		case string:
			labelPath = v
		}
	}
	if labelPath == "" {
		return nil, nil
	}
	return getLabelsFromFile(labelPath, logger)
}

func getLabelsFromFile(labelPath string, logger logging.Logger) ([]string, error) {
	f, err := os.Open(filepath.Clean(labelPath))
	if err != nil {
		return nil, errors.Wrap(err, "cannot open label file")
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warnw("could not close label file", "error", err)
		}
	}()
	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot read label file")
	}
	// a single line holds comma or space separated labels.
	if len(labels) == 1 {
		labels = strings.Split(labels[0], ",")
	}
	if len(labels) == 1 {
		labels = strings.Split(labels[0], " ")
	}
	labels = lo.Map(labels, func(l string, _ int) string { return strings.TrimSpace(l) })
	return lo.Compact(labels), nil
}

// Infer classifies img and returns one classification per label in model order, unsorted and
// unfiltered.
func (e *Engine) Infer(ctx context.Context, img image.Image) (classification.Classifications, error) {
	ctx, span := trace.StartSpan(ctx, "engine::Infer")
	defer span.End()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return nil, ErrUsage
	}

	resized := img
	if b := img.Bounds(); uint(b.Dx()) != e.inWidth || uint(b.Dy()) != e.inHeight {
		resized = resize.Resize(e.inWidth, e.inHeight, img, resize.Bilinear)
	}
	in, err := ml.ImageTensor(resized, e.inType)
	if err != nil {
		return nil, newInferenceError(err)
	}
	outMap, err := e.svc.Infer(ctx, ml.Tensors{ml.ImageInputName: in})
	if err != nil {
		return nil, newInferenceError(err)
	}
	classifications, err := ml.FormatClassificationOutputs(e.outNameMap, outMap, e.labels)
	if err != nil {
		return nil, newInferenceError(err)
	}
	return classifications, nil
}

// Release closes the backend. Only the first call does anything; later calls return ErrUsage.
func (e *Engine) Release(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrUsage
	}
	e.released = true
	e.logger.Debugw("releasing model", "device", e.device)
	return e.svc.Close(ctx)
}

// Released reports whether Release was called.
func (e *Engine) Released() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.released
}

// Device returns the device the model runs on.
func (e *Engine) Device() mlmodel.Device {
	return e.device
}

// Labels returns the model labels, nil when the model has none.
func (e *Engine) Labels() []string {
	return e.labels
}
