// Package mlmodel defines the inference backends a classifier runs on: a backend takes a map of
// input tensors and returns a map of output tensors. Backends register themselves by name and
// are opened with a device preference.
package mlmodel

import (
	"context"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/livevision/ml"
)

// Service is an opened model.
type Service interface {
	Infer(ctx context.Context, tensors ml.Tensors) (ml.Tensors, error)
	Metadata(ctx context.Context) (MLMetadata, error)
	Close(ctx context.Context) error
}

// MLMetadata describes the inputs and outputs of a model.
type MLMetadata struct {
	ModelName        string
	ModelType        string // e.g. image_classifier
	ModelDescription string
	Inputs           []TensorInfo
	Outputs          []TensorInfo
}

// TensorInfo describes one input or output tensor.
type TensorInfo struct {
	Name        string // e.g. probability
	Description string
	DataType    string // e.g. uint8, float32
	Shape       []int
	Extra       map[string]interface{}
}

// Device is a compute device preference.
type Device string

const (
	// DeviceCPU is the default compute path every backend supports.
	DeviceCPU = Device("cpu")
	// DeviceGPU asks the backend for GPU acceleration.
	DeviceGPU = Device("gpu")
)

// DeviceFromString parses a device name; the empty string selects the CPU.
func DeviceFromString(s string) (Device, error) {
	switch strings.ToLower(s) {
	case "", "cpu":
		return DeviceCPU, nil
	case "gpu":
		return DeviceGPU, nil
	}
	return DeviceCPU, errors.Errorf("unknown device %q, try cpu or gpu", s)
}

// ErrAcceleratorUnavailable is returned by backends that cannot honor the requested device.
// Callers are expected to retry on DeviceCPU.
var ErrAcceleratorUnavailable = errors.New("accelerator unavailable")

// NewAcceleratorUnavailableError returns an error wrapping ErrAcceleratorUnavailable.
func NewAcceleratorUnavailableError(backend string, device Device) error {
	return errors.Wrapf(ErrAcceleratorUnavailable, "backend %q cannot run on %s", backend, device)
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend    string
	Device     Device
	ModelPath  string
	LabelPath  string
	NumThreads int
	// Attributes are backend specific and decoded with DecodeAttributes.
	Attributes map[string]interface{}
}

// DecodeAttributes decodes backend specific attributes into a fresh T, rejecting unknown keys.
// Keys follow the `json` struct tags of T.
func DecodeAttributes[T any](attrs map[string]interface{}) (*T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode model attributes")
	}
	return &out, nil
}
