package mlmodel

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
)

type stubService struct {
	device Device
}

func (s *stubService) Infer(context.Context, ml.Tensors) (ml.Tensors, error) { return ml.Tensors{}, nil }
func (s *stubService) Metadata(context.Context) (MLMetadata, error)        { return MLMetadata{}, nil }
func (s *stubService) Close(context.Context) error                         { return nil }

func TestDeviceFromString(t *testing.T) {
	for in, expected := range map[string]Device{"": DeviceCPU, "CPU": DeviceCPU, "gpu": DeviceGPU} {
		d, err := DeviceFromString(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, d, test.ShouldEqual, expected)
	}
	_, err := DeviceFromString("tpu")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAcceleratorUnavailableError(t *testing.T) {
	err := NewAcceleratorUnavailableError("linear", DeviceGPU)
	test.That(t, errors.Is(err, ErrAcceleratorUnavailable), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "linear")
	test.That(t, err.Error(), test.ShouldContainSubstring, "gpu")
}

func TestRegistry(t *testing.T) {
	name := "stub-" + t.Name()
	Register(name, func(_ context.Context, conf Config, _ logging.Logger) (Service, error) {
		return &stubService{device: conf.Device}, nil
	})
	test.That(t, Backends(), test.ShouldContain, name)
	test.That(t, func() { Register(name, nil) }, test.ShouldPanic)
	test.That(t, func() { Register(name+"-nil", nil) }, test.ShouldPanic)

	svc, err := Open(context.Background(), Config{Backend: name}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	// an unset device defaults to the CPU.
	test.That(t, svc.(*stubService).device, test.ShouldEqual, DeviceCPU)

	_, err = Open(context.Background(), Config{Backend: "missing"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "missing")
}

func TestDecodeAttributes(t *testing.T) {
	type attrs struct {
		Labels []string `json:"labels"`
		Width  int      `json:"input_width"`
	}
	out, err := DecodeAttributes[attrs](map[string]interface{}{
		"labels":      []interface{}{"cat", "dog"},
		"input_width": "32",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Labels, test.ShouldResemble, []string{"cat", "dog"})
	test.That(t, out.Width, test.ShouldEqual, 32)

	_, err = DecodeAttributes[attrs](map[string]interface{}{"nope": 1})
	test.That(t, err, test.ShouldNotBeNil)

	empty, err := DecodeAttributes[attrs](nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Width, test.ShouldEqual, 0)
}
