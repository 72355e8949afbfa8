package linear

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/mlmodel"
)

func open(t *testing.T, conf mlmodel.Config) (mlmodel.Service, error) {
	t.Helper()
	conf.Backend = BackendName
	return mlmodel.Open(context.Background(), conf, logging.NewTestLogger(t))
}

func classify(t *testing.T, svc mlmodel.Service, img image.Image) (string, float64) {
	t.Helper()
	in, err := ml.ImageTensor(img, ml.Float32)
	test.That(t, err, test.ShouldBeNil)
	out, err := svc.Infer(context.Background(), ml.Tensors{ml.ImageInputName: in})
	test.That(t, err, test.ShouldBeNil)
	md, err := svc.Metadata(context.Background())
	test.That(t, err, test.ShouldBeNil)
	labels := md.Outputs[0].Extra["labels"].([]string)

	probs := out["probability"].Data().([]float32)
	test.That(t, len(probs), test.ShouldEqual, len(labels))
	best, sum := 0, 0.0
	for i, p := range probs {
		sum += float64(p)
		if p > probs[best] {
			best = i
		}
	}
	test.That(t, sum, test.ShouldAlmostEqual, 1, 1e-5)
	return labels[best], float64(probs[best])
}

func TestDefaultModel(t *testing.T) {
	svc, err := open(t, mlmodel.Config{Device: mlmodel.DeviceCPU})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, svc.Close(context.Background()), test.ShouldBeNil)
	}()

	md, err := svc.Metadata(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Inputs[0].Shape, test.ShouldResemble, []int{1, 32, 32, 3})
	test.That(t, md.Inputs[0].DataType, test.ShouldEqual, ml.Float32)

	for _, tc := range []struct {
		c     color.NRGBA
		label string
	}{
		{color.NRGBA{R: 230, G: 20, B: 10, A: 255}, "red"},
		{color.NRGBA{R: 10, G: 240, B: 30, A: 255}, "green"},
		{color.NRGBA{R: 0, G: 10, B: 250, A: 255}, "blue"},
		{color.NRGBA{R: 255, G: 255, B: 255, A: 255}, "white"},
		{color.NRGBA{A: 255}, "black"},
	} {
		t.Run(tc.label, func(t *testing.T) {
			label, score := classify(t, svc, imaging.New(32, 32, tc.c))
			test.That(t, label, test.ShouldEqual, tc.label)
			test.That(t, score, test.ShouldBeGreaterThan, 0.5)
		})
	}

	in, err := ml.ImageTensor(imaging.New(16, 16, color.NRGBA{A: 255}), ml.Float32)
	test.That(t, err, test.ShouldBeNil)
	_, err = svc.Infer(context.Background(), ml.Tensors{ml.ImageInputName: in})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "input shape")

	in, err = ml.ImageTensor(imaging.New(32, 32, color.NRGBA{A: 255}), ml.UInt8)
	test.That(t, err, test.ShouldBeNil)
	_, err = svc.Infer(context.Background(), ml.Tensors{ml.ImageInputName: in})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGPUUnavailable(t *testing.T) {
	_, err := open(t, mlmodel.Config{Device: mlmodel.DeviceGPU})
	test.That(t, errors.Is(err, mlmodel.ErrAcceleratorUnavailable), test.ShouldBeTrue)
}

func TestArtifactFromFile(t *testing.T) {
	// each label looks for red in one half of a 2x2 grid.
	art := `{
		"labels": ["left-red", "right-red"],
		"input_width": 4, "input_height": 4, "grid": 2,
		"weights": [
			[4, 0, 0,  0, 0, 0,  4, 0, 0,  0, 0, 0],
			[0, 0, 0,  4, 0, 0,  0, 0, 0,  4, 0, 0]
		],
		"bias": [0, 0]
	}`
	path := filepath.Join(t.TempDir(), "model.json")
	test.That(t, os.WriteFile(path, []byte(art), 0o600), test.ShouldBeNil)

	svc, err := open(t, mlmodel.Config{Device: mlmodel.DeviceCPU, ModelPath: path})
	test.That(t, err, test.ShouldBeNil)

	img := imaging.New(4, 4, color.NRGBA{B: 255, A: 255})
	img = imaging.Paste(img, imaging.New(2, 4, color.NRGBA{R: 255, A: 255}), image.Pt(2, 0))
	label, _ := classify(t, svc, img)
	test.That(t, label, test.ShouldEqual, "right-red")

	test.That(t, svc.Close(context.Background()), test.ShouldBeNil)
	_, err = svc.Infer(context.Background(), ml.Tensors{})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = open(t, mlmodel.Config{Device: mlmodel.DeviceCPU, ModelPath: filepath.Join(t.TempDir(), "missing.json")})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseArtifact(t *testing.T) {
	for name, data := range map[string]string{
		"not json":     `{`,
		"no labels":    `{"input_width": 1, "input_height": 1}`,
		"short row":    `{"labels": ["a"], "input_width": 1, "input_height": 1, "weights": [[1, 2]], "bias": [0]}`,
		"no bias":      `{"labels": ["a"], "input_width": 1, "input_height": 1, "weights": [[1, 2, 3]]}`,
		"grid too big": `{"labels": ["a"], "input_width": 1, "input_height": 1, "grid": 2, "weights": [[1, 2, 3]], "bias": [0]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(data))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
	art, err := ParseArtifact(defaultArtifact)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, art.Labels, test.ShouldResemble, []string{"red", "green", "blue", "white", "black"})
}
