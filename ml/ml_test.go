package ml

import (
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"go.viam.com/test"
	"gorgonia.org/tensor"
)

func TestImageTensor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(2, 1, color.NRGBA{R: 255, G: 51, B: 0, A: 255})

	u8, err := ImageTensor(img, UInt8)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []int(u8.Shape()), test.ShouldResemble, []int{1, 2, 3, 3})
	data := u8.Data().([]uint8)
	test.That(t, data[len(data)-3:], test.ShouldResemble, []uint8{255, 51, 0})

	f32, err := ImageTensor(img, Float32)
	test.That(t, err, test.ShouldBeNil)
	floats := f32.Data().([]float32)
	test.That(t, floats[len(floats)-2], test.ShouldAlmostEqual, float32(0.2))

	_, err = ImageTensor(img, "int4")
	test.That(t, err, test.ShouldNotBeNil)
}

func probabilities(backing interface{}) *tensor.Dense {
	return tensor.New(tensor.WithBacking(backing))
}

func TestFormatClassificationOutputs(t *testing.T) {
	t.Run("named probability tensor", func(t *testing.T) {
		var names sync.Map
		out := Tensors{
			"probability": probabilities([]float32{0.9, 0.05, 0.05}),
			"other":       probabilities([]float32{1, 2}),
		}
		cls, err := FormatClassificationOutputs(&names, out, []string{"cat", "dog", "owl"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cls.Labels(), test.ShouldResemble, []string{"cat", "dog", "owl"})
		test.That(t, cls[0].Score(), test.ShouldAlmostEqual, 0.9, 1e-6)
		cached, ok := names.Load("probability")
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, cached, test.ShouldEqual, "probability")
	})

	t.Run("single unnamed tensor", func(t *testing.T) {
		var names sync.Map
		out := Tensors{"Identity:0": probabilities([]float64{0.25, 0.75})}
		cls, err := FormatClassificationOutputs(&names, out, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cls.Labels(), test.ShouldResemble, []string{"0", "1"})
		cached, _ := names.Load("probability")
		test.That(t, cached, test.ShouldEqual, "Identity:0")
	})

	t.Run("logits are softmaxed", func(t *testing.T) {
		var names sync.Map
		out := Tensors{"probability": probabilities([]float32{2, 1, -1})}
		cls, err := FormatClassificationOutputs(&names, out, []string{"a", "b", "c"})
		test.That(t, err, test.ShouldBeNil)
		sum := 0.0
		for _, c := range cls {
			sum += c.Score()
		}
		test.That(t, sum, test.ShouldAlmostEqual, 1.0, 1e-9)
		test.That(t, cls[0].Score(), test.ShouldBeGreaterThan, cls[1].Score())
	})

	t.Run("quantized outputs", func(t *testing.T) {
		var names sync.Map
		out := Tensors{"probability": probabilities([]uint8{255, 0})}
		cls, err := FormatClassificationOutputs(&names, out, []string{"a", "b"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cls[0].Score(), test.ShouldEqual, 1.0)
		test.That(t, cls[1].Score(), test.ShouldEqual, 0.0)
	})

	t.Run("errors", func(t *testing.T) {
		var names sync.Map
		_, err := FormatClassificationOutputs(&names, Tensors{"a": probabilities([]float32{1}), "b": probabilities([]float32{1})}, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "a, b")

		_, err = FormatClassificationOutputs(&names, Tensors{"probability": probabilities([]float32{0.5, 0.5})}, []string{"one"})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "label list")
	})
}

func TestCheckClassificationScores(t *testing.T) {
	test.That(t, checkClassificationScores([]float64{0.2, 0.8}), test.ShouldResemble, []float64{0.2, 0.8})

	binary := checkClassificationScores([]float64{3})
	test.That(t, binary[0], test.ShouldAlmostEqual, 1/(1+math.Exp(-3)), 1e-9)
	test.That(t, checkClassificationScores([]float64{0.4}), test.ShouldResemble, []float64{0.4})

	big := softmax([]float64{1000, 1000})
	test.That(t, big[0], test.ShouldAlmostEqual, 0.5, 1e-9)
}
