// Package ml provides the tensor plumbing between images, inference backends and classifications.
package ml

import (
	"image"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"

	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/vision/classification"
)

const (
	// UInt8 is one of the possible input/output types for tensors.
	UInt8 = "uint8"
	// Float32 is one of the possible input/output types for tensors.
	Float32 = "float32"
	// ImageInputName is the input tensor name the classifier feeds.
	ImageInputName = "image"
	// classifierProbabilityName is the output tensor name that holds per-label scores.
	classifierProbabilityName = "probability"
)

// Tensors are a map of named tensors, used for backend inputs and outputs.
type Tensors map[string]*tensor.Dense

// ImageTensor packs img into a [1, height, width, 3] tensor of the given data type.
func ImageTensor(img image.Image, dataType string) (*tensor.Dense, error) {
	bounds := img.Bounds()
	shape := tensor.WithShape(1, bounds.Dy(), bounds.Dx(), 3)
	switch dataType {
	case UInt8:
		return tensor.New(shape, tensor.WithBacking(rimage.ImageToUInt8Buffer(img))), nil
	case Float32:
		return tensor.New(shape, tensor.WithBacking(rimage.ImageToFloatBuffer(img))), nil
	default:
		return nil, errors.Errorf("invalid input type %q, try uint8 or float32", dataType)
	}
}

// FormatClassificationOutputs turns the probability tensor of outMap into one classification
// per label, in tensor order. The name of the probability tensor is cached in outNameMap the first
// time it is resolved. Logits are squashed into confidences.
func FormatClassificationOutputs(
	outNameMap *sync.Map, outMap Tensors, labels []string,
) (classification.Classifications, error) {
	// check if output tensor name that classifier is looking for is already present
	// in the nameMap. If not, find the probability name, and cache it in the nameMap
	pName, ok := outNameMap.Load(classifierProbabilityName)
	if !ok {
		_, ok := outMap[classifierProbabilityName]
		if !ok {
			if len(outMap) == 1 {
				for name := range outMap { //  only 1 element in map, assume its probabilities
					outNameMap.Store(classifierProbabilityName, name)
					pName = name
				}
			}
		} else {
			outNameMap.Store(classifierProbabilityName, classifierProbabilityName)
			pName = classifierProbabilityName
		}
	}
	probabilityName, ok := pName.(string)
	if !ok {
		return nil, errors.Errorf("no tensor named 'probability' among output tensors [%s]", strings.Join(tensorNames(outMap), ", "))
	}
	data, ok := outMap[probabilityName]
	if !ok || data == nil {
		return nil, errors.Errorf("no tensor named %q among output tensors [%s]", probabilityName, strings.Join(tensorNames(outMap), ", "))
	}
	probs, err := convertToFloat64Slice(data.Data())
	if err != nil {
		return nil, err
	}
	if len(probs) == 0 {
		return nil, errors.New("probability tensor is empty")
	}
	confs := checkClassificationScores(probs)
	if labels != nil && len(labels) != len(confs) {
		return nil, errors.Errorf("length of output (%d) expected to be length of label list (%d)", len(confs), len(labels))
	}
	classifications := make(classification.Classifications, 0, len(confs))
	for i := 0; i < len(confs); i++ {
		if labels == nil {
			classifications = append(classifications, classification.NewClassification(confs[i], strconv.Itoa(i)))
		} else {
			classifications = append(classifications, classification.NewClassification(confs[i], labels[i]))
		}
	}
	return classifications, nil
}

// number interface for converting between numbers.
type number interface {
	constraints.Integer | constraints.Float
}

// convertNumberSlice converts any number slice into another number slice.
func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

func convertToFloat64Slice(slice interface{}) ([]float64, error) {
	switch v := slice.(type) {
	case []float64:
		return v, nil
	case float64:
		return []float64{v}, nil
	case []float32:
		return convertNumberSlice[float32, float64](v), nil
	case float32:
		return []float64{float64(v)}, nil
	case []int:
		return convertNumberSlice[int, float64](v), nil
	case []int8:
		return convertNumberSlice[int8, float64](v), nil
	case []int16:
		return convertNumberSlice[int16, float64](v), nil
	case []int32:
		return convertNumberSlice[int32, float64](v), nil
	case []int64:
		return convertNumberSlice[int64, float64](v), nil
	case []uint8:
		// quantized outputs are scaled to [0, 1].
		out := convertNumberSlice[uint8, float64](v)
		for i := range out {
			out[i] /= math.MaxUint8
		}
		return out, nil
	case []uint16:
		return convertNumberSlice[uint16, float64](v), nil
	case []uint32:
		return convertNumberSlice[uint32, float64](v), nil
	case []uint64:
		return convertNumberSlice[uint64, float64](v), nil
	default:
		return nil, errors.Errorf("dont know how to convert slice of %T into a []float64", slice)
	}
}

// softmax takes the input slice and applies the softmax function.
func softmax(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	// shift by the max for numerical stability; the result is unchanged.
	maxVal := in[0]
	for _, x := range in {
		maxVal = math.Max(maxVal, x)
	}
	bigSum := 0.0
	for _, x := range in {
		bigSum += math.Exp(x - maxVal)
	}
	for _, x := range in {
		out = append(out, math.Exp(x-maxVal)/bigSum)
	}
	return out
}

// checkClassificationScores ensures that the input scores (output of classifier)
// will represent confidence values (from 0-1).
func checkClassificationScores(in []float64) []float64 {
	if len(in) > 1 {
		for _, p := range in {
			if p < 0 || p > 1 { // is logit, needs softmax
				confs := softmax(in)
				return confs
			}
		}
		return in // no need to softmax
	}
	// otherwise, this is a binary classifier
	if in[0] < 0 || in[0] > 1 { // needs sigmoid
		out, err := stats.Sigmoid(in)
		if err != nil {
			return in
		}
		return out
	}
	return in // no need to sigmoid
}

// tensorNames returns all the names of the tensors, sorted.
func tensorNames(t Tensors) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
