package classification

import (
	"strings"

	"github.com/samber/lo"
)

// Postprocessor defines a function that filters/modifies on an incoming array of Classifications.
type Postprocessor func(Classifications) Classifications

// NewScoreFilter returns a function that keeps classifications whose score is strictly above conf.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in Classifications) Classifications {
		return lo.Filter(in, func(c Classification, _ int) bool {
			return c.Score() > conf
		})
	}
}

// NewLabelFilter returns a function that filters out classifications without one of the chosen labels.
// Does not filter when input is empty.
func NewLabelFilter(labels []string) Postprocessor {
	allowed := lo.SliceToMap(labels, func(l string) (string, struct{}) {
		return strings.ToLower(l), struct{}{}
	})
	return func(in Classifications) Classifications {
		if len(allowed) < 1 {
			return in
		}
		return lo.Filter(in, func(c Classification, _ int) bool {
			_, ok := allowed[strings.ToLower(c.Label())]
			return ok
		})
	}
}

// NewLabelConfidenceFilter returns a function that keeps only the mapped labels, each of which
// must score above its own threshold. Does not filter when the map is empty.
func NewLabelConfidenceFilter(labels map[string]float64) Postprocessor {
	// ensure all the label names are lower case
	theLabels := lo.MapKeys(labels, func(_ float64, name string) string {
		return strings.ToLower(name)
	})
	return func(in Classifications) Classifications {
		if len(theLabels) < 1 {
			return in
		}
		return lo.Filter(in, func(c Classification, _ int) bool {
			conf, ok := theLabels[strings.ToLower(c.Label())]
			return ok && c.Score() > conf
		})
	}
}

// Chain applies the postprocessors in order.
func Chain(pps ...Postprocessor) Postprocessor {
	return func(in Classifications) Classifications {
		for _, pp := range pps {
			in = pp(in)
		}
		return in
	}
}
