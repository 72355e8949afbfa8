// Package classification implements the labeled, scored results of an image classifier and the
// ranking applied to them before display.
package classification

import (
	"fmt"
	"sort"
)

// Classification is a label with the model's confidence in it, from 0 to 1.
type Classification interface {
	Score() float64
	Label() string
}

// Classifications is a list of classifications, in whatever order the producer chose.
type Classifications []Classification

type classification2D struct {
	score float64
	label string
}

// NewClassification creates a simple 2D classification.
func NewClassification(score float64, label string) Classification {
	return &classification2D{score, label}
}

// Score returns a confidence score of the classification between 0.0 and 1.0.
func (c *classification2D) Score() float64 {
	return c.score
}

// Label returns the class label of the object in the image.
func (c *classification2D) Label() string {
	return c.label
}

func (c *classification2D) String() string {
	return fmt.Sprintf("%s %s", c.label, Percent(c))
}

// TopN returns a copy of the n highest scoring classifications, highest first. Equal scores keep
// their original relative order. n larger than the list returns all of it; n <= 0 returns an
// empty list.
func (cc Classifications) TopN(n int) Classifications {
	if n <= 0 {
		return Classifications{}
	}
	sorted := make(Classifications, len(cc))
	copy(sorted, cc)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Labels returns the labels in list order.
func (cc Classifications) Labels() []string {
	out := make([]string, 0, len(cc))
	for _, c := range cc {
		out = append(out, c.Label())
	}
	return out
}

// Select ranks raw classifier output for display: highest score first with stable ties, at most
// topN entries, and only entries whose score exceeds minScore.
func Select(raw Classifications, topN int, minScore float64) Classifications {
	return NewScoreFilter(minScore)(raw.TopN(topN))
}
