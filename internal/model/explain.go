package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/Skufu/proactivecare/internal/textvec"
)

// Contribution is the attribution of one feature column toward a class.
type Contribution struct {
	Feature int
	Value   float64
}

// Attributor scores how much each feature of row pushes the model toward
// class.
type Attributor interface {
	Attribute(row textvec.Vector, class int) ([]Contribution, error)
}

// ProbabilityModel is anything that yields class probabilities for a row.
type ProbabilityModel interface {
	Probabilities(row textvec.Vector) []float64
}

// OcclusionAttributor measures the drop in the class probability when each
// active feature is removed from the row. Removing a standardised numeric
// feature sets it to the training mean.
type OcclusionAttributor struct {
	Model ProbabilityModel
}

func (o OcclusionAttributor) Attribute(row textvec.Vector, class int) ([]Contribution, error) {
	base := o.Model.Probabilities(row)
	if class < 0 || class >= len(base) {
		return nil, fmt.Errorf("%w: class index %d out of range", ErrExplanationUnavailable, class)
	}
	if row.Len() == 0 {
		return nil, fmt.Errorf("%w: empty feature row", ErrExplanationUnavailable)
	}

	out := make([]Contribution, 0, row.Len())
	masked := textvec.Vector{
		Index: append([]int(nil), row.Index...),
		Value: append([]float64(nil), row.Value...),
	}
	for i, idx := range row.Index {
		saved := masked.Value[i]
		masked.Value[i] = 0
		p := o.Model.Probabilities(masked)[class]
		masked.Value[i] = saved

		delta := base[class] - p
		if math.IsNaN(delta) {
			return nil, fmt.Errorf("%w: non-finite attribution", ErrExplanationUnavailable)
		}
		out = append(out, Contribution{Feature: idx, Value: delta})
	}
	return out, nil
}

// rankContributions orders by magnitude, largest first, keeping column order
// among equals.
func rankContributions(contribs []Contribution) []Contribution {
	out := append([]Contribution(nil), contribs...)
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	return out
}
