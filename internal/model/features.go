package model

import (
	"math"
	"strings"

	"github.com/Skufu/proactivecare/internal/textvec"
	"github.com/Skufu/proactivecare/internal/vitals"
)

const (
	textPrefix = "text__"
	numPrefix  = "num__"
)

// Input is one request as the model sees it.
type Input struct {
	SymptomsText string
	Vitals       vitals.Snapshot
}

// ModelText appends the extracted tags to the free text the way the training
// rows were phrased.
func ModelText(text string, tags []string) string {
	if len(tags) == 0 {
		return text
	}
	return text + ". symptoms: " + strings.Join(tags, ", ")
}

// Scaler standardises the numeric columns.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(rows [][]float64) Scaler {
	width := len(vitals.Names)
	s := Scaler{Mean: make([]float64, width), Std: make([]float64, width)}
	if len(rows) == 0 {
		for j := range s.Std {
			s.Std[j] = 1
		}
		return s
	}
	n := float64(len(rows))
	for _, row := range rows {
		for j, v := range row {
			s.Mean[j] += v / n
		}
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d / n
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j])
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return s
}

// apply standardises raw. A zero reading is an unmeasured vital and maps to
// the mean, so it carries no signal.
func (s Scaler) apply(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for j, v := range raw {
		if v == 0 {
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// Featurizer lays out one row as TF-IDF text columns followed by the
// standardised vitals.
type Featurizer struct {
	Text    *textvec.Vectorizer
	Numeric Scaler
}

func (f *Featurizer) Dim() int {
	return f.Text.Size() + len(vitals.Names)
}

func (f *Featurizer) row(text string, numeric []float64) textvec.Vector {
	vec := f.Text.Transform(text)
	offset := f.Text.Size()
	for j, v := range f.Numeric.apply(numeric) {
		vec.Index = append(vec.Index, offset+j)
		vec.Value = append(vec.Value, v)
	}
	return vec
}

// Row builds the feature row for a request. Missing vitals become 0 here and
// only here.
func (f *Featurizer) Row(in Input, tags []string) textvec.Vector {
	return f.row(ModelText(in.SymptomsText, tags), in.Vitals.ZeroFilled())
}

// FeatureNames returns prefixed column names, text columns first.
func (f *Featurizer) FeatureNames() []string {
	names := make([]string, 0, f.Dim())
	for _, term := range f.Text.FeatureNames() {
		names = append(names, textPrefix+term)
	}
	for _, name := range vitals.Names {
		names = append(names, numPrefix+name)
	}
	return names
}

// DisplayName strips the column prefix and replaces underscores with spaces.
func DisplayName(feature string) string {
	feature = strings.Replace(feature, textPrefix, "", 1)
	feature = strings.Replace(feature, numPrefix, "", 1)
	return strings.ReplaceAll(feature, "_", " ")
}
