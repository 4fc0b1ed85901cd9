// Package model trains, stores and serves the condition classifier.
package model

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	maxPredictions = 3
	maxExplained   = 5
	fallbackTags   = 3

	// FallbackFeature is reported when nothing else explains a prediction.
	FallbackFeature = "reported symptom pattern"
)

// Prediction is one ranked candidate condition.
type Prediction struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
}

type EngineOption func(*Engine)

func WithAttributor(a Attributor) EngineOption {
	return func(e *Engine) { e.attributor = a }
}

func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// Engine serves predictions from loaded artifacts. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	features   *Featurizer
	classifier *Classifier
	names      []string
	attributor Attributor
	logger     *zap.Logger
}

func NewEngine(a *Artifacts, opts ...EngineOption) *Engine {
	e := &Engine{
		features:   a.Features,
		classifier: a.Classifier,
		names:      a.Features.FeatureNames(),
		attributor: OcclusionAttributor{Model: a.Classifier},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bootstrap loads the artifacts in dir, training them first when they are
// missing. Existing artifacts are never retrained, so repeated calls are
// cheap and leave the directory untouched.
func Bootstrap(ctx context.Context, dir string, train TrainFunc, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	store := Store{Dir: dir}
	if !store.Exists() {
		if train == nil {
			return nil, fmt.Errorf("%w: no artifacts in %s and no trainer", ErrArtifactUnavailable, dir)
		}
		logger.Info("model artifacts missing, training baseline model", zap.String("dir", dir))
		artifacts, meta, err := train(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: train: %v", ErrArtifactUnavailable, err)
		}
		if err := store.Save(artifacts, meta); err != nil {
			return nil, fmt.Errorf("%w: save: %v", ErrArtifactUnavailable, err)
		}
		logger.Info("baseline model trained",
			zap.Int("samples", meta.Samples),
			zap.Float64("macro_f1", meta.MacroF1),
			zap.Strings("classes", meta.Classes),
		)
	}

	artifacts, err := store.Load()
	if err != nil {
		return nil, err
	}
	return NewEngine(artifacts, append([]EngineOption{WithEngineLogger(logger)}, opts...)...), nil
}

func (e *Engine) Classes() []string {
	return append([]string(nil), e.classifier.Classes...)
}

// PredictTop3 ranks conditions by probability. Equal probabilities keep class
// order. Confidences are rounded to 4 decimals.
func (e *Engine) PredictTop3(in Input, tags []string) []Prediction {
	probs := e.classifier.Probabilities(e.features.Row(in, tags))

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	n := min(maxPredictions, len(order))
	out := make([]Prediction, 0, n)
	for _, k := range order[:n] {
		out = append(out, Prediction{
			Condition:  e.classifier.Classes[k],
			Confidence: math.Round(probs[k]*1e4) / 1e4,
		})
	}
	return out
}

// Explain names up to five features behind topCondition. It always returns
// at least one entry: any attribution failure, panics included, switches to
// rule-based features.
func (e *Engine) Explain(in Input, tags []string, topCondition string) []string {
	features, err := e.attribute(in, tags, topCondition)
	if err != nil {
		e.logger.Warn("attribution failed, using fallback explanation", zap.Error(err))
		return FallbackExplain(in, tags)
	}
	return features
}

func (e *Engine) attribute(in Input, tags []string, topCondition string) (features []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			features, err = nil, fmt.Errorf("%w: panic: %v", ErrExplanationUnavailable, r)
		}
	}()

	class := e.classifier.ClassIndex(topCondition)
	if class < 0 {
		return nil, fmt.Errorf("%w: unknown condition %q", ErrExplanationUnavailable, topCondition)
	}
	contribs, err := e.attributor.Attribute(e.features.Row(in, tags), class)
	if err != nil {
		return nil, err
	}
	// Unmeasured vitals sit at the training mean and contribute exactly 0.
	ranked := rankContributions(lo.Filter(contribs, func(c Contribution, _ int) bool { return c.Value != 0 }))
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: no contributing features", ErrExplanationUnavailable)
	}

	for _, c := range ranked[:min(maxExplained, len(ranked))] {
		if c.Feature < 0 || c.Feature >= len(e.names) {
			return nil, fmt.Errorf("%w: feature %d out of range", ErrExplanationUnavailable, c.Feature)
		}
		features = append(features, DisplayName(e.names[c.Feature]))
	}
	return features, nil
}

// FallbackExplain flags abnormal measured vitals, then adds up to three tags.
func FallbackExplain(in Input, tags []string) []string {
	v := in.Vitals
	var out []string
	if v.Temperature != nil && *v.Temperature > 37.8 {
		out = append(out, "elevated temperature")
	}
	if v.SpO2 != nil && *v.SpO2 < 95 {
		out = append(out, "low SpO2")
	}
	if v.HeartRate != nil && (*v.HeartRate < 60 || *v.HeartRate > 100) {
		out = append(out, "abnormal heart rate")
	}
	if v.SystolicBP != nil && *v.SystolicBP > 140 {
		out = append(out, "high systolic blood pressure")
	}
	if v.Glucose != nil && *v.Glucose > 180 {
		out = append(out, "high glucose")
	}
	for _, tag := range tags[:min(fallbackTags, len(tags))] {
		out = append(out, strings.ReplaceAll(tag, "_", " "))
	}
	if len(out) == 0 {
		return []string{FallbackFeature}
	}
	return out[:min(maxExplained, len(out))]
}
