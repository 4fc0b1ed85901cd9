package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/Skufu/proactivecare/internal/textvec"
)

type TrainOptions struct {
	Samples      int
	Seed         int64
	TestFraction float64
	MaxFeatures  int
	Epochs       int
	LearningRate float64
	L2           float64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Samples:      3500,
		Seed:         42,
		TestFraction: 0.2,
		MaxFeatures:  500,
		Epochs:       600,
		LearningRate: 0.5,
		L2:           1e-4,
	}
}

// Metadata is written next to the artifacts.
type Metadata struct {
	Classes   []string  `json:"classes"`
	Samples   int       `json:"samples"`
	MacroF1   float64   `json:"metrics_macro_f1"`
	TrainedAt time.Time `json:"trained_at"`
}

// Artifacts is everything needed to serve predictions.
type Artifacts struct {
	Features   *Featurizer
	Classifier *Classifier
}

// TrainFunc produces a fresh set of artifacts.
type TrainFunc func(ctx context.Context) (*Artifacts, Metadata, error)

// Trainer returns a TrainFunc bound to opts.
func Trainer(opts TrainOptions) TrainFunc {
	return func(ctx context.Context) (*Artifacts, Metadata, error) {
		return Train(ctx, opts)
	}
}

// Train fits the baseline model on the synthetic dataset and scores it on a
// stratified hold-out split.
func Train(ctx context.Context, opts TrainOptions) (*Artifacts, Metadata, error) {
	if opts.Samples < len(Conditions) {
		return nil, Metadata{}, fmt.Errorf("need at least %d samples, got %d", len(Conditions), opts.Samples)
	}
	data := GenerateDataset(opts.Samples, opts.Seed)
	trainIdx, testIdx := stratifiedSplit(data, opts.TestFraction, opts.Seed)

	classes := append([]string(nil), Conditions...)
	sort.Strings(classes)
	classOf := make(map[string]int, len(classes))
	for i, c := range classes {
		classOf[c] = i
	}

	features := &Featurizer{
		Text: textvec.Fit(lo.Map(trainIdx, func(i int, _ int) string { return data[i].Text }), 2, opts.MaxFeatures),
		Numeric: fitScaler(lo.Map(trainIdx, func(i int, _ int) []float64 {
			return data[i].Numeric
		})),
	}

	rows := make([]textvec.Vector, len(trainIdx))
	labels := make([]int, len(trainIdx))
	for r, i := range trainIdx {
		rows[r] = features.row(data[i].Text, data[i].Numeric)
		labels[r] = classOf[data[i].Condition]
	}

	clf, err := fitClassifier(ctx, rows, labels, classes, features.Dim(), fitOptions{
		Epochs:       opts.Epochs,
		LearningRate: opts.LearningRate,
		L2:           opts.L2,
	})
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("fit classifier: %w", err)
	}

	truth := make([]int, len(testIdx))
	predicted := make([]int, len(testIdx))
	for r, i := range testIdx {
		truth[r] = classOf[data[i].Condition]
		predicted[r] = argmax(clf.Probabilities(features.row(data[i].Text, data[i].Numeric)))
	}

	meta := Metadata{
		Classes:   classes,
		Samples:   len(data),
		MacroF1:   macroF1(truth, predicted, len(classes)),
		TrainedAt: time.Now().UTC(),
	}
	return &Artifacts{Features: features, Classifier: clf}, meta, nil
}

// stratifiedSplit holds out roughly testFraction of every class.
func stratifiedSplit(data []Sample, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := lo.GroupBy(lo.Range(len(data)), func(i int) string { return data[i].Condition })

	for _, condition := range Conditions {
		idx := byClass[condition]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		cut := int(math.Round(float64(len(idx)) * testFraction))
		test = append(test, idx[:cut]...)
		train = append(train, idx[cut:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// macroF1 averages per-class F1 over classes seen in truth or predictions.
// Undefined precision or recall counts as 0.
func macroF1(truth, predicted []int, classes int) float64 {
	tp := make([]float64, classes)
	fp := make([]float64, classes)
	fn := make([]float64, classes)
	for i := range truth {
		if truth[i] == predicted[i] {
			tp[truth[i]]++
			continue
		}
		fp[predicted[i]]++
		fn[truth[i]]++
	}

	var sum float64
	var seen int
	for k := 0; k < classes; k++ {
		if tp[k]+fp[k]+fn[k] == 0 {
			continue
		}
		seen++
		if tp[k] == 0 {
			continue
		}
		precision := tp[k] / (tp[k] + fp[k])
		recall := tp[k] / (tp[k] + fn[k])
		sum += 2 * precision * recall / (precision + recall)
	}
	if seen == 0 {
		return 0
	}
	return sum / float64(seen)
}
