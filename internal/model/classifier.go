package model

import (
	"context"
	"math"

	"github.com/Skufu/proactivecare/internal/textvec"
)

// Classifier is a multinomial logistic regression over sparse rows.
type Classifier struct {
	Classes []string    `json:"classes"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// ClassIndex returns the position of class in Classes, or -1.
func (c *Classifier) ClassIndex(class string) int {
	for i, name := range c.Classes {
		if name == class {
			return i
		}
	}
	return -1
}

// Probabilities returns one probability per class, in Classes order.
func (c *Classifier) Probabilities(row textvec.Vector) []float64 {
	logits := make([]float64, len(c.Classes))
	for k := range logits {
		z := c.Bias[k]
		w := c.Weights[k]
		for i, idx := range row.Index {
			z += w[idx] * row.Value[i]
		}
		logits[k] = z
	}
	return softmax(logits)
}

func softmax(logits []float64) []float64 {
	top := math.Inf(-1)
	for _, z := range logits {
		top = math.Max(top, z)
	}
	out := make([]float64, len(logits))
	var sum float64
	for k, z := range logits {
		out[k] = math.Exp(z - top)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}

type fitOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// fitClassifier runs full-batch gradient descent on the cross-entropy loss.
func fitClassifier(ctx context.Context, rows []textvec.Vector, labels []int, classes []string, dim int, o fitOptions) (*Classifier, error) {
	c := &Classifier{
		Classes: classes,
		Weights: make([][]float64, len(classes)),
		Bias:    make([]float64, len(classes)),
	}
	grad := make([][]float64, len(classes))
	for k := range classes {
		c.Weights[k] = make([]float64, dim)
		grad[k] = make([]float64, dim)
	}
	gradBias := make([]float64, len(classes))
	n := float64(len(rows))

	for epoch := 0; epoch < o.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for k := range grad {
			clear(grad[k])
		}
		clear(gradBias)

		for r, row := range rows {
			probs := c.Probabilities(row)
			for k, p := range probs {
				diff := p
				if labels[r] == k {
					diff -= 1
				}
				diff /= n
				gradBias[k] += diff
				g := grad[k]
				for i, idx := range row.Index {
					g[idx] += diff * row.Value[i]
				}
			}
		}

		for k := range c.Weights {
			w := c.Weights[k]
			for j := range w {
				w[j] -= o.LearningRate * (grad[k][j] + o.L2*w[j])
			}
			c.Bias[k] -= o.LearningRate * gradBias[k]
		}
	}
	return c, nil
}
