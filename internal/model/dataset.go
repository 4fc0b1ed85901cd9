package model

import (
	"math"
	"math/rand"
	"strings"

	"github.com/Skufu/proactivecare/internal/vitals"
)

// Conditions the synthetic baseline model is trained on.
var Conditions = []string{
	"Common Cold",
	"Influenza",
	"Hypertension",
	"Type 2 Diabetes",
	"Pneumonia",
	"COVID-19",
	"Migraine",
}

var symptomPool = map[string][]string{
	"Common Cold":     {"cough", "sore throat", "runny nose", "mild headache"},
	"Influenza":       {"fever", "fatigue", "body ache", "cough"},
	"Hypertension":    {"headache", "dizziness", "chest pressure"},
	"Type 2 Diabetes": {"fatigue", "frequent urination", "thirst", "blurred vision"},
	"Pneumonia":       {"fever", "cough", "shortness of breath", "chest pain"},
	"COVID-19":        {"fever", "cough", "fatigue", "shortness of breath"},
	"Migraine":        {"headache", "nausea", "light sensitivity"},
}

// Sample is one synthetic labelled row. Numeric is in vitals.Names order.
type Sample struct {
	Text      string
	Numeric   []float64
	Condition string
}

type sampler struct{ rng *rand.Rand }

func (s sampler) intBetween(lo, hi int) float64 {
	return float64(lo + s.rng.Intn(hi-lo+1))
}

func (s sampler) uniform1(lo, hi float64) float64 {
	return math.Round((lo+s.rng.Float64()*(hi-lo))*10) / 10
}

// GenerateDataset draws n labelled rows. The same seed yields the same rows.
func GenerateDataset(n int, seed int64) []Sample {
	s := sampler{rng: rand.New(rand.NewSource(seed))}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		condition := Conditions[s.rng.Intn(len(Conditions))]
		pool := symptomPool[condition]
		k := min(3, len(pool))
		picked := make([]string, 0, k)
		for _, idx := range s.rng.Perm(len(pool))[:k] {
			picked = append(picked, pool[idx])
		}
		out = append(out, Sample{
			Text:      strings.Join(picked, ", "),
			Numeric:   s.vitalsFor(condition),
			Condition: condition,
		})
	}
	return out
}

func (s sampler) vitalsFor(condition string) []float64 {
	v := map[string]float64{
		vitals.HeartRate:   s.intBetween(60, 95),
		vitals.SystolicBP:  s.intBetween(100, 130),
		vitals.DiastolicBP: s.intBetween(65, 85),
		vitals.Temperature: s.uniform1(36.2, 37.3),
		vitals.SpO2:        s.uniform1(95, 99),
		vitals.Glucose:     s.uniform1(80, 130),
		vitals.Weight:      s.uniform1(50, 90),
	}

	switch condition {
	case "Influenza", "Pneumonia", "COVID-19":
		v[vitals.Temperature] = s.uniform1(37.8, 40.0)
		v[vitals.HeartRate] = s.intBetween(85, 130)
	}
	switch condition {
	case "Pneumonia", "COVID-19":
		v[vitals.SpO2] = s.uniform1(86, 95)
	case "Hypertension":
		v[vitals.SystolicBP] = s.intBetween(140, 190)
		v[vitals.DiastolicBP] = s.intBetween(90, 125)
	case "Type 2 Diabetes":
		v[vitals.Glucose] = s.uniform1(150, 320)
	case "Migraine":
		v[vitals.HeartRate] = s.intBetween(65, 110)
	}

	out := make([]float64, len(vitals.Names))
	for i, name := range vitals.Names {
		out[i] = v[name]
	}
	return out
}
