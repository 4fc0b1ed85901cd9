package risk

import (
	"github.com/samber/lo"

	"github.com/Skufu/proactivecare/internal/vitals"
)

const (
	LevelLow      = "Low"
	LevelModerate = "Moderate"
	LevelHigh     = "High"

	EmergencyMessage = "Dangerously abnormal vitals detected. Seek medical care now."

	emergencyFloor   = 85
	confidencePoints = 25
	softMargin       = 0.1
)

type Result struct {
	Score            int     `json:"risk_score"`
	Level            string  `json:"risk_level"`
	EmergencyWarning bool    `json:"emergency_warning"`
	WarningMessage   *string `json:"warning_message"`

	// BandScore and BandLevel are the computed values before any emergency override.
	BandScore int    `json:"-"`
	BandLevel string `json:"-"`
}

type band struct {
	low, high    float64
	mild, severe int
}

var (
	heartRateBand   = band{low: 60, high: 100, mild: 7, severe: 15}
	systolicBand    = band{low: 90, high: 130, mild: 8, severe: 16}
	diastolicBand   = band{low: 60, high: 85, mild: 8, severe: 16}
	temperatureBand = band{low: 36.1, high: 37.7, mild: 10, severe: 18}
	spo2Band        = band{low: 95, high: 100, mild: 12, severe: 24}
	glucoseBand     = band{low: 70, high: 140, mild: 8, severe: 16}
)

// points returns 0 inside the band, mild inside the band widened by 10% of
// each bound, severe beyond that. Missing readings score 0.
func (b band) points(value *float64) int {
	if value == nil {
		return 0
	}
	v := *value
	if v >= b.low && v <= b.high {
		return 0
	}
	if v < b.low-b.low*softMargin || v > b.high+b.high*softMargin {
		return b.severe
	}
	return b.mild
}

// Score computes a 0-100 risk score from vitals and the top model confidence.
// Literal danger thresholds override the computed band.
func Score(v vitals.Snapshot, topConfidence float64) Result {
	score := heartRateBand.points(v.HeartRate) +
		systolicBand.points(v.SystolicBP) +
		diastolicBand.points(v.DiastolicBP) +
		temperatureBand.points(v.Temperature) +
		spo2Band.points(v.SpO2) +
		glucoseBand.points(v.Glucose)

	score += int(lo.Clamp(topConfidence, 0, 1) * confidencePoints)
	score = lo.Clamp(score, 0, 100)

	level := LevelFor(score)
	result := Result{Score: score, Level: level, BandScore: score, BandLevel: level}
	if Emergency(v) {
		result.EmergencyWarning = true
		result.WarningMessage = lo.ToPtr(EmergencyMessage)
		result.Score = max(result.Score, emergencyFloor)
		result.Level = LevelHigh
	}
	return result
}

func LevelFor(score int) string {
	switch {
	case score >= 67:
		return LevelHigh
	case score >= 34:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Emergency reports whether any reading crosses a hard danger threshold.
func Emergency(v vitals.Snapshot) bool {
	below := func(p *float64, limit float64) bool { return p != nil && *p < limit }
	above := func(p *float64, limit float64) bool { return p != nil && *p > limit }

	return below(v.SpO2, 90) ||
		below(v.HeartRate, 40) || above(v.HeartRate, 150) ||
		above(v.SystolicBP, 180) ||
		above(v.DiastolicBP, 120) ||
		(v.Temperature != nil && *v.Temperature >= 39.5) ||
		below(v.Glucose, 54) || above(v.Glucose, 300)
}
