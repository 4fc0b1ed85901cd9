package vitals

// Snapshot holds optional vital-sign readings. A nil field was not measured,
// which is not the same thing as a reading of zero.
type Snapshot struct {
	HeartRate   *float64 `json:"heart_rate,omitempty"`
	SystolicBP  *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP *float64 `json:"diastolic_bp,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	SpO2        *float64 `json:"spo2,omitempty"`
	Glucose     *float64 `json:"glucose,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
}

// Field names in model feature order.
const (
	HeartRate   = "heart_rate"
	SystolicBP  = "systolic_bp"
	DiastolicBP = "diastolic_bp"
	Temperature = "temperature"
	SpO2        = "spo2"
	Glucose     = "glucose"
	Weight      = "weight"
)

var Names = []string{HeartRate, SystolicBP, DiastolicBP, Temperature, SpO2, Glucose, Weight}

// Values returns the readings in Names order.
func (s Snapshot) Values() []*float64 {
	return []*float64{s.HeartRate, s.SystolicBP, s.DiastolicBP, s.Temperature, s.SpO2, s.Glucose, s.Weight}
}

// ZeroFilled returns the readings in Names order with missing values as 0.
// Only model input may use this; risk scoring must see nil.
func (s Snapshot) ZeroFilled() []float64 {
	raw := s.Values()
	out := make([]float64, len(raw))
	for i, v := range raw {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}
