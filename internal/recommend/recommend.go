package recommend

var conditionAdvice = map[string][]string{
	"Common Cold":     {"Rest and hydrate", "Use steam inhalation", "Monitor fever and symptoms"},
	"Influenza":       {"Rest and fluids", "Consider antiviral consultation if early", "Monitor breathing and fever"},
	"Hypertension":    {"Reduce sodium intake", "Track blood pressure daily", "Consult physician for medication review"},
	"Type 2 Diabetes": {"Monitor glucose regularly", "Follow a low-glycemic diet", "Schedule follow-up with clinician"},
	"Pneumonia":       {"Seek urgent clinical evaluation", "Monitor oxygen saturation", "Avoid strenuous activity"},
	"COVID-19":        {"Isolate if symptomatic", "Track oxygen and fever", "Seek care for breathing difficulty"},
	"Migraine":        {"Hydrate and rest in dark room", "Avoid trigger foods", "Consult doctor for persistent episodes"},
}

var genericAdvice = []string{
	"Track symptoms closely",
	"Maintain hydration and rest",
	"Consult a healthcare professional if symptoms worsen",
}

// For returns next-step advice for a condition label. Labels the table does
// not know get the generic advice. The returned slice is the caller's to keep.
func For(condition string) []string {
	advice, ok := conditionAdvice[condition]
	if !ok {
		advice = genericAdvice
	}
	return append([]string(nil), advice...)
}

// Known reports whether the label has condition-specific advice.
func Known(condition string) bool {
	_, ok := conditionAdvice[condition]
	return ok
}
