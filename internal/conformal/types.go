package conformal

import (
	"trading-signal-engine/internal/ensemble"
)

// RiskLevel is the discrete risk classification of a gated prediction
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Sample is one calibration observation: what a model predicted for a
// confidence-like quantity and what was actually realized.
type Sample struct {
	Predicted float64 `json:"predicted"`
	Actual    float64 `json:"actual"`
}

// Score is the conformity score of a sample
func (s Sample) Score() float64 {
	d := s.Predicted - s.Actual
	if d < 0 {
		return -d
	}
	return d
}

// Result is the risk-gated verdict for one prediction. The prediction is
// copied in; Results are immutable value records.
type Result struct {
	Prediction         ensemble.PredictionResult `json:"prediction"`
	IntervalLow        float64                   `json:"interval_low"`
	IntervalHigh       float64                   `json:"interval_high"`
	PassesGate         bool                      `json:"passes_gate"`
	CriteriaMet        int                       `json:"criteria_met"`
	RiskLevel          RiskLevel                 `json:"risk_level"`
	ConformityQuantile float64                   `json:"conformity_quantile"`
	Reliability        float64                   `json:"reliability"` // 1 - interval width, floored at 0
}

// IntervalWidth returns the width of the calibrated prediction interval
func (r Result) IntervalWidth() float64 {
	return r.IntervalHigh - r.IntervalLow
}

// Statistics is a read-only snapshot of gate behavior for observability
type Statistics struct {
	TotalEvaluations     int     `json:"total_evaluations"`
	PassedEvaluations    int     `json:"passed_evaluations"`
	PassRate             float64 `json:"pass_rate"`
	AverageIntervalWidth float64 `json:"average_interval_width"`
	Alpha                float64 `json:"alpha"`
}
