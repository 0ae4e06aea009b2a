package ensemble

import (
	"time"

	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/market"
)

// Fallback reasons recorded in PredictionResult.Meta under "reason"
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonEvalFailed       = "eval_failed"
)

// PredictionResult is one model's opinion, normalized to a common shape.
// Fallback results (insufficient data, inference failure) are HOLD with
// zero confidence and a reason tag; they are never surfaced as errors.
type PredictionResult struct {
	Timeframe  market.Timeframe  `json:"timeframe"`
	Signal     inference.Signal  `json:"signal"`
	Confidence float64           `json:"confidence"` // 0-1, finite
	ModelID    string            `json:"model_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// IsFallback reports whether this result is a degraded stand-in rather
// than a real model output
func (p PredictionResult) IsFallback() bool {
	if p.Meta == nil {
		return false
	}
	_, ok := p.Meta["reason"]
	return ok
}

// UncertaintyResult quantifies doubt about one prediction
type UncertaintyResult struct {
	Epistemic    float64 `json:"epistemic"` // 0-1, model disagreement
	Aleatoric    float64 `json:"aleatoric"` // 0-1, inherent randomness
	Total        float64 `json:"total"`     // 0-1, non-decreasing in both components
	IntervalLow  float64 `json:"interval_low"`
	IntervalHigh float64 `json:"interval_high"`
}

// EvaluationResult pairs every per-timeframe prediction with its
// uncertainty, in timeframe order.
type EvaluationResult struct {
	Symbol        string              `json:"symbol"`
	Predictions   []PredictionResult  `json:"predictions"`
	Uncertainties []UncertaintyResult `json:"uncertainties"`
}

func holdFallback(tf market.Timeframe, reason string) PredictionResult {
	return PredictionResult{
		Timeframe:  tf,
		Signal:     inference.SignalHold,
		Confidence: 0,
		ModelID:    "fallback",
		Timestamp:  time.Now(),
		Meta:       map[string]string{"reason": reason},
	}
}
