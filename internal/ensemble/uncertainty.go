package ensemble

import (
	"math"

	"trading-signal-engine/internal/market"
)

// UncertaintyEstimator supplies per-prediction uncertainty. It sees the
// full prediction set so epistemic uncertainty can be derived from
// cross-model disagreement.
type UncertaintyEstimator interface {
	Estimate(pred PredictionResult, window market.Window, all []PredictionResult) UncertaintyResult
}

// SpreadEstimator is the built-in estimator: epistemic uncertainty from
// the spread between this model's confidence and its peers, aleatoric from
// realized volatility of the candle window.
type SpreadEstimator struct {
	// VolatilityScale maps realized per-candle volatility into [0,1].
	// The default saturates around 2% per-candle moves.
	VolatilityScale float64
}

// NewSpreadEstimator returns an estimator with default scaling
func NewSpreadEstimator() *SpreadEstimator {
	return &SpreadEstimator{VolatilityScale: 50}
}

// Estimate computes the uncertainty for one prediction
func (e *SpreadEstimator) Estimate(pred PredictionResult, window market.Window, all []PredictionResult) UncertaintyResult {
	epistemic := e.epistemic(pred, all)
	aleatoric := e.aleatoric(window.Candles)

	// Weighted combination keeps total monotone non-decreasing in both
	// components and inside [0,1].
	total := clamp01(0.6*epistemic + 0.4*aleatoric)

	half := total / 2
	return UncertaintyResult{
		Epistemic:    epistemic,
		Aleatoric:    aleatoric,
		Total:        total,
		IntervalLow:  math.Max(0, pred.Confidence-half),
		IntervalHigh: math.Min(1, pred.Confidence+half),
	}
}

// epistemic measures how far this model's opinion sits from its peers:
// signal disagreement dominates, confidence spread refines.
func (e *SpreadEstimator) epistemic(pred PredictionResult, all []PredictionResult) float64 {
	if len(all) <= 1 {
		// A lone model carries irreducible model doubt
		return 0.3
	}

	disagree := 0
	var confSum float64
	for _, p := range all {
		if p.Signal != pred.Signal {
			disagree++
		}
		confSum += p.Confidence
	}
	disagreeRatio := float64(disagree) / float64(len(all))

	mean := confSum / float64(len(all))
	spread := math.Abs(pred.Confidence - mean)

	return clamp01(0.7*disagreeRatio + 0.3*spread*2)
}

// aleatoric maps the stddev of close-to-close returns into [0,1]
func (e *SpreadEstimator) aleatoric(candles []market.Candle) float64 {
	if len(candles) < 3 {
		return 0.5
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	if len(returns) < 2 {
		return 0.5
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	scale := e.VolatilityScale
	if scale <= 0 {
		scale = 50
	}
	return clamp01(math.Sqrt(variance) * scale)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
