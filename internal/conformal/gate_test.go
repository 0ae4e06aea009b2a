package conformal

import (
	"math"
	"testing"

	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
)

func calibrationSet(scores ...float64) []Sample {
	samples := make([]Sample, len(scores))
	for i, s := range scores {
		samples[i] = Sample{Predicted: 0.5 + s, Actual: 0.5}
	}
	return samples
}

func TestQuantileIndexAlwaysValid(t *testing.T) {
	alphas := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99}
	sizes := []int{1, 2, 3, 5, 10, 50, 200}

	for _, alpha := range alphas {
		for _, n := range sizes {
			scores := make([]float64, n)
			for i := range scores {
				scores[i] = float64(i) / float64(n)
			}
			samples := calibrationSet(scores...)

			cfg := DefaultGateConfig()
			cfg.Alpha = alpha
			gate := NewGate(cfg, samples, nil)

			// Must not panic and must return one of the scores
			q := gate.Quantile()
			found := false
			for _, s := range scores {
				if math.Abs(q-s) < 1e-9 {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("alpha=%.2f n=%d: quantile %f is not a calibration score", alpha, n, q)
			}
		}
	}
}

func TestQuantileExactIndex(t *testing.T) {
	// n=9, alpha=0.1: ceil(10*0.9)-1 = 8, the largest score
	samples := calibrationSet(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9)
	cfg := DefaultGateConfig()
	cfg.Alpha = 0.1
	gate := NewGate(cfg, samples, nil)

	if q := gate.Quantile(); math.Abs(q-0.9) > 1e-9 {
		t.Errorf("Expected quantile 0.9, got %f", q)
	}

	// n=9, alpha=0.5: ceil(10*0.5)-1 = 4 -> scores[4] = 0.5
	cfg.Alpha = 0.5
	gate = NewGate(cfg, samples, nil)
	if q := gate.Quantile(); math.Abs(q-0.5) > 1e-9 {
		t.Errorf("Expected quantile 0.5, got %f", q)
	}
}

func TestQuantileEmptyCalibrationNeutral(t *testing.T) {
	if q := quantileLocked(nil, 0.1); q != 0.5 {
		t.Errorf("Expected neutral 0.5 for empty calibration, got %f", q)
	}
}

func TestEmptySamplesUseBuiltInDefaults(t *testing.T) {
	gate := NewGate(DefaultGateConfig(), nil, nil)
	if q := gate.Quantile(); q <= 0 {
		t.Errorf("Expected positive quantile from default calibration, got %f", q)
	}
}

func TestSetCalibrationIgnoresEmpty(t *testing.T) {
	gate := NewGate(DefaultGateConfig(), calibrationSet(0.2), nil)
	before := gate.Quantile()

	gate.SetCalibration(nil)

	if after := gate.Quantile(); after != before {
		t.Errorf("Empty calibration replaced scores: %f -> %f", before, after)
	}
}

func TestEvaluateDegradedPredictionFailsGate(t *testing.T) {
	// Zero-score calibration makes the quantile 0, so interval width is
	// exactly uncertainty widening: 0.5 * 0.5 doubled around 0.5 = 0.5.
	samples := calibrationSet(0, 0, 0, 0, 0)
	gate := NewGate(DefaultGateConfig(), samples, nil)

	pred := ensemble.PredictionResult{
		Timeframe:  "1h",
		Signal:     inference.SignalBuy,
		Confidence: 0.5,
	}
	unc := ensemble.UncertaintyResult{Total: 0.5}

	result := gate.Evaluate(pred, unc)

	if w := result.IntervalWidth(); math.Abs(w-0.5) > 1e-9 {
		t.Fatalf("Expected interval width 0.5, got %f", w)
	}
	if result.CriteriaMet != 1 {
		t.Errorf("Expected 1 criterion met, got %d", result.CriteriaMet)
	}
	if result.PassesGate {
		t.Error("Expected gate failure for wide, uncertain, low-confidence prediction")
	}
	if result.RiskLevel != RiskHigh {
		t.Errorf("Expected high risk, got %s", result.RiskLevel)
	}
}

func TestEvaluateConfidentPredictionPasses(t *testing.T) {
	samples := calibrationSet(0.02, 0.03, 0.04, 0.05, 0.06)
	gate := NewGate(DefaultGateConfig(), samples, nil)

	pred := ensemble.PredictionResult{
		Timeframe:  "4h",
		Signal:     inference.SignalBuy,
		Confidence: 0.8,
	}
	unc := ensemble.UncertaintyResult{Total: 0.1}

	result := gate.Evaluate(pred, unc)

	if !result.PassesGate {
		t.Errorf("Expected gate pass, criteria met %d", result.CriteriaMet)
	}
	if result.RiskLevel != RiskLow {
		t.Errorf("Expected low risk, got %s", result.RiskLevel)
	}
	if result.IntervalLow < 0 || result.IntervalHigh > 1 {
		t.Errorf("Interval escaped [0,1]: [%f, %f]", result.IntervalLow, result.IntervalHigh)
	}
}

func TestIntervalAlwaysWithinUnitRange(t *testing.T) {
	gate := NewGate(DefaultGateConfig(), calibrationSet(0.4, 0.5, 0.6), nil)

	for _, conf := range []float64{0, 0.1, 0.5, 0.9, 1} {
		for _, total := range []float64{0, 0.5, 1} {
			pred := ensemble.PredictionResult{Signal: inference.SignalBuy, Confidence: conf}
			result := gate.Evaluate(pred, ensemble.UncertaintyResult{Total: total})
			if result.IntervalLow < 0 || result.IntervalHigh > 1 || result.IntervalLow > result.IntervalHigh {
				t.Errorf("conf=%.1f total=%.1f: bad interval [%f, %f]",
					conf, total, result.IntervalLow, result.IntervalHigh)
			}
			if result.Reliability < 0 {
				t.Errorf("Reliability went negative: %f", result.Reliability)
			}
		}
	}
}

func TestStatisticsTracksPassRate(t *testing.T) {
	samples := calibrationSet(0.02, 0.03, 0.04, 0.05, 0.06)
	gate := NewGate(DefaultGateConfig(), samples, nil)

	good := ensemble.PredictionResult{Signal: inference.SignalBuy, Confidence: 0.8}
	bad := ensemble.PredictionResult{Signal: inference.SignalHold, Confidence: 0.1}

	gate.Evaluate(good, ensemble.UncertaintyResult{Total: 0.1})
	gate.Evaluate(good, ensemble.UncertaintyResult{Total: 0.1})
	gate.Evaluate(bad, ensemble.UncertaintyResult{Total: 0.9})

	stats := gate.Statistics()
	if stats.TotalEvaluations != 3 {
		t.Errorf("Expected 3 evaluations, got %d", stats.TotalEvaluations)
	}
	if stats.PassedEvaluations != 2 {
		t.Errorf("Expected 2 passes, got %d", stats.PassedEvaluations)
	}
	if math.Abs(stats.PassRate-2.0/3.0) > 1e-9 {
		t.Errorf("Expected pass rate 0.667, got %f", stats.PassRate)
	}
	if stats.AverageIntervalWidth <= 0 {
		t.Errorf("Expected positive average width, got %f", stats.AverageIntervalWidth)
	}
}

func TestEvaluateAllPairsByPosition(t *testing.T) {
	gate := NewGate(DefaultGateConfig(), calibrationSet(0.05), nil)

	eval := ensemble.EvaluationResult{
		Symbol: "BTCUSDT",
		Predictions: []ensemble.PredictionResult{
			{Timeframe: "5m", Signal: inference.SignalBuy, Confidence: 0.7},
			{Timeframe: "1h", Signal: inference.SignalSell, Confidence: 0.6},
		},
		Uncertainties: []ensemble.UncertaintyResult{
			{Total: 0.1},
			{Total: 0.2},
		},
	}

	results := gate.EvaluateAll(eval)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Prediction.Timeframe != "5m" || results[1].Prediction.Timeframe != "1h" {
		t.Error("Results out of order with predictions")
	}
	if results[0].IntervalWidth() >= results[1].IntervalWidth() {
		t.Error("Higher uncertainty should widen the interval")
	}
}
