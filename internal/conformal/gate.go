// Package conformal converts point confidences into calibrated prediction
// intervals using split-conformal quantiles over historical conformity
// scores, and gates predictions on a soft 3-of-4 criteria vote.
package conformal

import (
	"math"
	"sort"
	"sync"

	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
)

// GateConfig holds the gate's policy constants. Defaults match the tuned
// production values; change them only with a recalibration pass.
type GateConfig struct {
	Alpha                float64 `json:"alpha"`                  // Conformal significance level
	MaxIntervalWidth     float64 `json:"max_interval_width"`     // Criterion 1 ceiling
	MaxTotalUncertainty  float64 `json:"max_total_uncertainty"`  // Criterion 2 ceiling
	MinConfidence        float64 `json:"min_confidence"`         // Criterion 3 floor
	HoldBypassConfidence float64 `json:"hold_bypass_confidence"` // Criterion 4 floor for HOLD signals
	MinCriteriaMet       int     `json:"min_criteria_met"`       // Soft-vote threshold
	UncertaintyWidening  float64 `json:"uncertainty_widening"`   // Interval widening per unit of total uncertainty
}

// DefaultGateConfig returns the default gate policy
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Alpha:                0.1,
		MaxIntervalWidth:     0.4,
		MaxTotalUncertainty:  0.35,
		MinConfidence:        0.55,
		HoldBypassConfidence: 0.6,
		MinCriteriaMet:       3,
		UncertaintyWidening:  0.5,
	}
}

// Gate is the conformal prediction gate. Calibration data is read-only
// after construction or SetCalibration; statistics counters are guarded.
type Gate struct {
	config GateConfig
	logger *logging.Logger

	mu          sync.RWMutex
	scores      []float64 // sorted conformity scores
	totalEvals  int
	passedEvals int
	sumWidth    float64
}

// NewGate creates a gate with the given config. When samples is empty the
// built-in default calibration set is used, per the calibration contract.
func NewGate(config GateConfig, samples []Sample, logger *logging.Logger) *Gate {
	if config.Alpha <= 0 || config.Alpha >= 1 {
		config.Alpha = 0.1
	}
	if config.MinCriteriaMet <= 0 {
		config.MinCriteriaMet = 3
	}
	if logger == nil {
		logger = logging.WithComponent("gate")
	}

	g := &Gate{config: config, logger: logger}
	if len(samples) == 0 {
		samples = defaultCalibrationSamples()
		logger.Info("No external calibration set supplied, using built-in defaults",
			"samples", len(samples))
	}
	g.setScores(samples)
	return g
}

// SetCalibration replaces the calibration set. Empty input is ignored so
// the gate never loses its scores at runtime.
func (g *Gate) SetCalibration(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scoresLocked(samples)
}

func (g *Gate) setScores(samples []Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scoresLocked(samples)
}

func (g *Gate) scoresLocked(samples []Sample) {
	scores := make([]float64, 0, len(samples))
	for _, s := range samples {
		scores = append(scores, s.Score())
	}
	sort.Float64s(scores)
	g.scores = scores
}

// Quantile returns the split-conformal quantile of the sorted conformity
// scores at significance alpha: index ceil((n+1)(1-alpha))-1, clamped to
// the last valid index. The rule is reproduced exactly; off-by-one changes
// the coverage guarantee. An empty calibration set yields a neutral 0.5.
func (g *Gate) Quantile() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return quantileLocked(g.scores, g.config.Alpha)
}

func quantileLocked(scores []float64, alpha float64) float64 {
	n := len(scores)
	if n == 0 {
		return 0.5
	}
	idx := int(math.Ceil(float64(n+1)*(1-alpha))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return scores[idx]
}

// Evaluate gates one prediction against its uncertainty
func (g *Gate) Evaluate(pred ensemble.PredictionResult, unc ensemble.UncertaintyResult) Result {
	quantile := g.Quantile()

	width := quantile + g.config.UncertaintyWidening*unc.Total
	low := math.Max(0, pred.Confidence-width)
	high := math.Min(1, pred.Confidence+width)
	intervalWidth := high - low

	// Soft 3-of-4 criteria vote. A strict AND was tried and rejected:
	// it starved precision mode of qualified predictions in choppy
	// markets without improving realized accuracy.
	criteria := 0
	if intervalWidth <= g.config.MaxIntervalWidth {
		criteria++
	}
	if unc.Total <= g.config.MaxTotalUncertainty {
		criteria++
	}
	if pred.Confidence >= g.config.MinConfidence {
		criteria++
	}
	if pred.Signal != inference.SignalHold || pred.Confidence >= g.config.HoldBypassConfidence {
		criteria++
	}
	passes := criteria >= g.config.MinCriteriaMet

	riskScore := 0.6*unc.Total + 0.4*intervalWidth
	risk := RiskHigh
	switch {
	case riskScore <= 0.2:
		risk = RiskLow
	case riskScore <= 0.4:
		risk = RiskModerate
	}

	reliability := math.Max(0, 1-intervalWidth)

	g.mu.Lock()
	g.totalEvals++
	if passes {
		g.passedEvals++
	}
	g.sumWidth += intervalWidth
	g.mu.Unlock()

	g.logger.Debug("Gate evaluation",
		"timeframe", string(pred.Timeframe),
		"signal", string(pred.Signal),
		"criteria_met", criteria,
		"passes", passes,
		"risk", string(risk),
		"interval_width", intervalWidth)

	return Result{
		Prediction:         pred,
		IntervalLow:        low,
		IntervalHigh:       high,
		PassesGate:         passes,
		CriteriaMet:        criteria,
		RiskLevel:          risk,
		ConformityQuantile: quantile,
		Reliability:        reliability,
	}
}

// EvaluateAll gates a full evaluation result, pairing predictions with
// their uncertainties by position.
func (g *Gate) EvaluateAll(eval ensemble.EvaluationResult) []Result {
	results := make([]Result, 0, len(eval.Predictions))
	for i, pred := range eval.Predictions {
		var unc ensemble.UncertaintyResult
		if i < len(eval.Uncertainties) {
			unc = eval.Uncertainties[i]
		}
		results = append(results, g.Evaluate(pred, unc))
	}
	return results
}

// Statistics returns a snapshot of gate behavior
func (g *Gate) Statistics() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{
		TotalEvaluations:  g.totalEvals,
		PassedEvaluations: g.passedEvals,
		Alpha:             g.config.Alpha,
	}
	if g.totalEvals > 0 {
		stats.PassRate = float64(g.passedEvals) / float64(g.totalEvals)
		stats.AverageIntervalWidth = g.sumWidth / float64(g.totalEvals)
	}
	return stats
}

// defaultCalibrationSamples is the built-in calibration set, collected
// from backtested model confidences against realized hit rates. Used only
// when no external set is supplied.
func defaultCalibrationSamples() []Sample {
	return []Sample{
		{Predicted: 0.82, Actual: 0.75}, {Predicted: 0.64, Actual: 0.70},
		{Predicted: 0.71, Actual: 0.66}, {Predicted: 0.58, Actual: 0.52},
		{Predicted: 0.77, Actual: 0.81}, {Predicted: 0.69, Actual: 0.60},
		{Predicted: 0.55, Actual: 0.63}, {Predicted: 0.88, Actual: 0.79},
		{Predicted: 0.62, Actual: 0.58}, {Predicted: 0.74, Actual: 0.68},
		{Predicted: 0.66, Actual: 0.72}, {Predicted: 0.59, Actual: 0.49},
		{Predicted: 0.81, Actual: 0.73}, {Predicted: 0.68, Actual: 0.74},
		{Predicted: 0.73, Actual: 0.64}, {Predicted: 0.57, Actual: 0.61},
		{Predicted: 0.79, Actual: 0.70}, {Predicted: 0.63, Actual: 0.55},
		{Predicted: 0.70, Actual: 0.78}, {Predicted: 0.85, Actual: 0.77},
	}
}
