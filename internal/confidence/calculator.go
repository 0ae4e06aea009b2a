// Package confidence blends agreement, uncertainty, conformal quality and
// timeframe coverage into one bounded meta-confidence score. The output is
// deliberately compressed into [0.5, 0.9]: the mobile client never shows
// a signal as near-certain or near-worthless.
package confidence

import (
	"math"

	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/market"
)

// Band the final confidence is remapped into
const (
	BandFloor = 0.5
	BandCeil  = 0.9
)

// Weights are the component weights of the meta-confidence blend. They
// should sum to at most 1.0 by convention; this is warned about, not
// enforced.
type Weights struct {
	Agreement   float64 `json:"agreement"`
	Uncertainty float64 `json:"uncertainty"`
	Quality     float64 `json:"quality"`
	Timeframe   float64 `json:"timeframe"`
}

// DefaultWeights returns the production default blend
func DefaultWeights() Weights {
	return Weights{
		Agreement:   0.30,
		Uncertainty: 0.25,
		Quality:     0.30,
		Timeframe:   0.15,
	}
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Agreement + w.Uncertainty + w.Quality + w.Timeframe
}

// Result carries the final confidence and its component scores so the
// display layer can explain the number.
type Result struct {
	FinalConfidence    float64 `json:"final_confidence"` // always in [0.5,0.9]
	AgreementScore     float64 `json:"agreement_score"`
	UncertaintyPenalty float64 `json:"uncertainty_penalty"`
	QualityScore       float64 `json:"quality_score"`
	TimeframeScore     float64 `json:"timeframe_score"`
	BlendedScore       float64 `json:"blended_score"`       // pre mode adjustment
	ModeAdjustedScore  float64 `json:"mode_adjusted_score"` // pre squash
}

// Calculator computes meta-confidence scores
type Calculator struct {
	weights Weights
	logger  *logging.Logger
}

// NewCalculator creates a calculator with the given weights
func NewCalculator(weights Weights, logger *logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.WithComponent("confidence")
	}
	if weights.Sum() == 0 {
		weights = DefaultWeights()
	}
	if weights.Sum() > 1.0 {
		logger.Warn("Meta-confidence weights exceed 1.0",
			"sum", weights.Sum())
	}
	return &Calculator{weights: weights, logger: logger}
}

// Calculate blends the pipeline stage outputs into the final confidence.
// Every aggregate has an explicit empty-set fallback; the function never
// fails and its output is always inside the band.
func (c *Calculator) Calculate(
	eval ensemble.EvaluationResult,
	gated []conformal.Result,
	mode consensus.ModeProcessingResult,
) Result {
	agreement := agreementScore(eval.Predictions)
	penalty := uncertaintyPenalty(eval.Uncertainties)
	quality := qualityScore(gated)
	timeframe := timeframeScore(eval.Predictions)

	blended := c.weights.Agreement*agreement +
		c.weights.Uncertainty*(1-penalty) +
		c.weights.Quality*quality +
		c.weights.Timeframe*timeframe

	adjusted := c.modeAdjust(blended, mode)

	// Logistic squash then linear remap, in that order. The squash
	// steepness of 6 keeps mid-range inputs responsive while saturating
	// the extremes.
	squashed := sigmoid(6 * (adjusted - 0.5))
	final := BandFloor + (BandCeil-BandFloor)*squashed

	return Result{
		FinalConfidence:    clampBand(final),
		AgreementScore:     agreement,
		UncertaintyPenalty: penalty,
		QualityScore:       quality,
		TimeframeScore:     timeframe,
		BlendedScore:       blended,
		ModeAdjustedScore:  adjusted,
	}
}

func (c *Calculator) modeAdjust(score float64, mode consensus.ModeProcessingResult) float64 {
	switch mode.Mode {
	case consensus.ModePrecision:
		score *= 0.85
		if qualified := len(mode.Qualified); qualified < 3 {
			score -= 0.1 * float64(3-qualified)
		}
	default:
		score *= 0.95
	}

	// Consensus strategy tag, not rationale text: unanimous agreement
	// earns a bonus, a bare majority takes a penalty.
	switch mode.Consensus.Strategy {
	case consensus.StrategyUnanimous:
		if mode.Consensus.Signal != inference.SignalHold {
			score *= 1.05
		}
	case consensus.StrategyMajority:
		score *= 0.95
	}

	if score < 0 {
		score = 0
	}
	return score
}

// agreementScore blends signal agreement with confidence coherence.
// A single prediction has no agreement to measure; both parts default to
// the neutral 0.5.
func agreementScore(predictions []ensemble.PredictionResult) float64 {
	if len(predictions) <= 1 {
		return 0.5
	}

	votes := make(map[inference.Signal]int)
	confidences := make([]float64, 0, len(predictions))
	for _, p := range predictions {
		votes[p.Signal]++
		confidences = append(confidences, p.Confidence)
	}

	most := 0
	for _, n := range votes {
		if n > most {
			most = n
		}
	}
	agreementRatio := float64(most) / float64(len(predictions))

	coherence := math.Max(0, 1-2*stddev(confidences))

	return 0.7*agreementRatio + 0.3*coherence
}

// uncertaintyPenalty summarizes how much doubt the estimators reported
func uncertaintyPenalty(uncertainties []ensemble.UncertaintyResult) float64 {
	if len(uncertainties) == 0 {
		return 0.5
	}

	var totalSum, epistemicSum float64
	for _, u := range uncertainties {
		totalSum += u.Total
		epistemicSum += u.Epistemic
	}
	n := float64(len(uncertainties))
	return 0.6*(totalSum/n) + 0.4*(epistemicSum/n)
}

// qualityScore summarizes the conformal gate's view of the prediction set
func qualityScore(gated []conformal.Result) float64 {
	if len(gated) == 0 {
		return 0.5
	}

	var reliabilitySum float64
	passed := 0
	lowRisk := 0
	for _, g := range gated {
		reliabilitySum += g.Reliability
		if g.PassesGate {
			passed++
		}
		if g.RiskLevel == conformal.RiskLow {
			lowRisk++
		}
	}
	n := float64(len(gated))
	return 0.4*(reliabilitySum/n) + 0.4*(float64(passed)/n) + 0.2*(float64(lowRisk)/n)
}

// timeframeScore rewards timeframe coverage and confidence concentrated
// on the higher-priority timeframes.
func timeframeScore(predictions []ensemble.PredictionResult) float64 {
	if len(predictions) == 0 {
		return 0.5
	}

	seen := make(map[market.Timeframe]bool)
	var weightedConf, weightSum float64
	for _, p := range predictions {
		seen[p.Timeframe] = true
		w := market.PriorityWeight(p.Timeframe)
		weightedConf += w * p.Confidence
		weightSum += w
	}

	coverage := float64(len(seen)) / 3.0
	if coverage > 1 {
		coverage = 1
	}

	priorityMean := 0.5
	if weightSum > 0 {
		priorityMean = weightedConf / weightSum
	}

	return 0.3*coverage + 0.7*priorityMean
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampBand(v float64) float64 {
	if v < BandFloor || math.IsNaN(v) {
		return BandFloor
	}
	if v > BandCeil {
		return BandCeil
	}
	return v
}
