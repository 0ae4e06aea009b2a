// Package consensus applies mode-specific admission thresholds to the
// gated prediction set and merges the survivors into one signal using the
// mode's consensus strategy.
package consensus

import (
	"fmt"

	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/market"
)

// Confidence band all mode-adjusted confidences are clamped into
const (
	ConfidenceFloor = 0.5
	ConfidenceCeil  = 0.9
)

// Engine is the mode engine. It is stateless; Process is deterministic
// for identical inputs.
type Engine struct {
	logger *logging.Logger
}

// NewEngine creates a mode engine
func NewEngine(logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.WithComponent("consensus")
	}
	return &Engine{logger: logger}
}

// Qualify filters the prediction set down to those admissible under the
// mode's thresholds. Fallback predictions never qualify.
func (e *Engine) Qualify(eval ensemble.EvaluationResult, mode ModeConfig) []QualifiedPrediction {
	qualified := make([]QualifiedPrediction, 0, len(eval.Predictions))
	for i, pred := range eval.Predictions {
		if i >= len(eval.Uncertainties) {
			break
		}
		unc := eval.Uncertainties[i]

		if pred.IsFallback() {
			continue
		}
		if pred.Confidence < mode.MinConfidence {
			continue
		}
		if unc.Total > mode.MaxUncertainty {
			continue
		}
		quality := QualityScore(pred.Confidence, unc.Total)
		if quality < mode.MinQuality {
			continue
		}

		qualified = append(qualified, QualifiedPrediction{
			Prediction:        pred,
			Uncertainty:       unc,
			QualityScore:      quality,
			TimeframePriority: market.PriorityWeight(pred.Timeframe),
		})
	}
	return qualified
}

// QualityScore blends confidence and certainty into one admission score
func QualityScore(confidence, totalUncertainty float64) float64 {
	return 0.7*confidence + 0.3*(1-totalUncertainty)
}

// Process qualifies the prediction set and runs the mode's consensus
// strategy, producing the mode-adjusted trading decision.
func (e *Engine) Process(eval ensemble.EvaluationResult, mode ModeConfig) ModeProcessingResult {
	qualified := e.Qualify(eval, mode)
	consensus := RunStrategy(mode.Strategy, qualified, mode.RequiredMajorityRatio)

	adjusted := e.modeAdjustedConfidence(consensus, qualified, mode)
	shouldExecute := consensus.Signal != inference.SignalHold && adjusted >= mode.ExecutionThreshold

	e.logger.Debug("Mode processing complete",
		"symbol", eval.Symbol,
		"mode", string(mode.Mode),
		"strategy", string(mode.Strategy),
		"qualified", len(qualified),
		"signal", string(consensus.Signal),
		"adjusted_confidence", adjusted,
		"should_execute", shouldExecute)

	return ModeProcessingResult{
		Mode:                   mode.Mode,
		Consensus:              consensus,
		ModeAdjustedConfidence: adjusted,
		Qualified:              qualified,
		ShouldExecute:          shouldExecute,
	}
}

// modeAdjustedConfidence applies the mode's damping to the raw consensus
// confidence: a disagreement penalty in precision mode, then conservative
// scaling, then the [0.5,0.9] clamp.
func (e *Engine) modeAdjustedConfidence(consensus ConsensusResult, qualified []QualifiedPrediction, mode ModeConfig) float64 {
	adjusted := consensus.Confidence

	if mode.Mode == ModePrecision {
		distinct := distinctSignals(qualified)
		if distinct > 1 {
			penalty := 0.1 * float64(distinct-1)
			if penalty > 0.2 {
				penalty = 0.2
			}
			adjusted -= penalty
		}
	}

	adjusted *= mode.ConservativeScaling

	if adjusted < ConfidenceFloor {
		adjusted = ConfidenceFloor
	}
	if adjusted > ConfidenceCeil {
		adjusted = ConfidenceCeil
	}
	return adjusted
}

func distinctSignals(qualified []QualifiedPrediction) int {
	seen := make(map[inference.Signal]bool, 3)
	for _, q := range qualified {
		seen[q.Prediction.Signal] = true
	}
	return len(seen)
}

// RunStrategy dispatches to one of the four consensus strategies. An
// empty qualified set always resolves to HOLD with zero confidence.
func RunStrategy(strategy Strategy, qualified []QualifiedPrediction, requiredRatio float64) ConsensusResult {
	if len(qualified) == 0 {
		return holdResult(strategy, "no qualified predictions")
	}

	switch strategy {
	case StrategyMajority:
		return majorityConsensus(qualified, requiredRatio)
	case StrategyWeighted:
		return weightedConsensus(qualified, requiredRatio)
	case StrategyUnanimous:
		return unanimousConsensus(qualified)
	case StrategyBestQuality:
		return bestQualityConsensus(qualified)
	default:
		return holdResult(strategy, fmt.Sprintf("unknown strategy %s", strategy))
	}
}

func holdResult(strategy Strategy, rationale string) ConsensusResult {
	return ConsensusResult{
		Signal:     inference.SignalHold,
		Confidence: 0,
		Strategy:   strategy,
		Rationale:  rationale,
	}
}

// majorityConsensus picks the signal with the most votes; the winner must
// reach the required vote share. Confidence is the mean confidence of the
// winning voters scaled by the achieved ratio.
func majorityConsensus(qualified []QualifiedPrediction, requiredRatio float64) ConsensusResult {
	votes := make(map[inference.Signal]int)
	confSums := make(map[inference.Signal]float64)
	for _, q := range qualified {
		votes[q.Prediction.Signal]++
		confSums[q.Prediction.Signal] += q.Prediction.Confidence
	}

	winner, best := topSignal(votes)
	ratio := float64(best) / float64(len(qualified))
	if ratio < requiredRatio {
		return holdResult(StrategyMajority,
			fmt.Sprintf("majority %d/%d below required ratio %.2f", best, len(qualified), requiredRatio))
	}

	return ConsensusResult{
		Signal:        winner,
		Confidence:    (confSums[winner] / float64(best)) * ratio,
		Strategy:      StrategyMajority,
		AchievedRatio: ratio,
		Rationale:     fmt.Sprintf("majority vote %d/%d for %s", best, len(qualified), winner),
	}
}

// weightedConsensus accumulates qualityScore x timeframePriority per
// signal; the winner's weight share must reach the required ratio.
func weightedConsensus(qualified []QualifiedPrediction, requiredRatio float64) ConsensusResult {
	weights := make(map[inference.Signal]float64)
	weightedConf := make(map[inference.Signal]float64)
	var totalWeight float64
	for _, q := range qualified {
		w := q.QualityScore * q.TimeframePriority
		weights[q.Prediction.Signal] += w
		weightedConf[q.Prediction.Signal] += w * q.Prediction.Confidence
		totalWeight += w
	}
	if totalWeight == 0 {
		return holdResult(StrategyWeighted, "zero total weight")
	}

	winner := inference.SignalHold
	var bestWeight float64
	for _, sig := range []inference.Signal{inference.SignalBuy, inference.SignalSell, inference.SignalHold} {
		if weights[sig] > bestWeight {
			winner = sig
			bestWeight = weights[sig]
		}
	}

	share := bestWeight / totalWeight
	if share < requiredRatio {
		return holdResult(StrategyWeighted,
			fmt.Sprintf("winning weight share %.2f below required ratio %.2f", share, requiredRatio))
	}

	return ConsensusResult{
		Signal:        winner,
		Confidence:    weightedConf[winner] / bestWeight,
		Strategy:      StrategyWeighted,
		AchievedRatio: share,
		Rationale:     fmt.Sprintf("weighted consensus share %.2f for %s", share, winner),
	}
}

// unanimousConsensus requires every qualified prediction to agree
func unanimousConsensus(qualified []QualifiedPrediction) ConsensusResult {
	first := qualified[0].Prediction.Signal
	var confSum float64
	for _, q := range qualified {
		if q.Prediction.Signal != first {
			return holdResult(StrategyUnanimous, "no unanimous agreement")
		}
		confSum += q.Prediction.Confidence
	}

	return ConsensusResult{
		Signal:        first,
		Confidence:    confSum / float64(len(qualified)),
		Strategy:      StrategyUnanimous,
		AchievedRatio: 1.0,
		Rationale:     fmt.Sprintf("unanimous %s across %d timeframes", first, len(qualified)),
	}
}

// bestQualityConsensus adopts the single highest-quality prediction verbatim
func bestQualityConsensus(qualified []QualifiedPrediction) ConsensusResult {
	best := qualified[0]
	for _, q := range qualified[1:] {
		if q.QualityScore > best.QualityScore {
			best = q
		}
	}

	return ConsensusResult{
		Signal:        best.Prediction.Signal,
		Confidence:    best.Prediction.Confidence,
		Strategy:      StrategyBestQuality,
		AchievedRatio: best.QualityScore,
		Rationale: fmt.Sprintf("best quality %.2f from %s model",
			best.QualityScore, best.Prediction.Timeframe),
	}
}

func topSignal(votes map[inference.Signal]int) (inference.Signal, int) {
	winner := inference.SignalHold
	best := 0
	for _, sig := range []inference.Signal{inference.SignalBuy, inference.SignalSell, inference.SignalHold} {
		if votes[sig] > best {
			winner = sig
			best = votes[sig]
		}
	}
	return winner, best
}
