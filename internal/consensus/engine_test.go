package consensus

import (
	"reflect"
	"testing"
	"time"

	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/market"
)

func evalResult(entries ...struct {
	tf     market.Timeframe
	signal inference.Signal
	conf   float64
	total  float64
}) ensemble.EvaluationResult {
	eval := ensemble.EvaluationResult{Symbol: "BTCUSDT"}
	now := time.Now()
	for _, e := range entries {
		eval.Predictions = append(eval.Predictions, ensemble.PredictionResult{
			Timeframe:  e.tf,
			Signal:     e.signal,
			Confidence: e.conf,
			ModelID:    "test",
			Timestamp:  now,
		})
		eval.Uncertainties = append(eval.Uncertainties, ensemble.UncertaintyResult{
			Total: e.total,
		})
	}
	return eval
}

type entry = struct {
	tf     market.Timeframe
	signal inference.Signal
	conf   float64
	total  float64
}

func TestNormalModeAllBuyExecutes(t *testing.T) {
	// Three aligned BUY predictions with low uncertainty in normal mode
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 0.8, 0.1},
		entry{"1h", inference.SignalBuy, 0.75, 0.1},
		entry{"4h", inference.SignalBuy, 0.9, 0.1},
	)

	e := NewEngine(nil)
	result := e.Process(eval, NormalMode())

	if result.Consensus.Signal != inference.SignalBuy {
		t.Fatalf("Expected BUY consensus, got %s", result.Consensus.Signal)
	}
	if result.Consensus.AchievedRatio != 1.0 {
		t.Errorf("Expected achieved ratio 1.0, got %f", result.Consensus.AchievedRatio)
	}
	if result.Consensus.Strategy != StrategyWeighted {
		t.Errorf("Expected weighted strategy tag, got %s", result.Consensus.Strategy)
	}
	if len(result.Qualified) != 3 {
		t.Errorf("Expected all 3 predictions qualified, got %d", len(result.Qualified))
	}
	if !result.ShouldExecute {
		t.Errorf("Expected shouldExecute, adjusted confidence %f vs threshold %f",
			result.ModeAdjustedConfidence, NormalMode().ExecutionThreshold)
	}
}

func TestPrecisionModeDisagreementHolds(t *testing.T) {
	// Split signals in precision mode: none qualify (confidences below the
	// 0.70 floor) and the result is a zero-confidence HOLD
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 0.6, 0.1},
		entry{"1h", inference.SignalSell, 0.6, 0.1},
		entry{"4h", inference.SignalHold, 0.6, 0.1},
	)

	e := NewEngine(nil)
	result := e.Process(eval, PrecisionMode())

	if result.Consensus.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD, got %s", result.Consensus.Signal)
	}
	if result.Consensus.Confidence != 0 {
		t.Errorf("Expected zero consensus confidence, got %f", result.Consensus.Confidence)
	}
	if result.ShouldExecute {
		t.Error("Expected shouldExecute=false")
	}
}

func TestPrecisionModeUnanimousDisagreementHolds(t *testing.T) {
	// All qualify in precision mode but signals split, so the unanimous
	// strategy falls back to HOLD
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 0.85, 0.1},
		entry{"1h", inference.SignalSell, 0.85, 0.1},
		entry{"4h", inference.SignalBuy, 0.85, 0.1},
	)

	e := NewEngine(nil)
	result := e.Process(eval, PrecisionMode())

	if len(result.Qualified) != 3 {
		t.Fatalf("Expected 3 qualified, got %d", len(result.Qualified))
	}
	if result.Consensus.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD for non-unanimous set, got %s", result.Consensus.Signal)
	}
	if result.ShouldExecute {
		t.Error("Expected shouldExecute=false")
	}
}

func TestProcessIdempotent(t *testing.T) {
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 0.8, 0.1},
		entry{"1h", inference.SignalSell, 0.7, 0.2},
		entry{"4h", inference.SignalBuy, 0.9, 0.05},
	)

	e := NewEngine(nil)
	first := e.Process(eval, NormalMode())
	second := e.Process(eval, NormalMode())

	if !reflect.DeepEqual(first, second) {
		t.Error("Process is not deterministic for identical inputs")
	}
}

func TestQualifyFiltersFallbacksAndThresholds(t *testing.T) {
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 0.8, 0.1},  // qualifies
		entry{"1h", inference.SignalBuy, 0.5, 0.1},  // below min confidence
		entry{"4h", inference.SignalBuy, 0.8, 0.5},  // too uncertain
	)
	// Fallback prediction never qualifies regardless of numbers
	eval.Predictions = append(eval.Predictions, ensemble.PredictionResult{
		Timeframe:  "1h",
		Signal:     inference.SignalHold,
		Confidence: 0,
		Meta:       map[string]string{"reason": ensemble.ReasonEvalFailed},
	})
	eval.Uncertainties = append(eval.Uncertainties, ensemble.UncertaintyResult{Total: 0.1})

	e := NewEngine(nil)
	qualified := e.Qualify(eval, NormalMode())

	if len(qualified) != 1 {
		t.Fatalf("Expected exactly 1 qualified prediction, got %d", len(qualified))
	}
	if qualified[0].Prediction.Timeframe != "5m" {
		t.Errorf("Wrong prediction qualified: %s", qualified[0].Prediction.Timeframe)
	}
	if qualified[0].TimeframePriority != market.PriorityWeight("5m") {
		t.Errorf("Expected priority %f, got %f", market.PriorityWeight("5m"), qualified[0].TimeframePriority)
	}
}

func TestRunStrategyEmptySetHolds(t *testing.T) {
	for _, strategy := range []Strategy{StrategyMajority, StrategyWeighted, StrategyUnanimous, StrategyBestQuality} {
		result := RunStrategy(strategy, nil, 0.6)
		if result.Signal != inference.SignalHold || result.Confidence != 0 {
			t.Errorf("%s: expected HOLD/0 for empty set, got %s/%f",
				strategy, result.Signal, result.Confidence)
		}
		if result.Strategy != strategy {
			t.Errorf("%s: strategy tag lost, got %s", strategy, result.Strategy)
		}
	}
}

func qualifiedSet(entries ...entry) []QualifiedPrediction {
	var out []QualifiedPrediction
	for _, e := range entries {
		out = append(out, QualifiedPrediction{
			Prediction: ensemble.PredictionResult{
				Timeframe:  e.tf,
				Signal:     e.signal,
				Confidence: e.conf,
			},
			Uncertainty:       ensemble.UncertaintyResult{Total: e.total},
			QualityScore:      QualityScore(e.conf, e.total),
			TimeframePriority: market.PriorityWeight(e.tf),
		})
	}
	return out
}

func TestMajorityConsensusScalesByRatio(t *testing.T) {
	qualified := qualifiedSet(
		entry{"5m", inference.SignalBuy, 0.8, 0.1},
		entry{"1h", inference.SignalBuy, 0.6, 0.1},
		entry{"4h", inference.SignalSell, 0.9, 0.1},
	)

	result := RunStrategy(StrategyMajority, qualified, 0.6)

	if result.Signal != inference.SignalBuy {
		t.Fatalf("Expected BUY, got %s", result.Signal)
	}
	// Mean of winners (0.7) scaled by achieved ratio (2/3)
	expected := 0.7 * (2.0 / 3.0)
	if diff := result.Confidence - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected confidence %f, got %f", expected, result.Confidence)
	}
}

func TestMajorityConsensusBelowRatioHolds(t *testing.T) {
	qualified := qualifiedSet(
		entry{"5m", inference.SignalBuy, 0.8, 0.1},
		entry{"1h", inference.SignalSell, 0.8, 0.1},
	)

	result := RunStrategy(StrategyMajority, qualified, 0.6)
	if result.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD when no signal reaches 0.6 share, got %s", result.Signal)
	}
}

func TestBestQualityConsensusAdoptsTopPrediction(t *testing.T) {
	qualified := qualifiedSet(
		entry{"5m", inference.SignalSell, 0.7, 0.3},
		entry{"4h", inference.SignalBuy, 0.9, 0.05},
	)

	result := RunStrategy(StrategyBestQuality, qualified, 0)
	if result.Signal != inference.SignalBuy || result.Confidence != 0.9 {
		t.Errorf("Expected verbatim best prediction BUY/0.9, got %s/%f",
			result.Signal, result.Confidence)
	}
}

func TestModeAdjustedConfidenceClampedToBand(t *testing.T) {
	e := NewEngine(nil)

	// High consensus confidence still clamps to 0.9
	eval := evalResult(
		entry{"5m", inference.SignalBuy, 1.0, 0.0},
		entry{"1h", inference.SignalBuy, 1.0, 0.0},
		entry{"4h", inference.SignalBuy, 1.0, 0.0},
	)
	result := e.Process(eval, NormalMode())
	if result.ModeAdjustedConfidence < ConfidenceFloor || result.ModeAdjustedConfidence > ConfidenceCeil {
		t.Errorf("Adjusted confidence escaped band: %f", result.ModeAdjustedConfidence)
	}

	// Zero-confidence HOLD clamps up to 0.5 but never executes
	empty := e.Process(ensemble.EvaluationResult{Symbol: "BTCUSDT"}, NormalMode())
	if empty.ModeAdjustedConfidence != ConfidenceFloor {
		t.Errorf("Expected floor %f, got %f", ConfidenceFloor, empty.ModeAdjustedConfidence)
	}
	if empty.ShouldExecute {
		t.Error("Empty evaluation must not execute")
	}
}

func TestModeByName(t *testing.T) {
	if _, err := ModeByName("precision"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if _, err := ModeByName("aggressive"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
