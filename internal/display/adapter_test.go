package display

import (
	"strings"
	"testing"

	"trading-signal-engine/internal/confidence"
	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/inference"
)

func modeResult(signal inference.Signal, shouldExecute bool) consensus.ModeProcessingResult {
	return consensus.ModeProcessingResult{
		Mode: consensus.ModeNormal,
		Consensus: consensus.ConsensusResult{
			Signal:   signal,
			Strategy: consensus.StrategyWeighted,
		},
		ShouldExecute: shouldExecute,
	}
}

func TestBuildExecutableBuy(t *testing.T) {
	adapter := NewAdapter()

	result := adapter.Build("BTCUSDT",
		modeResult(inference.SignalBuy, true),
		confidence.Result{FinalConfidence: 0.82},
		[]conformal.Result{{PassesGate: true, RiskLevel: conformal.RiskLow}},
	)

	if result.Signal != inference.SignalBuy {
		t.Errorf("Expected BUY, got %s", result.Signal)
	}
	if result.ColorCoding != ColorGreen {
		t.Errorf("Expected green, got %s", result.ColorCoding)
	}
	if result.Intensity != IntensityStrong {
		t.Errorf("Expected strong intensity at 0.82, got %s", result.Intensity)
	}
	if !strings.Contains(result.DisplayText, "Buy") {
		t.Errorf("Unexpected display text: %s", result.DisplayText)
	}
}

func TestBuildHoldOverrideWhenNotExecutable(t *testing.T) {
	adapter := NewAdapter()

	// BUY consensus that did not clear the execution threshold must
	// display as HOLD
	result := adapter.Build("BTCUSDT",
		modeResult(inference.SignalBuy, false),
		confidence.Result{FinalConfidence: 0.88},
		nil,
	)

	if result.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD override, got %s", result.Signal)
	}
	if result.ColorCoding != ColorNeutral {
		t.Errorf("Expected neutral color, got %s", result.ColorCoding)
	}
	if result.Intensity != IntensityWeak {
		t.Errorf("HOLD should always be weak, got %s", result.Intensity)
	}
	if !strings.Contains(result.DisplayText, "monitoring market conditions") {
		t.Errorf("Unexpected display text: %s", result.DisplayText)
	}
}

func TestBuildConfidenceAlwaysInBand(t *testing.T) {
	adapter := NewAdapter()

	// Adversarial meta results, including values the calculator should
	// never produce
	for _, conf := range []float64{-1, 0, 0.3, 0.5, 0.7, 0.9, 1, 5} {
		for _, signal := range []inference.Signal{inference.SignalBuy, inference.SignalSell, inference.SignalHold} {
			for _, execute := range []bool{true, false} {
				result := adapter.Build("BTCUSDT",
					modeResult(signal, execute),
					confidence.Result{FinalConfidence: conf},
					nil,
				)
				if result.Confidence < 0.5 || result.Confidence > 0.9 {
					t.Errorf("conf=%f signal=%s execute=%v: displayed confidence %f escaped [0.5,0.9]",
						conf, signal, execute, result.Confidence)
				}
			}
		}
	}
}

func TestBuildSellSignal(t *testing.T) {
	adapter := NewAdapter()

	result := adapter.Build("ETHUSDT",
		modeResult(inference.SignalSell, true),
		confidence.Result{FinalConfidence: 0.7},
		[]conformal.Result{{PassesGate: true, RiskLevel: conformal.RiskModerate}},
	)

	if result.Signal != inference.SignalSell {
		t.Errorf("Expected SELL, got %s", result.Signal)
	}
	if result.ColorCoding != ColorRed {
		t.Errorf("Expected red, got %s", result.ColorCoding)
	}
	if result.Intensity != IntensityModerate {
		t.Errorf("Expected moderate intensity at 0.7, got %s", result.Intensity)
	}
	if result.RiskLevel != conformal.RiskModerate {
		t.Errorf("Expected moderate risk, got %s", result.RiskLevel)
	}
}

func TestWorstRiskWins(t *testing.T) {
	adapter := NewAdapter()

	result := adapter.Build("BTCUSDT",
		modeResult(inference.SignalHold, false),
		confidence.Result{FinalConfidence: 0.6},
		[]conformal.Result{
			{RiskLevel: conformal.RiskLow},
			{RiskLevel: conformal.RiskHigh},
			{RiskLevel: conformal.RiskModerate},
		},
	)

	if result.RiskLevel != conformal.RiskHigh {
		t.Errorf("Expected worst risk high, got %s", result.RiskLevel)
	}
}

func TestDetailLinesIncludeGateCounts(t *testing.T) {
	adapter := NewAdapter()

	result := adapter.Build("BTCUSDT",
		modeResult(inference.SignalBuy, true),
		confidence.Result{FinalConfidence: 0.75},
		[]conformal.Result{
			{PassesGate: true, RiskLevel: conformal.RiskLow},
			{PassesGate: false, RiskLevel: conformal.RiskModerate},
		},
	)

	joined := strings.Join(result.DetailedInfo, "\n")
	if !strings.Contains(joined, "1/2") {
		t.Errorf("Expected gate pass count in details, got:\n%s", joined)
	}
	if !strings.Contains(joined, "weighted") {
		t.Errorf("Expected strategy in details, got:\n%s", joined)
	}
}
