package confidence

import (
	"testing"

	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/market"
)

func buildSimpleEval(signals []inference.Signal, confs []float64, totals []float64) ensemble.EvaluationResult {
	timeframes := []market.Timeframe{"5m", "1h", "4h", "1h", "5m"}
	eval := ensemble.EvaluationResult{Symbol: "BTCUSDT"}
	for i := range signals {
		eval.Predictions = append(eval.Predictions, ensemble.PredictionResult{
			Timeframe:  timeframes[i%len(timeframes)],
			Signal:     signals[i],
			Confidence: confs[i],
		})
		eval.Uncertainties = append(eval.Uncertainties, ensemble.UncertaintyResult{
			Total:     totals[i],
			Epistemic: totals[i] / 2,
		})
	}
	return eval
}

func TestFinalConfidenceAlwaysInBand(t *testing.T) {
	calc := NewCalculator(DefaultWeights(), nil)

	cases := []struct {
		name  string
		eval  ensemble.EvaluationResult
		gated []conformal.Result
		mode  consensus.ModeProcessingResult
	}{
		{
			name: "empty everything",
			mode: consensus.ModeProcessingResult{Mode: consensus.ModeNormal},
		},
		{
			name: "all-zero predictions",
			eval: buildSimpleEval(
				[]inference.Signal{inference.SignalHold, inference.SignalHold, inference.SignalHold},
				[]float64{0, 0, 0},
				[]float64{1, 1, 1},
			),
			gated: []conformal.Result{
				{PassesGate: false, RiskLevel: conformal.RiskHigh},
				{PassesGate: false, RiskLevel: conformal.RiskHigh},
				{PassesGate: false, RiskLevel: conformal.RiskHigh},
			},
			mode: consensus.ModeProcessingResult{
				Mode:      consensus.ModePrecision,
				Consensus: consensus.ConsensusResult{Strategy: consensus.StrategyMajority},
			},
		},
		{
			name: "all-one predictions",
			eval: buildSimpleEval(
				[]inference.Signal{inference.SignalBuy, inference.SignalBuy, inference.SignalBuy},
				[]float64{1, 1, 1},
				[]float64{0, 0, 0},
			),
			gated: []conformal.Result{
				{PassesGate: true, Reliability: 1, RiskLevel: conformal.RiskLow},
				{PassesGate: true, Reliability: 1, RiskLevel: conformal.RiskLow},
				{PassesGate: true, Reliability: 1, RiskLevel: conformal.RiskLow},
			},
			mode: consensus.ModeProcessingResult{
				Mode: consensus.ModeNormal,
				Consensus: consensus.ConsensusResult{
					Signal:   inference.SignalBuy,
					Strategy: consensus.StrategyUnanimous,
				},
			},
		},
	}

	for _, tc := range cases {
		result := calc.Calculate(tc.eval, tc.gated, tc.mode)
		if result.FinalConfidence < BandFloor || result.FinalConfidence > BandCeil {
			t.Errorf("%s: final confidence %f escaped [%.1f, %.1f]",
				tc.name, result.FinalConfidence, BandFloor, BandCeil)
		}
	}
}

func TestSinglePredictionAgreementDefaults(t *testing.T) {
	calc := NewCalculator(DefaultWeights(), nil)

	eval := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy},
		[]float64{0.8},
		[]float64{0.1},
	)
	mode := consensus.ModeProcessingResult{
		Mode:      consensus.ModeNormal,
		Consensus: consensus.ConsensusResult{Signal: inference.SignalBuy, Strategy: consensus.StrategyBestQuality},
	}

	result := calc.Calculate(eval, nil, mode)

	if result.AgreementScore != 0.5 {
		t.Errorf("Expected neutral agreement 0.5 for single prediction, got %f", result.AgreementScore)
	}
	if result.FinalConfidence < BandFloor || result.FinalConfidence > BandCeil {
		t.Errorf("Final confidence %f escaped the band", result.FinalConfidence)
	}
}

func TestUnanimousBeatsMajorityCeterisParibus(t *testing.T) {
	calc := NewCalculator(DefaultWeights(), nil)

	eval := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy, inference.SignalBuy, inference.SignalBuy},
		[]float64{0.8, 0.8, 0.8},
		[]float64{0.1, 0.1, 0.1},
	)
	gated := []conformal.Result{
		{PassesGate: true, Reliability: 0.8, RiskLevel: conformal.RiskLow},
		{PassesGate: true, Reliability: 0.8, RiskLevel: conformal.RiskLow},
		{PassesGate: true, Reliability: 0.8, RiskLevel: conformal.RiskLow},
	}
	qualified := make([]consensus.QualifiedPrediction, 3)

	unanimous := consensus.ModeProcessingResult{
		Mode:      consensus.ModePrecision,
		Qualified: qualified,
		Consensus: consensus.ConsensusResult{
			Signal:   inference.SignalBuy,
			Strategy: consensus.StrategyUnanimous,
		},
	}
	majority := unanimous
	majority.Consensus.Strategy = consensus.StrategyMajority

	uResult := calc.Calculate(eval, gated, unanimous)
	mResult := calc.Calculate(eval, gated, majority)

	if uResult.FinalConfidence <= mResult.FinalConfidence {
		t.Errorf("Unanimous (%f) should strictly exceed majority (%f)",
			uResult.FinalConfidence, mResult.FinalConfidence)
	}
}

func TestPrecisionPenaltyForFewQualified(t *testing.T) {
	calc := NewCalculator(DefaultWeights(), nil)

	eval := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy, inference.SignalBuy, inference.SignalBuy},
		[]float64{0.8, 0.8, 0.8},
		[]float64{0.1, 0.1, 0.1},
	)

	full := consensus.ModeProcessingResult{
		Mode:      consensus.ModePrecision,
		Qualified: make([]consensus.QualifiedPrediction, 3),
		Consensus: consensus.ConsensusResult{Signal: inference.SignalBuy, Strategy: consensus.StrategyUnanimous},
	}
	thin := full
	thin.Qualified = make([]consensus.QualifiedPrediction, 1)

	fullResult := calc.Calculate(eval, nil, full)
	thinResult := calc.Calculate(eval, nil, thin)

	if thinResult.FinalConfidence >= fullResult.FinalConfidence {
		t.Errorf("One qualified timeframe (%f) should score below three (%f)",
			thinResult.FinalConfidence, fullResult.FinalConfidence)
	}
}

func TestWeightsSumWarnedNotEnforced(t *testing.T) {
	// Oversized weights are accepted; the output band still holds
	calc := NewCalculator(Weights{Agreement: 0.9, Uncertainty: 0.9, Quality: 0.9, Timeframe: 0.9}, nil)

	eval := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy, inference.SignalBuy},
		[]float64{0.9, 0.9},
		[]float64{0.05, 0.05},
	)
	mode := consensus.ModeProcessingResult{
		Mode:      consensus.ModeNormal,
		Consensus: consensus.ConsensusResult{Signal: inference.SignalBuy, Strategy: consensus.StrategyWeighted},
	}

	result := calc.Calculate(eval, nil, mode)
	if result.FinalConfidence < BandFloor || result.FinalConfidence > BandCeil {
		t.Errorf("Final confidence %f escaped the band with oversized weights", result.FinalConfidence)
	}
}

func TestHigherUncertaintyLowersConfidence(t *testing.T) {
	calc := NewCalculator(DefaultWeights(), nil)
	mode := consensus.ModeProcessingResult{
		Mode:      consensus.ModeNormal,
		Consensus: consensus.ConsensusResult{Signal: inference.SignalBuy, Strategy: consensus.StrategyWeighted},
	}

	calm := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy, inference.SignalBuy, inference.SignalBuy},
		[]float64{0.8, 0.8, 0.8},
		[]float64{0.05, 0.05, 0.05},
	)
	noisy := buildSimpleEval(
		[]inference.Signal{inference.SignalBuy, inference.SignalBuy, inference.SignalBuy},
		[]float64{0.8, 0.8, 0.8},
		[]float64{0.9, 0.9, 0.9},
	)

	calmResult := calc.Calculate(calm, nil, mode)
	noisyResult := calc.Calculate(noisy, nil, mode)

	if noisyResult.FinalConfidence >= calmResult.FinalConfidence {
		t.Errorf("High uncertainty (%f) should score below low uncertainty (%f)",
			noisyResult.FinalConfidence, calmResult.FinalConfidence)
	}
}
