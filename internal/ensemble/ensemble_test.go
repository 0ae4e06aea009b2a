package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/market"
)

// stubEngine returns canned predictions per timeframe
type stubEngine struct {
	predictions map[market.Timeframe]inference.RawPrediction
	failures    map[market.Timeframe]bool
}

func (s *stubEngine) Infer(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) (inference.RawPrediction, error) {
	if s.failures[tf] {
		return inference.RawPrediction{}, errors.New("model runtime unavailable")
	}
	if p, ok := s.predictions[tf]; ok {
		return p, nil
	}
	return inference.RawPrediction{Signal: inference.SignalHold, Confidence: 0.5, ModelID: "stub"}, nil
}

func makeCandles(n int) []market.Candle {
	candles := make([]market.Candle, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range candles {
		price := 100.0 + float64(i)*0.1
		openTime := base.Add(time.Duration(i) * time.Minute)
		candles[i] = market.Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      price,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price + 0.1,
			Volume:    1000,
			CloseTime: openTime.Add(time.Minute).UnixMilli() - 1,
		}
	}
	return candles
}

func TestEvaluateInsufficientDataFallback(t *testing.T) {
	engine := &stubEngine{}
	e := NewModelEnsemble(engine, nil, nil)

	windows := []market.Window{
		{Timeframe: "5m", Candles: makeCandles(market.MinCandles - 1)},
	}

	result := e.Evaluate(context.Background(), "BTCUSDT", windows)

	if len(result.Predictions) != 1 {
		t.Fatalf("Expected 1 prediction, got %d", len(result.Predictions))
	}
	p := result.Predictions[0]
	if p.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD fallback, got %s", p.Signal)
	}
	if p.Confidence != 0 {
		t.Errorf("Expected zero confidence, got %f", p.Confidence)
	}
	if p.Meta["reason"] != ReasonInsufficientData {
		t.Errorf("Expected reason %q, got %q", ReasonInsufficientData, p.Meta["reason"])
	}
	if !p.IsFallback() {
		t.Error("Fallback prediction not marked as fallback")
	}
}

func TestEvaluateInferenceFailureFallback(t *testing.T) {
	engine := &stubEngine{failures: map[market.Timeframe]bool{"1h": true}}
	e := NewModelEnsemble(engine, nil, nil)

	windows := []market.Window{
		{Timeframe: "1h", Candles: makeCandles(market.MinCandles)},
	}

	result := e.Evaluate(context.Background(), "BTCUSDT", windows)

	p := result.Predictions[0]
	if p.Signal != inference.SignalHold || p.Confidence != 0 {
		t.Errorf("Expected HOLD/0 fallback, got %s/%f", p.Signal, p.Confidence)
	}
	if p.Meta["reason"] != ReasonEvalFailed {
		t.Errorf("Expected reason %q, got %q", ReasonEvalFailed, p.Meta["reason"])
	}
}

func TestEvaluatePreservesWindowOrder(t *testing.T) {
	engine := &stubEngine{
		predictions: map[market.Timeframe]inference.RawPrediction{
			"5m": {Signal: inference.SignalBuy, Confidence: 0.6, ModelID: "m5"},
			"1h": {Signal: inference.SignalSell, Confidence: 0.7, ModelID: "m60"},
			"4h": {Signal: inference.SignalBuy, Confidence: 0.8, ModelID: "m240"},
		},
	}
	e := NewModelEnsemble(engine, nil, nil)

	windows := []market.Window{
		{Timeframe: "5m", Candles: makeCandles(60)},
		{Timeframe: "1h", Candles: makeCandles(60)},
		{Timeframe: "4h", Candles: makeCandles(60)},
	}

	result := e.Evaluate(context.Background(), "BTCUSDT", windows)

	if len(result.Predictions) != 3 || len(result.Uncertainties) != 3 {
		t.Fatalf("Expected 3 predictions and uncertainties, got %d/%d",
			len(result.Predictions), len(result.Uncertainties))
	}
	expected := []market.Timeframe{"5m", "1h", "4h"}
	for i, tf := range expected {
		if result.Predictions[i].Timeframe != tf {
			t.Errorf("Position %d: expected %s, got %s", i, tf, result.Predictions[i].Timeframe)
		}
	}
	if result.Predictions[2].Confidence != 0.8 {
		t.Errorf("Expected 4h confidence 0.8, got %f", result.Predictions[2].Confidence)
	}
}

func TestEvaluateClampsConfidence(t *testing.T) {
	engine := &stubEngine{
		predictions: map[market.Timeframe]inference.RawPrediction{
			"5m": {Signal: inference.SignalBuy, Confidence: 1.7, ModelID: "m5"},
		},
	}
	e := NewModelEnsemble(engine, nil, nil)

	result := e.Evaluate(context.Background(), "BTCUSDT", []market.Window{
		{Timeframe: "5m", Candles: makeCandles(60)},
	})

	if c := result.Predictions[0].Confidence; c != 1 {
		t.Errorf("Expected confidence clamped to 1, got %f", c)
	}
}

func TestCombineMajorityWinner(t *testing.T) {
	predictions := []PredictionResult{
		{Signal: inference.SignalBuy, Confidence: 0.8, Timestamp: time.Now()},
		{Signal: inference.SignalBuy, Confidence: 0.6, Timestamp: time.Now()},
		{Signal: inference.SignalSell, Confidence: 0.9, Timestamp: time.Now()},
	}

	combined := CombineMajority(predictions)

	if combined.Signal != inference.SignalBuy {
		t.Errorf("Expected BUY, got %s", combined.Signal)
	}
	if combined.Confidence != 0.7 {
		t.Errorf("Expected mean voter confidence 0.7, got %f", combined.Confidence)
	}
}

func TestCombineMajorityTieResolvesToHold(t *testing.T) {
	predictions := []PredictionResult{
		{Signal: inference.SignalBuy, Confidence: 0.8, Timestamp: time.Now()},
		{Signal: inference.SignalSell, Confidence: 0.8, Timestamp: time.Now()},
	}

	combined := CombineMajority(predictions)

	if combined.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD on tie, got %s", combined.Signal)
	}
	if combined.Confidence != 0 {
		t.Errorf("Expected zero confidence on tie, got %f", combined.Confidence)
	}
	if combined.Meta["reason"] != "vote_tie" {
		t.Errorf("Expected vote_tie reason, got %q", combined.Meta["reason"])
	}
}

func TestCombineMajorityEmpty(t *testing.T) {
	combined := CombineMajority(nil)
	if combined.Signal != inference.SignalHold {
		t.Errorf("Expected HOLD for empty set, got %s", combined.Signal)
	}
}

func TestSpreadEstimatorBounds(t *testing.T) {
	estimator := NewSpreadEstimator()

	pred := PredictionResult{Signal: inference.SignalBuy, Confidence: 0.7, Timeframe: "1h"}
	window := market.Window{Timeframe: "1h", Candles: makeCandles(60)}
	all := []PredictionResult{
		pred,
		{Signal: inference.SignalSell, Confidence: 0.4, Timeframe: "5m"},
	}

	unc := estimator.Estimate(pred, window, all)

	for name, v := range map[string]float64{
		"epistemic": unc.Epistemic,
		"aleatoric": unc.Aleatoric,
		"total":     unc.Total,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s escaped [0,1]: %f", name, v)
		}
	}
	if unc.IntervalLow < 0 || unc.IntervalHigh > 1 || unc.IntervalLow > unc.IntervalHigh {
		t.Errorf("Bad confidence interval [%f, %f]", unc.IntervalLow, unc.IntervalHigh)
	}
}
