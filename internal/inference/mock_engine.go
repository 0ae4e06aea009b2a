package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"trading-signal-engine/internal/market"
)

// MockEngine is a deterministic stand-in for the model runtime, used in
// development and tests. Predictions are derived from the candle window
// itself (recent momentum and its consistency), so identical inputs always
// produce identical outputs.
type MockEngine struct {
	// FailTimeframes simulates per-timeframe runtime failures
	FailTimeframes map[market.Timeframe]bool
}

// NewMockEngine creates a new mock engine
func NewMockEngine() *MockEngine {
	return &MockEngine{FailTimeframes: make(map[market.Timeframe]bool)}
}

// Infer derives a prediction from the momentum of the supplied window
func (e *MockEngine) Infer(_ context.Context, symbol string, tf market.Timeframe, candles []market.Candle) (RawPrediction, error) {
	if e.FailTimeframes[tf] {
		return RawPrediction{}, fmt.Errorf("mock runtime failure for %s", tf)
	}
	if len(candles) < 2 {
		return RawPrediction{}, fmt.Errorf("mock runtime needs at least 2 candles, got %d", len(candles))
	}

	// Momentum over the last quarter of the window
	span := len(candles) / 4
	if span < 2 {
		span = 2
	}
	recent := candles[len(candles)-span:]
	first := recent[0].Close
	last := recent[len(recent)-1].Close
	if first == 0 {
		return RawPrediction{}, fmt.Errorf("mock runtime got zero-price candle")
	}
	momentum := (last - first) / first

	// Consistency: fraction of up-moves among recent candles
	ups := 0
	for i := 1; i < len(recent); i++ {
		if recent[i].Close > recent[i-1].Close {
			ups++
		}
	}
	consistency := float64(ups) / float64(len(recent)-1)

	signal := SignalHold
	confidence := 0.5
	switch {
	case momentum > 0.001:
		signal = SignalBuy
		confidence = clamp01(0.5 + math.Min(math.Abs(momentum)*50, 0.3) + 0.2*(consistency-0.5))
	case momentum < -0.001:
		signal = SignalSell
		confidence = clamp01(0.5 + math.Min(math.Abs(momentum)*50, 0.3) + 0.2*(0.5-consistency))
	}

	return RawPrediction{
		Signal:     signal,
		Confidence: confidence,
		ModelID:    fmt.Sprintf("mock-%s-v1", tf),
		Timestamp:  time.Now(),
	}, nil
}

// Candles synthesizes a deterministic price series for a symbol. The series
// is a drifting sine wave seeded by the symbol name, good enough to drive
// the pipeline end to end without an exchange.
func (e *MockEngine) Candles(_ context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}

	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := float64(h.Sum32() % 1000)
	base := 100.0 + seed

	step := tfStep(tf)
	now := time.Now().Truncate(step)
	start := now.Add(-time.Duration(limit) * step)

	candles := make([]market.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		t := float64(i)
		drift := base * 0.0002 * t
		wave := base * 0.01 * math.Sin(t/9+seed)
		open := base + drift + wave
		close := base + drift + base*0.01*math.Sin((t+1)/9+seed)
		high := math.Max(open, close) * 1.002
		low := math.Min(open, close) * 0.998

		openTime := start.Add(time.Duration(i) * step)
		candles = append(candles, market.Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + 100*math.Abs(math.Sin(t/5+seed)),
			CloseTime: openTime.Add(step).UnixMilli() - 1,
		})
	}

	return candles, nil
}

func tfStep(tf market.Timeframe) time.Duration {
	switch tf {
	case market.Timeframe5m:
		return 5 * time.Minute
	case market.Timeframe1h:
		return time.Hour
	case market.Timeframe4h:
		return 4 * time.Hour
	default:
		return time.Hour
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
