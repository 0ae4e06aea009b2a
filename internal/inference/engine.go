// Package inference defines the boundary to the external model runtime.
// The engine does not implement any model itself; it consumes per-timeframe
// predictions as opaque (signal, confidence, modelID) tuples.
package inference

import (
	"context"
	"time"

	"trading-signal-engine/internal/market"
)

// Signal is a model's directional opinion
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Valid reports whether s is a recognized signal value
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// RawPrediction is the output of one per-timeframe model invocation
type RawPrediction struct {
	Signal     Signal    `json:"signal"`
	Confidence float64   `json:"confidence"` // 0-1
	ModelID    string    `json:"model_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Engine invokes the external inference runtime for one timeframe.
// Implementations must be safe for concurrent use; the ensemble calls
// Infer for all timeframes in parallel.
type Engine interface {
	Infer(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) (RawPrediction, error)
}

// CandleProvider supplies the candle window for one timeframe. In
// production this is served by the same runtime that hosts the models;
// exchange connectivity is out of scope here.
type CandleProvider interface {
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}
