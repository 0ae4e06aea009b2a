// Package market holds the shared market-data types consumed by the
// decision pipeline: candles, timeframes and their priority weighting.
package market

// Candle represents one OHLCV bar
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// MinCandles is the minimum window length required for a timeframe to be
// eligible for inference. Shorter windows degrade to a neutral HOLD.
const MinCandles = 50

// Window is the candle history for one timeframe
type Window struct {
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// Sufficient reports whether the window carries enough candles for inference
func (w Window) Sufficient() bool {
	return len(w.Candles) >= MinCandles
}
