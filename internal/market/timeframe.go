package market

// Timeframe represents a candle interval used for per-timeframe inference
type Timeframe string

const (
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
)

// DefaultTimeframes is the ordered set the ensemble evaluates. Higher
// timeframes carry more weight in consensus; the order here is the order
// results are reported in.
func DefaultTimeframes() []Timeframe {
	return []Timeframe{Timeframe5m, Timeframe1h, Timeframe4h}
}

// PriorityWeight returns the consensus weight of a timeframe. Higher
// timeframes are considered more reliable trend indicators.
func PriorityWeight(tf Timeframe) float64 {
	switch tf {
	case Timeframe4h:
		return 1.0
	case Timeframe1h:
		return 0.8
	case Timeframe5m:
		return 0.6
	default:
		return 0.5
	}
}

// Valid reports whether tf is a supported timeframe
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe5m, Timeframe1h, Timeframe4h:
		return true
	}
	return false
}
