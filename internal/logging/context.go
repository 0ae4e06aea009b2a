package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// SignalContext creates a logger context for per-timeframe predictions
func SignalContext(symbol, timeframe string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"timeframe":  timeframe,
		"confidence": confidence,
	}).WithComponent("signal")
}

// GateContext creates a logger context for conformal gate decisions
func GateContext(symbol string, alpha float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"alpha":  alpha,
	}).WithComponent("gate")
}

// ConsensusContext creates a logger context for mode consensus decisions
func ConsensusContext(symbol, mode, strategy string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"mode":     mode,
		"strategy": strategy,
	}).WithComponent("consensus")
}

// CycleContext creates a logger context for one decision cycle
func CycleContext(cycleID, symbol, mode string) *Logger {
	return Default().WithCycleID(cycleID).WithFields(map[string]interface{}{
		"symbol": symbol,
		"mode":   mode,
	}).WithComponent("pipeline")
}
