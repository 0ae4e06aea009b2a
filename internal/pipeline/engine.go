// Package pipeline orchestrates one evaluation cycle: candles in, display
// payload out. Cycles are throttled, never queued; everything downstream
// of the throttle degrades to HOLD instead of failing.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-signal-engine/internal/confidence"
	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/database"
	"trading-signal-engine/internal/display"
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/events"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/market"
)

// ErrThrottled is returned when a cycle request arrives before the
// minimum interval has elapsed. The request is dropped, not queued.
var ErrThrottled = errors.New("evaluation cycle throttled")

// MinAllowedInterval is the hard floor for the cycle throttle
const MinAllowedInterval = 500 * time.Millisecond

// DecisionRecorder persists cycle audit records. Optional; a nil recorder
// disables auditing.
type DecisionRecorder interface {
	SaveDecision(ctx context.Context, d *database.SignalDecision) error
}

// CalibrationSource loads calibration samples for the conformal gate
type CalibrationSource interface {
	RecentSamples(ctx context.Context, symbol string, limit int) ([]database.CalibrationSample, error)
}

// CycleResult carries every stage output of one completed cycle
type CycleResult struct {
	CycleID  string                         `json:"cycle_id"`
	Symbol   string                         `json:"symbol"`
	Started  time.Time                      `json:"started"`
	Duration time.Duration                  `json:"duration"`
	Eval     ensemble.EvaluationResult      `json:"evaluation"`
	Gated    []conformal.Result             `json:"gated"`
	Mode     consensus.ModeProcessingResult `json:"mode"`
	Meta     confidence.Result              `json:"meta_confidence"`
	Display  display.UIDisplayResult        `json:"display"`
}

// Engine runs the decision pipeline
type Engine struct {
	provider   inference.CandleProvider
	ensemble   *ensemble.ModelEnsemble
	gate       *conformal.Gate
	modeEngine *consensus.Engine
	calculator *confidence.Calculator
	adapter    *display.Adapter
	bus        *events.EventBus
	cache      *database.SignalCache
	recorder   DecisionRecorder
	logger     *logging.Logger

	timeframes  []market.Timeframe
	candleLimit int
	minInterval time.Duration

	modeMu sync.RWMutex
	mode   consensus.ModeConfig

	cycleMu   sync.Mutex
	lastCycle map[string]time.Time
}

// Options configures the pipeline engine. Provider, Ensemble and Gate are
// required; everything else has a usable default or is optional.
type Options struct {
	Provider    inference.CandleProvider
	Ensemble    *ensemble.ModelEnsemble
	Gate        *conformal.Gate
	ModeEngine  *consensus.Engine
	Calculator  *confidence.Calculator
	Bus         *events.EventBus
	Cache       *database.SignalCache
	Recorder    DecisionRecorder
	Logger      *logging.Logger
	Mode        consensus.ModeConfig
	Timeframes  []market.Timeframe
	CandleLimit int
	MinInterval time.Duration
}

// NewEngine creates a pipeline engine
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("pipeline")
	}
	if opts.ModeEngine == nil {
		opts.ModeEngine = consensus.NewEngine(nil)
	}
	if opts.Calculator == nil {
		opts.Calculator = confidence.NewCalculator(confidence.DefaultWeights(), nil)
	}
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = market.DefaultTimeframes()
	}
	if opts.CandleLimit <= 0 {
		opts.CandleLimit = 100
	}
	if opts.MinInterval < MinAllowedInterval {
		opts.MinInterval = MinAllowedInterval
	}
	if opts.Mode.Mode == "" {
		opts.Mode = consensus.NormalMode()
	}

	return &Engine{
		provider:    opts.Provider,
		ensemble:    opts.Ensemble,
		gate:        opts.Gate,
		modeEngine:  opts.ModeEngine,
		calculator:  opts.Calculator,
		adapter:     display.NewAdapter(),
		bus:         opts.Bus,
		cache:       opts.Cache,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		timeframes:  opts.Timeframes,
		candleLimit: opts.CandleLimit,
		minInterval: opts.MinInterval,
		mode:        opts.Mode,
		lastCycle:   make(map[string]time.Time),
	}
}

// Mode returns the active mode config
func (e *Engine) Mode() consensus.ModeConfig {
	e.modeMu.RLock()
	defer e.modeMu.RUnlock()
	return e.mode
}

// SetMode switches the active trading mode by name
func (e *Engine) SetMode(name string) error {
	mode, err := consensus.ModeByName(name)
	if err != nil {
		return err
	}
	e.modeMu.Lock()
	e.mode = mode
	e.modeMu.Unlock()

	e.logger.Info("Trading mode changed", "mode", name)
	return nil
}

// GateStatistics returns the conformal gate's aggregate counters
func (e *Engine) GateStatistics() conformal.Statistics {
	return e.gate.Statistics()
}

// RefreshCalibration reloads the gate's calibration set from storage.
// An empty result set leaves the current calibration untouched.
func (e *Engine) RefreshCalibration(ctx context.Context, source CalibrationSource, symbol string) error {
	if source == nil {
		return nil
	}
	rows, err := source.RecentSamples(ctx, symbol, 500)
	if err != nil {
		return err
	}
	samples := make([]conformal.Sample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, conformal.Sample{Predicted: row.Predicted, Actual: row.Actual})
	}
	e.gate.SetCalibration(samples)

	if len(samples) > 0 {
		e.logger.Info("Calibration set refreshed", "symbol", symbol, "samples", len(samples))
		if e.bus != nil {
			e.bus.Publish(events.Event{
				Type: events.EventCalibrationSet,
				Data: map[string]interface{}{"symbol": symbol, "samples": len(samples)},
			})
		}
	}
	return nil
}

// RunCycle evaluates one symbol end to end. Requests inside the minimum
// interval return ErrThrottled and are otherwise dropped.
func (e *Engine) RunCycle(ctx context.Context, symbol string) (*CycleResult, error) {
	now := time.Now()

	e.cycleMu.Lock()
	last, seen := e.lastCycle[symbol]
	if seen && now.Sub(last) < e.minInterval {
		e.cycleMu.Unlock()
		if e.bus != nil {
			e.bus.PublishCycleThrottled(symbol, now.Sub(last).Milliseconds())
		}
		return nil, ErrThrottled
	}
	e.lastCycle[symbol] = now
	e.cycleMu.Unlock()

	cycleID := uuid.New().String()
	mode := e.Mode()
	logger := e.logger.WithCycleID(cycleID)

	logger.Debug("Cycle started", "symbol", symbol, "mode", string(mode.Mode))

	windows := e.fetchWindows(ctx, symbol, logger)
	eval := e.ensemble.Evaluate(ctx, symbol, windows)
	gated := e.gate.EvaluateAll(eval)
	modeResult := e.modeEngine.Process(eval, mode)
	meta := e.calculator.Calculate(eval, gated, modeResult)
	payload := e.adapter.Build(symbol, modeResult, meta, gated)

	result := &CycleResult{
		CycleID:  cycleID,
		Symbol:   symbol,
		Started:  now,
		Duration: time.Since(now),
		Eval:     eval,
		Gated:    gated,
		Mode:     modeResult,
		Meta:     meta,
		Display:  payload,
	}

	e.publish(result)
	e.store(ctx, result, logger)

	logger.Info("Cycle complete",
		"symbol", symbol,
		"signal", string(payload.Signal),
		"confidence", payload.Confidence,
		"should_execute", modeResult.ShouldExecute,
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// fetchWindows pulls candles for every configured timeframe. A failed
// fetch yields an empty window, which the ensemble treats as insufficient
// data; the cycle always proceeds.
func (e *Engine) fetchWindows(ctx context.Context, symbol string, logger *logging.Logger) []market.Window {
	windows := make([]market.Window, len(e.timeframes))
	for i, tf := range e.timeframes {
		windows[i] = market.Window{Timeframe: tf}
		if e.provider == nil {
			continue
		}
		candles, err := e.provider.Candles(ctx, symbol, tf, e.candleLimit)
		if err != nil {
			logger.Warn("Candle fetch failed, timeframe degrades to fallback",
				"symbol", symbol,
				"timeframe", string(tf),
				"error", err)
			continue
		}
		windows[i].Candles = candles
	}
	return windows
}

func (e *Engine) publish(result *CycleResult) {
	if e.bus == nil {
		return
	}
	e.bus.PublishSignalUpdate(result.CycleID, result.Symbol, result.Display)
	e.bus.PublishGateUpdate(result.Symbol, e.gate.Statistics())
	e.bus.PublishModeStatus(result.Symbol,
		string(result.Mode.Mode),
		string(result.Mode.Consensus.Strategy),
		result.Mode.ShouldExecute)
	e.bus.PublishCycleCompleted(result.CycleID, result.Symbol, result.Duration.Milliseconds())
}

// store caches the display payload and records the audit row, both
// best-effort.
func (e *Engine) store(ctx context.Context, result *CycleResult, logger *logging.Logger) {
	if e.cache != nil {
		if err := e.cache.Store(ctx, result.Symbol, result.Display); err != nil {
			logger.Warn("Failed to cache signal payload", "symbol", result.Symbol, "error", err)
		}
	}

	if e.recorder == nil {
		return
	}
	passed := 0
	for _, g := range result.Gated {
		if g.PassesGate {
			passed++
		}
	}
	decision := &database.SignalDecision{
		CycleID:        result.CycleID,
		Symbol:         result.Symbol,
		Mode:           string(result.Mode.Mode),
		Strategy:       string(result.Mode.Consensus.Strategy),
		Signal:         string(result.Display.Signal),
		Confidence:     result.Display.Confidence,
		ShouldExecute:  result.Mode.ShouldExecute,
		GatePassCount:  passed,
		GateTotalCount: len(result.Gated),
		RiskLevel:      string(result.Display.RiskLevel),
		Rationale:      result.Mode.Consensus.Rationale,
	}
	if err := e.recorder.SaveDecision(ctx, decision); err != nil {
		logger.Warn("Failed to record decision", "symbol", result.Symbol, "error", err)
	}
}

// LatestSignal returns the most recent cached display payload for a
// symbol, when one exists.
func (e *Engine) LatestSignal(ctx context.Context, symbol string) (display.UIDisplayResult, bool) {
	var payload display.UIDisplayResult
	if e.cache == nil {
		return payload, false
	}
	ok, err := e.cache.Load(ctx, symbol, &payload)
	if err != nil {
		e.logger.Warn("Failed to load cached signal", "symbol", symbol, "error", err)
		return payload, false
	}
	return payload, ok
}
