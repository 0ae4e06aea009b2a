// Command replay-decisions runs the decision pipeline offline against a
// candles fixture (or the deterministic mock series) and prints the
// per-stage outcomes. Used to inspect how a mode or calibration change
// shifts decisions without a model runtime or database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"trading-signal-engine/internal/confidence"
	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/market"
	"trading-signal-engine/internal/pipeline"
)

// fixture is the optional candles input: timeframe name to candle series
type fixture map[string][]market.Candle

func main() {
	var (
		symbol      = flag.String("symbol", "BTCUSDT", "Symbol to evaluate")
		modeName    = flag.String("mode", "normal", "Trading mode (normal or precision)")
		alpha       = flag.Float64("alpha", 0.1, "Conformal significance level")
		fixturePath = flag.String("candles", "", "Optional candles fixture JSON (timeframe -> candle array)")
		cycles      = flag.Int("cycles", 1, "Number of cycles to run")
		verbose     = flag.Bool("v", false, "Print per-timeframe stage detail")
	)
	flag.Parse()

	logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr"}))

	mode, err := consensus.ModeByName(*modeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var provider inference.CandleProvider
	mock := inference.NewMockEngine()
	provider = mock
	if *fixturePath != "" {
		fx, err := loadFixture(*fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading fixture: %v\n", err)
			os.Exit(1)
		}
		provider = fixtureProvider{fixture: fx, fallback: mock}
	}

	gateConfig := conformal.DefaultGateConfig()
	gateConfig.Alpha = *alpha

	engine := pipeline.NewEngine(pipeline.Options{
		Provider:    provider,
		Ensemble:    ensemble.NewModelEnsemble(mock, nil, nil),
		Gate:        conformal.NewGate(gateConfig, nil, nil),
		Calculator:  confidence.NewCalculator(confidence.DefaultWeights(), nil),
		Mode:        mode,
		MinInterval: pipeline.MinAllowedInterval,
	})

	ctx := context.Background()
	for i := 0; i < *cycles; i++ {
		if i > 0 {
			time.Sleep(pipeline.MinAllowedInterval)
		}
		result, err := engine.RunCycle(ctx, *symbol)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cycle %d failed: %v\n", i+1, err)
			continue
		}
		printCycle(result, *verbose)
	}

	stats := engine.GateStatistics()
	fmt.Printf("\nGate: %d/%d passed (%.0f%%), avg interval width %.3f, alpha %.2f\n",
		stats.PassedEvaluations, stats.TotalEvaluations, stats.PassRate*100,
		stats.AverageIntervalWidth, stats.Alpha)
}

func printCycle(result *pipeline.CycleResult, verbose bool) {
	d := result.Display
	fmt.Printf("[%s] %s  %s  confidence=%.3f  risk=%s  execute=%v\n",
		result.CycleID[:8], result.Symbol, d.Signal, d.Confidence, d.RiskLevel, result.Mode.ShouldExecute)

	if !verbose {
		return
	}

	for i, pred := range result.Eval.Predictions {
		var unc ensemble.UncertaintyResult
		if i < len(result.Eval.Uncertainties) {
			unc = result.Eval.Uncertainties[i]
		}
		gateNote := "-"
		if i < len(result.Gated) {
			g := result.Gated[i]
			gateNote = fmt.Sprintf("gate=%v criteria=%d width=%.3f", g.PassesGate, g.CriteriaMet, g.IntervalWidth())
		}
		fmt.Printf("  %-4s %s conf=%.3f total_unc=%.3f  %s\n",
			pred.Timeframe, pred.Signal, pred.Confidence, unc.Total, gateNote)
	}
	fmt.Printf("  consensus: %s via %s (ratio %.2f) -> adjusted %.3f\n",
		result.Mode.Consensus.Signal, result.Mode.Consensus.Strategy,
		result.Mode.Consensus.AchievedRatio, result.Mode.ModeAdjustedConfidence)
	fmt.Printf("  meta: agreement=%.3f penalty=%.3f quality=%.3f timeframe=%.3f -> %.3f\n",
		result.Meta.AgreementScore, result.Meta.UncertaintyPenalty,
		result.Meta.QualityScore, result.Meta.TimeframeScore, result.Meta.FinalConfidence)
	for _, line := range d.DetailedInfo {
		fmt.Printf("  | %s\n", line)
	}
}

func loadFixture(path string) (fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", path, err)
	}
	return fx, nil
}

// fixtureProvider serves candles from the fixture where present and
// defers to the mock series otherwise.
type fixtureProvider struct {
	fixture  fixture
	fallback inference.CandleProvider
}

func (p fixtureProvider) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if candles, ok := p.fixture[string(tf)]; ok {
		if limit > 0 && len(candles) > limit {
			candles = candles[len(candles)-limit:]
		}
		return candles, nil
	}
	return p.fallback.Candles(ctx, symbol, tf, limit)
}
