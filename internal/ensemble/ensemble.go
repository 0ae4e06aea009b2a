// Package ensemble fans candle windows out to the per-timeframe models,
// normalizes their outputs into PredictionResults, attaches uncertainty,
// and can reduce the set to a single majority-vote result.
package ensemble

import (
	"context"
	"math"
	"sync"

	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/market"
)

// ModelEnsemble coordinates per-timeframe inference
type ModelEnsemble struct {
	engine    inference.Engine
	estimator UncertaintyEstimator
	logger    *logging.Logger
}

// NewModelEnsemble creates a new ensemble over the given inference engine
func NewModelEnsemble(engine inference.Engine, estimator UncertaintyEstimator, logger *logging.Logger) *ModelEnsemble {
	if estimator == nil {
		estimator = NewSpreadEstimator()
	}
	if logger == nil {
		logger = logging.WithComponent("ensemble")
	}
	return &ModelEnsemble{
		engine:    engine,
		estimator: estimator,
		logger:    logger,
	}
}

// Evaluate produces one PredictionResult and UncertaintyResult per window,
// in window order. Inference calls run concurrently and are joined before
// uncertainty estimation; no partial results are returned. A timeframe
// with too few candles or a failed inference call gets a HOLD stand-in,
// never an error.
func (m *ModelEnsemble) Evaluate(ctx context.Context, symbol string, windows []market.Window) EvaluationResult {
	predictions := make([]PredictionResult, len(windows))

	var wg sync.WaitGroup
	for i, w := range windows {
		if !w.Sufficient() {
			m.logger.Debug("Window below minimum, using neutral fallback",
				"symbol", symbol,
				"timeframe", string(w.Timeframe),
				"candles", len(w.Candles),
				"required", market.MinCandles)
			predictions[i] = holdFallback(w.Timeframe, ReasonInsufficientData)
			continue
		}

		wg.Add(1)
		go func(idx int, win market.Window) {
			defer wg.Done()
			predictions[idx] = m.inferOne(ctx, symbol, win)
		}(i, w)
	}
	wg.Wait()

	uncertainties := make([]UncertaintyResult, len(windows))
	for i := range predictions {
		uncertainties[i] = m.estimator.Estimate(predictions[i], windows[i], predictions)
	}

	return EvaluationResult{
		Symbol:        symbol,
		Predictions:   predictions,
		Uncertainties: uncertainties,
	}
}

func (m *ModelEnsemble) inferOne(ctx context.Context, symbol string, w market.Window) PredictionResult {
	raw, err := m.engine.Infer(ctx, symbol, w.Timeframe, w.Candles)
	if err != nil {
		m.logger.Warn("Inference failed, using neutral fallback",
			"symbol", symbol,
			"timeframe", string(w.Timeframe),
			"error", err)
		return holdFallback(w.Timeframe, ReasonEvalFailed)
	}

	conf := raw.Confidence
	if math.IsNaN(conf) || math.IsInf(conf, 0) || conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	return PredictionResult{
		Timeframe:  w.Timeframe,
		Signal:     raw.Signal,
		Confidence: conf,
		ModelID:    raw.ModelID,
		Timestamp:  raw.Timestamp,
	}
}

// CombineMajority reduces a prediction set to a single result by majority
// vote. The winning signal's confidence is the mean confidence of its
// voters; ties resolve to HOLD.
func CombineMajority(predictions []PredictionResult) PredictionResult {
	if len(predictions) == 0 {
		return holdFallback("", ReasonInsufficientData)
	}

	votes := make(map[inference.Signal]int)
	confSums := make(map[inference.Signal]float64)
	for _, p := range predictions {
		votes[p.Signal]++
		confSums[p.Signal] += p.Confidence
	}

	winner := inference.SignalHold
	best := 0
	tied := false
	for _, sig := range []inference.Signal{inference.SignalBuy, inference.SignalSell, inference.SignalHold} {
		n := votes[sig]
		if n > best {
			winner = sig
			best = n
			tied = false
		} else if n == best && n > 0 && sig != winner {
			tied = true
		}
	}

	if tied {
		return PredictionResult{
			Signal:     inference.SignalHold,
			Confidence: 0,
			ModelID:    "ensemble",
			Timestamp:  predictions[0].Timestamp,
			Meta:       map[string]string{"reason": "vote_tie"},
		}
	}

	return PredictionResult{
		Signal:     winner,
		Confidence: confSums[winner] / float64(best),
		ModelID:    "ensemble",
		Timestamp:  predictions[0].Timestamp,
	}
}
