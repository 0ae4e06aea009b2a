// Package display maps pipeline output into a presentation-safe payload.
// It owns the last line of defense: no BUY/SELL reaches a client unless
// the mode engine cleared it for execution, and the shown confidence is
// re-clamped into [0.5, 0.9] even though the calculator already
// guarantees the band.
package display

import (
	"fmt"

	"trading-signal-engine/internal/confidence"
	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/inference"
)

// ColorCoding is the client-side color hint for a signal
type ColorCoding string

const (
	ColorGreen   ColorCoding = "green"
	ColorRed     ColorCoding = "red"
	ColorNeutral ColorCoding = "gray"
)

// Intensity grades how strongly the client should render the signal
type Intensity string

const (
	IntensityStrong   Intensity = "strong"
	IntensityModerate Intensity = "moderate"
	IntensityWeak     Intensity = "weak"
)

// UIDisplayResult is the payload handed to presentation layers. The
// confidence here is never outside [0.5, 0.9].
type UIDisplayResult struct {
	Symbol       string              `json:"symbol"`
	Signal       inference.Signal    `json:"signal"`
	DisplayText  string              `json:"display_text"`
	Confidence   float64             `json:"confidence"`
	ColorCoding  ColorCoding         `json:"color_coding"`
	Intensity    Intensity           `json:"intensity"`
	RiskLevel    conformal.RiskLevel `json:"risk_level"`
	DetailedInfo []string            `json:"detailed_info"`
}

// Adapter builds display payloads
type Adapter struct{}

// NewAdapter creates a display adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Build maps the cycle outputs into a UIDisplayResult. The HOLD override
// fires when consensus is HOLD, execution was not cleared, or an
// actionable signal somehow arrives below 0.5 confidence.
func (a *Adapter) Build(
	symbol string,
	mode consensus.ModeProcessingResult,
	meta confidence.Result,
	gated []conformal.Result,
) UIDisplayResult {
	signal := mode.Consensus.Signal
	if signal == inference.SignalHold || !mode.ShouldExecute {
		signal = inference.SignalHold
	}

	conf := clampBand(meta.FinalConfidence)

	if signal != inference.SignalHold && conf < 0.5 {
		signal = inference.SignalHold
	}

	risk := worstRisk(gated)

	return UIDisplayResult{
		Symbol:       symbol,
		Signal:       signal,
		DisplayText:  displayText(symbol, signal),
		Confidence:   conf,
		ColorCoding:  colorFor(signal),
		Intensity:    intensityFor(signal, conf),
		RiskLevel:    risk,
		DetailedInfo: detailLines(mode, meta, gated, risk),
	}
}

func displayText(symbol string, signal inference.Signal) string {
	switch signal {
	case inference.SignalBuy:
		return fmt.Sprintf("Buy signal for %s", symbol)
	case inference.SignalSell:
		return fmt.Sprintf("Sell signal for %s", symbol)
	default:
		return fmt.Sprintf("%s: monitoring market conditions", symbol)
	}
}

func colorFor(signal inference.Signal) ColorCoding {
	switch signal {
	case inference.SignalBuy:
		return ColorGreen
	case inference.SignalSell:
		return ColorRed
	default:
		return ColorNeutral
	}
}

// intensityFor grades display strength from the banded confidence. HOLD
// is always weak regardless of the number behind it.
func intensityFor(signal inference.Signal, conf float64) Intensity {
	if signal == inference.SignalHold {
		return IntensityWeak
	}
	switch {
	case conf >= 0.8:
		return IntensityStrong
	case conf >= 0.65:
		return IntensityModerate
	default:
		return IntensityWeak
	}
}

func worstRisk(gated []conformal.Result) conformal.RiskLevel {
	risk := conformal.RiskLow
	for _, g := range gated {
		switch g.RiskLevel {
		case conformal.RiskHigh:
			return conformal.RiskHigh
		case conformal.RiskModerate:
			risk = conformal.RiskModerate
		}
	}
	return risk
}

func detailLines(
	mode consensus.ModeProcessingResult,
	meta confidence.Result,
	gated []conformal.Result,
	risk conformal.RiskLevel,
) []string {
	passed := 0
	for _, g := range gated {
		if g.PassesGate {
			passed++
		}
	}

	lines := []string{
		fmt.Sprintf("Mode: %s (%s consensus)", mode.Mode, mode.Consensus.Strategy),
		fmt.Sprintf("Gate: %d/%d predictions passed, %s risk", passed, len(gated), risk),
		fmt.Sprintf("Qualified timeframes: %d", len(mode.Qualified)),
		fmt.Sprintf("Scores: agreement %.2f, quality %.2f, timeframe %.2f",
			meta.AgreementScore, meta.QualityScore, meta.TimeframeScore),
	}
	if mode.Consensus.Rationale != "" {
		lines = append(lines, "Consensus: "+mode.Consensus.Rationale)
	}
	return lines
}

func clampBand(v float64) float64 {
	if v < confidence.BandFloor {
		return confidence.BandFloor
	}
	if v > confidence.BandCeil {
		return confidence.BandCeil
	}
	return v
}
