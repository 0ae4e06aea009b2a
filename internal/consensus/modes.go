package consensus

import "fmt"

// Mode is a named trading mode with its own admission thresholds and
// consensus strategy.
type Mode string

const (
	ModeNormal    Mode = "normal"
	ModePrecision Mode = "precision"
)

// ModeConfig is the threshold table for one mode. The defaults below are
// behavioral policy, not derived values; keep them stable across releases
// unless the calibration data says otherwise.
type ModeConfig struct {
	Mode                  Mode     `json:"mode"`
	MinConfidence         float64  `json:"min_confidence"`
	MaxUncertainty        float64  `json:"max_uncertainty"`
	MinQuality            float64  `json:"min_quality"`
	Strategy              Strategy `json:"strategy"`
	RequiredMajorityRatio float64  `json:"required_majority_ratio"`
	ExecutionThreshold    float64  `json:"execution_threshold"`
	ConservativeScaling   float64  `json:"conservative_scaling"`
}

// NormalMode returns the permissive default mode: weighted consensus with
// moderate thresholds.
func NormalMode() ModeConfig {
	return ModeConfig{
		Mode:                  ModeNormal,
		MinConfidence:         0.55,
		MaxUncertainty:        0.35,
		MinQuality:            0.60,
		Strategy:              StrategyWeighted,
		RequiredMajorityRatio: 0.60,
		ExecutionThreshold:    0.65,
		ConservativeScaling:   0.90,
	}
}

// PrecisionMode returns the conservative cross-timeframe mode: unanimous
// consensus with tight thresholds.
func PrecisionMode() ModeConfig {
	return ModeConfig{
		Mode:                  ModePrecision,
		MinConfidence:         0.70,
		MaxUncertainty:        0.25,
		MinQuality:            0.75,
		Strategy:              StrategyUnanimous,
		RequiredMajorityRatio: 0.80,
		ExecutionThreshold:    0.80,
		ConservativeScaling:   0.85,
	}
}

// ModeByName resolves a mode name to its config
func ModeByName(name string) (ModeConfig, error) {
	switch Mode(name) {
	case ModeNormal:
		return NormalMode(), nil
	case ModePrecision:
		return PrecisionMode(), nil
	default:
		return ModeConfig{}, fmt.Errorf("unknown trading mode: %s", name)
	}
}
