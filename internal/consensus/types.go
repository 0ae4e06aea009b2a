package consensus

import (
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/inference"
)

// Strategy identifies the consensus rule that produced a result. Carried
// as a structured tag so downstream scoring never has to parse the
// human-readable rationale.
type Strategy string

const (
	StrategyMajority    Strategy = "majority"
	StrategyWeighted    Strategy = "weighted"
	StrategyUnanimous   Strategy = "unanimous"
	StrategyBestQuality Strategy = "best_quality"
)

// QualifiedPrediction is a prediction admitted into consensus. It exists
// only after passing the active mode's confidence, uncertainty and
// quality thresholds.
type QualifiedPrediction struct {
	Prediction        ensemble.PredictionResult  `json:"prediction"`
	Uncertainty       ensemble.UncertaintyResult `json:"uncertainty"`
	QualityScore      float64                    `json:"quality_score"`      // 0-1
	TimeframePriority float64                    `json:"timeframe_priority"` // (0,1]
}

// ConsensusResult is the output of one consensus strategy
type ConsensusResult struct {
	Signal        inference.Signal `json:"signal"`
	Confidence    float64          `json:"confidence"` // 0-1; 0 on HOLD fallback
	Strategy      Strategy         `json:"strategy"`
	AchievedRatio float64          `json:"achieved_ratio"` // vote or weight share of the winner
	Rationale     string           `json:"rationale"`      // display only
}

// ModeProcessingResult is the aggregate output of the mode engine
type ModeProcessingResult struct {
	Mode                   Mode                  `json:"mode"`
	Consensus              ConsensusResult       `json:"consensus"`
	ModeAdjustedConfidence float64               `json:"mode_adjusted_confidence"` // clamped to [0.5,0.9]
	Qualified              []QualifiedPrediction `json:"qualified_predictions"`
	ShouldExecute          bool                  `json:"should_execute"`
}
