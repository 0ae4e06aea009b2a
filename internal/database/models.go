package database

import "time"

// CalibrationSample is one prediction/outcome pair used to calibrate the
// conformal gate.
type CalibrationSample struct {
	ID         int       `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Predicted  float64   `json:"predicted"`
	Actual     float64   `json:"actual"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SignalDecision is the audit record of one evaluation cycle
type SignalDecision struct {
	ID             int       `json:"id"`
	CycleID        string    `json:"cycle_id"`
	Symbol         string    `json:"symbol"`
	Mode           string    `json:"mode"`
	Strategy       string    `json:"strategy"`
	Signal         string    `json:"signal"`
	Confidence     float64   `json:"confidence"`
	ShouldExecute  bool      `json:"should_execute"`
	GatePassCount  int       `json:"gate_pass_count"`
	GateTotalCount int       `json:"gate_total_count"`
	RiskLevel      string    `json:"risk_level"`
	Rationale      string    `json:"rationale"`
	CreatedAt      time.Time `json:"created_at"`
}
