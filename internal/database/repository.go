package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// CalibrationRepository reads and writes conformal calibration samples
type CalibrationRepository struct {
	db     *DB
	logger zerolog.Logger
}

// NewCalibrationRepository creates a calibration repository
func NewCalibrationRepository(db *DB, logger zerolog.Logger) *CalibrationRepository {
	return &CalibrationRepository{
		db:     db,
		logger: logger.With().Str("component", "CalibrationRepository").Logger(),
	}
}

// SaveSample persists one calibration sample
func (r *CalibrationRepository) SaveSample(ctx context.Context, sample *CalibrationSample) error {
	query := `
		INSERT INTO calibration_samples (symbol, timeframe, predicted, actual)
		VALUES ($1, $2, $3, $4)
		RETURNING id, recorded_at`

	err := r.db.Pool.QueryRow(ctx, query,
		sample.Symbol,
		sample.Timeframe,
		sample.Predicted,
		sample.Actual,
	).Scan(&sample.ID, &sample.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to save calibration sample: %w", err)
	}

	r.logger.Debug().
		Str("symbol", sample.Symbol).
		Str("timeframe", sample.Timeframe).
		Float64("predicted", sample.Predicted).
		Float64("actual", sample.Actual).
		Msg("Calibration sample saved")
	return nil
}

// RecentSamples returns the most recent calibration samples for a symbol,
// newest first. Pass an empty symbol to read across all symbols.
func (r *CalibrationRepository) RecentSamples(ctx context.Context, symbol string, limit int) ([]CalibrationSample, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, symbol, timeframe, predicted, actual, recorded_at
		FROM calibration_samples
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration samples: %w", err)
	}
	defer rows.Close()

	var samples []CalibrationSample
	for rows.Next() {
		var s CalibrationSample
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Timeframe, &s.Predicted, &s.Actual, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calibration sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DecisionRepository records the decision audit trail
type DecisionRepository struct {
	db     *DB
	logger zerolog.Logger
}

// NewDecisionRepository creates a decision repository
func NewDecisionRepository(db *DB, logger zerolog.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger.With().Str("component", "DecisionRepository").Logger(),
	}
}

// SaveDecision persists one cycle's decision record
func (r *DecisionRepository) SaveDecision(ctx context.Context, d *SignalDecision) error {
	query := `
		INSERT INTO signal_decisions (
			cycle_id, symbol, mode, strategy, signal, confidence,
			should_execute, gate_pass_count, gate_total_count, risk_level, rationale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cycle_id, symbol) DO NOTHING
		RETURNING id, created_at`

	err := r.db.Pool.QueryRow(ctx, query,
		d.CycleID,
		d.Symbol,
		d.Mode,
		d.Strategy,
		d.Signal,
		d.Confidence,
		d.ShouldExecute,
		d.GatePassCount,
		d.GateTotalCount,
		d.RiskLevel,
		d.Rationale,
	).Scan(&d.ID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate cycle, already recorded
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save signal decision: %w", err)
	}

	r.logger.Debug().
		Str("cycle_id", d.CycleID).
		Str("symbol", d.Symbol).
		Str("signal", d.Signal).
		Bool("should_execute", d.ShouldExecute).
		Msg("Signal decision recorded")
	return nil
}

// RecentDecisions returns recent decisions for a symbol, newest first
func (r *DecisionRepository) RecentDecisions(ctx context.Context, symbol string, limit int) ([]SignalDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, cycle_id, symbol, mode, strategy, signal, confidence,
			should_execute, gate_pass_count, gate_total_count, risk_level, rationale, created_at
		FROM signal_decisions
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal decisions: %w", err)
	}
	defer rows.Close()

	var decisions []SignalDecision
	for rows.Next() {
		var d SignalDecision
		if err := rows.Scan(
			&d.ID, &d.CycleID, &d.Symbol, &d.Mode, &d.Strategy, &d.Signal,
			&d.Confidence, &d.ShouldExecute, &d.GatePassCount, &d.GateTotalCount,
			&d.RiskLevel, &d.Rationale, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
