package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trading-signal-engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("Connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		// Conformal calibration samples, one row per backtested
		// prediction/outcome pair
		`CREATE TABLE IF NOT EXISTS calibration_samples (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			predicted DECIMAL(10, 6) NOT NULL,
			actual DECIMAL(10, 6) NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_symbol ON calibration_samples(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_recorded_at ON calibration_samples(recorded_at)`,

		// Decision audit log, one row per completed evaluation cycle
		`CREATE TABLE IF NOT EXISTS signal_decisions (
			id SERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			mode VARCHAR(20) NOT NULL,
			strategy VARCHAR(20) NOT NULL,
			signal VARCHAR(4) NOT NULL,
			confidence DECIMAL(10, 6) NOT NULL,
			should_execute BOOLEAN NOT NULL,
			gate_pass_count INTEGER NOT NULL DEFAULT 0,
			gate_total_count INTEGER NOT NULL DEFAULT 0,
			risk_level VARCHAR(10),
			rationale TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON signal_decisions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON signal_decisions(created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_cycle ON signal_decisions(cycle_id, symbol)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("Database migrations complete", "count", len(migrations))
	return nil
}
