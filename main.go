package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-signal-engine/config"
	"trading-signal-engine/internal/api"
	"trading-signal-engine/internal/auth"
	"trading-signal-engine/internal/confidence"
	"trading-signal-engine/internal/conformal"
	"trading-signal-engine/internal/consensus"
	"trading-signal-engine/internal/database"
	"trading-signal-engine/internal/ensemble"
	"trading-signal-engine/internal/events"
	"trading-signal-engine/internal/inference"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/pipeline"
	"trading-signal-engine/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Vault client holds the engine secrets; config values seed the
	// fallback cache when Vault is disabled or unreachable
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	vaultClient.Seed(vault.KeyJWTSecret, cfg.AuthConfig.JWTSecret)
	vaultClient.Seed(vault.KeyInferenceAPIKey, cfg.InferenceConfig.APIKey)

	ctx := context.Background()

	// Repository-layer logger
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Database is optional; without it the engine runs on the built-in
	// calibration set and skips the audit trail
	var (
		calibrationRepo *database.CalibrationRepository
		decisionRepo    *database.DecisionRepository
	)
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		calibrationRepo = database.NewCalibrationRepository(db, zlog)
		decisionRepo = database.NewDecisionRepository(db, zlog)
	}

	// Latest-signal cache; degrades to in-memory when Redis is absent
	var redisAddr string
	if cfg.RedisConfig.Enabled {
		redisAddr = cfg.RedisConfig.Address
	}
	redisClient := database.NewRedisClient(redisAddr, cfg.RedisConfig.Password, cfg.RedisConfig.DB, nil)
	signalCache := database.NewSignalCache(redisClient, database.DefaultSignalTTL, nil)

	// Inference engine: the external model runtime, or the deterministic
	// mock for development and replay
	var engine inference.Engine
	var provider inference.CandleProvider
	if cfg.InferenceConfig.MockMode {
		mock := inference.NewMockEngine()
		engine = mock
		provider = mock
		logger.Info("Using mock inference engine")
	} else {
		apiKey, err := vaultClient.GetSecret(ctx, vault.KeyInferenceAPIKey)
		if err != nil {
			logger.Warn("No inference API key available", "error", err)
		}
		httpEngine := inference.NewHTTPEngine(&inference.ClientConfig{
			BaseURL: cfg.InferenceConfig.BaseURL,
			APIKey:  apiKey,
			Timeout: cfg.InferenceConfig.Timeout,
		})
		engine = httpEngine
		provider = httpEngine
		logger.Info("Using model runtime", "base_url", cfg.InferenceConfig.BaseURL)
	}

	modelEnsemble := ensemble.NewModelEnsemble(engine, nil, nil)

	// Conformal gate, calibrated from storage when samples exist
	gateConfig := conformal.DefaultGateConfig()
	gateConfig.Alpha = cfg.DecisionConfig.Alpha
	gate := conformal.NewGate(gateConfig, nil, nil)

	mode, err := consensus.ModeByName(cfg.DecisionConfig.Mode)
	if err != nil {
		log.Fatalf("Invalid trading mode: %v", err)
	}

	calculator := confidence.NewCalculator(confidence.Weights{
		Agreement:   cfg.DecisionConfig.AgreementWeight,
		Uncertainty: cfg.DecisionConfig.UncertaintyWeight,
		Quality:     cfg.DecisionConfig.QualityWeight,
		Timeframe:   cfg.DecisionConfig.TimeframeWeight,
	}, nil)

	pipelineOpts := pipeline.Options{
		Provider:    provider,
		Ensemble:    modelEnsemble,
		Gate:        gate,
		Calculator:  calculator,
		Bus:         eventBus,
		Cache:       signalCache,
		Mode:        mode,
		CandleLimit: cfg.DecisionConfig.CandleLimit,
		MinInterval: cfg.DecisionConfig.MinCycleInterval,
	}
	if decisionRepo != nil {
		pipelineOpts.Recorder = decisionRepo
	}
	decisionEngine := pipeline.NewEngine(pipelineOpts)

	if calibrationRepo != nil {
		if err := decisionEngine.RefreshCalibration(ctx, calibrationRepo, ""); err != nil {
			logger.Warn("Initial calibration load failed, keeping defaults", "error", err)
		}
	}

	// Operator auth
	var authService *auth.Service
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtSecret, err := vaultClient.GetSecret(ctx, vault.KeyJWTSecret)
		if err != nil {
			log.Fatalf("Auth enabled but no JWT secret available: %v", err)
		}
		jwtManager = auth.NewJWTManager(jwtSecret, cfg.AuthConfig.AccessTokenDuration)
		authService = auth.NewService(jwtManager, cfg.AuthConfig.OperatorUser, cfg.AuthConfig.OperatorPassHash)
		logger.Info("Operator auth enabled", "user", cfg.AuthConfig.OperatorUser)
	}

	var calibrationStore api.CalibrationStore
	if calibrationRepo != nil {
		calibrationStore = calibrationRepo
	}

	server := api.NewServer(
		api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			Host:           cfg.ServerConfig.Host,
			ProductionMode: cfg.ServerConfig.ProductionMode,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		},
		decisionEngine,
		eventBus,
		authService,
		jwtManager,
		vaultClient,
		calibrationStore,
		cfg.DecisionConfig.Symbols,
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Background evaluation loop
	loopCtx, cancelLoop := context.WithCancel(ctx)
	go runEvaluationLoop(loopCtx, decisionEngine, cfg.DecisionConfig.Symbols, cfg.DecisionConfig.MinCycleInterval, logger)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancelLoop()

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}

// runEvaluationLoop cycles through the configured symbols on a fixed
// interval. Throttled cycles are expected when API refreshes race the
// loop; they are dropped silently.
func runEvaluationLoop(ctx context.Context, engine *pipeline.Engine, symbols []string, interval time.Duration, logger *logging.Logger) {
	if interval < pipeline.MinAllowedInterval {
		interval = pipeline.MinAllowedInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(symbols) == 0 {
				continue
			}
			symbol := symbols[idx%len(symbols)]
			idx++

			if _, err := engine.RunCycle(ctx, symbol); err != nil && err != pipeline.ErrThrottled {
				logger.Warn("Evaluation cycle failed", "symbol", symbol, "error", err)
			}
		}
	}
}
