package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	AuthConfig      AuthConfig      `json:"auth"`
	VaultConfig     VaultConfig     `json:"vault"`
	RedisConfig     RedisConfig     `json:"redis"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	InferenceConfig InferenceConfig `json:"inference"`
	DecisionConfig  DecisionConfig  `json:"decision"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ProductionMode  bool   `json:"production_mode"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// AuthConfig holds authentication configuration for the operator API
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	OperatorUser        string        `json:"operator_user"`
	OperatorPassHash    string        `json:"operator_pass_hash"` // bcrypt hash
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path for engine secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the latest-signal cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds PostgreSQL configuration for calibration samples
// and the decision audit log.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// InferenceConfig holds configuration for the external model runtime
type InferenceConfig struct {
	BaseURL  string        `json:"base_url"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout"`
	MockMode bool          `json:"mock_mode"` // Use deterministic mock engine instead of the runtime
}

// DecisionConfig holds the tunables of the decision pipeline. Threshold
// tables for each trading mode live in the consensus package; this config
// carries the knobs an operator actually changes between deployments.
type DecisionConfig struct {
	Mode             string        `json:"mode"`  // "normal" or "precision"
	Alpha            float64       `json:"alpha"` // Conformal significance level
	Symbols          []string      `json:"symbols"`
	MinCycleInterval time.Duration `json:"min_cycle_interval"`
	CandleLimit      int           `json:"candle_limit"` // Candles fetched per timeframe

	// Meta-confidence component weights
	AgreementWeight   float64 `json:"agreement_weight"`
	UncertaintyWeight float64 `json:"uncertainty_weight"`
	QualityWeight     float64 `json:"quality_weight"`
	TimeframeWeight   float64 `json:"timeframe_weight"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION_MODE", "false") == "true"
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", "operator")
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "signal-engine/secrets")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.VaultConfig.CACert)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "signal_engine")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "signal_engine")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Inference config
	cfg.InferenceConfig.BaseURL = getEnvOrDefault("INFERENCE_BASE_URL", "http://localhost:9000")
	cfg.InferenceConfig.APIKey = getEnvOrDefault("INFERENCE_API_KEY", cfg.InferenceConfig.APIKey)
	cfg.InferenceConfig.Timeout = getEnvDurationOrDefault("INFERENCE_TIMEOUT", 5*time.Second)
	cfg.InferenceConfig.MockMode = getEnvOrDefault("INFERENCE_MOCK_MODE", "false") == "true"

	// Decision config
	cfg.DecisionConfig.Mode = getEnvOrDefault("DECISION_MODE", "normal")
	cfg.DecisionConfig.Alpha = getEnvFloatOrDefault("DECISION_ALPHA", 0.1)
	if len(cfg.DecisionConfig.Symbols) == 0 {
		cfg.DecisionConfig.Symbols = []string{"BTCUSDT"}
	}
	cfg.DecisionConfig.MinCycleInterval = getEnvDurationOrDefault("DECISION_MIN_CYCLE_INTERVAL", 2*time.Second)
	cfg.DecisionConfig.CandleLimit = getEnvIntOrDefault("DECISION_CANDLE_LIMIT", 100)
	cfg.DecisionConfig.AgreementWeight = getEnvFloatOrDefault("DECISION_AGREEMENT_WEIGHT", 0.30)
	cfg.DecisionConfig.UncertaintyWeight = getEnvFloatOrDefault("DECISION_UNCERTAINTY_WEIGHT", 0.25)
	cfg.DecisionConfig.QualityWeight = getEnvFloatOrDefault("DECISION_QUALITY_WEIGHT", 0.30)
	cfg.DecisionConfig.TimeframeWeight = getEnvFloatOrDefault("DECISION_TIMEFRAME_WEIGHT", 0.15)
}

// Validate performs basic sanity checks on the loaded configuration
func (c *Config) Validate() error {
	if c.DecisionConfig.Mode != "normal" && c.DecisionConfig.Mode != "precision" {
		return fmt.Errorf("invalid decision mode: %s (expected normal or precision)", c.DecisionConfig.Mode)
	}
	if c.DecisionConfig.Alpha <= 0 || c.DecisionConfig.Alpha >= 1 {
		return fmt.Errorf("invalid alpha: %f (expected 0 < alpha < 1)", c.DecisionConfig.Alpha)
	}
	if c.DecisionConfig.MinCycleInterval < 500*time.Millisecond {
		return fmt.Errorf("min_cycle_interval must be at least 500ms, got %s", c.DecisionConfig.MinCycleInterval)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("auth enabled but no JWT secret configured")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
