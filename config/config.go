package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Data sources accepted by DATA_SOURCE.
const (
	SourceSQLite       = "sqlite"
	SourceAlphaVantage = "alphavantage"
	SourceYahoo        = "yahoo"
	SourceAlpaca       = "alpaca"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	// Price history source
	Data struct {
		Source          string        `envconfig:"DATA_SOURCE" default:"sqlite"`
		SQLitePath      string        `envconfig:"SQLITE_PATH" default:"data/bars.db"`
		AlphaVantageKey string        `envconfig:"ALPHA_VANTAGE_API_KEY" default:"demo"`
		AlphaVantageURL string        `envconfig:"ALPHA_VANTAGE_URL" default:"https://www.alphavantage.co"`
		Timeout         time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
		Retries         int           `envconfig:"PROVIDER_RETRIES" default:"2"`
		AlpacaKey       string        `envconfig:"ALPACA_API_KEY"`
		AlpacaSecret    string        `envconfig:"ALPACA_API_SECRET"`
		AlpacaURL       string        `envconfig:"ALPACA_DATA_URL"`
		AlpacaFeed      string        `envconfig:"ALPACA_FEED" default:"iex"`
	}

	// Redis bar cache; an empty address disables it
	Cache struct {
		RedisAddr     string        `envconfig:"REDIS_ADDR"`
		RedisPassword string        `envconfig:"REDIS_PASSWORD"`
		RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
		TTL           time.Duration `envconfig:"BAR_CACHE_TTL" default:"30m"`
	}

	// Simulation and search
	Engine struct {
		Commission      float64       `envconfig:"COMMISSION_RATE" default:"0.0025"`
		Workers         int           `envconfig:"OPTIMIZER_WORKERS" default:"4"`
		OptimizeTimeout time.Duration `envconfig:"OPTIMIZE_TIMEOUT" default:"2m"`
		StrategyFile    string        `envconfig:"STRATEGY_DEFAULTS_FILE"`
	}

	// Run notifications; every backend is optional
	Notify struct {
		WebhookURL     string `envconfig:"NOTIFY_WEBHOOK_URL"`
		TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
		TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`
	}

	// HTTP surface and logging
	Server struct {
		HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}
}

// Load reads an optional .env file (or the given files) and then the
// process environment. Variables already set in the environment win over
// the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func Validate(cfg *Config) error {
	switch cfg.Data.Source {
	case SourceSQLite, SourceAlphaVantage, SourceYahoo, SourceAlpaca:
	default:
		return fmt.Errorf("DATA_SOURCE must be one of sqlite, alphavantage, yahoo, alpaca; got %q", cfg.Data.Source)
	}
	if cfg.Data.Source == SourceAlpaca && (cfg.Data.AlpacaKey == "" || cfg.Data.AlpacaSecret == "") {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET are required for the alpaca data source")
	}
	if cfg.Data.Source == SourceSQLite && cfg.Data.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite data source")
	}
	if cfg.Data.Retries < 0 {
		return fmt.Errorf("PROVIDER_RETRIES must be >= 0")
	}
	if cfg.Engine.Commission < 0 || cfg.Engine.Commission >= 1 {
		return fmt.Errorf("COMMISSION_RATE must be in [0,1), got %v", cfg.Engine.Commission)
	}
	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("OPTIMIZER_WORKERS must be >= 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.OptimizeTimeout <= 0 {
		return fmt.Errorf("OPTIMIZE_TIMEOUT must be positive")
	}
	return nil
}
