package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. FORECAST_LEDGER_APP_LOG_LEVEL.
const EnvPrefix = "FORECAST_LEDGER"

// DefaultConfigPath is used when no path is given.
const DefaultConfigPath = "config/config.yaml"

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error: defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "forecast-ledger")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/forecasts.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("odds_api.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("odds_api.markets", "h2h")
	v.SetDefault("odds_api.odds_format", "decimal")
	v.SetDefault("odds_api.sport_prefix", "tennis_")
	v.SetDefault("odds_api.scores_days_from", 3)
	v.SetDefault("odds_api.scores_cache_seconds", 30)
	v.SetDefault("odds_api.limit_per_sport", 200)
	v.SetDefault("odds_api.timeout_seconds", 20)
	v.SetDefault("odds_api.retry_attempts", 3)
	v.SetDefault("odds_api.rate_limit", 4.0)

	v.SetDefault("forecaster.model", "implied")
	v.SetDefault("forecaster.blend_weight", 0.5)
	v.SetDefault("forecaster.elo_k", 32.0)
	v.SetDefault("forecaster.base_rating", 1500.0)

	v.SetDefault("ingestion.enabled", true)
	v.SetDefault("ingestion.regions", []string{"eu"})
	v.SetDefault("ingestion.poll_interval_seconds", 600)

	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.interval_seconds", 900)
	v.SetDefault("reconciliation.concurrency", 4)

	v.SetDefault("scoring.cache_ttl_seconds", 30)
	v.SetDefault("scoring.calibration_bins", 10)

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
