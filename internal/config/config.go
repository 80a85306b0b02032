// Package config provides configuration management for the forecast ledger.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App            AppConfig            `mapstructure:"app" validate:"required"`
	Database       DatabaseConfig       `mapstructure:"database" validate:"required"`
	OddsAPI        OddsAPIConfig        `mapstructure:"odds_api" validate:"required"`
	Forecaster     ForecasterConfig     `mapstructure:"forecaster" validate:"required"`
	Ingestion      IngestionConfig      `mapstructure:"ingestion" validate:"required"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation" validate:"required"`
	Scoring        ScoringConfig        `mapstructure:"scoring" validate:"required"`
	Server         ServerConfig         `mapstructure:"server" validate:"required"`
	Metrics        MetricsConfig        `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig selects and configures the forecast store backend.
// Host/port fields apply to postgres, Path to sqlite.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver" validate:"required,dbdriver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	Path           string `mapstructure:"path"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// OddsAPIConfig configures The Odds API v4 client used for fixtures and results.
type OddsAPIConfig struct {
	BaseURL            string  `mapstructure:"base_url" validate:"required,url"`
	APIKey             string  `mapstructure:"api_key"`
	Markets            string  `mapstructure:"markets" validate:"required"`
	OddsFormat         string  `mapstructure:"odds_format" validate:"required,oneof=decimal"`
	SportPrefix        string  `mapstructure:"sport_prefix" validate:"required"`
	SportsFilter       string  `mapstructure:"sports_filter"`
	ScoresDaysFrom     int     `mapstructure:"scores_days_from" validate:"required,min=1,max=3"`
	ScoresCacheSeconds int     `mapstructure:"scores_cache_seconds" validate:"gte=0"`
	LimitPerSport      int     `mapstructure:"limit_per_sport" validate:"required,gt=0"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts      int     `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimit          float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
}

// ForecasterConfig selects the model that produces p_home.
type ForecasterConfig struct {
	Model       string  `mapstructure:"model" validate:"required,oneof=implied elo_blend"`
	BlendWeight float64 `mapstructure:"blend_weight" validate:"gte=0,lte=1"`
	EloK        float64 `mapstructure:"elo_k" validate:"omitempty,gt=0"`
	BaseRating  float64 `mapstructure:"base_rating" validate:"omitempty,gt=0"`
}

// IngestionConfig controls periodic ingestion of upcoming fixtures.
type IngestionConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Regions             []string `mapstructure:"regions" validate:"required,min=1,dive,oneof=eu uk us us2 au"`
	SportKeys           []string `mapstructure:"sport_keys"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds" validate:"required,gte=5"`
}

// ReconciliationConfig controls periodic outcome reconciliation.
type ReconciliationConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds" validate:"required,gte=5"`
	Concurrency     int  `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`
}

// ScoringConfig controls the scoring engine cache and calibration output.
type ScoringConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	CalibrationBins int `mapstructure:"calibration_bins" validate:"required,gte=2,lte=50"`
}

// ServerConfig configures the public HTTP API.
type ServerConfig struct {
	Port        int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesPostgres reports whether the store backend is PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Database.Driver == "postgres"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// PollInterval returns the ingestion polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Ingestion.PollIntervalSeconds) * time.Second
}

// ReconcileInterval returns the reconciliation interval.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconciliation.IntervalSeconds) * time.Second
}
