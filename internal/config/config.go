// Package config provides configuration management for the racing advisory pipeline.
package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	ModelService ModelServiceConfig `mapstructure:"model_service" validate:"required"`
	Features     FeaturesConfig     `mapstructure:"features" validate:"required"`
	Edge         EdgeConfig         `mapstructure:"edge" validate:"required"`
	Staking      StakingConfig      `mapstructure:"staking" validate:"required"`
	Backtest     BacktestConfig     `mapstructure:"backtest" validate:"required"`
	Advisor      AdvisorConfig      `mapstructure:"advisor" validate:"required"`
	OddsFeed     OddsFeedConfig     `mapstructure:"odds_feed"`
	Metrics      MetricsConfig      `mapstructure:"metrics" validate:"required"`
	Health       HealthConfig       `mapstructure:"health"`
	AWS          AWSConfig          `mapstructure:"aws"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	AuditLog    string `mapstructure:"audit_log"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MinConnections int    `mapstructure:"min_connections" validate:"required,gte=0"`
}

// ModelServiceConfig represents the external prediction service configuration
type ModelServiceConfig struct {
	BaseURL         string  `mapstructure:"base_url" validate:"required,url"`
	APIKey          string  `mapstructure:"api_key"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries      int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit       float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	BreakerFailures int     `mapstructure:"breaker_failures" validate:"required,gt=0"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	CacheMaxSize    int     `mapstructure:"cache_max_size" validate:"required,gt=0"`
}

// FeaturesConfig controls temporal feature derivation
type FeaturesConfig struct {
	RollingWindows  []int `mapstructure:"rolling_windows" validate:"required,min=1,windows"`
	CovariateWindow int   `mapstructure:"covariate_window" validate:"required,gt=0"`
	Workers         int   `mapstructure:"workers" validate:"gte=0"`
}

// EdgeConfig controls value-bet classification
type EdgeConfig struct {
	Threshold float64 `mapstructure:"threshold" validate:"required,gt=0,lt=1"`
}

// StakingConfig controls Kelly stake sizing
type StakingConfig struct {
	KellyCap          float64 `mapstructure:"kelly_cap" validate:"required,gt=0,lte=1"`
	TopKDenominator   float64 `mapstructure:"top_k_denominator" validate:"required,gte=1"`
	MaxWinProbability float64 `mapstructure:"max_win_probability" validate:"required,gt=0,lt=1"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	StartDate           string  `mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate             string  `mapstructure:"end_date" validate:"omitempty,datetime=2006-01-02"`
	LongshotOdds        float64 `mapstructure:"longshot_odds" validate:"required,gt=1"`
	BootstrapIterations int     `mapstructure:"bootstrap_iterations" validate:"required,gt=0"`
	BootstrapSeed       int64   `mapstructure:"bootstrap_seed"`
	OutputPath          string  `mapstructure:"output_path" validate:"required"`
}

// AdvisorConfig represents race-day advisory configuration. SettlementCron
// is a cron expression for the recurring settlement sweep; empty disables it.
type AdvisorConfig struct {
	Bankroll       float64 `mapstructure:"bankroll" validate:"gte=0"`
	HistoryLimit   int     `mapstructure:"history_limit" validate:"required,gt=0"`
	RefreshSeconds int     `mapstructure:"refresh_seconds" validate:"required,gt=0"`
	SettlementCron string  `mapstructure:"settlement_cron"`
}

// OddsFeedConfig represents the live win-odds stream configuration
type OddsFeedConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	URL               string `mapstructure:"url" validate:"required_if=Enabled true"`
	ReconnectRetries  int    `mapstructure:"reconnect_retries" validate:"gte=0"`
	HeartbeatSeconds  int    `mapstructure:"heartbeat_seconds" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health endpoint configuration
type HealthConfig struct {
	Port string `mapstructure:"port"`
}

// AWSConfig controls optional secret loading from AWS Secrets Manager
type AWSConfig struct {
	SecretsEnabled bool   `mapstructure:"secrets_enabled"`
	Region         string `mapstructure:"region" validate:"required_if=SecretsEnabled true"`
	SecretName     string `mapstructure:"secret_name" validate:"required_if=SecretsEnabled true"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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
