// Package config provides configuration management for the racing advisory pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix("RACING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional
// fields; a missing file is not an error, defaults and environment variables
// apply. It expands environment variable placeholders (${VAR_NAME}).
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("RACING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "horse-racing-inf")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("features.rolling_windows", []int{1, 3, 5})
	v.SetDefault("features.covariate_window", 3)
	v.SetDefault("features.workers", 0)

	v.SetDefault("edge.threshold", 0.05)

	v.SetDefault("staking.kelly_cap", 0.10)
	v.SetDefault("staking.top_k_denominator", 3)
	v.SetDefault("staking.max_win_probability", 0.99)

	v.SetDefault("backtest.longshot_odds", 10.0)
	v.SetDefault("backtest.bootstrap_iterations", 1000)
	v.SetDefault("backtest.bootstrap_seed", 42)
	v.SetDefault("backtest.output_path", "reports")

	v.SetDefault("advisor.bankroll", 0)
	v.SetDefault("advisor.history_limit", 200)
	v.SetDefault("advisor.refresh_seconds", 60)
	v.SetDefault("advisor.settlement_cron", "0 22 * * *")

	v.SetDefault("model_service.timeout_seconds", 30)
	v.SetDefault("model_service.max_retries", 5)
	v.SetDefault("model_service.rate_limit", 10.0)
	v.SetDefault("model_service.breaker_failures", 5)
	v.SetDefault("model_service.cache_ttl_seconds", 300)
	v.SetDefault("model_service.cache_max_size", 10000)

	v.SetDefault("odds_feed.enabled", false)
	v.SetDefault("odds_feed.reconnect_retries", 10)
	v.SetDefault("odds_feed.heartbeat_seconds", 30)

	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.port", "8080")
}

// ReloadFromEnv reloads the full configuration when RACING_CONFIG_PATH points
// at an alternate file.
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv("RACING_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}
