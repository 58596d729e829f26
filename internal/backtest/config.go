package backtest

import (
	"fmt"
	"time"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
)

// Config carries the resolved backtest settings. StartDate and EndDate are
// zero when the run is unbounded on that side.
type Config struct {
	StartDate           time.Time
	EndDate             time.Time
	EdgeThreshold       float64
	KellyCap            float64
	LongshotOdds        float64
	BootstrapIterations int
	BootstrapSeed       int64
	OutputPath          string
}

// FromConfig resolves app configuration into a backtest config.
func FromConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("configuration is required")
	}

	bt := Config{
		EdgeThreshold:       cfg.Edge.Threshold,
		KellyCap:            cfg.Staking.KellyCap,
		LongshotOdds:        cfg.Backtest.LongshotOdds,
		BootstrapIterations: cfg.Backtest.BootstrapIterations,
		BootstrapSeed:       cfg.Backtest.BootstrapSeed,
		OutputPath:          cfg.Backtest.OutputPath,
	}

	if cfg.Backtest.StartDate != "" {
		start, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
		if err != nil {
			return Config{}, fmt.Errorf("invalid start date: %w", err)
		}
		bt.StartDate = start
	}
	if cfg.Backtest.EndDate != "" {
		end, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
		if err != nil {
			return Config{}, fmt.Errorf("invalid end date: %w", err)
		}
		bt.EndDate = end
	}

	return bt, bt.Validate()
}

// Validate validates backtest config parameters.
func (c Config) Validate() error {
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.StartDate.After(c.EndDate) {
		return fmt.Errorf("start date must not be after end date")
	}
	if c.EdgeThreshold <= 0 || c.EdgeThreshold >= 1 {
		return fmt.Errorf("edge threshold must be in (0, 1)")
	}
	if c.LongshotOdds <= 1 {
		return fmt.Errorf("longshot odds boundary must be greater than 1")
	}
	if c.BootstrapIterations <= 0 {
		return fmt.Errorf("bootstrap iterations must be positive")
	}
	return nil
}
