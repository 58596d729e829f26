// Package staking sizes stakes with a capped Kelly criterion. The model
// predicts top-3 probability, not win probability, so the win probability is
// estimated as predicted/topKDenominator before the Kelly formula applies.
package staking

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
)

// Guard flag name attached when a stake request carries no bankroll.
const FlagZeroBankroll = "zero_bankroll"

// StakeSizer computes capped Kelly fractions and money stakes.
type StakeSizer struct {
	cfg config.StakingConfig
	log *logrus.Logger
}

// NewStakeSizer creates a stake sizer from staking configuration.
func NewStakeSizer(cfg config.StakingConfig, log *logrus.Logger) *StakeSizer {
	return &StakeSizer{cfg: cfg, log: log}
}

// Fraction returns the capped Kelly fraction of bankroll to stake for a
// predicted top-3 probability at the given decimal odds.
//
// The fraction is 0 when odds <= 1 or probability <= 0, and is clamped into
// [0, kelly_cap] otherwise. Results are always safe to multiply straight
// into a bankroll.
func (s *StakeSizer) Fraction(predictedProb, odds float64) float64 {
	if odds <= 1 || predictedProb <= 0 {
		return 0.0
	}

	estimatedWin := predictedProb / s.cfg.TopKDenominator
	if estimatedWin > s.cfg.MaxWinProbability {
		estimatedWin = s.cfg.MaxWinProbability
	}

	b := odds - 1.0
	q := 1.0 - estimatedWin
	kelly := (b*estimatedWin - q) / b

	if kelly < 0 {
		return 0.0
	}
	if kelly > s.cfg.KellyCap {
		s.log.WithFields(logrus.Fields{
			"kelly":     kelly,
			"kelly_cap": s.cfg.KellyCap,
			"odds":      odds,
		}).Debug("Kelly fraction capped")
		return s.cfg.KellyCap
	}
	return kelly
}

// Stake converts a Kelly fraction into a money stake against a bankroll.
// A non-positive bankroll yields a zero stake and a numeric guard; the
// fraction itself is still meaningful without money attached.
func (s *StakeSizer) Stake(fraction float64, bankroll decimal.Decimal) decimal.Decimal {
	if bankroll.Sign() <= 0 {
		if fraction > 0 {
			metrics.RecordNumericGuard(FlagZeroBankroll)
		}
		return decimal.Zero
	}
	return bankroll.Mul(decimal.NewFromFloat(fraction))
}

// Size computes the Kelly fraction and money stake in one call.
func (s *StakeSizer) Size(predictedProb, odds float64, bankroll decimal.Decimal) (float64, decimal.Decimal) {
	fraction := s.Fraction(predictedProb, odds)
	return fraction, s.Stake(fraction, bankroll)
}

// Cap returns the configured Kelly cap.
func (s *StakeSizer) Cap() float64 {
	return s.cfg.KellyCap
}
