package staking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
)

func defaultStakingConfig() config.StakingConfig {
	return config.StakingConfig{
		KellyCap:          0.10,
		TopKDenominator:   3,
		MaxWinProbability: 0.99,
	}
}

func newTestSizer(cfg config.StakingConfig) *StakeSizer {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewStakeSizer(cfg, log)
}

func TestFraction(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	tests := []struct {
		name        string
		probability float64
		odds        float64
		want        float64
	}{
		{
			name:        "zero probability stakes nothing",
			probability: 0.0,
			odds:        3.0,
			want:        0.0,
		},
		{
			name:        "negative probability stakes nothing",
			probability: -0.1,
			odds:        3.0,
			want:        0.0,
		},
		{
			name:        "odds of one stake nothing",
			probability: 0.8,
			odds:        1.0,
			want:        0.0,
		},
		{
			name:        "odds below one stake nothing",
			probability: 0.8,
			odds:        0.5,
			want:        0.0,
		},
		{
			name:        "negative kelly clamps to zero",
			probability: 0.3,
			odds:        2.0,
			want:        0.0,
		},
		{
			// est win 0.2, b 5: (5*0.2 - 0.8) / 5
			name:        "positive kelly below cap",
			probability: 0.6,
			odds:        6.0,
			want:        0.04,
		},
		{
			// est win 0.3, b 3: (3*0.3 - 0.7) / 3
			name:        "strong edge below cap",
			probability: 0.9,
			odds:        4.0,
			want:        0.2 / 3.0,
		},
		{
			// raw kelly 0.125 exceeds the 10% cap
			name:        "kelly capped",
			probability: 0.9,
			odds:        5.0,
			want:        0.10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sizer.Fraction(tt.probability, tt.odds)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFractionWinProbabilityCeiling(t *testing.T) {
	cfg := config.StakingConfig{
		KellyCap:          1.0,
		TopKDenominator:   1,
		MaxWinProbability: 0.99,
	}
	sizer := newTestSizer(cfg)

	// Without the ceiling a certain win at evens would be full Kelly 1.0.
	got := sizer.Fraction(1.0, 2.0)
	assert.InDelta(t, 0.98, got, 1e-9)
}

func TestFractionNeverExceedsCap(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	for _, odds := range []float64{1.5, 2.0, 5.0, 10.0, 50.0} {
		for _, p := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0} {
			f := sizer.Fraction(p, odds)
			assert.GreaterOrEqual(t, f, 0.0)
			assert.LessOrEqual(t, f, 0.10)
		}
	}
}

func TestStake(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	stake := sizer.Stake(0.04, decimal.NewFromInt(10000))
	assert.True(t, stake.Equal(decimal.NewFromInt(400)), "got %s", stake)
}

func TestStakeZeroBankroll(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	stake := sizer.Stake(0.04, decimal.Zero)
	assert.True(t, stake.IsZero())

	stake = sizer.Stake(0.04, decimal.NewFromInt(-500))
	assert.True(t, stake.IsZero())
}

func TestSize(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	fraction, stake := sizer.Size(0.6, 6.0, decimal.NewFromInt(2500))
	assert.InDelta(t, 0.04, fraction, 1e-9)
	assert.True(t, stake.Equal(decimal.NewFromInt(100)), "got %s", stake)
}

func TestSizeNoBet(t *testing.T) {
	sizer := newTestSizer(defaultStakingConfig())

	fraction, stake := sizer.Size(0.3, 2.0, decimal.NewFromInt(2500))
	assert.InDelta(t, 0.0, fraction, 1e-9)
	assert.True(t, stake.IsZero())
}
