// Package edge turns model probabilities and market odds into value
// assessments. All arithmetic is total: malformed inputs produce guarded
// zero-value results with flags instead of errors, so one bad row never
// aborts a scoring run.
package edge

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// Guard flag names attached to assessed rows.
const (
	FlagNonPositiveOdds    = "non_positive_odds"
	FlagInvalidProbability = "invalid_probability"
)

// Assessment is the full value breakdown for one (probability, odds) pair.
//
// ExpectedValue is the profitability estimate per unit stake,
// p*(odds-1) - (1-p). ValueScore is edge*odds, a ranking heuristic that
// overweights longshots; it orders candidates but never measures profit.
type Assessment struct {
	Probability   float64  `json:"probability"`
	Odds          float64  `json:"odds"`
	ImpliedProb   float64  `json:"implied_probability"`
	Edge          float64  `json:"edge"`
	ExpectedValue float64  `json:"expected_value"`
	ValueScore    float64  `json:"value_score"`
	IsValueBet    bool     `json:"is_value_bet"`
	Flags         []string `json:"flags,omitempty"`
}

// Calculator assesses bets against a fixed edge threshold.
type Calculator struct {
	threshold float64
	log       *logrus.Logger
}

// NewCalculator creates a calculator. threshold is the minimum edge for a
// bet to qualify as a value bet (strictly greater than).
func NewCalculator(threshold float64, log *logrus.Logger) *Calculator {
	return &Calculator{threshold: threshold, log: log}
}

// Threshold returns the configured edge threshold.
func (c *Calculator) Threshold() float64 {
	return c.threshold
}

// ImpliedProbability converts decimal odds to the market's implied win
// probability. Non-positive odds yield 0 rather than an error.
func ImpliedProbability(odds float64) float64 {
	if odds <= 0 {
		return 0.0
	}
	return 1.0 / odds
}

// ExpectedValue is the expected profit per unit stake at the given
// probability and decimal odds.
func ExpectedValue(probability, odds float64) float64 {
	return probability*(odds-1.0) - (1.0 - probability)
}

// normalizeProbability clamps a probability into [0,1]; NaN and Inf map
// to 0.
func normalizeProbability(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0.0
	}
	if p < 0 {
		return 0.0
	}
	if p > 1 {
		return 1.0
	}
	return p
}

// Assess computes the value breakdown for one candidate bet. Guard flags
// record any input that had to be coerced; flagged rows keep flowing so the
// caller decides whether to act on them.
func (c *Calculator) Assess(probability, odds float64) Assessment {
	flags := make([]string, 0, 2)

	p := normalizeProbability(probability)
	if p != probability {
		flags = append(flags, FlagInvalidProbability)
		metrics.RecordNumericGuard(FlagInvalidProbability)
		c.log.WithFields(logrus.Fields{
			"probability": probability,
			"odds":        odds,
		}).Warn("Probability outside [0,1], clamped")
	}
	if odds <= 0 {
		flags = append(flags, FlagNonPositiveOdds)
		metrics.RecordNumericGuard(FlagNonPositiveOdds)
	}

	implied := ImpliedProbability(odds)
	edgeVal := p - implied

	a := Assessment{
		Probability:   p,
		Odds:          odds,
		ImpliedProb:   implied,
		Edge:          edgeVal,
		ExpectedValue: ExpectedValue(p, odds),
		ValueScore:    edgeVal * odds,
		IsValueBet:    edgeVal > c.threshold,
	}
	if len(flags) > 0 {
		a.Flags = flags
	}
	return a
}

// Score fills the assessment columns of a bet record and returns the copy.
// Identity, outcome and engine-owned columns are left untouched.
func (c *Calculator) Score(record models.BetRecord) models.BetRecord {
	a := c.Assess(record.Probability, record.Odds)

	record.Probability = a.Probability
	record.ImpliedProb = a.ImpliedProb
	record.Edge = a.Edge
	record.ExpectedValue = a.ExpectedValue
	record.ValueScore = a.ValueScore
	if len(a.Flags) > 0 {
		record.Flags = append(record.Flags, a.Flags...)
	}
	return record
}

// IsValue reports whether an edge clears the configured threshold.
func (c *Calculator) IsValue(edgeVal float64) bool {
	return edgeVal > c.threshold
}
