package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActualResult is the settled outcome of a persisted recommendation.
type ActualResult string

const (
	ResultTop3    ActualResult = "top3"
	ResultNotTop3 ActualResult = "not_top3"
	ResultUnknown ActualResult = "unknown"
)

// Valid reports whether the value is one of the known settlement states.
func (r ActualResult) Valid() bool {
	switch r {
	case ResultTop3, ResultNotTop3, ResultUnknown:
		return true
	}
	return false
}

// PredictionRecord is one advisory recommendation, both as returned to the
// caller and as persisted to prediction history. StakeAmount is the Kelly
// fraction applied to the configured bankroll; zero when no bankroll is set.
type PredictionRecord struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RaceDate      time.Time       `db:"race_date" json:"race_date"`
	HorseName     string          `db:"horse_name" json:"horse_name"`
	Jockey        string          `db:"jockey" json:"jockey"`
	Trainer       string          `db:"trainer" json:"trainer"`
	WinOdds       float64         `db:"win_odds" json:"win_odds"`
	PredictedProb float64         `db:"predicted_top3_prob" json:"predicted_top3_prob"`
	ImpliedProb   float64         `db:"implied_probability" json:"implied_probability"`
	Edge          float64         `db:"edge" json:"edge"`
	ExpectedValue float64         `db:"expected_value" json:"expected_value"`
	ValueScore    float64         `db:"value_score" json:"value_score"`
	KellyFraction float64         `db:"kelly_fraction" json:"kelly_fraction"`
	StakeAmount   decimal.Decimal `db:"stake_amount" json:"stake_amount"`
	IsValueBet    bool            `db:"is_value_bet" json:"is_value_bet"`
	ModelVersion  string          `db:"model_version" json:"model_version"`
	ActualResult  ActualResult    `db:"actual_result" json:"actual_result"`
	Flags         []string        `db:"-" json:"flags,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Key identifies the runner the recommendation is about, in the same
// horse-and-date form observations use, so settlement can match the two.
func (p *PredictionRecord) Key() string {
	return fmt.Sprintf("%s|%s", p.HorseName, p.RaceDate.Format("2006-01-02"))
}

// Rounded returns a copy with display fields rounded to four decimal places.
func (p PredictionRecord) Rounded() PredictionRecord {
	p.PredictedProb = round4(p.PredictedProb)
	p.ImpliedProb = round4(p.ImpliedProb)
	p.Edge = round4(p.Edge)
	p.ExpectedValue = round4(p.ExpectedValue)
	p.ValueScore = round4(p.ValueScore)
	p.KellyFraction = round4(p.KellyFraction)
	return p
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*10000) / 10000
}
