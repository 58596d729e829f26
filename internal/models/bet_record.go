package models

import "time"

// BetRecord is one resolved wager evaluated by the backtest. Records are
// created after edge-threshold filtering, in chronological order, and
// consumed exactly once by the engine. Profit, CumulativeProfit,
// CumulativeReturn and Drawdown are filled by the engine on its output copy;
// the input sequence is never mutated.
type BetRecord struct {
	HorseName string    `json:"horse_name"`
	RaceDate  time.Time `json:"race_date"`

	Probability   float64 `json:"predicted_top3_prob"`
	Odds          float64 `json:"win_odds"`
	Outcome       bool    `json:"is_top3"`
	ImpliedProb   float64 `json:"implied_probability"`
	Edge          float64 `json:"edge"`
	ExpectedValue float64 `json:"expected_value"`
	ValueScore    float64 `json:"value_score"`
	KellyFraction float64 `json:"kelly_fraction"`

	Flags []string `json:"flags,omitempty"`

	Profit           float64 `json:"profit"`
	CumulativeProfit float64 `json:"cumulative_profit"`
	CumulativeReturn float64 `json:"cumulative_return"`
	Drawdown         float64 `json:"drawdown"`
}
