package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BacktestResult represents a persisted backtest run
type BacktestResult struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	DatasetVersion uuid.UUID       `db:"dataset_version" json:"dataset_version"`
	RunDate        time.Time       `db:"run_date" json:"run_date"`
	StartDate      time.Time       `db:"start_date" json:"start_date"`
	EndDate        time.Time       `db:"end_date" json:"end_date"`
	EdgeThreshold  float64         `db:"edge_threshold" json:"edge_threshold"`
	KellyCap       float64         `db:"kelly_cap" json:"kelly_cap"`
	TotalBets      int             `db:"total_bets" json:"total_bets"`
	HitRate        float64         `db:"hit_rate" json:"hit_rate"`
	TotalProfit    float64         `db:"total_profit" json:"total_profit"`
	ROIPercent     float64         `db:"roi_percent" json:"roi_percent"`
	Sharpe         float64         `db:"sharpe" json:"sharpe"`
	MaxDrawdown    float64         `db:"max_drawdown" json:"max_drawdown"`
	AvgEdge        float64         `db:"avg_edge" json:"avg_edge"`
	AvgOdds        float64         `db:"avg_odds" json:"avg_odds"`
	MedianOdds     float64         `db:"median_odds" json:"median_odds"`
	FullResults    json.RawMessage `db:"full_results" json:"full_results"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
