package backtest

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// Summary holds the headline statistics of a backtest run. A NoData run
// carries NaN statistics so "no bets" can never be misread as "zero
// profit".
type Summary struct {
	TotalBets   int     `json:"total_bets"`
	Wins        int     `json:"wins"`
	HitRate     float64 `json:"hit_rate"`
	TotalProfit float64 `json:"total_profit"`
	ROIPercent  float64 `json:"roi_percent"`
	Sharpe      float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	AvgEdge     float64 `json:"avg_edge"`
	AvgOdds     float64 `json:"avg_odds"`
	MedianOdds  float64 `json:"median_odds"`
}

// CalculateSummary computes summary statistics from replayed records. The
// records must already carry their Profit and Drawdown columns.
func CalculateSummary(records []models.BetRecord) Summary {
	n := len(records)
	if n == 0 {
		return noDataSummary()
	}

	wins := 0
	totalProfit := 0.0
	profits := make([]float64, n)
	odds := make([]float64, n)
	edgeSum := 0.0
	for i, r := range records {
		if r.Outcome {
			wins++
		}
		profits[i] = r.Profit
		totalProfit += r.Profit
		odds[i] = r.Odds
		edgeSum += r.Edge
	}

	return Summary{
		TotalBets:   n,
		Wins:        wins,
		HitRate:     float64(wins) / float64(n),
		TotalProfit: totalProfit,
		ROIPercent:  totalProfit / float64(n) * 100,
		Sharpe:      sharpeRatio(profits),
		MaxDrawdown: maxDrawdown(records),
		AvgEdge:     edgeSum / float64(n),
		AvgOdds:     average(odds),
		MedianOdds:  median(odds),
	}
}

// IsProfitable reports whether the replay ended with a positive return.
func (s Summary) IsProfitable() bool {
	return s.ROIPercent > 0
}

// MarshalJSON renders NaN statistics as null; encoding/json rejects NaN.
func (s Summary) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"total_bets":   s.TotalBets,
		"wins":         s.Wins,
		"hit_rate":     nanToNull(s.HitRate),
		"total_profit": nanToNull(s.TotalProfit),
		"roi_percent":  nanToNull(s.ROIPercent),
		"sharpe_ratio": nanToNull(s.Sharpe),
		"max_drawdown": nanToNull(s.MaxDrawdown),
		"avg_edge":     nanToNull(s.AvgEdge),
		"avg_odds":     nanToNull(s.AvgOdds),
		"median_odds":  nanToNull(s.MedianOdds),
	}
	return json.Marshal(m)
}

func nanToNull(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func noDataSummary() Summary {
	nan := math.NaN()
	return Summary{
		HitRate:     nan,
		TotalProfit: nan,
		ROIPercent:  nan,
		Sharpe:      nan,
		MaxDrawdown: nan,
		AvgEdge:     nan,
		AvgOdds:     nan,
		MedianOdds:  nan,
	}
}

// sharpeRatio is mean profit over sample standard deviation, without
// annualization. Fewer than two bets, or a flat profit series, yield 0.
func sharpeRatio(profits []float64) float64 {
	if len(profits) < 2 {
		return 0
	}
	std := sampleStddev(profits)
	if std == 0 {
		return 0
	}
	return average(profits) / std
}

// maxDrawdown is the most negative drawdown across records. NaN points are
// skipped the way pandas min() skips them.
func maxDrawdown(records []models.BetRecord) float64 {
	maxDD := math.NaN()
	for _, r := range records {
		if math.IsNaN(r.Drawdown) {
			continue
		}
		if math.IsNaN(maxDD) || r.Drawdown < maxDD {
			maxDD = r.Drawdown
		}
	}
	return maxDD
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStddev is the n-1 denominator standard deviation.
func sampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
