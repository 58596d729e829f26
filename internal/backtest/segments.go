package backtest

import (
	"sync"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// Segment names for the odds split diagnostic.
const (
	SegmentLongshot   = "longshot"
	SegmentShortPrice = "short_price"
)

// SegmentSummary is the per-segment slice of the odds diagnostic: did the
// model's edge come from longshots or from short-priced runners.
type SegmentSummary struct {
	Name        string  `json:"name"`
	TotalBets   int     `json:"total_bets"`
	HitRate     float64 `json:"hit_rate"`
	TotalProfit float64 `json:"total_profit"`
	ROIPercent  float64 `json:"roi_percent"`
	AvgOdds     float64 `json:"avg_odds"`
}

// SplitByOdds partitions replayed records at the longshot boundary
// (odds > boundary vs odds <= boundary) and summarizes both partitions
// concurrently. Output order is fixed: short-priced first, longshots
// second. Empty partitions are omitted.
func SplitByOdds(records []models.BetRecord, boundary float64) []SegmentSummary {
	var short, long []models.BetRecord
	for _, r := range records {
		if r.Odds > boundary {
			long = append(long, r)
		} else {
			short = append(short, r)
		}
	}

	parts := []struct {
		name    string
		records []models.BetRecord
	}{
		{SegmentShortPrice, short},
		{SegmentLongshot, long},
	}

	summaries := make([]SegmentSummary, len(parts))
	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i] = summarizeSegment(parts[i].name, parts[i].records)
		}(i)
	}
	wg.Wait()

	out := make([]SegmentSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.TotalBets > 0 {
			out = append(out, s)
		}
	}
	return out
}

func summarizeSegment(name string, records []models.BetRecord) SegmentSummary {
	n := len(records)
	if n == 0 {
		return SegmentSummary{Name: name}
	}

	wins := 0
	totalProfit := 0.0
	oddsSum := 0.0
	for _, r := range records {
		if r.Outcome {
			wins++
		}
		totalProfit += r.Profit
		oddsSum += r.Odds
	}

	return SegmentSummary{
		Name:        name,
		TotalBets:   n,
		HitRate:     float64(wins) / float64(n),
		TotalProfit: totalProfit,
		ROIPercent:  totalProfit / float64(n) * 100,
		AvgOdds:     oddsSum / float64(n),
	}
}
