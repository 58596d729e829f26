// Package backtest replays value bets at a flat one-unit stake and measures
// what the edge model would have earned. The replay is strictly sequential:
// profits, equity and drawdowns at bet i depend on bets 0..i-1, so this
// stage never runs concurrently.
package backtest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const methodHistoricalReplay = "historical_replay"

// Report is the complete output of one backtest run.
type Report struct {
	RunDate  time.Time          `json:"run_date"`
	Config   Config             `json:"-"`
	Records  []models.BetRecord `json:"records"`
	Summary  Summary            `json:"summary"`
	Equity   EquityCurve        `json:"equity_curve"`
	Segments []SegmentSummary   `json:"segments,omitempty"`
	NoData   bool               `json:"no_data"`
}

// Engine runs sequential backtest replays.
type Engine struct {
	config Config
	logger *logrus.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{config: cfg, logger: logger}
}

// Config returns the backtest configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Run replays the given value bets in order. Records must already be
// edge-filtered and chronological; the engine consumes them exactly as
// given and never mutates the input slice.
//
// An empty input (or one emptied by the date filter) produces a NoData
// report whose summary statistics are NaN. That is a reportable outcome,
// not an error.
func (e *Engine) Run(ctx context.Context, records []models.BetRecord) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	filtered := e.filterByDateRange(records)
	report := &Report{
		RunDate: start.UTC(),
		Config:  e.config,
	}

	if len(filtered) == 0 {
		report.NoData = true
		report.Summary = noDataSummary()
		metrics.RecordBacktestRun(methodHistoricalReplay, "no_data")
		e.logger.Warn("Backtest has no value bets to replay")
		return report, nil
	}

	report.Records = e.replay(filtered)
	report.Summary = CalculateSummary(report.Records)
	report.Equity = BuildEquityCurve(report.Records)
	report.Segments = SplitByOdds(report.Records, e.config.LongshotOdds)

	duration := time.Since(start)
	metrics.RecordBacktestRun(methodHistoricalReplay, "success")
	metrics.RecordBacktestDuration(duration.Seconds())
	metrics.RecordBacktestROI(methodHistoricalReplay, report.Summary.ROIPercent)
	metrics.UpdateBacktestSummary(
		report.Summary.ROIPercent,
		report.Summary.HitRate,
		report.Summary.Sharpe,
		report.Summary.MaxDrawdown,
	)
	for _, seg := range report.Segments {
		metrics.UpdateSegmentROI(seg.Name, seg.ROIPercent)
	}

	e.logger.WithFields(logrus.Fields{
		"total_bets":   report.Summary.TotalBets,
		"hit_rate":     report.Summary.HitRate,
		"roi_percent":  report.Summary.ROIPercent,
		"max_drawdown": report.Summary.MaxDrawdown,
		"duration_ms":  duration.Milliseconds(),
	}).Info("Backtest run complete")

	return report, nil
}

// replay computes per-bet profit and the cumulative series over a copy of
// the input records.
func (e *Engine) replay(records []models.BetRecord) []models.BetRecord {
	out := make([]models.BetRecord, len(records))
	copy(out, records)

	n := len(out)
	initial := float64(n)

	cumulative := 0.0
	rollingMax := 0.0
	for i := range out {
		out[i].Profit = unitProfit(out[i])
		cumulative += out[i].Profit
		out[i].CumulativeProfit = cumulative
		out[i].CumulativeReturn = cumulative / float64(i+1) * 100

		equity := initial + cumulative
		if i == 0 || equity > rollingMax {
			rollingMax = equity
		}
		out[i].Drawdown = (equity - rollingMax) / rollingMax
	}
	return out
}

// unitProfit is the flat one-unit stake payoff for a settled bet.
func unitProfit(record models.BetRecord) float64 {
	if record.Outcome {
		return record.Odds - 1.0
	}
	return -1.0
}

func (e *Engine) filterByDateRange(records []models.BetRecord) []models.BetRecord {
	if e.config.StartDate.IsZero() && e.config.EndDate.IsZero() {
		return records
	}
	filtered := make([]models.BetRecord, 0, len(records))
	for _, r := range records {
		if !e.config.StartDate.IsZero() && r.RaceDate.Before(e.config.StartDate) {
			continue
		}
		if !e.config.EndDate.IsZero() && r.RaceDate.After(e.config.EndDate) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
