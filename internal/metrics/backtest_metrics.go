// Package metrics defines backtesting-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by method and status",
	}, []string{"method", "status"})
)

// Backtest histogram vectors
var (
	BacktestROIDistribution = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "backtest_roi_percent",
		Help:      "ROI percentages from backtest runs by method",
		Buckets:   []float64{-100, -50, -25, -10, 0, 10, 25, 50, 100, 200},
	}, []string{"method"})
)

// Backtest gauge vectors
var (
	SegmentROIPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "backtest_segment_roi_percent",
		Help:      "ROI percentage for each odds segment in the latest backtest",
	}, []string{"segment"})
)

// Backtest gauges for the latest run
var (
	LastBacktestROI = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "last_backtest_roi_percent",
		Help:      "ROI percentage of the most recent backtest run",
	})
	LastBacktestHitRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "last_backtest_hit_rate",
		Help:      "Hit rate of the most recent backtest run",
	})
	LastBacktestSharpe = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "last_backtest_sharpe",
		Help:      "Sharpe-like ratio of the most recent backtest run",
	})
	LastBacktestMaxDrawdown = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "last_backtest_max_drawdown",
		Help:      "Maximum drawdown of the most recent backtest run",
	})
)

// RecordBacktestRun records a backtest run event.
// method should be one of: "historical_replay", "bootstrap"
// status should be one of: "success", "failure", "no_data"
func RecordBacktestRun(method, status string) {
	BacktestRunsTotal.WithLabelValues(method, status).Inc()
}

// RecordBacktestROI records the ROI of a backtest run.
func RecordBacktestROI(method string, roiPercent float64) {
	BacktestROIDistribution.WithLabelValues(method).Observe(roiPercent)
}

// UpdateSegmentROI updates the ROI gauge for an odds segment.
func UpdateSegmentROI(segment string, roiPercent float64) {
	SegmentROIPercent.WithLabelValues(segment).Set(roiPercent)
}

// UpdateBacktestSummary updates the gauges describing the most recent backtest run.
func UpdateBacktestSummary(roiPercent, hitRate, sharpe, maxDrawdown float64) {
	LastBacktestROI.Set(roiPercent)
	LastBacktestHitRate.Set(hitRate)
	LastBacktestSharpe.Set(sharpe)
	LastBacktestMaxDrawdown.Set(maxDrawdown)
}
