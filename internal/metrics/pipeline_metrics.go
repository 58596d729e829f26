// Package metrics defines pipeline-stage metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline counter vectors
var (
	StageRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "pipeline_stage_rows_total",
		Help:      "Total number of rows emitted by each pipeline stage",
	}, []string{"stage"})

	NumericGuardTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "numeric_guard_triggers_total",
		Help:      "Total number of numeric guard triggers by guard name",
	}, []string{"guard"})
)

// Pipeline histogram vectors
var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of each pipeline stage in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
)

// RecordStageRows records rows emitted by a pipeline stage.
func RecordStageRows(stage string, count int) {
	StageRowsTotal.WithLabelValues(stage).Add(float64(count))
}

// RecordStageDuration records the duration of a pipeline stage.
func RecordStageDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordNumericGuard records a numeric guard trigger.
// guard should be one of: "non_positive_odds", "invalid_probability", "zero_bankroll"
func RecordNumericGuard(guard string) {
	NumericGuardTriggersTotal.WithLabelValues(guard).Inc()
}
