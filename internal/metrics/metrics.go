// Package metrics provides the centralized Prometheus registry for the advisory pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RowsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "rows_ingested_total",
		Help:      "Total number of raw observation rows ingested",
	})
	RowsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "rows_rejected_total",
		Help:      "Total number of rows rejected during ingestion",
	})
	FeatureRowsBuiltTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "feature_rows_built_total",
		Help:      "Total number of feature rows built",
	})
	ValidationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "validation_failures_total",
		Help:      "Total number of entity history validation failures",
	})
	SettlementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "settlements_total",
		Help:      "Total number of predictions settled against race results",
	})
	ModelCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "model_cache_hits_total",
		Help:      "Total number of model prediction cache hits",
	})
	ModelCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "model_cache_misses_total",
		Help:      "Total number of model prediction cache misses",
	})
	CircuitBreakerTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of model service circuit breaker trips",
	})
)

// Gauge metrics
var (
	EntitiesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "entities_tracked",
		Help:      "Number of distinct horses with feature histories",
	})
	OddsFeedConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "odds_feed_connected",
		Help:      "Whether the live odds feed connection is up (1) or down (0)",
	})
)

// Histogram metrics
var (
	FeatureBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "feature_build_duration_seconds",
		Help:      "Duration of feature building runs in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	ModelPredictionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "model_prediction_latency_seconds",
		Help:      "Latency of model service prediction calls in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(RowsIngestedTotal)
		registry.MustRegister(RowsRejectedTotal)
		registry.MustRegister(FeatureRowsBuiltTotal)
		registry.MustRegister(ValidationFailuresTotal)
		registry.MustRegister(SettlementsTotal)
		registry.MustRegister(ModelCacheHitsTotal)
		registry.MustRegister(ModelCacheMissesTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)

		// Register gauge metrics
		registry.MustRegister(EntitiesTracked)
		registry.MustRegister(OddsFeedConnected)

		// Register histogram metrics
		registry.MustRegister(FeatureBuildDuration)
		registry.MustRegister(ModelPredictionLatency)
		registry.MustRegister(BacktestDuration)

		// Register pipeline metrics
		registry.MustRegister(StageRowsTotal)
		registry.MustRegister(StageDuration)
		registry.MustRegister(NumericGuardTriggersTotal)

		// Register advisory metrics
		registry.MustRegister(AdvisoryDecisionsTotal)
		registry.MustRegister(RecommendationEdge)
		registry.MustRegister(UnsettledRecommendations)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestROIDistribution)
		registry.MustRegister(SegmentROIPercent)
		registry.MustRegister(LastBacktestROI)
		registry.MustRegister(LastBacktestHitRate)
		registry.MustRegister(LastBacktestSharpe)
		registry.MustRegister(LastBacktestMaxDrawdown)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordRowsIngested records a batch of ingested rows.
func RecordRowsIngested(count int) {
	RowsIngestedTotal.Add(float64(count))
}

// RecordRowRejected records a rejected ingestion row.
func RecordRowRejected() {
	RowsRejectedTotal.Inc()
}

// RecordFeatureBuild records a feature building run.
func RecordFeatureBuild(rows int, durationSeconds float64) {
	FeatureRowsBuiltTotal.Add(float64(rows))
	FeatureBuildDuration.Observe(durationSeconds)
}

// RecordValidationFailure records an entity history validation failure.
func RecordValidationFailure() {
	ValidationFailuresTotal.Inc()
}

// RecordSettlement records a settled prediction.
func RecordSettlement() {
	SettlementsTotal.Inc()
}

// RecordModelCacheHit records a prediction cache hit.
func RecordModelCacheHit() {
	ModelCacheHitsTotal.Inc()
}

// RecordModelCacheMiss records a prediction cache miss.
func RecordModelCacheMiss() {
	ModelCacheMissesTotal.Inc()
}

// RecordCircuitBreakerTrip records a model service circuit breaker trip.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTripsTotal.Inc()
}

// RecordModelPredictionLatency records model service call latency.
func RecordModelPredictionLatency(durationSeconds float64) {
	ModelPredictionLatency.Observe(durationSeconds)
}

// RecordBacktestDuration records backtest duration.
func RecordBacktestDuration(durationSeconds float64) {
	BacktestDuration.Observe(durationSeconds)
}

// UpdateEntitiesTracked updates the tracked entity count gauge.
func UpdateEntitiesTracked(count float64) {
	EntitiesTracked.Set(count)
}

// UpdateOddsFeedConnected updates the odds feed connection gauge.
func UpdateOddsFeedConnected(connected bool) {
	if connected {
		OddsFeedConnected.Set(1)
		return
	}
	OddsFeedConnected.Set(0)
}
