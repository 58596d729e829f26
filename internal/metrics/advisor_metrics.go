// Package metrics defines advisory-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Advisory counter vectors
var (
	AdvisoryDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "racing_inf",
		Name:      "advisory_decisions_total",
		Help:      "Total number of advisory decisions by model version and outcome",
	}, []string{"model_version", "decision"})
)

// Advisory histogram vectors
var (
	RecommendationEdge = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "racing_inf",
		Name:      "recommendation_edge",
		Help:      "Edge values for recommended bets by model version",
		Buckets:   []float64{-0.25, -0.1, -0.05, -0.02, 0, 0.02, 0.05, 0.1, 0.25, 0.5},
	}, []string{"model_version"})
)

// Advisory gauge vectors
var (
	UnsettledRecommendations = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "racing_inf",
		Name:      "unsettled_recommendations",
		Help:      "Number of recommendations awaiting settlement by model version",
	}, []string{"model_version"})
)

// RecordAdvisoryDecision records an advisory decision.
// decision should be one of: "recommend", "reject"
func RecordAdvisoryDecision(modelVersion, decision string) {
	AdvisoryDecisionsTotal.WithLabelValues(modelVersion, decision).Inc()
}

// RecordRecommendationEdge records the edge of a recommended bet.
func RecordRecommendationEdge(modelVersion string, edge float64) {
	RecommendationEdge.WithLabelValues(modelVersion).Observe(edge)
}

// UpdateUnsettledRecommendations updates the unsettled recommendation count for a model version.
func UpdateUnsettledRecommendations(modelVersion string, count float64) {
	UnsettledRecommendations.WithLabelValues(modelVersion).Set(count)
}
