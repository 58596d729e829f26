package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const methodBootstrap = "bootstrap"

// BootstrapConfig configures the resampling diagnostic.
type BootstrapConfig struct {
	Iterations int
	Seed       int64
}

// BootstrapResult describes the ROI distribution obtained by resampling the
// replayed bets with replacement. It answers how sensitive the headline ROI
// is to the particular sequence of results that happened to occur.
type BootstrapResult struct {
	Iterations          int                `json:"iterations"`
	Seed                int64              `json:"seed"`
	MeanROI             float64            `json:"mean_roi"`
	StdROI              float64            `json:"std_roi"`
	MedianROI           float64            `json:"median_roi"`
	ProbabilityOfProfit float64            `json:"probability_of_profit"`
	Percentiles         map[string]float64 `json:"percentiles"`
	Distribution        []float64          `json:"-"`
}

// RunBootstrap resamples replayed records with replacement and recomputes
// ROI each iteration. A non-positive seed switches to a time-based seed;
// any fixed seed makes the run reproducible.
func RunBootstrap(ctx context.Context, records []models.BetRecord, cfg BootstrapConfig) (BootstrapResult, error) {
	if len(records) == 0 {
		return BootstrapResult{}, models.ErrNoData
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	seed := cfg.Seed
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))
	n := len(records)
	distribution := make([]float64, cfg.Iterations)

	for i := 0; i < cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			metrics.RecordBacktestRun(methodBootstrap, "failure")
			return BootstrapResult{}, err
		}
		total := 0.0
		for j := 0; j < n; j++ {
			total += unitProfit(records[rng.Intn(n)])
		}
		distribution[i] = total / float64(n) * 100
	}

	mean, std := meanStd(distribution)
	result := BootstrapResult{
		Iterations:          cfg.Iterations,
		Seed:                seed,
		MeanROI:             mean,
		StdROI:              std,
		MedianROI:           median(distribution),
		ProbabilityOfProfit: probabilityAbove(distribution, 0),
		Percentiles: map[string]float64{
			"p5":  percentile(distribution, 0.05),
			"p25": percentile(distribution, 0.25),
			"p75": percentile(distribution, 0.75),
			"p95": percentile(distribution, 0.95),
		},
		Distribution: distribution,
	}

	metrics.RecordBacktestRun(methodBootstrap, "success")
	metrics.RecordBacktestROI(methodBootstrap, result.MeanROI)
	return result, nil
}

// String renders the headline numbers of the distribution.
func (b BootstrapResult) String() string {
	return fmt.Sprintf("bootstrap(n=%d): mean ROI %.2f%%, std %.2f, P(profit) %.2f",
		b.Iterations, b.MeanROI, b.StdROI, b.ProbabilityOfProfit)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func probabilityAbove(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}
