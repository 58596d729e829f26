// Package features derives causal rolling features from per-horse race
// histories. Every derived value for an observation is computed only from
// observations strictly earlier in the same horse's history, so feature rows
// never leak outcome information from the race they describe.
package features

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// TemporalFeatureBuilder computes rolling-window features per entity.
type TemporalFeatureBuilder struct {
	windows         []int
	covariateWindow int
	log             *logrus.Logger
}

// NewTemporalFeatureBuilder creates a feature builder. windows must be
// strictly ascending positive window sizes (config validation enforces this).
// covariateWindow is the lookback used for the odds and weight means.
func NewTemporalFeatureBuilder(windows []int, covariateWindow int, log *logrus.Logger) *TemporalFeatureBuilder {
	return &TemporalFeatureBuilder{
		windows:         windows,
		covariateWindow: covariateWindow,
		log:             log,
	}
}

// GroupByEntity partitions observations into per-horse histories. Entities
// keep their first-appearance order and each history is sorted ascending by
// race date. Duplicate dates within an entity survive grouping and are
// rejected by validation during the build.
func GroupByEntity(observations []models.Observation) []models.EntityHistory {
	index := make(map[string]int)
	histories := make([]models.EntityHistory, 0)

	for _, obs := range observations {
		i, ok := index[obs.HorseName]
		if !ok {
			i = len(histories)
			index[obs.HorseName] = i
			histories = append(histories, models.EntityHistory{HorseName: obs.HorseName})
		}
		histories[i].Observations = append(histories[i].Observations, obs)
	}

	for i := range histories {
		obs := histories[i].Observations
		sort.SliceStable(obs, func(a, b int) bool {
			return obs[a].RaceDate.Before(obs[b].RaceDate)
		})
	}
	return histories
}

// BuildForEntity computes feature rows for one horse's history. The history
// must be sorted ascending by race date with strictly increasing dates; a
// violation returns a *models.ValidationError and no rows.
//
// The first observation of a horse has no prior history and every derived
// field on its row is nil. Later rows use the previous min(window, i)
// observations, so early rows shrink their effective window instead of
// borrowing future data.
func (b *TemporalFeatureBuilder) BuildForEntity(history models.EntityHistory) ([]models.FeatureRow, error) {
	if err := history.Validate(); err != nil {
		metrics.RecordValidationFailure()
		return nil, err
	}

	n := history.Len()
	if n == 0 {
		return nil, nil
	}

	// Prefix sums over outcomes and covariates make every window mean O(1).
	top3Sum := make([]float64, n+1)
	oddsSum := make([]float64, n+1)
	weightSum := make([]float64, n+1)
	for i, obs := range history.Observations {
		hit := 0.0
		if obs.IsTop3 {
			hit = 1.0
		}
		top3Sum[i+1] = top3Sum[i] + hit
		oddsSum[i+1] = oddsSum[i] + obs.WinOdds
		weightSum[i+1] = weightSum[i] + obs.ActualWeight
	}

	rows := make([]models.FeatureRow, n)
	for i, obs := range history.Observations {
		row := models.FeatureRow{Observation: obs}
		row.Top3Rates = make([]models.WindowRate, len(b.windows))
		for w, window := range b.windows {
			row.Top3Rates[w] = models.WindowRate{Window: window}
		}

		if i > 0 {
			prev := history.Observations[i-1]

			last := prev.IsTop3
			row.LastIsTop3 = &last

			for w, window := range b.windows {
				lookback := window
				if i < lookback {
					lookback = i
				}
				rate := (top3Sum[i] - top3Sum[i-lookback]) / float64(lookback)
				row.Top3Rates[w].Rate = &rate
			}

			lookback := b.covariateWindow
			if i < lookback {
				lookback = i
			}
			avgOdds := (oddsSum[i] - oddsSum[i-lookback]) / float64(lookback)
			avgWeight := (weightSum[i] - weightSum[i-lookback]) / float64(lookback)
			row.AvgOdds = &avgOdds
			row.AvgWeight = &avgWeight

			days := int(obs.RaceDate.Sub(prev.RaceDate) / (24 * time.Hour))
			row.DaysSinceLastRace = &days
		}

		rows[i] = row
	}
	return rows, nil
}

// Build computes feature rows for every entity sequentially, preserving
// entity order and within-entity date order. The first validation failure
// aborts the build.
func (b *TemporalFeatureBuilder) Build(histories []models.EntityHistory) ([]models.FeatureRow, error) {
	start := time.Now()

	total := 0
	for i := range histories {
		total += histories[i].Len()
	}

	rows := make([]models.FeatureRow, 0, total)
	for i := range histories {
		entityRows, err := b.BuildForEntity(histories[i])
		if err != nil {
			b.log.WithFields(logrus.Fields{
				"entity": histories[i].HorseName,
				"error":  err,
			}).Error("Feature build aborted on validation failure")
			return nil, err
		}
		rows = append(rows, entityRows...)
	}

	metrics.RecordFeatureBuild(len(rows), time.Since(start).Seconds())
	metrics.UpdateEntitiesTracked(float64(len(histories)))

	b.log.WithFields(logrus.Fields{
		"entities":    len(histories),
		"rows":        len(rows),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Feature build complete")
	return rows, nil
}
