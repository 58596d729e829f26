package pipeline

import (
	"context"
	"time"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// StaticSource serves probabilities recorded ahead of time, keyed by
// (horse_name, race_date). Rows without a stored probability score zero and
// the edge threshold filters them out downstream. Used to replay persisted
// model output without calling the model service.
type StaticSource struct {
	probs map[string]float64
}

// NewStaticSource wraps a prebuilt probability map. Keys follow
// models.Observation.Key().
func NewStaticSource(probs map[string]float64) *StaticSource {
	if probs == nil {
		probs = make(map[string]float64)
	}
	return &StaticSource{probs: probs}
}

// Set records the probability for one (horse, race date) pair.
func (s *StaticSource) Set(horseName string, raceDate time.Time, probability float64) {
	obs := models.Observation{HorseName: horseName, RaceDate: raceDate}
	s.probs[obs.Key()] = probability
}

// Len returns the number of stored probabilities.
func (s *StaticSource) Len() int {
	return len(s.probs)
}

// Predict looks up each row's stored probability.
func (s *StaticSource) Predict(_ context.Context, rows []models.FeatureRow) ([]float64, error) {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = s.probs[rows[i].Key()]
	}
	return out, nil
}
