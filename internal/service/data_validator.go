// Package service wires the pipeline components into the ingestion,
// advisory and settlement workflows.
package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// Domain bounds for Hong Kong racing records. Carried weight is in pounds;
// barrier draws run 1-14.
const (
	minDraw   = 1
	maxDraw   = 14
	minWeight = 80.0
	maxWeight = 200.0
	maxOdds   = 1000.0
)

// DataValidator validates observation and race card data
type DataValidator struct {
	logger *logrus.Logger
}

// NewDataValidator creates a new data validator
func NewDataValidator(logger *logrus.Logger) *DataValidator {
	return &DataValidator{logger: logger}
}

// ValidateObservation validates a resolved race record for required fields
// and constraints
func (v *DataValidator) ValidateObservation(obs *models.Observation) []string {
	var errors []string

	if obs.HorseName == "" {
		errors = append(errors, "horse_name is required")
	}

	if obs.RaceDate.IsZero() {
		errors = append(errors, "race_date is required")
	}

	if obs.Jockey == "" {
		errors = append(errors, "jockey is required")
	}

	if obs.Trainer == "" {
		errors = append(errors, "trainer is required")
	}

	if obs.ActualWeight <= 0 {
		errors = append(errors, fmt.Sprintf("actual_weight must be positive, got %v", obs.ActualWeight))
	}

	if !v.IsValidWeight(obs.ActualWeight) {
		errors = append(errors, fmt.Sprintf("actual_weight out of range (%v-%v lbs), got %v", minWeight, maxWeight, obs.ActualWeight))
	}

	if obs.Draw < minDraw || obs.Draw > maxDraw {
		errors = append(errors, fmt.Sprintf("draw must be %d-%d, got %d", minDraw, maxDraw, obs.Draw))
	}

	if obs.WinOdds <= 1 {
		errors = append(errors, fmt.Sprintf("win_odds must exceed 1.0, got %v", obs.WinOdds))
	}

	if obs.WinOdds > maxOdds {
		errors = append(errors, fmt.Sprintf("win_odds out of range (max %v), got %v", maxOdds, obs.WinOdds))
	}

	if obs.FinishPosition < 0 {
		errors = append(errors, fmt.Sprintf("finish_position cannot be negative, got %d", obs.FinishPosition))
	}

	// Observations are resolved results, so the race must already have run.
	now := time.Now()
	if !obs.RaceDate.IsZero() && obs.RaceDate.After(now.Add(24*time.Hour)) {
		errors = append(errors, fmt.Sprintf("race_date %s is in the future", obs.RaceDate.Format("2006-01-02")))
	}

	return errors
}

// ValidateRaceCardEntry validates an unresolved race-day runner row
func (v *DataValidator) ValidateRaceCardEntry(entry *models.RaceCardEntry) []string {
	var errors []string

	if entry.HorseName == "" {
		errors = append(errors, "horse_name is required")
	}

	if entry.RaceDate.IsZero() {
		errors = append(errors, "race_date is required")
	}

	if entry.Jockey == "" {
		errors = append(errors, "jockey is required")
	}

	if entry.Trainer == "" {
		errors = append(errors, "trainer is required")
	}

	if entry.ActualWeight <= 0 {
		errors = append(errors, fmt.Sprintf("actual_weight must be positive, got %v", entry.ActualWeight))
	}

	if entry.Draw < minDraw || entry.Draw > maxDraw {
		errors = append(errors, fmt.Sprintf("draw must be %d-%d, got %d", minDraw, maxDraw, entry.Draw))
	}

	if entry.WinOdds <= 1 {
		errors = append(errors, fmt.Sprintf("win_odds must exceed 1.0, got %v", entry.WinOdds))
	}

	if entry.WinOdds > maxOdds {
		errors = append(errors, fmt.Sprintf("win_odds out of range (max %v), got %v", maxOdds, entry.WinOdds))
	}

	now := time.Now()
	if !entry.RaceDate.IsZero() && entry.RaceDate.After(now.Add(365*24*time.Hour)) {
		errors = append(errors, "race_date more than 1 year in future")
	}

	return errors
}

// ValidateUniqueness checks the record against the keys already accepted in
// this run
func (v *DataValidator) ValidateUniqueness(obs *models.Observation, seen map[string]struct{}) error {
	if _, ok := seen[obs.Key()]; ok {
		return fmt.Errorf("%w: %s on %s", models.ErrDuplicateKey, obs.HorseName, obs.RaceDate.Format("2006-01-02"))
	}
	return nil
}

// IsValidOdds checks if decimal odds are inside the quoted market range
func (v *DataValidator) IsValidOdds(odds float64) bool {
	return odds > 1.0 && odds <= maxOdds
}

// IsValidDraw checks if a barrier draw is possible on a Hong Kong track
func (v *DataValidator) IsValidDraw(draw int) bool {
	return draw >= minDraw && draw <= maxDraw
}

// IsValidWeight checks if a carried weight is plausible
func (v *DataValidator) IsValidWeight(weight float64) bool {
	return weight >= minWeight && weight <= maxWeight
}
