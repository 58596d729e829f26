package models

import "time"

// RaceCardEntry is one unresolved runner row on a race day, as submitted to
// the advisory service. It carries the same covariates as an Observation but
// no outcome.
type RaceCardEntry struct {
	HorseName    string    `json:"horse_name" validate:"required"`
	RaceDate     time.Time `json:"race_date" validate:"required"`
	Jockey       string    `json:"jockey"`
	Trainer      string    `json:"trainer"`
	ActualWeight float64   `json:"actual_weight" validate:"gte=0"`
	Draw         int       `json:"draw" validate:"gte=0"`
	WinOdds      float64   `json:"win_odds" validate:"gte=0"`
}

// AsObservation returns the entry as an unresolved observation for feature
// derivation. FinishPosition and IsTop3 stay zero-valued; callers must not
// feed the result back into historical storage.
func (e *RaceCardEntry) AsObservation() Observation {
	return Observation{
		HorseName:    e.HorseName,
		RaceDate:     e.RaceDate,
		Jockey:       e.Jockey,
		Trainer:      e.Trainer,
		ActualWeight: e.ActualWeight,
		Draw:         e.Draw,
		WinOdds:      e.WinOdds,
	}
}
