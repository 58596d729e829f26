package models

import (
	"fmt"
	"time"
)

// Observation is one horse's resolved record for one race. Observations are
// read-only inputs to the pipeline and are uniquely identified by
// (horse_name, race_date).
type Observation struct {
	HorseName      string    `db:"horse_name" json:"horse_name" validate:"required"`
	RaceDate       time.Time `db:"race_date" json:"race_date" validate:"required"`
	Jockey         string    `db:"jockey" json:"jockey"`
	Trainer        string    `db:"trainer" json:"trainer"`
	ActualWeight   float64   `db:"actual_weight" json:"actual_weight" validate:"gte=0"`
	Draw           int       `db:"draw" json:"draw" validate:"gte=0"`
	WinOdds        float64   `db:"win_odds" json:"win_odds" validate:"gte=0"`
	FinishPosition int       `db:"finish_position" json:"finish_position" validate:"gte=0"`
	IsTop3         bool      `db:"is_top3" json:"is_top3"`
}

// Key returns the (horse_name, race_date) identity used for deduplication.
func (o *Observation) Key() string {
	return fmt.Sprintf("%s|%s", o.HorseName, o.RaceDate.Format("2006-01-02"))
}

// EntityHistory holds one horse's observations sorted ascending by race date.
// Dates must be strictly increasing; duplicates or disorder are hard
// validation failures.
type EntityHistory struct {
	HorseName    string        `json:"horse_name"`
	Observations []Observation `json:"observations"`
}

// Validate checks the strictly-increasing-dates invariant. It returns a
// *ValidationError identifying the first offending row.
func (h *EntityHistory) Validate() error {
	for i := 1; i < len(h.Observations); i++ {
		prev := h.Observations[i-1].RaceDate
		cur := h.Observations[i].RaceDate
		if cur.Equal(prev) {
			return &ValidationError{
				Entity: h.HorseName,
				Row:    i,
				Reason: fmt.Sprintf("duplicate race date %s", cur.Format("2006-01-02")),
			}
		}
		if cur.Before(prev) {
			return &ValidationError{
				Entity: h.HorseName,
				Row:    i,
				Reason: fmt.Sprintf("race date %s precedes %s", cur.Format("2006-01-02"), prev.Format("2006-01-02")),
			}
		}
	}
	return nil
}

// Len returns the number of observations in the history.
func (h *EntityHistory) Len() int {
	return len(h.Observations)
}
