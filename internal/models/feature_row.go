package models

import "fmt"

// WindowRate is a causal top-3 rate over one rolling window. Rate is nil when
// the observation has no prior history.
type WindowRate struct {
	Window int      `json:"window"`
	Rate   *float64 `json:"rate"`
}

// FeatureRow is the derived record for one observation, computed only from
// observations strictly earlier in the same horse's history. All derived
// fields are nil for a horse's first observation.
type FeatureRow struct {
	Observation

	LastIsTop3        *bool        `json:"last_is_top3"`
	Top3Rates         []WindowRate `json:"top3_rates"`
	AvgOdds           *float64     `json:"avg_odds"`
	AvgWeight         *float64     `json:"avg_weight"`
	DaysSinceLastRace *int         `json:"days_since_last_race"`
	Flags             []string     `json:"flags,omitempty"`
}

// HasHistory reports whether any derived field is populated, i.e. the row is
// not the horse's first observation.
func (f *FeatureRow) HasHistory() bool {
	return f.LastIsTop3 != nil
}

// RateForWindow returns the top-3 rate for the given window size, or nil when
// the window is not configured or the row has no history.
func (f *FeatureRow) RateForWindow(w int) *float64 {
	for _, r := range f.Top3Rates {
		if r.Window == w {
			return r.Rate
		}
	}
	return nil
}

// Columns renders the derived fields under the stable naming convention
// (<field>_last_<w>). Nil fields map to nil values so downstream consumers
// can distinguish "no history" from zero. covariateWindow names the window
// the odds/weight means were computed over.
func (f *FeatureRow) Columns(covariateWindow int) map[string]*float64 {
	cols := make(map[string]*float64, len(f.Top3Rates)+4)

	if f.LastIsTop3 != nil {
		v := 0.0
		if *f.LastIsTop3 {
			v = 1.0
		}
		cols["last_is_top3"] = &v
	} else {
		cols["last_is_top3"] = nil
	}

	for _, r := range f.Top3Rates {
		cols[fmt.Sprintf("top3_rate_last_%d", r.Window)] = r.Rate
	}
	cols[fmt.Sprintf("avg_odds_last_%d", covariateWindow)] = f.AvgOdds
	cols[fmt.Sprintf("avg_weight_last_%d", covariateWindow)] = f.AvgWeight

	if f.DaysSinceLastRace != nil {
		v := float64(*f.DaysSinceLastRace)
		cols["days_since_last_race"] = &v
	} else {
		cols["days_since_last_race"] = nil
	}
	return cols
}
