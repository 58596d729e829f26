package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// Date layouts accepted for race_date values. Spreadsheet exports use the
// compact form.
var raceDateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}

// DataNormalizer brings raw record fields into canonical form: names are
// whitespace-collapsed title case, race dates are midnight UTC, numeric
// strings tolerate the thousand separators spreadsheet exports leave behind
type DataNormalizer struct {
	logger *logrus.Logger
}

// NewDataNormalizer creates a new data normalizer
func NewDataNormalizer(logger *logrus.Logger) *DataNormalizer {
	return &DataNormalizer{logger: logger}
}

// NormalizeObservation canonicalizes names, the race date and the outcome in
// place. A known finishing position overrides any pre-parsed top-3 flag.
func (n *DataNormalizer) NormalizeObservation(obs *models.Observation) {
	obs.HorseName = n.SanitizeName(obs.HorseName)
	obs.Jockey = n.SanitizeName(obs.Jockey)
	obs.Trainer = n.SanitizeName(obs.Trainer)
	obs.RaceDate = n.NormalizeRaceDate(obs.RaceDate)

	if obs.FinishPosition >= 1 {
		obs.IsTop3 = obs.FinishPosition <= 3
	}
}

// NormalizeRaceCardEntry canonicalizes names and the race date in place.
func (n *DataNormalizer) NormalizeRaceCardEntry(entry *models.RaceCardEntry) {
	entry.HorseName = n.SanitizeName(entry.HorseName)
	entry.Jockey = n.SanitizeName(entry.Jockey)
	entry.Trainer = n.SanitizeName(entry.Trainer)
	entry.RaceDate = n.NormalizeRaceDate(entry.RaceDate)
}

// SanitizeName collapses whitespace and normalizes names to title case.
// Result feeds (horse_name, race_date) identity, so the same horse under
// different capitalizations maps to one entity.
func (n *DataNormalizer) SanitizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(strings.Join(fields, " ")))
}

// NormalizeRaceDate truncates a race date to midnight UTC
func (n *DataNormalizer) NormalizeRaceDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseRaceDate parses a race_date string in any accepted layout
func (n *DataNormalizer) ParseRaceDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range raceDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return n.NormalizeRaceDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized race_date %q", raw)
}

// ParseNumber parses a numeric field. Thousand separators and stray spaces
// are stripped; cells holding only a dash mean "no data" and fail the parse.
func (n *DataNormalizer) ParseNumber(raw string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" || cleaned == "-" || cleaned == "–" {
		return 0, fmt.Errorf("empty numeric value")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", raw)
	}
	return d.InexactFloat64(), nil
}

// ParseInt parses an integer field. Whole-valued floats are accepted because
// spreadsheet tooling renders integer columns as "4.0" once a blank appears
// anywhere in them.
func (n *DataNormalizer) ParseInt(raw string) (int, error) {
	v, err := n.ParseNumber(raw)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("expected whole number, got %q", raw)
	}
	return int(v), nil
}

// ParseOutcome parses an is_top3 column value
func (n *DataNormalizer) ParseOutcome(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes":
		return true, nil
	case "0", "false", "f", "no":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized is_top3 value %q", raw)
}
