package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// CardReader parses race-day cards: the observation columns without
// outcomes. Cards are small curated files, so a malformed row fails the
// whole read with the offending row identified instead of being skipped.
type CardReader struct {
	normalizer *DataNormalizer
	logger     *logrus.Logger
}

// NewCardReader creates a new race card reader
func NewCardReader(logger *logrus.Logger) *CardReader {
	return &CardReader{
		normalizer: NewDataNormalizer(logger),
		logger:     logger,
	}
}

// ReadFile reads a race card CSV file. Rows without a race_date column take
// defaultDate.
func (r *CardReader) ReadFile(path string, defaultDate time.Time) ([]models.RaceCardEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open race card: %w", err)
	}
	defer f.Close()

	return r.Read(f, defaultDate)
}

// Read parses a race card from reader. Rows without a race_date column take
// defaultDate.
func (r *CardReader) Read(reader io.Reader, defaultDate time.Time) ([]models.RaceCardEntry, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty race card: %w", models.ErrNoData)
		}
		return nil, fmt.Errorf("failed to read race card header: %w", err)
	}

	cols, err := mapCardColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []models.RaceCardEntry
	row := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read race card row %d: %w", row+1, err)
		}

		entry, problems := r.parseEntry(cols, record, defaultDate)
		if len(problems) > 0 {
			return nil, &models.ValidationError{
				Entity: entry.HorseName,
				Row:    row,
				Reason: strings.Join(problems, "; "),
			}
		}

		entries = append(entries, *entry)
		row++
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("race card has no runners: %w", models.ErrNoData)
	}

	r.logger.WithFields(logrus.Fields{
		"runners":   len(entries),
		"race_date": entries[0].RaceDate.Format("2006-01-02"),
	}).Info("Race card loaded")
	return entries, nil
}

func (r *CardReader) parseEntry(cols map[string]int, record []string, defaultDate time.Time) (*models.RaceCardEntry, []string) {
	var problems []string

	entry := &models.RaceCardEntry{
		HorseName: field(cols, record, colHorseName),
		Jockey:    field(cols, record, colJockey),
		Trainer:   field(cols, record, colTrainer),
		RaceDate:  r.normalizer.NormalizeRaceDate(defaultDate),
	}

	if raw := field(cols, record, colRaceDate); raw != "" {
		if parsed, err := r.normalizer.ParseRaceDate(raw); err != nil {
			problems = append(problems, err.Error())
		} else {
			entry.RaceDate = parsed
		}
	}

	if raw := field(cols, record, colActualWeight); raw != "" {
		if v, err := r.normalizer.ParseNumber(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid actual_weight %q", raw))
		} else {
			entry.ActualWeight = v
		}
	}

	if raw := field(cols, record, colDraw); raw != "" {
		if v, err := r.normalizer.ParseInt(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid draw %q", raw))
		} else {
			entry.Draw = v
		}
	}

	if raw := field(cols, record, colWinOdds); raw != "" {
		if v, err := r.normalizer.ParseNumber(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid win_odds %q", raw))
		} else {
			entry.WinOdds = v
		}
	}

	return entry, problems
}

// mapCardColumns builds the column index for a race card header. race_date
// is optional on cards; everything else matches the dataset schema.
func mapCardColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "﻿")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	required := []string{colHorseName, colJockey, colTrainer, colActualWeight, colDraw, colWinOdds}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("race card missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}
