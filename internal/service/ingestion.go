package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
)

const defaultBatchSize = 100

// Column names recognized by the dataset readers.
const (
	colRaceDate       = "race_date"
	colHorseName      = "horse_name"
	colJockey         = "jockey"
	colTrainer        = "trainer"
	colActualWeight   = "actual_weight"
	colDraw           = "draw"
	colWinOdds        = "win_odds"
	colFinishPosition = "finish_position"
	colIsTop3         = "is_top3"
)

// IngestionSummary reports one ingestion run. RowsSkipped counts rows
// rejected by validation plus rows deduplicated within the file; Duplicates
// additionally counts rows the store already held.
type IngestionSummary struct {
	RowsRead         int
	RowsValid        int
	RowsSkipped      int
	RowsInserted     int
	Duplicates       int
	ValidationErrors int
	Duration         time.Duration
}

// Fields renders the summary for structured logging.
func (s *IngestionSummary) Fields() logrus.Fields {
	return logrus.Fields{
		"rows_read":         s.RowsRead,
		"rows_valid":        s.RowsValid,
		"rows_skipped":      s.RowsSkipped,
		"rows_inserted":     s.RowsInserted,
		"duplicates":        s.Duplicates,
		"validation_errors": s.ValidationErrors,
		"duration":          s.Duration.String(),
	}
}

// IngestionService reads raw race-record CSV files into the observation
// store: header mapping, per-row validation, normalization, deduplication on
// (horse_name, race_date) and batched persistence. Rejected rows are logged
// and counted, never fatal; only structural failures (unreadable input,
// missing columns, storage errors) abort a run.
type IngestionService struct {
	repo       repository.ObservationRepository
	validator  *DataValidator
	normalizer *DataNormalizer
	logger     *logrus.Logger
	batchSize  int
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.ObservationRepository, logger *logrus.Logger, batchSize int) *IngestionService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &IngestionService{
		repo:       repo,
		validator:  NewDataValidator(logger),
		normalizer: NewDataNormalizer(logger),
		logger:     logger,
		batchSize:  batchSize,
	}
}

// IngestFile ingests one CSV dataset file.
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*IngestionSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	s.logger.WithField("path", path).Info("Starting dataset ingestion")
	return s.Ingest(ctx, f)
}

// Ingest reads race records from r and persists them. The summary is also
// returned alongside an error when a run aborts partway through.
func (s *IngestionService) Ingest(ctx context.Context, r io.Reader) (*IngestionSummary, error) {
	summary, err := s.process(ctx, r, s.flush)
	if err != nil {
		return summary, err
	}

	metrics.RecordRowsIngested(summary.RowsInserted)
	s.logger.WithFields(summary.Fields()).Info("Dataset ingestion complete")
	return summary, nil
}

// LoadDataset parses a full race-record dataset into memory, applying the
// same validation, normalization and in-file deduplication as ingestion but
// persisting nothing. The replay CLI uses it to backtest straight from a
// file without an observation store.
func LoadDataset(ctx context.Context, r io.Reader, log *logrus.Logger) ([]models.Observation, *IngestionSummary, error) {
	// The repository is only reached through the persisting sink.
	svc := NewIngestionService(nil, log, 0)

	var observations []models.Observation
	summary, err := svc.process(ctx, r, func(_ context.Context, batch []models.Observation, _ *IngestionSummary) error {
		observations = append(observations, batch...)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}

	log.WithFields(logrus.Fields{
		"rows_read":  summary.RowsRead,
		"rows_valid": summary.RowsValid,
	}).Info("Dataset loaded")
	return observations, summary, nil
}

// batchSink receives validated, normalized, deduplicated batches in file
// order. Sinks maintain the summary's insert counters themselves.
type batchSink func(ctx context.Context, batch []models.Observation, summary *IngestionSummary) error

func (s *IngestionService) process(ctx context.Context, r io.Reader, sink batchSink) (*IngestionSummary, error) {
	start := time.Now()

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty dataset: %w", models.ErrNoData)
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	summary := &IngestionSummary{}
	seen := make(map[string]struct{})
	batch := make([]models.Observation, 0, s.batchSize)
	line := 1

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			summary.RowsRead++
			summary.RowsSkipped++
			metrics.RecordRowRejected()
			s.logger.WithError(err).WithField("line", line).Warn("Skipping malformed CSV line")
			continue
		}
		summary.RowsRead++

		obs, problems := s.parseRow(cols, record)
		if len(problems) == 0 {
			problems = s.validator.ValidateObservation(obs)
		}
		if len(problems) > 0 {
			summary.RowsSkipped++
			summary.ValidationErrors++
			metrics.RecordRowRejected()
			s.logger.WithFields(logrus.Fields{
				"line":     line,
				"problems": problems,
			}).Warn("Rejected dataset row")
			continue
		}

		s.normalizer.NormalizeObservation(obs)

		if err := s.validator.ValidateUniqueness(obs, seen); err != nil {
			summary.RowsSkipped++
			summary.Duplicates++
			s.logger.WithFields(logrus.Fields{
				"line":       line,
				"horse_name": obs.HorseName,
				"race_date":  obs.RaceDate.Format("2006-01-02"),
			}).Debug("Skipping duplicate row")
			continue
		}
		seen[obs.Key()] = struct{}{}

		summary.RowsValid++
		batch = append(batch, *obs)
		if len(batch) >= s.batchSize {
			if err := sink(ctx, batch, summary); err != nil {
				return summary, err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := sink(ctx, batch, summary); err != nil {
			return summary, err
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// flush persists one batch. Rows the store already held come back uncounted
// from the insert and are reported as duplicates.
func (s *IngestionService) flush(ctx context.Context, batch []models.Observation, summary *IngestionSummary) error {
	inserted, err := s.repo.InsertBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to persist observation batch: %w", err)
	}

	summary.RowsInserted += inserted
	if existing := len(batch) - inserted; existing > 0 {
		summary.Duplicates += existing
	}
	return nil
}

// parseRow converts one CSV record into an observation. Parse failures come
// back as human-readable problems, one per offending field.
func (s *IngestionService) parseRow(cols map[string]int, record []string) (*models.Observation, []string) {
	var problems []string

	obs := &models.Observation{
		HorseName: field(cols, record, colHorseName),
		Jockey:    field(cols, record, colJockey),
		Trainer:   field(cols, record, colTrainer),
	}

	if raw := field(cols, record, colRaceDate); raw != "" {
		if parsed, err := s.normalizer.ParseRaceDate(raw); err != nil {
			problems = append(problems, err.Error())
		} else {
			obs.RaceDate = parsed
		}
	}

	if raw := field(cols, record, colActualWeight); raw != "" {
		if v, err := s.normalizer.ParseNumber(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid actual_weight %q", raw))
		} else {
			obs.ActualWeight = v
		}
	}

	if raw := field(cols, record, colDraw); raw != "" {
		if v, err := s.normalizer.ParseInt(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid draw %q", raw))
		} else {
			obs.Draw = v
		}
	}

	if raw := field(cols, record, colWinOdds); raw != "" {
		if v, err := s.normalizer.ParseNumber(raw); err != nil {
			problems = append(problems, fmt.Sprintf("invalid win_odds %q", raw))
		} else {
			obs.WinOdds = v
		}
	}

	rawFinish := field(cols, record, colFinishPosition)
	if rawFinish != "" {
		if v, err := s.normalizer.ParseInt(rawFinish); err != nil {
			problems = append(problems, fmt.Sprintf("invalid finish_position %q", rawFinish))
		} else {
			obs.FinishPosition = v
		}
	}

	rawTop3 := field(cols, record, colIsTop3)
	if rawTop3 != "" {
		if v, err := s.normalizer.ParseOutcome(rawTop3); err != nil {
			problems = append(problems, err.Error())
		} else {
			obs.IsTop3 = v
		}
	}

	if rawFinish == "" && rawTop3 == "" {
		problems = append(problems, "finish_position or is_top3 is required")
	}

	return obs, problems
}

// mapColumns builds a column index from the header row. Spreadsheet exports
// carry a UTF-8 BOM on the first cell.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "﻿")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	required := []string{colRaceDate, colHorseName, colJockey, colTrainer, colActualWeight, colDraw, colWinOdds}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}

	// The outcome arrives either as a finishing position or as a precomputed
	// top-3 flag, depending on which export produced the file.
	if _, hasFinish := cols[colFinishPosition]; !hasFinish {
		if _, hasTop3 := cols[colIsTop3]; !hasTop3 {
			missing = append(missing, colFinishPosition)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func field(cols map[string]int, record []string, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
