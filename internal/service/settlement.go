package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/logger"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
)

// SettlementService closes the feedback loop: once race results are ingested
// as observations, it marks the matching stored recommendations with their
// realized outcome and exports the settled rows as training feedback.
type SettlementService struct {
	history      repository.PredictionHistoryRepository
	observations repository.ObservationRepository
	audit        *logger.AuditLogger
	logger       *logrus.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	history repository.PredictionHistoryRepository,
	observations repository.ObservationRepository,
	log *logrus.Logger,
) *SettlementService {
	return &SettlementService{
		history:      history,
		observations: observations,
		audit:        logger.NewAuditLogger(log),
		logger:       log,
	}
}

// SettlementSummary reports the outcome of one settlement run.
type SettlementSummary struct {
	Unsettled int // recommendations inspected
	Settled   int // outcomes found and recorded
	Pending   int // still waiting for a result row
}

// Fields renders the summary for structured logging.
func (s SettlementSummary) Fields() logrus.Fields {
	return logrus.Fields{
		"unsettled": s.Unsettled,
		"settled":   s.Settled,
		"pending":   s.Pending,
	}
}

// SettleAll matches every unsettled recommendation against stored
// observations and records the realized outcomes. Recommendations whose race
// has no observation yet stay unsettled for the next run.
func (s *SettlementService) SettleAll(ctx context.Context) (SettlementSummary, error) {
	var summary SettlementSummary

	unsettled, err := s.history.GetUnsettled(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load unsettled recommendations: %w", err)
	}
	summary.Unsettled = len(unsettled)
	if len(unsettled) == 0 {
		s.logger.Info("No unsettled recommendations")
		return summary, nil
	}

	outcomes, err := s.outcomesFor(ctx, unsettled)
	if err != nil {
		return summary, err
	}

	for i := range unsettled {
		rec := &unsettled[i]
		obs, ok := outcomes[rec.Key()]
		if !ok {
			summary.Pending++
			continue
		}

		result := models.ResultNotTop3
		if obs.IsTop3 {
			result = models.ResultTop3
		}
		if err := s.history.Settle(ctx, rec.ID, result); err != nil {
			return summary, fmt.Errorf("failed to settle %s: %w", rec.HorseName, err)
		}
		summary.Settled++
		metrics.RecordSettlement()
		s.audit.LogSettlement(rec.ID.String(), rec.HorseName, string(result), summary.Settled)
	}

	if err := s.updateUnsettledGauge(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh unsettled gauge")
	}

	s.logger.WithFields(summary.Fields()).Info("Settlement run complete")
	return summary, nil
}

// outcomesFor loads the observations covering the unsettled recommendations,
// keyed by horse and race date. GetUnsettled orders ascending by race date,
// so the first and last records bound the range.
func (s *SettlementService) outcomesFor(ctx context.Context, unsettled []models.PredictionRecord) (map[string]models.Observation, error) {
	start := unsettled[0].RaceDate
	end := unsettled[len(unsettled)-1].RaceDate

	observations, err := s.observations.GetByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	outcomes := make(map[string]models.Observation, len(observations))
	for _, obs := range observations {
		outcomes[obs.Key()] = obs
	}
	return outcomes, nil
}

// updateUnsettledGauge re-reads the unsettled backlog and publishes a count
// per model version. A version that settles fully keeps its last gauge value
// until it settles again; the backlog gauge matters, not the zeroes.
func (s *SettlementService) updateUnsettledGauge(ctx context.Context) error {
	unsettled, err := s.history.GetUnsettled(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for i := range unsettled {
		counts[unsettled[i].ModelVersion]++
	}
	for version, count := range counts {
		metrics.UpdateUnsettledRecommendations(version, float64(count))
	}
	return nil
}

// TrainingRecord is one settled recommendation rendered for model retraining.
type TrainingRecord struct {
	HorseName     string  `json:"horse_name"`
	RaceDate      string  `json:"race_date"`
	Jockey        string  `json:"jockey"`
	Trainer       string  `json:"trainer"`
	WinOdds       float64 `json:"win_odds"`
	PredictedProb float64 `json:"predicted_top3_prob"`
	Edge          float64 `json:"edge"`
	ValueScore    float64 `json:"value_score"`
	KellyFraction float64 `json:"kelly_fraction"`
	ModelVersion  string  `json:"model_version"`
	IsTop3        bool    `json:"is_top3"`
}

// TrainingFeedback is the export envelope consumed by the model trainer.
type TrainingFeedback struct {
	ExportedAt time.Time        `json:"exported_at"`
	Records    []TrainingRecord `json:"records"`
}

// ExportTrainingFeedback writes the most recently settled recommendations as
// JSON training feedback and returns the number of records exported.
func (s *SettlementService) ExportTrainingFeedback(ctx context.Context, w io.Writer, limit int) (int, error) {
	settled, err := s.history.GetSettled(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load settled recommendations: %w", err)
	}
	if len(settled) == 0 {
		return 0, fmt.Errorf("training export: %w", models.ErrNoData)
	}

	feedback := TrainingFeedback{
		ExportedAt: time.Now().UTC(),
		Records:    make([]TrainingRecord, 0, len(settled)),
	}
	for i := range settled {
		rec := &settled[i]
		feedback.Records = append(feedback.Records, TrainingRecord{
			HorseName:     rec.HorseName,
			RaceDate:      rec.RaceDate.Format("2006-01-02"),
			Jockey:        rec.Jockey,
			Trainer:       rec.Trainer,
			WinOdds:       rec.WinOdds,
			PredictedProb: rec.PredictedProb,
			Edge:          rec.Edge,
			ValueScore:    rec.ValueScore,
			KellyFraction: rec.KellyFraction,
			ModelVersion:  rec.ModelVersion,
			IsTop3:        rec.ActualResult == models.ResultTop3,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(feedback); err != nil {
		return 0, fmt.Errorf("failed to encode training feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"records": len(feedback.Records),
	}).Info("Training feedback exported")
	return len(feedback.Records), nil
}
