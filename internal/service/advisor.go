package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/edge"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/features"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/logger"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/modelclient"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/staking"
)

// Predictor supplies top-3 probabilities and the serving model version for a
// batch of feature rows.
type Predictor interface {
	PredictBatch(ctx context.Context, rows []models.FeatureRow) (*modelclient.Prediction, error)
}

// RowInvalidator drops one cached probability so the next scoring call
// refetches it. The cached model client implements it; the plain client has
// nothing to drop.
type RowInvalidator interface {
	InvalidateRow(horseName string, raceDate time.Time)
}

// Advice is the scored output for one race card. Runners holds every scored
// runner in card order; ValueBets is the subset clearing the edge threshold,
// strongest value score first.
type Advice struct {
	ModelVersion string                    `json:"model_version"`
	GeneratedAt  time.Time                 `json:"generated_at"`
	Runners      []models.PredictionRecord `json:"runners"`
	ValueBets    []models.PredictionRecord `json:"value_bets"`
}

// AdvisorService produces race-day wagering recommendations: causal features
// from each runner's stored history, model probabilities, value assessment
// and capped Kelly stakes. Every scored runner is persisted to prediction
// history; the value-bet subset is what callers act on.
type AdvisorService struct {
	observations repository.ObservationRepository
	history      repository.PredictionHistoryRepository
	predictor    Predictor
	builder      *features.TemporalFeatureBuilder
	calculator   *edge.Calculator
	sizer        *staking.StakeSizer
	validator    *DataValidator
	normalizer   *DataNormalizer
	audit        *logger.AuditLogger
	logger       *logrus.Logger
	cfg          config.AdvisorConfig

	mu   sync.Mutex
	card []models.RaceCardEntry
}

// NewAdvisorService creates a new advisor service
func NewAdvisorService(
	observations repository.ObservationRepository,
	history repository.PredictionHistoryRepository,
	predictor Predictor,
	builder *features.TemporalFeatureBuilder,
	calculator *edge.Calculator,
	sizer *staking.StakeSizer,
	cfg config.AdvisorConfig,
	log *logrus.Logger,
) *AdvisorService {
	return &AdvisorService{
		observations: observations,
		history:      history,
		predictor:    predictor,
		builder:      builder,
		calculator:   calculator,
		sizer:        sizer,
		validator:    NewDataValidator(log),
		normalizer:   NewDataNormalizer(log),
		audit:        logger.NewAuditLogger(log),
		logger:       log,
		cfg:          cfg,
	}
}

// Advise scores one race card and persists every recommendation. A card row
// failing validation aborts the whole call with a *models.ValidationError;
// cards are explicit caller input, not a bulk feed to be filtered.
func (s *AdvisorService) Advise(ctx context.Context, card []models.RaceCardEntry) (*Advice, error) {
	if len(card) == 0 {
		return nil, fmt.Errorf("race card: %w", models.ErrNoData)
	}
	start := time.Now()

	entries := make([]models.RaceCardEntry, len(card))
	copy(entries, card)
	for i := range entries {
		s.normalizer.NormalizeRaceCardEntry(&entries[i])
		if problems := s.validator.ValidateRaceCardEntry(&entries[i]); len(problems) > 0 {
			reason := strings.Join(problems, "; ")
			metrics.RecordValidationFailure()
			s.audit.LogValidationFailure(entries[i].HorseName, i, reason)
			return nil, &models.ValidationError{Entity: entries[i].HorseName, Row: i, Reason: reason}
		}
	}

	rows, err := s.buildRows(ctx, entries)
	if err != nil {
		return nil, err
	}

	prediction, err := s.predictor.PredictBatch(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("model scoring failed: %w", err)
	}

	bankroll := decimal.NewFromFloat(s.cfg.Bankroll)
	now := time.Now().UTC()
	advice := &Advice{
		ModelVersion: prediction.ModelVersion,
		GeneratedAt:  now,
		Runners:      make([]models.PredictionRecord, 0, len(rows)),
	}

	for i := range rows {
		rec := s.scoreRunner(&rows[i], prediction.Probabilities[i], prediction.ModelVersion, bankroll, now)
		advice.Runners = append(advice.Runners, rec)
		if rec.IsValueBet {
			advice.ValueBets = append(advice.ValueBets, rec)
		}
	}

	sort.SliceStable(advice.ValueBets, func(i, j int) bool {
		return advice.ValueBets[i].ValueScore > advice.ValueBets[j].ValueScore
	})

	if err := s.history.SaveBatch(ctx, advice.Runners); err != nil {
		return nil, fmt.Errorf("failed to persist recommendations: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"runners":       len(advice.Runners),
		"value_bets":    len(advice.ValueBets),
		"model_version": advice.ModelVersion,
		"duration":      time.Since(start).String(),
	}).Info("Race card advisory complete")

	return advice, nil
}

// scoreRunner assesses one runner and records the decision on the audit
// trail. Display fields are rounded to four decimals before persistence,
// money stakes to cents.
func (s *AdvisorService) scoreRunner(row *models.FeatureRow, probability float64, modelVersion string, bankroll decimal.Decimal, createdAt time.Time) models.PredictionRecord {
	assessment := s.calculator.Assess(probability, row.WinOdds)
	fraction, stake := s.sizer.Size(assessment.Probability, assessment.Odds, bankroll)

	if len(assessment.Flags) > 0 {
		s.audit.LogNumericGuard(row.HorseName, row.RaceDate, assessment.Flags)
	}

	rec := models.PredictionRecord{
		ID:            uuid.New(),
		RaceDate:      row.RaceDate,
		HorseName:     row.HorseName,
		Jockey:        row.Jockey,
		Trainer:       row.Trainer,
		WinOdds:       row.WinOdds,
		PredictedProb: assessment.Probability,
		ImpliedProb:   assessment.ImpliedProb,
		Edge:          assessment.Edge,
		ExpectedValue: assessment.ExpectedValue,
		ValueScore:    assessment.ValueScore,
		KellyFraction: fraction,
		StakeAmount:   stake.Round(2),
		IsValueBet:    assessment.IsValueBet,
		ModelVersion:  modelVersion,
		ActualResult:  models.ResultUnknown,
		Flags:         assessment.Flags,
		CreatedAt:     createdAt,
	}.Rounded()

	metrics.RecordRecommendationEdge(modelVersion, rec.Edge)
	if rec.IsValueBet {
		metrics.RecordAdvisoryDecision(modelVersion, "recommend")
		s.audit.LogRecommendation(rec.HorseName, rec.RaceDate, rec.WinOdds, rec.PredictedProb,
			rec.Edge, rec.ValueScore, rec.KellyFraction, modelVersion)
	} else {
		metrics.RecordAdvisoryDecision(modelVersion, "reject")
		s.audit.LogRejection(rec.HorseName, rec.RaceDate, rec.WinOdds, rec.PredictedProb,
			rec.Edge, s.calculator.Threshold())
	}
	return rec
}

// buildRows derives each runner's causal features as of the card date.
func (s *AdvisorService) buildRows(ctx context.Context, entries []models.RaceCardEntry) ([]models.FeatureRow, error) {
	rows := make([]models.FeatureRow, 0, len(entries))
	for i := range entries {
		row, err := s.buildRow(ctx, &entries[i])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildRow loads the runner's stored history and derives the feature row for
// the card entry. Only races strictly before the card date feed the
// derivation; a first-time runner gets a row with every derived field nil.
func (s *AdvisorService) buildRow(ctx context.Context, entry *models.RaceCardEntry) (models.FeatureRow, error) {
	past, err := s.observations.GetByEntity(ctx, entry.HorseName)
	if err != nil {
		return models.FeatureRow{}, fmt.Errorf("failed to load history for %s: %w", entry.HorseName, err)
	}

	history := models.EntityHistory{HorseName: entry.HorseName}
	for _, obs := range past {
		if obs.RaceDate.Before(entry.RaceDate) {
			history.Observations = append(history.Observations, obs)
		}
	}
	history.Observations = append(history.Observations, entry.AsObservation())

	derived, err := s.builder.BuildForEntity(history)
	if err != nil {
		return models.FeatureRow{}, fmt.Errorf("failed to derive features for %s: %w", entry.HorseName, err)
	}
	return derived[len(derived)-1], nil
}

// UseAuditLogger redirects the advisory audit trail, typically to a
// dedicated file. Call before the first Advise.
func (s *AdvisorService) UseAuditLogger(audit *logger.AuditLogger) {
	if audit != nil {
		s.audit = audit
	}
}

// SetCard replaces the working race card used by Refresh.
func (s *AdvisorService) SetCard(card []models.RaceCardEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = make([]models.RaceCardEntry, len(card))
	copy(s.card, card)
}

// Card returns a copy of the working race card.
func (s *AdvisorService) Card() []models.RaceCardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	card := make([]models.RaceCardEntry, len(s.card))
	copy(card, s.card)
	return card
}

// UpdateOdds applies a live odds update to the working card and reports
// whether any runner matched. A match drops the runner's cached probability
// so the next Refresh rescores it at the new price.
func (s *AdvisorService) UpdateOdds(horseName string, raceDate time.Time, winOdds float64) bool {
	name := s.normalizer.SanitizeName(horseName)
	date := s.normalizer.NormalizeRaceDate(raceDate)

	s.mu.Lock()
	matched := false
	for i := range s.card {
		if s.card[i].HorseName == name && s.card[i].RaceDate.Equal(date) {
			s.card[i].WinOdds = winOdds
			matched = true
		}
	}
	s.mu.Unlock()

	if !matched {
		return false
	}

	if inv, ok := s.predictor.(RowInvalidator); ok {
		inv.InvalidateRow(name, date)
	}
	s.logger.WithFields(logrus.Fields{
		"horse_name": name,
		"race_date":  date.Format("2006-01-02"),
		"win_odds":   winOdds,
	}).Debug("Applied live odds update")
	return true
}

// Refresh rescores the working card and persists the new recommendations.
func (s *AdvisorService) Refresh(ctx context.Context) (*Advice, error) {
	card := s.Card()
	if len(card) == 0 {
		return nil, fmt.Errorf("no working race card: %w", models.ErrNoData)
	}
	return s.Advise(ctx, card)
}

// History returns the most recently stored recommendations, bounded by the
// configured history limit.
func (s *AdvisorService) History(ctx context.Context) ([]models.PredictionRecord, error) {
	return s.history.GetRecent(ctx, s.cfg.HistoryLimit)
}
