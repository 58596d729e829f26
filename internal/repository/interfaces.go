package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// ObservationRepository defines access to the historical race observations.
type ObservationRepository interface {
	Insert(ctx context.Context, observation *models.Observation) error
	InsertBatch(ctx context.Context, observations []models.Observation) (int, error)
	GetAll(ctx context.Context) ([]models.Observation, error)
	GetByEntity(ctx context.Context, horseName string) ([]models.Observation, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]models.Observation, error)
	GetEntities(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// PredictionHistoryRepository persists advisory recommendations and settles
// them once outcomes are known.
type PredictionHistoryRepository interface {
	Save(ctx context.Context, record *models.PredictionRecord) error
	SaveBatch(ctx context.Context, records []models.PredictionRecord) error
	GetRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error)
	GetByDate(ctx context.Context, raceDate time.Time) ([]models.PredictionRecord, error)
	GetUnsettled(ctx context.Context) ([]models.PredictionRecord, error)
	GetSettled(ctx context.Context, limit int) ([]models.PredictionRecord, error)
	Settle(ctx context.Context, id uuid.UUID, result models.ActualResult) error
}

// BacktestResultRepository persists backtest run summaries.
type BacktestResultRepository interface {
	Save(ctx context.Context, result *models.BacktestResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error)
	GetLatest(ctx context.Context, limit int) ([]*models.BacktestResult, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]*models.BacktestResult, error)
}
