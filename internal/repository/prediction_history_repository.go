package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const errScanPrediction = "failed to scan prediction: %w"

const predictionColumns = `id, race_date, horse_name, jockey, trainer, win_odds,
	       predicted_top3_prob, implied_probability, edge, expected_value, value_score,
	       kelly_fraction, stake_amount, is_value_bet, model_version, actual_result, created_at`

// PostgresPredictionHistoryRepository implements PredictionHistoryRepository
// for PostgreSQL
type PostgresPredictionHistoryRepository struct {
	db *database.DB
}

// NewPostgresPredictionHistoryRepository creates a new prediction history repository
func NewPostgresPredictionHistoryRepository(db *database.DB) PredictionHistoryRepository {
	return &PostgresPredictionHistoryRepository{db: db}
}

// Save inserts one recommendation.
func (r *PostgresPredictionHistoryRepository) Save(ctx context.Context, record *models.PredictionRecord) error {
	query := `
		INSERT INTO predictions (id, race_date, horse_name, jockey, trainer, win_odds,
		                         predicted_top3_prob, implied_probability, edge, expected_value,
		                         value_score, kelly_fraction, stake_amount, is_value_bet,
		                         model_version, actual_result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.RaceDate, record.HorseName, record.Jockey, record.Trainer,
		record.WinOdds, record.PredictedProb, record.ImpliedProb, record.Edge,
		record.ExpectedValue, record.ValueScore, record.KellyFraction, record.StakeAmount,
		record.IsValueBet, record.ModelVersion, record.ActualResult, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	return nil
}

// SaveBatch inserts recommendations using high-performance batch insert.
func (r *PostgresPredictionHistoryRepository) SaveBatch(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	columns := []string{
		"id", "race_date", "horse_name", "jockey", "trainer", "win_odds",
		"predicted_top3_prob", "implied_probability", "edge", "expected_value",
		"value_score", "kelly_fraction", "stake_amount", "is_value_bet",
		"model_version", "actual_result", "created_at",
	}

	copyFromSource := make([][]interface{}, len(records))
	for i, rec := range records {
		copyFromSource[i] = []interface{}{
			rec.ID, rec.RaceDate, rec.HorseName, rec.Jockey, rec.Trainer, rec.WinOdds,
			rec.PredictedProb, rec.ImpliedProb, rec.Edge, rec.ExpectedValue,
			rec.ValueScore, rec.KellyFraction, rec.StakeAmount, rec.IsValueBet,
			rec.ModelVersion, rec.ActualResult, rec.CreatedAt,
		}
	}

	count, err := r.db.GetPool().CopyFrom(ctx, pgx.Identifier{"predictions"}, columns, pgx.CopyFromRows(copyFromSource))
	if err != nil {
		return fmt.Errorf("failed to batch save predictions: %w", err)
	}
	if count != int64(len(records)) {
		return fmt.Errorf("saved %d predictions, expected %d", count, len(records))
	}

	return nil
}

// GetRecent retrieves the most recent recommendations, strongest value
// first within each race date.
func (r *PostgresPredictionHistoryRepository) GetRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		ORDER BY race_date DESC, value_score DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetByDate retrieves all recommendations for one race date, strongest value
// first.
func (r *PostgresPredictionHistoryRepository) GetByDate(ctx context.Context, raceDate time.Time) ([]models.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE race_date = $1
		ORDER BY value_score DESC
	`

	rows, err := r.db.Query(ctx, query, raceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions by date: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetUnsettled retrieves recommendations still waiting for a result, oldest
// race first.
func (r *PostgresPredictionHistoryRepository) GetUnsettled(ctx context.Context) ([]models.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE actual_result = $1
		ORDER BY race_date ASC
	`

	rows, err := r.db.Query(ctx, query, models.ResultUnknown)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetSettled retrieves recommendations with a known outcome, most recent race
// first. These are the rows exported as training feedback.
func (r *PostgresPredictionHistoryRepository) GetSettled(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE actual_result <> $1
		ORDER BY race_date DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, models.ResultUnknown, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// Settle records the realized outcome for one recommendation.
func (r *PostgresPredictionHistoryRepository) Settle(ctx context.Context, id uuid.UUID, result models.ActualResult) error {
	if !result.Valid() {
		return fmt.Errorf("invalid settlement result %q", result)
	}

	tag, err := r.db.Exec(ctx, `UPDATE predictions SET actual_result = $2 WHERE id = $1`, id, result)
	if err != nil {
		return fmt.Errorf("failed to settle prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func scanPredictions(rows pgx.Rows) ([]models.PredictionRecord, error) {
	var records []models.PredictionRecord
	for rows.Next() {
		var rec models.PredictionRecord
		if err := rows.Scan(
			&rec.ID, &rec.RaceDate, &rec.HorseName, &rec.Jockey, &rec.Trainer, &rec.WinOdds,
			&rec.PredictedProb, &rec.ImpliedProb, &rec.Edge, &rec.ExpectedValue, &rec.ValueScore,
			&rec.KellyFraction, &rec.StakeAmount, &rec.IsValueBet, &rec.ModelVersion,
			&rec.ActualResult, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf(errScanPrediction, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
