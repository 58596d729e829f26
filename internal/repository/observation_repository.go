package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const errScanObservation = "failed to scan observation: %w"

const observationColumns = `horse_name, race_date, jockey, trainer, actual_weight, draw,
	       win_odds, finish_position, is_top3`

// PostgresObservationRepository implements ObservationRepository for PostgreSQL
type PostgresObservationRepository struct {
	db *database.DB
}

// NewPostgresObservationRepository creates a new observation repository
func NewPostgresObservationRepository(db *database.DB) ObservationRepository {
	return &PostgresObservationRepository{db: db}
}

// Insert inserts a single observation. A (horse_name, race_date) collision
// returns models.ErrDuplicateKey.
func (r *PostgresObservationRepository) Insert(ctx context.Context, observation *models.Observation) error {
	query := `
		INSERT INTO observations (horse_name, race_date, jockey, trainer, actual_weight,
		                          draw, win_odds, finish_position, is_top3)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		observation.HorseName, observation.RaceDate, observation.Jockey, observation.Trainer,
		observation.ActualWeight, observation.Draw, observation.WinOdds,
		observation.FinishPosition, observation.IsTop3,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	return nil
}

// InsertBatch inserts observations in one round trip, skipping rows already
// present. It returns the number of rows actually inserted.
func (r *PostgresObservationRepository) InsertBatch(ctx context.Context, observations []models.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO observations (horse_name, race_date, jockey, trainer, actual_weight,
		                          draw, win_odds, finish_position, is_top3)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (horse_name, race_date) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, obs := range observations {
		batch.Queue(query,
			obs.HorseName, obs.RaceDate, obs.Jockey, obs.Trainer, obs.ActualWeight,
			obs.Draw, obs.WinOdds, obs.FinishPosition, obs.IsTop3,
		)
	}

	results := r.db.GetPool().SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range observations {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to batch insert observations: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// GetAll retrieves every observation in chronological order.
func (r *PostgresObservationRepository) GetAll(ctx context.Context) ([]models.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		ORDER BY race_date ASC, horse_name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetByEntity retrieves one horse's observations in chronological order.
func (r *PostgresObservationRepository) GetByEntity(ctx context.Context, horseName string) ([]models.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE horse_name = $1
		ORDER BY race_date ASC
	`

	rows, err := r.db.Query(ctx, query, horseName)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations by entity: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetByDateRange retrieves observations inside [start, end] in chronological
// order.
func (r *PostgresObservationRepository) GetByDateRange(ctx context.Context, start, end time.Time) ([]models.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE race_date >= $1 AND race_date <= $2
		ORDER BY race_date ASC, horse_name ASC
	`

	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations by date range: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetEntities lists distinct horse names.
func (r *PostgresObservationRepository) GetEntities(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT horse_name FROM observations ORDER BY horse_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan entity name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the number of stored observations.
func (r *PostgresObservationRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM observations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

func scanObservations(rows pgx.Rows) ([]models.Observation, error) {
	var observations []models.Observation
	for rows.Next() {
		var obs models.Observation
		if err := rows.Scan(
			&obs.HorseName, &obs.RaceDate, &obs.Jockey, &obs.Trainer, &obs.ActualWeight,
			&obs.Draw, &obs.WinOdds, &obs.FinishPosition, &obs.IsTop3,
		); err != nil {
			return nil, fmt.Errorf(errScanObservation, err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
