package database

import (
	"context"
	"fmt"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
)

// schema holds the idempotent DDL for the advisory pipeline. Statements are
// executed in order on startup; IF NOT EXISTS keeps reruns safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		horse_name      TEXT NOT NULL,
		race_date       DATE NOT NULL,
		jockey          TEXT NOT NULL DEFAULT '',
		trainer         TEXT NOT NULL DEFAULT '',
		actual_weight   DOUBLE PRECISION NOT NULL DEFAULT 0,
		draw            INTEGER NOT NULL DEFAULT 0,
		win_odds        DOUBLE PRECISION NOT NULL DEFAULT 0,
		finish_position INTEGER NOT NULL DEFAULT 0,
		is_top3         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (horse_name, race_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_race_date
		ON observations (race_date)`,

	`CREATE TABLE IF NOT EXISTS predictions (
		id                  UUID PRIMARY KEY,
		race_date           DATE NOT NULL,
		horse_name          TEXT NOT NULL,
		jockey              TEXT NOT NULL DEFAULT '',
		trainer             TEXT NOT NULL DEFAULT '',
		win_odds            DOUBLE PRECISION NOT NULL,
		predicted_top3_prob DOUBLE PRECISION NOT NULL,
		implied_probability DOUBLE PRECISION NOT NULL,
		edge                DOUBLE PRECISION NOT NULL,
		expected_value      DOUBLE PRECISION NOT NULL,
		value_score         DOUBLE PRECISION NOT NULL,
		kelly_fraction      DOUBLE PRECISION NOT NULL,
		stake_amount        NUMERIC(18,2) NOT NULL DEFAULT 0,
		is_value_bet        BOOLEAN NOT NULL,
		model_version       TEXT NOT NULL DEFAULT '',
		actual_result       TEXT NOT NULL DEFAULT 'unknown',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_race_date
		ON predictions (race_date DESC, value_score DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_unsettled
		ON predictions (race_date) WHERE actual_result = 'unknown'`,

	`CREATE TABLE IF NOT EXISTS backtest_results (
		id              UUID PRIMARY KEY,
		dataset_version UUID NOT NULL,
		run_date        TIMESTAMPTZ NOT NULL,
		start_date      DATE,
		end_date        DATE,
		edge_threshold  DOUBLE PRECISION NOT NULL,
		kelly_cap       DOUBLE PRECISION NOT NULL,
		total_bets      INTEGER NOT NULL,
		hit_rate        DOUBLE PRECISION,
		total_profit    DOUBLE PRECISION,
		roi_percent     DOUBLE PRECISION,
		sharpe          DOUBLE PRECISION,
		max_drawdown    DOUBLE PRECISION,
		avg_edge        DOUBLE PRECISION,
		avg_odds        DOUBLE PRECISION,
		median_odds     DOUBLE PRECISION,
		full_results    JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_run_date
		ON backtest_results (run_date DESC)`,
}

// Initialize creates a connection pool and applies the schema.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema applies the idempotent DDL.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
