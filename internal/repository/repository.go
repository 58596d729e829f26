package repository

import (
	"fmt"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Observation    ObservationRepository
	Prediction     PredictionHistoryRepository
	BacktestResult BacktestResultRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Observation:    NewPostgresObservationRepository(db),
		Prediction:     NewPostgresPredictionHistoryRepository(db),
		BacktestResult: NewPostgresBacktestResultRepository(db),
	}, nil
}
