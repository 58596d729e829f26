package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// TrainingExport is the feedback payload handed back to model training:
// every replayed bet with its realized outcome, plus the run statistics.
// The trainer consumes this to recalibrate probabilities against what the
// market actually paid.
type TrainingExport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	RunDate     time.Time          `json:"run_date"`
	Summary     Summary            `json:"summary"`
	Bootstrap   *BootstrapResult   `json:"bootstrap,omitempty"`
	Segments    []SegmentSummary   `json:"segments,omitempty"`
	Records     []models.BetRecord `json:"records"`
}

// BuildTrainingExport assembles the feedback payload from a finished run.
func BuildTrainingExport(report *Report, bootstrap *BootstrapResult) TrainingExport {
	return TrainingExport{
		GeneratedAt: time.Now().UTC(),
		RunDate:     report.RunDate,
		Summary:     report.Summary,
		Bootstrap:   bootstrap,
		Segments:    report.Segments,
		Records:     report.Records,
	}
}

// WriteTrainingExport writes the feedback payload as indented JSON.
func WriteTrainingExport(export TrainingExport, outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal training export: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// BacktestResultSaver persists finished runs. Implemented by the backtest
// result repository.
type BacktestResultSaver interface {
	Save(ctx context.Context, result *models.BacktestResult) error
}

// ToModel converts a finished report into its persistence record.
// DatasetVersion identifies the observation snapshot the run was computed
// from. NoData reports are not persistable.
func (r *Report) ToModel(datasetVersion uuid.UUID) (*models.BacktestResult, error) {
	if r.NoData {
		return nil, models.ErrNoData
	}

	full, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal full results: %w", err)
	}

	return &models.BacktestResult{
		ID:             uuid.New(),
		DatasetVersion: datasetVersion,
		RunDate:        r.RunDate,
		StartDate:      r.Config.StartDate,
		EndDate:        r.Config.EndDate,
		EdgeThreshold:  r.Config.EdgeThreshold,
		KellyCap:       r.Config.KellyCap,
		TotalBets:      r.Summary.TotalBets,
		HitRate:        r.Summary.HitRate,
		TotalProfit:    r.Summary.TotalProfit,
		ROIPercent:     r.Summary.ROIPercent,
		Sharpe:         r.Summary.Sharpe,
		MaxDrawdown:    r.Summary.MaxDrawdown,
		AvgEdge:        r.Summary.AvgEdge,
		AvgOdds:        r.Summary.AvgOdds,
		MedianOdds:     r.Summary.MedianOdds,
		FullResults:    full,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Persist saves a finished report through the given saver.
func (r *Report) Persist(ctx context.Context, saver BacktestResultSaver, datasetVersion uuid.UUID) error {
	if saver == nil {
		return fmt.Errorf("backtest result saver is required")
	}
	model, err := r.ToModel(datasetVersion)
	if err != nil {
		return err
	}
	return saver.Save(ctx, model)
}
