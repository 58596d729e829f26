package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const datasetHeader = "race_date,horse_name,jockey,trainer,actual_weight,draw,win_odds,finish_position"

func newTestIngestion(repo *fakeObservationRepo, batchSize int) *IngestionService {
	return NewIngestionService(repo, newTestLogger(), batchSize)
}

// TestIngestDataset tests the full read-validate-normalize-dedupe-persist
// flow over a messy export
func TestIngestDataset(t *testing.T) {
	data := "﻿" + datasetHeader + "\n" +
		"2024-06-01,golden sixty,z purton,k lui,126,4,2.5,1\n" +
		"2024-06-01,california spangle,b shinn,t size,121.0,2.0,4.8,5\n" +
		"20240608,GOLDEN SIXTY,z purton,k lui,126,1,2.1,2\n" +
		"2024-06-01,Golden Sixty,Z Purton,K Lui,126,4,2.5,1\n" +
		"2024-06-01,Bad Runner,Z Purton,K Lui,126,20,2.5,1\n" +
		"short,row\n"

	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	summary, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 6, summary.RowsRead)
	assert.Equal(t, 3, summary.RowsValid)
	assert.Equal(t, 3, summary.RowsSkipped)
	assert.Equal(t, 3, summary.RowsInserted)
	assert.Equal(t, 1, summary.Duplicates, "in-file duplicate after normalization")
	assert.Equal(t, 1, summary.ValidationErrors, "draw 20 rejected")

	golden, err := repo.GetByEntity(context.Background(), "Golden Sixty")
	require.NoError(t, err)
	require.Len(t, golden, 2, "names should normalize to one entity")
	assert.Equal(t, raceDay(1), golden[0].RaceDate)
	assert.Equal(t, raceDay(8), golden[1].RaceDate, "compact date layout accepted")
	assert.True(t, golden[0].IsTop3, "finish position 1 derives top-3")
	assert.True(t, golden[1].IsTop3, "finish position 2 derives top-3")

	spangle, err := repo.GetByEntity(context.Background(), "California Spangle")
	require.NoError(t, err)
	require.Len(t, spangle, 1)
	assert.InDelta(t, 121.0, spangle[0].ActualWeight, 1e-9)
	assert.Equal(t, 2, spangle[0].Draw, "float-rendered draw accepted")
	assert.False(t, spangle[0].IsTop3, "finish position 5 is not top-3")
}

// TestIngestBatchFlush tests that rows persist in batches of the configured
// size
func TestIngestBatchFlush(t *testing.T) {
	data := datasetHeader + "\n" +
		"2024-06-01,Horse A,J One,T One,120,1,3.0,1\n" +
		"2024-06-01,Horse B,J Two,T Two,121,2,4.0,2\n" +
		"2024-06-01,Horse C,J Three,T Three,122,3,5.0,6\n"

	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 2)

	summary, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RowsInserted)
	assert.Equal(t, []int{2, 1}, repo.batchSizes)
}

// TestIngestStoreDuplicates tests that rows the store already held come back
// as duplicates, not inserts
func TestIngestStoreDuplicates(t *testing.T) {
	repo := newFakeObservationRepo(testObservation("Golden Sixty", 1, true))
	svc := newTestIngestion(repo, 50)

	data := datasetHeader + "\n" +
		"2024-06-01,Golden Sixty,Z Purton,J Size,126,4,2.5,1\n" +
		"2024-06-02,Golden Sixty,Z Purton,J Size,126,4,2.4,1\n"

	summary, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsValid)
	assert.Equal(t, 1, summary.RowsInserted)
	assert.Equal(t, 1, summary.Duplicates)
}

// TestIngestIsTop3Schema tests the generated-data schema carrying a
// precomputed flag instead of a finishing position
func TestIngestIsTop3Schema(t *testing.T) {
	data := "race_date,horse_name,jockey,trainer,actual_weight,draw,win_odds,is_top3\n" +
		"2024-06-01,Horse A,J One,T One,120,1,3.0,1\n" +
		"2024-06-01,Horse B,J Two,T Two,121,2,4.0,0\n" +
		"2024-06-01,Horse C,J Three,T Three,122,3,5.0,true\n"

	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	summary, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RowsInserted)

	stored, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 3)

	byName := make(map[string]models.Observation, len(stored))
	for _, obs := range stored {
		byName[obs.HorseName] = obs
	}
	assert.True(t, byName["Horse A"].IsTop3)
	assert.False(t, byName["Horse B"].IsTop3)
	assert.True(t, byName["Horse C"].IsTop3)
	assert.Zero(t, byName["Horse A"].FinishPosition)
}

// TestIngestRowMissingOutcome tests that a row with neither outcome field is
// rejected
func TestIngestRowMissingOutcome(t *testing.T) {
	data := datasetHeader + "\n" +
		"2024-06-01,Horse A,J One,T One,120,1,3.0,\n"

	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	summary, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ValidationErrors)
	assert.Zero(t, summary.RowsInserted)
}

// TestIngestMissingColumns tests header validation
func TestIngestMissingColumns(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	data := "race_date,horse_name,jockey,trainer,actual_weight,draw,finish_position\n"
	_, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.Contains(t, err.Error(), "win_odds")
}

// TestIngestMissingOutcomeColumns tests that one of the outcome columns must
// be present
func TestIngestMissingOutcomeColumns(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	data := "race_date,horse_name,jockey,trainer,actual_weight,draw,win_odds\n"
	_, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finish_position")
}

// TestIngestEmptyDataset tests the empty-input edge
func TestIngestEmptyDataset(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	_, err := svc.Ingest(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoData)
}

// TestIngestHeaderOnly tests a dataset with no data rows
func TestIngestHeaderOnly(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	summary, err := svc.Ingest(context.Background(), strings.NewReader(datasetHeader+"\n"))
	require.NoError(t, err)
	assert.Zero(t, summary.RowsRead)
	assert.Zero(t, summary.RowsInserted)
}

// TestIngestContextCancelled tests that a cancelled context stops the run
func TestIngestContextCancelled(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := datasetHeader + "\n" + "2024-06-01,Horse A,J One,T One,120,1,3.0,1\n"
	_, err := svc.Ingest(ctx, strings.NewReader(data))
	require.ErrorIs(t, err, context.Canceled)
}

// TestIngestInsertError tests that storage failures abort the run
func TestIngestInsertError(t *testing.T) {
	repo := newFakeObservationRepo()
	repo.insertErr = errors.New("connection refused")
	svc := newTestIngestion(repo, 50)

	data := datasetHeader + "\n" + "2024-06-01,Horse A,J One,T One,120,1,3.0,1\n"
	_, err := svc.Ingest(context.Background(), strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist observation batch")
}

// TestLoadDataset tests the in-memory load path used by the replay CLI:
// same cleaning as ingestion, nothing persisted
func TestLoadDataset(t *testing.T) {
	data := datasetHeader + "\n" +
		"2024-06-01,golden sixty,z purton,k lui,126,4,2.5,1\n" +
		"2024-06-01,Golden Sixty,Z Purton,K Lui,126,4,2.5,1\n" +
		"2024-06-01,Bad Runner,Z Purton,K Lui,126,20,2.5,1\n"

	observations, summary, err := LoadDataset(context.Background(), strings.NewReader(data), newTestLogger())
	require.NoError(t, err)

	require.Len(t, observations, 1, "duplicate and invalid rows dropped")
	assert.Equal(t, "Golden Sixty", observations[0].HorseName)
	assert.Equal(t, 3, summary.RowsRead)
	assert.Equal(t, 1, summary.RowsValid)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Zero(t, summary.RowsInserted, "nothing is persisted")
}

// TestLoadDatasetEmpty tests the empty-input edge on the in-memory path
func TestLoadDatasetEmpty(t *testing.T) {
	_, _, err := LoadDataset(context.Background(), strings.NewReader(""), newTestLogger())
	require.ErrorIs(t, err, models.ErrNoData)
}

// TestIngestFile tests ingestion from a file on disk
func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "races.csv")
	data := datasetHeader + "\n" + "2024-06-01,Horse A,J One,T One,120,1,3.0,1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	summary, err := svc.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RowsInserted)
}

// TestIngestFileNotFound tests the unreadable-input edge
func TestIngestFileNotFound(t *testing.T) {
	repo := newFakeObservationRepo()
	svc := newTestIngestion(repo, 50)

	_, err := svc.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open dataset")
}
