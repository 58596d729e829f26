package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

func testRecommendation(horse string, day int, result models.ActualResult) models.PredictionRecord {
	return models.PredictionRecord{
		ID:            uuid.New(),
		RaceDate:      raceDay(day),
		HorseName:     horse,
		Jockey:        "Z Purton",
		Trainer:       "J Size",
		WinOdds:       5.0,
		PredictedProb: 0.4,
		Edge:          0.2,
		ValueScore:    1.0,
		KellyFraction: 0.05,
		IsValueBet:    true,
		ModelVersion:  "v5",
		ActualResult:  result,
		CreatedAt:     time.Now().UTC(),
	}
}

func newTestSettlement(hist *fakeHistoryRepo, obs *fakeObservationRepo) *SettlementService {
	return NewSettlementService(hist, obs, newTestLogger())
}

// TestSettleAllMatchesOutcomes tests settling recommendations against
// ingested results
func TestSettleAllMatchesOutcomes(t *testing.T) {
	hist := newFakeHistoryRepo()
	placed := testRecommendation("Golden Sixty", 1, models.ResultUnknown)
	missed := testRecommendation("Happy Go", 2, models.ResultUnknown)
	waiting := testRecommendation("Future Star", 3, models.ResultUnknown)
	require.NoError(t, hist.SaveBatch(context.Background(), []models.PredictionRecord{placed, missed, waiting}))

	obs := newFakeObservationRepo(
		testObservation("Golden Sixty", 1, true),
		testObservation("Happy Go", 2, false),
	)

	summary, err := newTestSettlement(hist, obs).SettleAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Unsettled)
	assert.Equal(t, 2, summary.Settled)
	assert.Equal(t, 1, summary.Pending)

	assert.Equal(t, models.ResultTop3, hist.get(placed.ID).ActualResult)
	assert.Equal(t, models.ResultNotTop3, hist.get(missed.ID).ActualResult)
	assert.Equal(t, models.ResultUnknown, hist.get(waiting.ID).ActualResult, "no result yet, stays unsettled")
}

// TestSettleAllNoUnsettled tests the empty backlog edge
func TestSettleAllNoUnsettled(t *testing.T) {
	hist := newFakeHistoryRepo()
	require.NoError(t, hist.Save(context.Background(), ptr(testRecommendation("Golden Sixty", 1, models.ResultTop3))))

	summary, err := newTestSettlement(hist, newFakeObservationRepo()).SettleAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Unsettled)
	assert.Zero(t, summary.Settled)
	assert.Zero(t, summary.Pending)
}

// TestSettleAllHistoryError tests the backlog lookup failure path
func TestSettleAllHistoryError(t *testing.T) {
	hist := newFakeHistoryRepo()
	hist.getErr = errors.New("connection refused")

	_, err := newTestSettlement(hist, newFakeObservationRepo()).SettleAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load unsettled recommendations")
}

// TestSettleAllOutcomeError tests the observation lookup failure path
func TestSettleAllOutcomeError(t *testing.T) {
	hist := newFakeHistoryRepo()
	require.NoError(t, hist.Save(context.Background(), ptr(testRecommendation("Golden Sixty", 1, models.ResultUnknown))))

	obs := newFakeObservationRepo()
	obs.getErr = errors.New("connection refused")

	_, err := newTestSettlement(hist, obs).SettleAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load outcomes")
}

// TestSettleAllSettleError tests that a settle failure aborts with the
// partial summary
func TestSettleAllSettleError(t *testing.T) {
	hist := newFakeHistoryRepo()
	require.NoError(t, hist.Save(context.Background(), ptr(testRecommendation("Golden Sixty", 1, models.ResultUnknown))))
	hist.settleErr = errors.New("deadlock detected")

	obs := newFakeObservationRepo(testObservation("Golden Sixty", 1, true))

	summary, err := newTestSettlement(hist, obs).SettleAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to settle Golden Sixty")
	assert.Zero(t, summary.Settled)
}

// TestExportTrainingFeedback tests the settled-rows JSON export
func TestExportTrainingFeedback(t *testing.T) {
	hist := newFakeHistoryRepo()
	hit := testRecommendation("Golden Sixty", 1, models.ResultTop3)
	miss := testRecommendation("Happy Go", 2, models.ResultNotTop3)
	open := testRecommendation("Future Star", 3, models.ResultUnknown)
	require.NoError(t, hist.SaveBatch(context.Background(), []models.PredictionRecord{hit, miss, open}))

	var buf bytes.Buffer
	n, err := newTestSettlement(hist, newFakeObservationRepo()).ExportTrainingFeedback(context.Background(), &buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var feedback TrainingFeedback
	require.NoError(t, json.Unmarshal(buf.Bytes(), &feedback))
	assert.False(t, feedback.ExportedAt.IsZero())
	require.Len(t, feedback.Records, 2, "unsettled rows never export")

	assert.Equal(t, "Happy Go", feedback.Records[0].HorseName, "most recent race first")
	assert.Equal(t, "2024-06-02", feedback.Records[0].RaceDate)
	assert.False(t, feedback.Records[0].IsTop3)

	assert.Equal(t, "Golden Sixty", feedback.Records[1].HorseName)
	assert.Equal(t, "2024-06-01", feedback.Records[1].RaceDate)
	assert.True(t, feedback.Records[1].IsTop3)
	assert.Equal(t, "v5", feedback.Records[1].ModelVersion)
	assert.InDelta(t, 0.4, feedback.Records[1].PredictedProb, 1e-9)
}

// TestExportTrainingFeedbackLimit tests the export row bound
func TestExportTrainingFeedbackLimit(t *testing.T) {
	hist := newFakeHistoryRepo()
	records := []models.PredictionRecord{
		testRecommendation("Horse A", 1, models.ResultTop3),
		testRecommendation("Horse B", 2, models.ResultNotTop3),
		testRecommendation("Horse C", 3, models.ResultTop3),
	}
	require.NoError(t, hist.SaveBatch(context.Background(), records))

	var buf bytes.Buffer
	n, err := newTestSettlement(hist, newFakeObservationRepo()).ExportTrainingFeedback(context.Background(), &buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestExportTrainingFeedbackNoData tests the nothing-settled edge
func TestExportTrainingFeedbackNoData(t *testing.T) {
	hist := newFakeHistoryRepo()
	require.NoError(t, hist.Save(context.Background(), ptr(testRecommendation("Future Star", 3, models.ResultUnknown))))

	var buf bytes.Buffer
	_, err := newTestSettlement(hist, newFakeObservationRepo()).ExportTrainingFeedback(context.Background(), &buf, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoData)
}
