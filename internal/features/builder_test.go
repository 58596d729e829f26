package features

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const (
	testHorse  = "Lucky Ember"
	otherHorse = "Night Parade"
)

func newTestBuilder() *TemporalFeatureBuilder {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewTemporalFeatureBuilder([]int{1, 3, 5}, 3, log)
}

func raceDay(day int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day*7)
}

// historyFromOutcomes builds a weekly history with the given top-3 outcomes.
func historyFromOutcomes(horse string, outcomes []bool) models.EntityHistory {
	h := models.EntityHistory{HorseName: horse}
	for i, top3 := range outcomes {
		h.Observations = append(h.Observations, models.Observation{
			HorseName:    horse,
			RaceDate:     raceDay(i),
			ActualWeight: 120 + float64(i),
			WinOdds:      2.0 + float64(i)*2.0,
			IsTop3:       top3,
		})
	}
	return h
}

func TestBuildForEntityFirstRowHasNoHistory(t *testing.T) {
	builder := newTestBuilder()

	rows, err := builder.BuildForEntity(historyFromOutcomes(testHorse, []bool{true}))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	first := rows[0]
	assert.False(t, first.HasHistory())
	assert.Nil(t, first.LastIsTop3)
	assert.Nil(t, first.AvgOdds)
	assert.Nil(t, first.AvgWeight)
	assert.Nil(t, first.DaysSinceLastRace)

	require.Len(t, first.Top3Rates, 3)
	for _, r := range first.Top3Rates {
		assert.Nil(t, r.Rate, "window %d rate should be nil on first row", r.Window)
	}
}

func TestBuildForEntityRollingRates(t *testing.T) {
	builder := newTestBuilder()

	// Outcomes 1,0,1,1,0: the fifth race sees [0,1,1] in its 3-window.
	history := historyFromOutcomes(testHorse, []bool{true, false, true, true, false})
	rows, err := builder.BuildForEntity(history)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	tests := []struct {
		name   string
		row    int
		window int
		want   float64
	}{
		{"second race sees one prior outcome", 1, 3, 1.0},
		{"third race averages two priors", 2, 3, 0.5},
		{"fifth race window 3", 4, 3, 2.0 / 3.0},
		{"fifth race window 1 is last outcome", 4, 1, 1.0},
		{"fifth race window 5 shrinks to four priors", 4, 5, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := rows[tt.row].RateForWindow(tt.window)
			require.NotNil(t, rate)
			assert.InDelta(t, tt.want, *rate, 1e-9)
		})
	}
}

func TestBuildForEntityLastIsTop3(t *testing.T) {
	builder := newTestBuilder()

	rows, err := builder.BuildForEntity(historyFromOutcomes(testHorse, []bool{true, false, true}))
	require.NoError(t, err)

	require.NotNil(t, rows[1].LastIsTop3)
	assert.True(t, *rows[1].LastIsTop3)
	require.NotNil(t, rows[2].LastIsTop3)
	assert.False(t, *rows[2].LastIsTop3)
}

func TestBuildForEntityCovariateMeans(t *testing.T) {
	builder := newTestBuilder()

	// Odds run 2,4,6,8,10 and weights 120..124 on a weekly schedule.
	history := historyFromOutcomes(testHorse, []bool{true, false, true, true, false})
	rows, err := builder.BuildForEntity(history)
	require.NoError(t, err)

	require.NotNil(t, rows[1].AvgOdds)
	assert.InDelta(t, 2.0, *rows[1].AvgOdds, 1e-9)

	require.NotNil(t, rows[2].AvgOdds)
	assert.InDelta(t, 3.0, *rows[2].AvgOdds, 1e-9)

	require.NotNil(t, rows[4].AvgOdds)
	assert.InDelta(t, 6.0, *rows[4].AvgOdds, 1e-9)

	require.NotNil(t, rows[4].AvgWeight)
	assert.InDelta(t, 122.0, *rows[4].AvgWeight, 1e-9)

	require.NotNil(t, rows[1].DaysSinceLastRace)
	assert.Equal(t, 7, *rows[1].DaysSinceLastRace)
}

func TestBuildForEntityRejectsDuplicateDates(t *testing.T) {
	builder := newTestBuilder()

	history := models.EntityHistory{
		HorseName: testHorse,
		Observations: []models.Observation{
			{HorseName: testHorse, RaceDate: raceDay(0), IsTop3: true},
			{HorseName: testHorse, RaceDate: raceDay(0), IsTop3: false},
		},
	}

	rows, err := builder.BuildForEntity(history)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, models.IsValidation(err))

	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, testHorse, ve.Entity)
	assert.Equal(t, 1, ve.Row)
}

func TestBuildForEntityRejectsDisorderedDates(t *testing.T) {
	builder := newTestBuilder()

	history := models.EntityHistory{
		HorseName: testHorse,
		Observations: []models.Observation{
			{HorseName: testHorse, RaceDate: raceDay(2)},
			{HorseName: testHorse, RaceDate: raceDay(1)},
		},
	}

	_, err := builder.BuildForEntity(history)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestBuildForEntityEmptyHistory(t *testing.T) {
	builder := newTestBuilder()

	rows, err := builder.BuildForEntity(models.EntityHistory{HorseName: testHorse})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGroupByEntity(t *testing.T) {
	observations := []models.Observation{
		{HorseName: testHorse, RaceDate: raceDay(1)},
		{HorseName: otherHorse, RaceDate: raceDay(0)},
		{HorseName: testHorse, RaceDate: raceDay(0)},
		{HorseName: otherHorse, RaceDate: raceDay(2)},
	}

	histories := GroupByEntity(observations)
	require.Len(t, histories, 2)

	// First-appearance order, dates sorted ascending within each entity.
	assert.Equal(t, testHorse, histories[0].HorseName)
	assert.Equal(t, otherHorse, histories[1].HorseName)

	require.Len(t, histories[0].Observations, 2)
	assert.True(t, histories[0].Observations[0].RaceDate.Before(histories[0].Observations[1].RaceDate))

	require.Len(t, histories[1].Observations, 2)
	assert.True(t, histories[1].Observations[0].RaceDate.Before(histories[1].Observations[1].RaceDate))
}

func TestBuildPreservesEntityOrder(t *testing.T) {
	builder := newTestBuilder()

	histories := []models.EntityHistory{
		historyFromOutcomes(testHorse, []bool{true, false}),
		historyFromOutcomes(otherHorse, []bool{false, true, true}),
	}

	rows, err := builder.Build(histories)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, testHorse, rows[0].HorseName)
	assert.Equal(t, testHorse, rows[1].HorseName)
	assert.Equal(t, otherHorse, rows[2].HorseName)
	assert.Equal(t, otherHorse, rows[4].HorseName)
}

func TestBuildAbortsOnValidationFailure(t *testing.T) {
	builder := newTestBuilder()

	bad := models.EntityHistory{
		HorseName: otherHorse,
		Observations: []models.Observation{
			{HorseName: otherHorse, RaceDate: raceDay(1)},
			{HorseName: otherHorse, RaceDate: raceDay(1)},
		},
	}
	histories := []models.EntityHistory{
		historyFromOutcomes(testHorse, []bool{true, false, true}),
		bad,
	}

	rows, err := builder.Build(histories)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, models.IsValidation(err))
}

func TestBuildIsIdempotent(t *testing.T) {
	builder := newTestBuilder()

	histories := []models.EntityHistory{
		historyFromOutcomes(testHorse, []bool{true, false, true, true, false}),
		historyFromOutcomes(otherHorse, []bool{false, false, true}),
	}

	first, err := builder.Build(histories)
	require.NoError(t, err)
	second, err := builder.Build(histories)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestColumnsNaming(t *testing.T) {
	builder := newTestBuilder()

	rows, err := builder.BuildForEntity(historyFromOutcomes(testHorse, []bool{true, false}))
	require.NoError(t, err)

	cols := rows[1].Columns(3)
	require.Contains(t, cols, "last_is_top3")
	require.Contains(t, cols, "top3_rate_last_1")
	require.Contains(t, cols, "top3_rate_last_3")
	require.Contains(t, cols, "top3_rate_last_5")
	require.Contains(t, cols, "avg_odds_last_3")
	require.Contains(t, cols, "avg_weight_last_3")
	require.Contains(t, cols, "days_since_last_race")

	require.NotNil(t, cols["last_is_top3"])
	assert.Equal(t, 1.0, *cols["last_is_top3"])
}
