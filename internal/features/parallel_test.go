package features

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// syntheticHistories fabricates n deterministic entity histories of varying
// length so parallel and sequential builds can be compared exactly.
func syntheticHistories(n int) []models.EntityHistory {
	histories := make([]models.EntityHistory, 0, n)
	for i := 0; i < n; i++ {
		length := 1 + (i*7+3)%12
		outcomes := make([]bool, length)
		for j := range outcomes {
			outcomes[j] = (i+j)%3 == 0
		}
		name := fmt.Sprintf("Runner %03d", i)
		histories = append(histories, historyFromOutcomes(name, outcomes))
	}
	return histories
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	builder := newTestBuilder()
	histories := syntheticHistories(60)

	sequential, err := builder.Build(histories)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			parallel, err := builder.BuildParallel(context.Background(), histories, workers)
			require.NoError(t, err)
			assert.Equal(t, sequential, parallel)
		})
	}
}

func TestBuildParallelDefaultWorkerCount(t *testing.T) {
	builder := newTestBuilder()
	histories := syntheticHistories(10)

	rows, err := builder.BuildParallel(context.Background(), histories, 0)
	require.NoError(t, err)

	sequential, err := builder.Build(histories)
	require.NoError(t, err)
	assert.Equal(t, sequential, rows)
}

func TestBuildParallelReportsEarliestFailure(t *testing.T) {
	builder := newTestBuilder()

	histories := syntheticHistories(8)
	histories[2] = models.EntityHistory{
		HorseName: "Broken Two",
		Observations: []models.Observation{
			{HorseName: "Broken Two", RaceDate: raceDay(0)},
			{HorseName: "Broken Two", RaceDate: raceDay(0)},
		},
	}
	histories[5] = models.EntityHistory{
		HorseName: "Broken Five",
		Observations: []models.Observation{
			{HorseName: "Broken Five", RaceDate: raceDay(3)},
			{HorseName: "Broken Five", RaceDate: raceDay(1)},
		},
	}

	// The earliest failing entity wins regardless of worker scheduling.
	for i := 0; i < 20; i++ {
		rows, err := builder.BuildParallel(context.Background(), histories, 4)
		require.Error(t, err)
		assert.Nil(t, rows)

		var ve *models.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Broken Two", ve.Entity)
	}
}

func TestBuildParallelCanceledContext(t *testing.T) {
	builder := newTestBuilder()
	histories := syntheticHistories(20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := builder.BuildParallel(ctx, histories, 4)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildParallelEmptyInput(t *testing.T) {
	builder := newTestBuilder()

	rows, err := builder.BuildParallel(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func BenchmarkBuildSequential(b *testing.B) {
	builder := newTestBuilder()
	histories := syntheticHistories(200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.Build(histories); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildParallel(b *testing.B) {
	builder := newTestBuilder()
	histories := syntheticHistories(200)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.BuildParallel(ctx, histories, 0); err != nil {
			b.Fatal(err)
		}
	}
}
