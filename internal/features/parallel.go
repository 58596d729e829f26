package features

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// BuildParallel computes feature rows for every entity using a worker pool.
// Entities are independent so each worker owns whole histories; results are
// merged back in input order, making the output identical to Build.
//
// If workers <= 0 the pool sizes itself to runtime.NumCPU().
func (b *TemporalFeatureBuilder) BuildParallel(ctx context.Context, histories []models.EntityHistory, workers int) ([]models.FeatureRow, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(histories) && len(histories) > 0 {
		workers = len(histories)
	}

	start := time.Now()

	type work struct {
		index   int
		history models.EntityHistory
	}
	type result struct {
		index int
		rows  []models.FeatureRow
		err   error
	}

	workCh := make(chan work, len(histories))
	resultCh := make(chan result, len(histories))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{index: w.index, err: err}
					continue
				}
				rows, err := b.BuildForEntity(w.history)
				resultCh <- result{index: w.index, rows: rows, err: err}
			}
		}()
	}

	for i := range histories {
		workCh <- work{index: i, history: histories[i]}
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	perEntity := make([][]models.FeatureRow, len(histories))
	var firstErr error
	firstErrIndex := len(histories)
	for r := range resultCh {
		if r.err != nil {
			// Report the earliest failing entity so the outcome does not
			// depend on worker scheduling.
			if r.index < firstErrIndex {
				firstErr = r.err
				firstErrIndex = r.index
			}
			continue
		}
		perEntity[r.index] = r.rows
	}
	if firstErr != nil {
		b.log.WithFields(logrus.Fields{
			"entity": histories[firstErrIndex].HorseName,
			"error":  firstErr,
		}).Error("Parallel feature build aborted")
		return nil, firstErr
	}

	total := 0
	for _, rows := range perEntity {
		total += len(rows)
	}
	merged := make([]models.FeatureRow, 0, total)
	for _, rows := range perEntity {
		merged = append(merged, rows...)
	}

	metrics.RecordFeatureBuild(len(merged), time.Since(start).Seconds())
	metrics.UpdateEntitiesTracked(float64(len(histories)))

	b.log.WithFields(logrus.Fields{
		"entities":    len(histories),
		"rows":        len(merged),
		"workers":     workers,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Parallel feature build complete")
	return merged, nil
}
