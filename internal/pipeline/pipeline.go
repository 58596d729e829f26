// Package pipeline stages the historical replay: feature derivation, edge
// scoring and the sequential backtest run as separate stages handing off
// over ordered channels. Order is preserved end to end; the backtest stage
// therefore sees value bets in chronological order.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/backtest"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/edge"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/features"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/staking"
)

// Stage names used as metrics labels.
const (
	StageFeatures = "features"
	StageScoring  = "scoring"
	StageBacktest = "backtest"
)

// batchSize is how many feature rows each probability lookup receives.
const batchSize = 256

// ProbabilitySource supplies predicted top-3 probabilities for feature rows.
// Implementations return exactly one probability per input row, aligned by
// index.
type ProbabilitySource interface {
	Predict(ctx context.Context, rows []models.FeatureRow) ([]float64, error)
}

// Pipeline wires the replay stages together.
type Pipeline struct {
	builder    *features.TemporalFeatureBuilder
	calculator *edge.Calculator
	sizer      *staking.StakeSizer
	source     ProbabilitySource
	engine     *backtest.Engine
	workers    int
	logger     *logrus.Logger
}

// New creates a replay pipeline. workers <= 0 lets the feature stage pick a
// pool size from the CPU count.
func New(
	builder *features.TemporalFeatureBuilder,
	calculator *edge.Calculator,
	sizer *staking.StakeSizer,
	source ProbabilitySource,
	engine *backtest.Engine,
	workers int,
	logger *logrus.Logger,
) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		builder:    builder,
		calculator: calculator,
		sizer:      sizer,
		source:     source,
		engine:     engine,
		workers:    workers,
		logger:     logger,
	}
}

// Run replays observations end to end and returns the backtest report.
//
// The feature stage derives rows per entity over a worker pool, merges them
// into race-date order and emits batches. The scoring stage scores each batch
// against the probability source, keeps rows whose edge clears the threshold
// and sizes them. The backtest stage replays the kept bets sequentially on
// the caller's goroutine. A failure in any stage cancels the others.
func (p *Pipeline) Run(ctx context.Context, observations []models.Observation) (*backtest.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	featureCh := make(chan []models.FeatureRow, 4)
	betCh := make(chan []models.BetRecord, 4)

	// First failure wins; the cancel makes the sibling stage exit with
	// context.Canceled, which must not mask the original error.
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(stage string, err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = fmt.Errorf("%s stage: %w", stage, err)
		}
		errMu.Unlock()
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(featureCh)
		if err := p.runFeatureStage(ctx, observations, featureCh); err != nil {
			fail(StageFeatures, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(betCh)
		if err := p.runScoringStage(ctx, featureCh, betCh); err != nil {
			fail(StageScoring, err)
		}
	}()

	bets := make([]models.BetRecord, 0)
	for batch := range betCh {
		bets = append(bets, batch...)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	start := time.Now()
	report, err := p.engine.Run(ctx, bets)
	if err != nil {
		return nil, fmt.Errorf("backtest stage: %w", err)
	}
	metrics.RecordStageRows(StageBacktest, len(bets))
	metrics.RecordStageDuration(StageBacktest, time.Since(start).Seconds())

	p.logger.WithFields(logrus.Fields{
		"observations": len(observations),
		"value_bets":   len(bets),
		"no_data":      report.NoData,
	}).Info("Replay pipeline completed")

	return report, nil
}

// runFeatureStage builds feature rows for every entity and emits them in
// chronological order. The engine replays along the chronological axis, so
// rows from all entities are merged by race date before handoff; the sort is
// stable and keeps entity order on equal dates.
func (p *Pipeline) runFeatureStage(ctx context.Context, observations []models.Observation, out chan<- []models.FeatureRow) error {
	start := time.Now()

	histories := features.GroupByEntity(observations)
	rows, err := p.builder.BuildParallel(ctx, histories, p.workers)
	if err != nil {
		return err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RaceDate.Before(rows[j].RaceDate)
	})

	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		select {
		case out <- rows[i:end]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.RecordStageRows(StageFeatures, len(rows))
	metrics.RecordStageDuration(StageFeatures, time.Since(start).Seconds())
	p.logger.WithFields(logrus.Fields{
		"entities": len(histories),
		"rows":     len(rows),
	}).Debug("Feature stage completed")
	return nil
}

// runScoringStage scores feature rows, keeps value bets and sizes them.
// Rows without prior history carry no features and are skipped, never
// scored.
func (p *Pipeline) runScoringStage(ctx context.Context, in <-chan []models.FeatureRow, out chan<- []models.BetRecord) error {
	start := time.Now()
	scored := 0
	kept := 0
	skipped := 0

	for {
		var (
			batch []models.FeatureRow
			open  bool
		)
		select {
		case batch, open = <-in:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !open {
			break
		}

		scorable := make([]models.FeatureRow, 0, len(batch))
		for _, row := range batch {
			if !row.HasHistory() {
				skipped++
				continue
			}
			scorable = append(scorable, row)
		}
		if len(scorable) == 0 {
			continue
		}

		probs, err := p.source.Predict(ctx, scorable)
		if err != nil {
			return fmt.Errorf("predicting probabilities: %w", err)
		}
		if len(probs) != len(scorable) {
			return fmt.Errorf("probability source returned %d values for %d rows", len(probs), len(scorable))
		}

		bets := make([]models.BetRecord, 0, len(scorable))
		for i, row := range scorable {
			rec := p.calculator.Score(models.BetRecord{
				HorseName:   row.HorseName,
				RaceDate:    row.RaceDate,
				Probability: probs[i],
				Odds:        row.WinOdds,
				Outcome:     row.IsTop3,
			})
			scored++
			if !p.calculator.IsValue(rec.Edge) {
				continue
			}
			rec.KellyFraction = p.sizer.Fraction(rec.Probability, rec.Odds)
			bets = append(bets, rec)
			kept++
		}
		if len(bets) == 0 {
			continue
		}

		select {
		case out <- bets:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.RecordStageRows(StageScoring, scored)
	metrics.RecordStageDuration(StageScoring, time.Since(start).Seconds())
	p.logger.WithFields(logrus.Fields{
		"scored":     scored,
		"value_bets": kept,
		"no_history": skipped,
	}).Debug("Scoring stage completed")
	return nil
}
