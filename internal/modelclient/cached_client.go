package modelclient

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// CachedClient wraps Client with per-row probability caching keyed by
// (horse, race date, model version).
type CachedClient struct {
	client *Client
	cache  *PredictionCache
	logger *logrus.Logger

	mu      sync.RWMutex
	version string
}

// NewCachedClient creates a new cached model service client.
func NewCachedClient(cfg *config.ModelServiceConfig, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}

	return &CachedClient{
		client: NewClient(cfg, logger),
		cache: NewPredictionCache(
			time.Duration(cfg.CacheTTLSeconds)*time.Second,
			cfg.CacheMaxSize,
		),
		logger: logger,
	}
}

// PredictBatch scores feature rows with partial caching: cached rows are
// answered locally and only the remainder goes to the service. A model
// version change invalidates the old version's entries; the batch that
// discovers the change still serves its cache hits from the previous version.
func (c *CachedClient) PredictBatch(ctx context.Context, rows []models.FeatureRow) (*Prediction, error) {
	version := c.currentVersion()
	probabilities := make([]float64, len(rows))

	var uncached []models.FeatureRow
	var uncachedIndices []int
	for i, row := range rows {
		key := CacheKey{HorseName: row.HorseName, RaceDate: row.RaceDate, ModelVersion: version}
		if p, ok := c.cache.Get(key); ok {
			probabilities[i] = p
			continue
		}
		uncached = append(uncached, row)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncached) == 0 {
		return &Prediction{Probabilities: probabilities, ModelVersion: version}, nil
	}

	if len(uncached) < len(rows) {
		c.logger.WithFields(logrus.Fields{
			"total":    len(rows),
			"cached":   len(rows) - len(uncached),
			"uncached": len(uncached),
		}).Debug("Batch prediction with partial cache")
	}

	pred, err := c.client.PredictBatch(ctx, uncached)
	if err != nil {
		return nil, err
	}
	c.learnVersion(pred.ModelVersion)

	for j, p := range pred.Probabilities {
		probabilities[uncachedIndices[j]] = p
		c.cache.Set(CacheKey{
			HorseName:    uncached[j].HorseName,
			RaceDate:     uncached[j].RaceDate,
			ModelVersion: pred.ModelVersion,
		}, p)
	}

	return &Prediction{Probabilities: probabilities, ModelVersion: pred.ModelVersion}, nil
}

// HealthCheck probes the underlying model service.
func (c *CachedClient) HealthCheck(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}

// ModelVersion returns the version reported by the most recent service call,
// or the empty string before the first call.
func (c *CachedClient) ModelVersion() string {
	return c.currentVersion()
}

// InvalidateRow drops one runner's cached probability so the next batch
// refetches it, typically after a live odds change. No-op before the first
// service call, when no version is known and nothing is cached.
func (c *CachedClient) InvalidateRow(horseName string, raceDate time.Time) {
	version := c.currentVersion()
	if version == "" {
		return
	}
	c.cache.Delete(CacheKey{HorseName: horseName, RaceDate: raceDate, ModelVersion: version})
}

// ClearCache clears all cached probabilities.
func (c *CachedClient) ClearCache() {
	c.cache.Clear()
}

// CacheStats returns cache statistics.
func (c *CachedClient) CacheStats() (hits, misses uint64, ratio float64) {
	return c.cache.Stats()
}

// Close closes the underlying client.
func (c *CachedClient) Close() error {
	return c.client.Close()
}

// Source adapts the cached client to the scoring stage's probability source.
func (c *CachedClient) Source() *Source {
	return &Source{client: c}
}

func (c *CachedClient) currentVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *CachedClient) learnVersion(version string) {
	c.mu.Lock()
	previous := c.version
	c.version = version
	c.mu.Unlock()

	if previous == "" || previous == version {
		return
	}

	dropped := c.cache.Invalidate(previous)
	c.logger.WithFields(logrus.Fields{
		"previous_version": previous,
		"model_version":    version,
		"invalidated":      dropped,
	}).Info("Model version changed")
}

// Source exposes probabilities-only batch scoring.
type Source struct {
	client *CachedClient
}

// Predict returns one probability per feature row, in input order.
func (s *Source) Predict(ctx context.Context, rows []models.FeatureRow) ([]float64, error) {
	pred, err := s.client.PredictBatch(ctx, rows)
	if err != nil {
		return nil, err
	}
	return pred.Probabilities, nil
}
