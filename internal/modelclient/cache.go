package modelclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
)

// CacheKey identifies one cached probability. Entries are scoped to the model
// version that produced them.
type CacheKey struct {
	HorseName    string
	RaceDate     time.Time
	ModelVersion string
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.HorseName, k.RaceDate.Format("2006-01-02"), k.ModelVersion)
}

// PredictionCache provides in-memory caching for model probabilities
type PredictionCache struct {
	cache   *cache.Cache
	ttl     time.Duration
	maxSize int

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewPredictionCache creates a new prediction cache
func NewPredictionCache(ttl time.Duration, maxSize int) *PredictionCache {
	return &PredictionCache{
		cache:   cache.New(ttl, ttl*2),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves a cached probability.
func (pc *PredictionCache) Get(key CacheKey) (float64, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if v, found := pc.cache.Get(key.String()); found {
		if p, ok := v.(float64); ok {
			pc.hits++
			metrics.RecordModelCacheHit()
			return p, true
		}
	}

	pc.misses++
	metrics.RecordModelCacheMiss()
	return 0, false
}

// Set stores a probability, evicting expired entries when the cache is full.
func (pc *PredictionCache) Set(key CacheKey, probability float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cache.ItemCount() >= pc.maxSize {
		pc.cache.DeleteExpired()
	}

	pc.cache.Set(key.String(), probability, pc.ttl)
}

// Delete removes one cached probability.
func (pc *PredictionCache) Delete(key CacheKey) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.cache.Delete(key.String())
}

// Invalidate removes all entries produced by the given model version and
// returns how many were dropped.
func (pc *PredictionCache) Invalidate(modelVersion string) int {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	suffix := "|" + modelVersion
	dropped := 0
	for k := range pc.cache.Items() {
		if strings.HasSuffix(k, suffix) {
			pc.cache.Delete(k)
			dropped++
		}
	}
	return dropped
}

// Clear flushes the entire cache
func (pc *PredictionCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.cache.Flush()
	pc.hits = 0
	pc.misses = 0
}

// Stats returns cache statistics
func (pc *PredictionCache) Stats() (hits, misses uint64, ratio float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	hits = pc.hits
	misses = pc.misses
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of items in cache
func (pc *PredictionCache) ItemCount() int {
	return pc.cache.ItemCount()
}
