package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a cache implementation using Ristretto. Writes are
// applied asynchronously; tests that need read-your-writes call Wait.
type RistrettoCache struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for Ristretto cache.
type RistrettoConfig struct {
	Name        string // metrics label, e.g. "wallet-snapshots"
	NumCounters int64  // keys tracked for admission, about 10x MaxCost
	MaxCost     int64  // entries, each Set costs 1
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	if cfg.MaxCost <= 0 {
		return nil, fmt.Errorf("max cost must be positive")
	}
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = 10 * cfg.MaxCost
	}
	bufferItems := cfg.BufferItems
	if bufferItems <= 0 {
		bufferItems = 64
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: bufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache %s: %w", name, err)
	}

	return &RistrettoCache{
		name:   name,
		cache:  cache,
		logger: cfg.Logger.With(zap.String("cache", name)),
	}, nil
}

// Get retrieves a value from the cache.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		CacheHitsTotal.WithLabelValues(r.name).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(r.name).Inc()
	}
	return value, found
}

// Set stores a value in the cache with a TTL. A false return means the
// admission policy dropped the write; callers must treat the cache as a miss.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	success := r.cache.SetWithTTL(key, value, 1, ttl)
	if success {
		CacheSetsTotal.WithLabelValues(r.name).Inc()
		r.logger.Debug("cache-set",
			zap.String("key", key),
			zap.Duration("ttl", ttl))
	} else {
		CacheRejectedSetsTotal.WithLabelValues(r.name).Inc()
	}
	return success
}

// Delete removes a value from the cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
	CacheDeletesTotal.WithLabelValues(r.name).Inc()
}

// Clear removes all values from the cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared")
}

// Close records the final hit ratio and releases resources.
func (r *RistrettoCache) Close() {
	ratio := r.cache.Metrics.Ratio()
	CacheHitRatio.WithLabelValues(r.name).Set(ratio)
	r.cache.Close()
	r.logger.Info("cache-closed",
		zap.Float64("hit-ratio", ratio),
		zap.Uint64("keys-evicted", r.cache.Metrics.KeysEvicted()))
}

// Metrics returns Ristretto's internal metrics.
func (r *RistrettoCache) Metrics() *ristretto.Metrics {
	return r.cache.Metrics
}

// Wait blocks until all pending writes have been applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
