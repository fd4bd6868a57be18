package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"cache"})

	CacheSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_cache_sets_total",
		Help: "Total number of cache sets",
	}, []string{"cache"})

	CacheRejectedSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_cache_rejected_sets_total",
		Help: "Total number of sets dropped by the admission policy",
	}, []string{"cache"})

	CacheDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_cache_deletes_total",
		Help: "Total number of cache deletes",
	}, []string{"cache"})

	CacheTypeMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_cache_type_mismatches_total",
		Help: "Total number of cached values of an unexpected type, served as misses",
	})

	CacheHitRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polymarket_cache_hit_ratio",
		Help: "Hit ratio reported by the cache at close",
	}, []string{"cache"})
)
