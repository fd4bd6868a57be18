package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// DataAPIRequestsTotal counts Data API requests by endpoint and status code.
	DataAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_wallet_data_api_requests_total",
		Help: "Total number of Data API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	// HistoryFetchDuration tracks the time taken to build a wallet history.
	HistoryFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_wallet_history_fetch_duration_seconds",
		Help:    "Time taken to fetch a wallet history (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// HistoryFetchErrorsTotal tracks failed history fetches.
	HistoryFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_wallet_history_fetch_errors_total",
		Help: "Total number of failed wallet history fetches",
	})

	HistoryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_wallet_history_cache_hits_total",
		Help: "Total number of wallet history cache hits",
	})

	HistoryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_wallet_history_cache_misses_total",
		Help: "Total number of wallet history cache misses",
	})
)
