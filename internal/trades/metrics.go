package trades

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	TradesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_trades_fetched_total",
		Help: "Total number of new trades returned by the Data API source",
	})

	// RecordsSkippedTotal counts records dropped by reason (malformed, seen).
	RecordsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_trades_records_skipped_total",
		Help: "Total number of trade records skipped by reason",
	}, []string{"reason"})

	FetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_trades_fetch_duration_seconds",
		Help:    "Duration of Data API trade polls",
		Buckets: prometheus.DefBuckets,
	})

	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_trades_fetch_errors_total",
		Help: "Total number of failed Data API trade polls",
	})
)
