package signals

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SignalsFetchedTotal counts new signals returned by source.
	SignalsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_signals_fetched_total",
		Help: "Total number of new signals returned by source",
	}, []string{"source"})

	// SignalsFilteredTotal counts social posts dropped by reason.
	SignalsFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_signals_filtered_total",
		Help: "Total number of social posts dropped by the filter",
	}, []string{"source", "reason"})

	// FeedErrorsTotal counts failed feed or API requests.
	FeedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_signals_feed_errors_total",
		Help: "Total number of failed feed or API requests",
	}, []string{"source"})
)
