package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MarketsDiscoveredTotal tracks active markets listed from the Gamma API.
	MarketsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_discovery_markets_total",
		Help: "Total number of active markets listed from Gamma API",
	})

	// ResolvedMarketsSeenTotal tracks closed markets with a settled winner.
	ResolvedMarketsSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_discovery_resolved_markets_total",
		Help: "Total number of closed markets seen with a settled winner",
	})

	MarketsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_discovery_markets_skipped_total",
		Help: "Total number of malformed market records skipped",
	})

	// PollDurationSeconds tracks API poll latency by listing.
	PollDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarket_discovery_poll_duration_seconds",
		Help:    "Duration of Gamma API poll requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"listing"})

	// PollErrorsTotal tracks API poll failures by listing.
	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_discovery_poll_errors_total",
		Help: "Total number of Gamma API poll failures",
	}, []string{"listing"})
)
