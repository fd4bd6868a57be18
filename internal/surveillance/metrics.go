package surveillance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polymarket_surveillance_ticks_total",
			Help: "Total number of completed ticks",
		},
	)

	TickDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polymarket_surveillance_tick_duration_seconds",
			Help:    "Duration of one fetch-and-fold tick",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	SourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_surveillance_source_errors_total",
			Help: "Failed fetches by source",
		},
		[]string{"source"},
	)

	TradesFoldedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polymarket_surveillance_trades_folded_total",
			Help: "New trades applied to the aggregates",
		},
	)

	TradesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_surveillance_trades_skipped_total",
			Help: "Trades not applied, by reason",
		},
		[]string{"reason"},
	)

	PendingSignals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_surveillance_pending_signals",
			Help: "Matched signals whose reaction window is still open",
		},
	)

	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_surveillance_persistence_errors_total",
			Help: "Failed writes to storage, by record type",
		},
		[]string{"record"},
	)

	LastTickTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_surveillance_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		},
	)
)
