package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// JobRunsTotal counts job runs by job and outcome.
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_jobs_runs_total",
			Help: "Total scheduled job runs",
		},
		[]string{"job", "status"},
	)

	// JobDurationSeconds tracks job run duration.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_jobs_duration_seconds",
			Help:    "Scheduled job duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job"},
	)

	// RecordsPrunedTotal counts records deleted by retention.
	RecordsPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_jobs_records_pruned_total",
			Help: "Total records deleted by retention",
		},
		[]string{"record"},
	)

	// SnapshotWalletsSaved is the wallet count of the last snapshot.
	SnapshotWalletsSaved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_jobs_snapshot_wallets",
			Help: "Wallets written by the last snapshot",
		},
	)

	// TopPerformersFound is the performer count of the last report.
	TopPerformersFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_jobs_top_performers",
			Help: "Wallets reported by the last top performer report",
		},
	)
)
