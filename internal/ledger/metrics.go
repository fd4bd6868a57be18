package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// WalletsTracked tracks the number of wallets in the ledger.
	WalletsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_ledger_wallets_tracked",
		Help: "Number of wallets tracked by the ledger",
	})

	// TradesRecordedTotal tracks trades folded into the ledger.
	TradesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_trades_recorded_total",
		Help: "Total number of trades recorded in the ledger",
	})

	// WalletsSeededTotal tracks wallets created from venue history.
	WalletsSeededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_wallets_seeded_total",
		Help: "Total number of wallets seeded from venue history",
	})

	// MarketsResolvedTotal tracks market resolutions applied.
	MarketsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_markets_resolved_total",
		Help: "Total number of market resolutions applied to the ledger",
	})

	// SnapshotCacheHitsTotal tracks snapshots served from cache.
	SnapshotCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_snapshot_cache_hits_total",
		Help: "Total number of wallet snapshots served from cache",
	})

	// SnapshotComputationsTotal tracks snapshots computed from state.
	SnapshotComputationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_snapshot_computations_total",
		Help: "Total number of wallet snapshots computed",
	})
)
