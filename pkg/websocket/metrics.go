package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_livetrades_connected",
		Help: "1 while the live trade stream is connected",
	})

	StreamReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_livetrades_reconnects_total",
		Help: "Reconnection attempts of the live trade stream by result",
	}, []string{"result"})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_livetrades_frames_received_total",
		Help: "Frames received on the live trade stream by type",
	}, []string{"type"})

	TradesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_livetrades_dropped_total",
		Help: "Frames or trades dropped before reaching a tick, by reason",
	}, []string{"reason"})

	BufferedTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_livetrades_buffered",
		Help: "Live trades buffered until the next tick",
	})

	// SessionDuration is the lifetime of one connection, observed at disconnect.
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_livetrades_session_duration_seconds",
		Help:    "Lifetime of a live trade stream connection",
		Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
	})
)
