package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	AlertsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_notify_alerts_delivered_total",
			Help: "Alerts delivered, by sink",
		},
		[]string{"sink"},
	)

	DeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_notify_delivery_failures_total",
			Help: "Alerts a sink failed to deliver after all attempts",
		},
		[]string{"sink"},
	)

	AlertsBelowThresholdTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polymarket_notify_alerts_below_threshold_total",
			Help: "Alerts not sent because their severity is below the notification minimum",
		},
	)

	QueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polymarket_notify_queue_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_notify_queue_depth",
			Help: "Alerts waiting for delivery",
		},
	)
)
