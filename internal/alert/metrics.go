package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// AlertsTotal tracks alerts generated.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_alert_alerts_total",
			Help: "Total number of alerts generated",
		},
		[]string{"kind", "severity"},
	)

	// AlertsSuppressedTotal tracks alerts dropped by the cool-down.
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_alert_suppressed_total",
			Help: "Total number of alerts suppressed by the cool-down window",
		},
		[]string{"kind"},
	)

	// TradesEvaluatedTotal tracks trades passed to the generator.
	TradesEvaluatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_alert_trades_evaluated_total",
		Help: "Total number of trades evaluated",
	})

	// SignalsEvaluatedTotal tracks signal evaluations by kind.
	SignalsEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_alert_signals_evaluated_total",
			Help: "Total number of signal evaluations",
		},
		[]string{"signal_kind"},
	)
)
