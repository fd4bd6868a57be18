package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MatchesTotal tracks signal-market matches retained.
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_matcher_matches_total",
			Help: "Total number of signal-market matches above minimum confidence",
		},
		[]string{"signal_kind"},
	)
)
