package pricehistory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SeriesTracked tracks the number of market/outcome series.
	SeriesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_pricehistory_series_tracked",
		Help: "Number of market outcome price series tracked",
	})

	// PointsRecordedTotal tracks price samples recorded.
	PointsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_pricehistory_points_recorded_total",
		Help: "Total number of price samples recorded",
	})

	// PointsEvictedTotal tracks samples evicted past the retention horizon.
	PointsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_pricehistory_points_evicted_total",
		Help: "Total number of price samples evicted past retention",
	})
)
