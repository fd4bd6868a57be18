// Package pricehistory keeps short per-outcome price series for odds
// movement detection.
package pricehistory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// Movement is the signed change between the earliest and latest sample
// inside a window.
type Movement struct {
	From     float64   `json:"from"`
	To       float64   `json:"to"`
	Change   float64   `json:"change"` // (To - From) / From
	Samples  int       `json:"samples"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Window   string    `json:"window"`
	Outcome  string    `json:"outcome"`
	MarketID string    `json:"market_id"`
}

// Tracker stores append-only price series keyed by market and outcome.
type Tracker struct {
	mu        sync.RWMutex
	series    map[seriesKey][]types.PricePoint
	retention time.Duration
	logger    *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	Retention time.Duration
	Logger    *zap.Logger
}

type seriesKey struct {
	market  string
	outcome string
}

func keyFor(marketID string, outcome string) seriesKey {
	return seriesKey{market: marketID, outcome: strings.ToLower(outcome)}
}

// New creates a new price history tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}

	return &Tracker{
		series:    make(map[seriesKey][]types.PricePoint),
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}, nil
}

// RecordPrice appends a sample. Samples older than the retention horizon,
// measured from the newest sample of the series, are evicted on write.
func (t *Tracker) RecordPrice(marketID string, outcome string, price float64, ts time.Time) error {
	point, err := types.NewPricePoint(marketID, outcome, price, ts)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := keyFor(marketID, outcome)
	points := t.series[key]

	// keep the series ordered; out-of-order samples are rare
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp.After(point.Timestamp)
	})
	if idx == len(points) {
		points = append(points, point)
	} else {
		points = append(points, types.PricePoint{})
		copy(points[idx+1:], points[idx:])
		points[idx] = point
	}

	cutoff := points[len(points)-1].Timestamp.Add(-t.retention)
	drop := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(cutoff)
	})
	if drop > 0 {
		points = points[drop:]
		PointsEvictedTotal.Add(float64(drop))
	}

	if _, existed := t.series[key]; !existed {
		SeriesTracked.Inc()
	}
	t.series[key] = points
	PointsRecordedTotal.Inc()

	return nil
}

// MovementOver returns the movement of an outcome over [now-window, now].
// ok is false when fewer than two samples fall in the window, which is
// different from a zero movement.
func (t *Tracker) MovementOver(marketID string, outcome string, window time.Duration, now time.Time) (Movement, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	points := t.series[keyFor(marketID, outcome)]
	start := now.Add(-window)

	lo := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp.After(now)
	})

	if hi-lo < 2 {
		return Movement{}, false
	}

	first := points[lo]
	last := points[hi-1]

	return Movement{
		From:     first.Price,
		To:       last.Price,
		Change:   (last.Price - first.Price) / first.Price,
		Samples:  hi - lo,
		Start:    first.Timestamp,
		End:      last.Timestamp,
		Window:   window.String(),
		Outcome:  outcome,
		MarketID: marketID,
	}, true
}

// Points returns every sample at or after since, ordered by market,
// outcome and time.
func (t *Tracker) Points(since time.Time) []types.PricePoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.PricePoint
	for _, points := range t.series {
		for i := range points {
			if !points[i].Timestamp.Before(since) {
				out = append(out, points[i])
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		if out[i].Outcome != out[j].Outcome {
			return out[i].Outcome < out[j].Outcome
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Restore replays persisted samples, skipping invalid ones.
func (t *Tracker) Restore(points []types.PricePoint) int {
	restored := 0
	for i := range points {
		p := &points[i]
		err := t.RecordPrice(p.MarketID, p.Outcome, p.Price, p.Timestamp)
		if err != nil {
			t.logger.Debug("price-point-skipped", zap.Error(err))
			continue
		}
		restored++
	}
	return restored
}

// Len returns the number of tracked series.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.series)
}
