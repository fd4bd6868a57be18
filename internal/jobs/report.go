package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HistoryProvider returns a wallet's venue record.
type HistoryProvider interface {
	History(ctx context.Context, address string) (*types.WalletHistory, error)
}

// ReportQuery selects historical top performers.
type ReportQuery struct {
	Lookback   time.Duration // default 7 days
	MinTrades  int           // default 10
	MinWinRate float64       // exclusive, default 0.6
	Limit      int           // 0 = all
	Workers    int           // concurrent history lookups, default 4
}

func (q ReportQuery) withDefaults() ReportQuery {
	if q.Lookback <= 0 {
		q.Lookback = 7 * 24 * time.Hour
	}
	if q.MinTrades <= 0 {
		q.MinTrades = 10
	}
	if q.MinWinRate <= 0 {
		q.MinWinRate = 0.6
	}
	if q.Workers <= 0 {
		q.Workers = 4
	}
	return q
}

// Performer is one wallet of the top performer report.
type Performer struct {
	Address         string  `json:"address"`
	RecentTrades    int     `json:"recent_trades"`
	RecentVolumeUSD float64 `json:"recent_volume_usd"`
	RecentMarkets   int     `json:"recent_markets"`
	ResolvedMarkets int     `json:"resolved_markets"`
	WinningMarkets  int     `json:"winning_markets"`
	WinRate         float64 `json:"win_rate"`
	TotalVolumeUSD  float64 `json:"total_volume_usd"`
}

// TopPerformers lists wallets active in the lookback whose venue history
// shows a win rate above MinWinRate, best first. Wallets whose history
// cannot be fetched are skipped.
func TopPerformers(
	ctx context.Context,
	store storage.Storage,
	history HistoryProvider,
	q ReportQuery,
	now time.Time,
	logger *zap.Logger,
) ([]Performer, error) {
	q = q.withDefaults()

	active, err := store.ActiveWallets(ctx, now.Add(-q.Lookback), q.MinTrades)
	if err != nil {
		return nil, fmt.Errorf("load active wallets: %w", err)
	}

	var (
		mu  sync.Mutex
		out []Performer
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.Workers)
	for i := range active {
		activity := active[i]
		g.Go(func() error {
			h, err := history.History(gctx, activity.Address)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Debug("performer-history-failed",
					zap.String("wallet", activity.Address),
					zap.Error(err))
				return nil
			}

			p, ok := performerFrom(activity, h, q.MinWinRate)
			if !ok {
				return nil
			}
			mu.Lock()
			out = append(out, p)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, fmt.Errorf("fetch wallet histories: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		if out[i].RecentVolumeUSD != out[j].RecentVolumeUSD {
			return out[i].RecentVolumeUSD > out[j].RecentVolumeUSD
		}
		return out[i].Address < out[j].Address
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func performerFrom(activity storage.WalletActivity, h *types.WalletHistory, minWinRate float64) (Performer, bool) {
	resolved := len(h.ResolvedPositions)
	if resolved == 0 {
		return Performer{}, false
	}
	won := 0
	for _, pos := range h.ResolvedPositions {
		if pos.Won {
			won++
		}
	}
	rate := float64(won) / float64(resolved)
	if rate <= minWinRate {
		return Performer{}, false
	}

	return Performer{
		Address:         activity.Address,
		RecentTrades:    activity.Trades,
		RecentVolumeUSD: activity.VolumeUSD,
		RecentMarkets:   activity.Markets,
		ResolvedMarkets: resolved,
		WinningMarkets:  won,
		WinRate:         rate,
		TotalVolumeUSD:  h.VolumeUSD,
	}, true
}
