package surveillance

import (
	"context"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// TradeSource yields newly observed trades. Repeats across calls are
// tolerated; the loop deduplicates by tx hash.
type TradeSource interface {
	Name() string
	FetchTrades(ctx context.Context) ([]types.Trade, error)
}

// MarketDirectory lists active markets and recently resolved ones.
type MarketDirectory interface {
	FetchMarkets(ctx context.Context) ([]types.Market, error)
	FetchResolved(ctx context.Context) ([]types.Market, error)
}

// SignalSource yields news items or social posts.
type SignalSource interface {
	Name() string
	FetchSignals(ctx context.Context) ([]types.Signal, error)
}

// HistoryProvider returns a wallet's pre-existing venue record.
type HistoryProvider interface {
	History(ctx context.Context, address string) (*types.WalletHistory, error)
}

// Store is the persistence the loop writes to.
type Store interface {
	SaveTrade(ctx context.Context, trade *types.Trade) error
	SaveAlert(ctx context.Context, alert *types.Alert) error
}

// AlertSink receives alerts for notification.
type AlertSink interface {
	Submit(alert *types.Alert) bool
}
