package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the persistence sink. Writes are at-least-once: re-writing a
// trade, alert or price point with the same key is not an error.
type Storage interface {
	// SaveTrade appends a trade, keyed by tx hash.
	SaveTrade(ctx context.Context, trade *types.Trade) error

	// SaveAlert appends an alert, keyed by id.
	SaveAlert(ctx context.Context, alert *types.Alert) error

	// MarkAlertDelivered sets the delivered flag of an alert.
	MarkAlertDelivered(ctx context.Context, id string) error

	// SaveWalletSnapshots replaces the latest snapshot of each wallet.
	SaveWalletSnapshots(ctx context.Context, snapshots []types.WalletSnapshot) error

	// SavePricePoints appends price samples.
	SavePricePoints(ctx context.Context, points []types.PricePoint) error

	// Trades returns trades matching the query, newest first.
	Trades(ctx context.Context, q TradeQuery) ([]types.Trade, error)

	// Alerts returns alerts matching the query, newest first.
	Alerts(ctx context.Context, q AlertQuery) ([]types.Alert, error)

	// AlertStats aggregates alerts created at or after since.
	AlertStats(ctx context.Context, since time.Time, top int) (*AlertStats, error)

	// WalletSnapshot returns the latest persisted snapshot of a wallet.
	WalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error)

	// WalletSnapshots returns every latest wallet snapshot.
	WalletSnapshots(ctx context.Context) ([]types.WalletSnapshot, error)

	// PricePoints returns samples at or after since, oldest first.
	PricePoints(ctx context.Context, since time.Time) ([]types.PricePoint, error)

	// ActiveWallets returns wallets with at least minTrades trades since.
	ActiveWallets(ctx context.Context, since time.Time, minTrades int) ([]WalletActivity, error)

	// Prune deletes records older than the cutoffs.
	Prune(ctx context.Context, cutoffs PruneCutoffs) (*PruneResult, error)

	// Close closes the storage connection.
	Close() error
}

// TradeQuery filters trades. Zero values do not filter.
type TradeQuery struct {
	Wallet   string
	MarketID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// AlertQuery filters alerts. Zero values do not filter.
type AlertQuery struct {
	Since       time.Time
	Until       time.Time
	MinSeverity types.Severity
	Kind        types.AlertKind
	MarketID    string
	Wallet      string
	Undelivered bool
	Limit       int
}

// AlertStats summarises alerts over a period.
type AlertStats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"` // keyed by severity name
	ByKind     map[string]int `json:"by_kind"`
	TopWallets []Count        `json:"top_wallets"`
	TopMarkets []Count        `json:"top_markets"`
}

// Count is one row of a top-N aggregation.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

// WalletActivity is a wallet's trading in a period.
type WalletActivity struct {
	Address   string  `json:"address"`
	Trades    int     `json:"trades"`
	VolumeUSD float64 `json:"volume_usd"`
	Markets   int     `json:"markets"`
}

// PruneCutoffs are the oldest timestamps kept per record type. A zero
// cutoff keeps everything of that type.
type PruneCutoffs struct {
	Trades time.Time
	Alerts time.Time
	Prices time.Time
}

// PruneResult counts deleted records.
type PruneResult struct {
	Trades int64 `json:"trades"`
	Alerts int64 `json:"alerts"`
	Prices int64 `json:"prices"`
}
