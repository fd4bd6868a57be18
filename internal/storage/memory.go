package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// MemoryStorage implements Storage in process memory. Nothing survives a
// restart; it backs tests, the console sink and short-lived runs.
type MemoryStorage struct {
	mu        sync.RWMutex
	trades    map[string]types.Trade
	alerts    map[string]types.Alert
	snapshots map[string]types.WalletSnapshot
	prices    map[priceKey]types.PricePoint
	logger    *zap.Logger
}

type priceKey struct {
	market  string
	outcome string
	ts      int64
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	logger.Info("memory-storage-initialized")
	return &MemoryStorage{
		trades:    make(map[string]types.Trade),
		alerts:    make(map[string]types.Alert),
		snapshots: make(map[string]types.WalletSnapshot),
		prices:    make(map[priceKey]types.PricePoint),
		logger:    logger,
	}
}

// SaveTrade stores a trade; a repeated tx hash is ignored.
func (m *MemoryStorage) SaveTrade(ctx context.Context, trade *types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trades[trade.TxHash]; !ok {
		m.trades[trade.TxHash] = *trade
	}
	return nil
}

// SaveAlert stores an alert; a repeated id is ignored.
func (m *MemoryStorage) SaveAlert(ctx context.Context, alert *types.Alert) error {
	err := alert.Validate()
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[alert.ID]; !ok {
		stored := *alert
		stored.Reasons = append([]string(nil), alert.Reasons...)
		m.alerts[alert.ID] = stored
	}
	return nil
}

// MarkAlertDelivered sets the delivered flag.
func (m *MemoryStorage) MarkAlertDelivered(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	alert.Delivered = true
	m.alerts[id] = alert
	return nil
}

// SaveWalletSnapshots replaces the latest snapshot per wallet.
func (m *MemoryStorage) SaveWalletSnapshots(ctx context.Context, snapshots []types.WalletSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range snapshots {
		m.snapshots[snapshots[i].Address] = snapshots[i]
	}
	return nil
}

// SavePricePoints appends price samples.
func (m *MemoryStorage) SavePricePoints(ctx context.Context, points []types.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range points {
		p := points[i]
		m.prices[priceKey{market: p.MarketID, outcome: p.Outcome, ts: p.Timestamp.UnixNano()}] = p
	}
	return nil
}

// Trades returns trades matching q, newest first.
func (m *MemoryStorage) Trades(ctx context.Context, q TradeQuery) ([]types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Trade
	for _, t := range m.trades {
		if q.Wallet != "" && t.WalletAddress != q.Wallet {
			continue
		}
		if q.MarketID != "" && t.MarketID != q.MarketID {
			continue
		}
		if !inRange(t.Timestamp, q.Since, q.Until) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].TxHash < out[j].TxHash
	})

	return limit(out, q.Limit), nil
}

// Alerts returns alerts matching q, newest first.
func (m *MemoryStorage) Alerts(ctx context.Context, q AlertQuery) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Alert
	for _, a := range m.alerts {
		if !matchesAlert(&a, &q) {
			continue
		}
		out = append(out, a)
	}

	sortAlerts(out)

	return limit(out, q.Limit), nil
}

func matchesAlert(a *types.Alert, q *AlertQuery) bool {
	switch {
	case q.MinSeverity.Valid() && a.Severity < q.MinSeverity:
		return false
	case q.Kind != "" && a.Kind != q.Kind:
		return false
	case q.MarketID != "" && a.MarketID != q.MarketID:
		return false
	case q.Wallet != "" && a.WalletAddress != q.Wallet:
		return false
	case q.Undelivered && a.Delivered:
		return false
	}
	return inRange(a.CreatedAt, q.Since, q.Until)
}

func sortAlerts(alerts []types.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}

// AlertStats aggregates alerts created at or after since.
func (m *MemoryStorage) AlertStats(ctx context.Context, since time.Time, top int) (*AlertStats, error) {
	alerts, err := m.Alerts(ctx, AlertQuery{Since: since})
	if err != nil {
		return nil, err
	}
	return computeStats(alerts, top), nil
}

// computeStats is shared by the in-process sinks.
func computeStats(alerts []types.Alert, top int) *AlertStats {
	stats := &AlertStats{
		BySeverity: make(map[string]int),
		ByKind:     make(map[string]int),
	}

	wallets := make(map[string]int)
	markets := make(map[string]int)
	titles := make(map[string]string)
	for i := range alerts {
		a := &alerts[i]
		stats.Total++
		stats.BySeverity[a.Severity.String()]++
		stats.ByKind[string(a.Kind)]++
		if a.WalletAddress != "" {
			wallets[a.WalletAddress]++
		}
		markets[a.MarketID]++
		if a.MarketTitle != "" {
			titles[a.MarketID] = a.MarketTitle
		}
	}

	stats.TopWallets = topCounts(wallets, nil, top)
	stats.TopMarkets = topCounts(markets, titles, top)

	return stats
}

func topCounts(counts map[string]int, labels map[string]string, top int) []Count {
	out := make([]Count, 0, len(counts))
	for key, n := range counts {
		out = append(out, Count{Key: key, Label: labels[key], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return limit(out, top)
}

// WalletSnapshot returns the latest snapshot of a wallet.
func (m *MemoryStorage) WalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[address]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", address, ErrNotFound)
	}
	return &snap, nil
}

// WalletSnapshots returns every latest snapshot ordered by address.
func (m *MemoryStorage) WalletSnapshots(ctx context.Context) ([]types.WalletSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.WalletSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out, nil
}

// PricePoints returns samples at or after since, oldest first.
func (m *MemoryStorage) PricePoints(ctx context.Context, since time.Time) ([]types.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.PricePoint
	for _, p := range m.prices {
		if p.Timestamp.Before(since) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

// ActiveWallets returns wallets with at least minTrades trades since,
// busiest first.
func (m *MemoryStorage) ActiveWallets(ctx context.Context, since time.Time, minTrades int) ([]WalletActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byWallet := make(map[string]*WalletActivity)
	markets := make(map[string]map[string]struct{})
	for _, t := range m.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		activity, ok := byWallet[t.WalletAddress]
		if !ok {
			activity = &WalletActivity{Address: t.WalletAddress}
			byWallet[t.WalletAddress] = activity
			markets[t.WalletAddress] = make(map[string]struct{})
		}
		activity.Trades++
		activity.VolumeUSD += t.SizeUSD
		markets[t.WalletAddress][t.MarketID] = struct{}{}
	}

	var out []WalletActivity
	for address, activity := range byWallet {
		if activity.Trades < minTrades {
			continue
		}
		activity.Markets = len(markets[address])
		out = append(out, *activity)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trades != out[j].Trades {
			return out[i].Trades > out[j].Trades
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

// Prune deletes records older than the cutoffs.
func (m *MemoryStorage) Prune(ctx context.Context, cutoffs PruneCutoffs) (*PruneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &PruneResult{}
	if !cutoffs.Trades.IsZero() {
		for hash, t := range m.trades {
			if t.Timestamp.Before(cutoffs.Trades) {
				delete(m.trades, hash)
				result.Trades++
			}
		}
	}
	if !cutoffs.Alerts.IsZero() {
		for id, a := range m.alerts {
			if a.CreatedAt.Before(cutoffs.Alerts) {
				delete(m.alerts, id)
				result.Alerts++
			}
		}
	}
	if !cutoffs.Prices.IsZero() {
		for key, p := range m.prices {
			if p.Timestamp.Before(cutoffs.Prices) {
				delete(m.prices, key)
				result.Prices++
			}
		}
	}

	return result, nil
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}

func inRange(ts time.Time, since time.Time, until time.Time) bool {
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && ts.After(until) {
		return false
	}
	return true
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
