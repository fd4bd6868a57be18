// Package reaction measures trading activity in a market after a signal.
package reaction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// Reaction summarises the trades in one market inside one window.
type Reaction struct {
	MarketID             string  `json:"market_id"`
	TradeCount           int     `json:"trade_count"`
	VolumeUSD            float64 `json:"volume_usd"`
	SmartMoneyTradeCount int     `json:"smart_money_trade_count"`
	SmartMoneyVolumeUSD  float64 `json:"smart_money_volume_usd"`
}

// SmartMoneyFraction is the smart-money share of volume, 0 when there was
// no volume.
func (r *Reaction) SmartMoneyFraction() float64 {
	if r.VolumeUSD <= 0 {
		return 0
	}
	return r.SmartMoneyVolumeUSD / r.VolumeUSD
}

// WalletLookup resolves a wallet's current aggregates.
type WalletLookup interface {
	Snapshot(address string) (types.WalletSnapshot, bool)
}

// Detector keeps recent trades per market.
type Detector struct {
	mu          sync.RWMutex
	trades      map[string][]types.Trade
	wallets     WalletLookup
	highWinRate float64
	minTrades   int
	retention   time.Duration
	logger      *zap.Logger
}

// Config holds detector configuration.
type Config struct {
	Wallets WalletLookup
	// HighWinRate is the win rate at or above which a wallet is smart money.
	HighWinRate float64
	// MinTrades is the trade count a wallet needs before it can be smart money.
	MinTrades int
	// Retention bounds how far back trades are kept, at least the widest
	// reaction window.
	Retention time.Duration
	Logger    *zap.Logger
}

// New creates a new reaction detector.
func New(cfg *Config) (*Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Wallets == nil {
		return nil, fmt.Errorf("wallet lookup cannot be nil")
	}
	if cfg.HighWinRate < 0 || cfg.HighWinRate > 1 {
		return nil, fmt.Errorf("high win rate must be between 0 and 1, got %v", cfg.HighWinRate)
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}

	return &Detector{
		trades:      make(map[string][]types.Trade),
		wallets:     cfg.Wallets,
		highWinRate: cfg.HighWinRate,
		minTrades:   cfg.MinTrades,
		retention:   cfg.Retention,
		logger:      cfg.Logger,
	}, nil
}

// Record adds a trade to its market's window, evicting trades older than
// the retention horizon measured from the newest trade.
func (d *Detector) Record(trade *types.Trade) {
	d.mu.Lock()
	defer d.mu.Unlock()

	trades := d.trades[trade.MarketID]
	idx := sort.Search(len(trades), func(i int) bool {
		return trades[i].Timestamp.After(trade.Timestamp)
	})
	trades = append(trades, types.Trade{})
	copy(trades[idx+1:], trades[idx:])
	trades[idx] = *trade

	cutoff := trades[len(trades)-1].Timestamp.Add(-d.retention)
	drop := sort.Search(len(trades), func(i int) bool {
		return !trades[i].Timestamp.Before(cutoff)
	})
	if drop > 0 {
		trades = trades[drop:]
	}

	d.trades[trade.MarketID] = trades
}

// Reaction measures trades in marketID with timestamps in [from, from+window].
func (d *Detector) Reaction(marketID string, from time.Time, window time.Duration) Reaction {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r := Reaction{MarketID: marketID}
	trades := d.trades[marketID]
	end := from.Add(window)

	lo := sort.Search(len(trades), func(i int) bool {
		return !trades[i].Timestamp.Before(from)
	})
	for i := lo; i < len(trades) && !trades[i].Timestamp.After(end); i++ {
		t := &trades[i]
		r.TradeCount++
		r.VolumeUSD += t.SizeUSD

		if d.isSmartMoney(t.WalletAddress) {
			r.SmartMoneyTradeCount++
			r.SmartMoneyVolumeUSD += t.SizeUSD
		}
	}

	return r
}

// isSmartMoney requires a defined win rate; wallets that never saw a
// resolution are excluded regardless of volume.
func (d *Detector) isSmartMoney(address string) bool {
	snap, ok := d.wallets.Snapshot(address)
	if !ok || snap.TradeCount < d.minTrades {
		return false
	}
	rate, defined := snap.WinRate()
	return defined && rate >= d.highWinRate
}

// Prune drops trades older than before across all markets.
func (d *Detector) Prune(before time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pruned := 0
	for market, trades := range d.trades {
		drop := sort.Search(len(trades), func(i int) bool {
			return !trades[i].Timestamp.Before(before)
		})
		if drop == 0 {
			continue
		}
		pruned += drop
		if drop == len(trades) {
			delete(d.trades, market)
			continue
		}
		d.trades[market] = trades[drop:]
	}

	return pruned
}
