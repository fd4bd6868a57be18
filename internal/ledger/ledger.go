// Package ledger maintains per-wallet behavioural aggregates derived from
// the trades the surveillance loop observes.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrUnknownWallet is returned when a wallet has no record.
	ErrUnknownWallet = errors.New("unknown wallet")

	// ErrWalletExists is returned by Seed when the wallet already has a record.
	ErrWalletExists = errors.New("wallet already tracked")
)

// Ledger holds one aggregate record per wallet. Writes must come from a
// single goroutine (the surveillance fold); reads are safe from any goroutine.
type Ledger struct {
	mu          sync.RWMutex
	wallets     map[string]*walletState
	holders     map[string]map[string]struct{} // market -> wallets with a position
	resolutions map[string]string              // market -> winning outcome
	cache       cache.Cache
	cacheTTL    time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// Config holds ledger configuration.
type Config struct {
	Cache    cache.Cache // optional snapshot cache
	CacheTTL time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

type walletState struct {
	address    string
	firstSeen  time.Time
	trades     int
	volume     float64
	largest    float64
	markets    map[string]struct{}
	marketList []string // append-only, in first-trade order
	// net shares held per market and outcome
	positions map[string]map[string]float64
	// markets already counted toward win rate, value is whether the wallet won
	settled     map[string]bool
	settledList []string
	resolved    int
	won         int
	revision    uint64
}

type cachedSnapshot struct {
	snapshot types.WalletSnapshot
	revision uint64
}

// New creates a new wallet ledger.
func New(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive when a cache is set")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		wallets:     make(map[string]*walletState),
		holders:     make(map[string]map[string]struct{}),
		resolutions: make(map[string]string),
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		now:         now,
		logger:      cfg.Logger,
	}, nil
}

// RecordTrade folds one trade into its wallet's aggregates and returns the
// updated snapshot. Cost is independent of the wallet's history length, so
// the returned Markets and SettledMarkets are in first-seen order; Snapshot
// and Snapshots return them sorted.
func (l *Ledger) RecordTrade(trade *types.Trade) (types.WalletSnapshot, error) {
	err := trade.Validate()
	if err != nil {
		return types.WalletSnapshot{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.wallets[trade.WalletAddress]
	if !ok {
		state = newWalletState(trade.WalletAddress, trade.Timestamp)
		l.wallets[trade.WalletAddress] = state
		WalletsTracked.Set(float64(len(l.wallets)))
	}

	if trade.Timestamp.Before(state.firstSeen) {
		state.firstSeen = trade.Timestamp
	}
	state.trades++
	state.volume += trade.SizeUSD
	if trade.SizeUSD > state.largest {
		state.largest = trade.SizeUSD
	}
	state.addMarket(trade.MarketID)

	shares := trade.SizeUSD / trade.Price
	if trade.Side == types.SideSell {
		shares = -shares
	}
	outcomes, ok := state.positions[trade.MarketID]
	if !ok {
		outcomes = make(map[string]float64)
		state.positions[trade.MarketID] = outcomes
	}
	outcomes[trade.Outcome] += shares

	holders, ok := l.holders[trade.MarketID]
	if !ok {
		holders = make(map[string]struct{})
		l.holders[trade.MarketID] = holders
	}
	holders[trade.WalletAddress] = struct{}{}

	// Late trade on an already settled market.
	if winner, resolved := l.resolutions[trade.MarketID]; resolved {
		state.settle(trade.MarketID, winner)
	}

	state.revision++
	TradesRecordedTotal.Inc()

	return state.view(l.now()), nil
}

// Snapshot returns the current aggregates of a wallet.
func (l *Ledger) Snapshot(address string) (types.WalletSnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state, ok := l.wallets[address]
	if !ok {
		return types.WalletSnapshot{}, false
	}

	return l.snapshotLocked(state), true
}

// Known reports whether the wallet has a record.
func (l *Ledger) Known(address string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.wallets[address]
	return ok
}

// Len returns the number of tracked wallets.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.wallets)
}

// AgeHours is the wallet's age at now in hours.
func (l *Ledger) AgeHours(snapshot *types.WalletSnapshot, now time.Time) float64 {
	return snapshot.AgeHours(now)
}

// IsSingleMarketWallet is true once a wallet has traded at least twice, all
// in the same market.
func (l *Ledger) IsSingleMarketWallet(snapshot *types.WalletSnapshot) bool {
	return snapshot.IsSingleMarket()
}

// ResolveMarket settles a market for every wallet holding a position in it
// and returns the number of wallets whose win rate changed. Resolving the
// same market twice is a no-op.
func (l *Ledger) ResolveMarket(marketID string, winningOutcome string) int {
	if marketID == "" || winningOutcome == "" {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.resolutions[marketID]; done {
		return 0
	}
	l.resolutions[marketID] = winningOutcome
	MarketsResolvedTotal.Inc()

	updated := 0
	for address := range l.holders[marketID] {
		state := l.wallets[address]
		if state == nil {
			continue
		}
		if state.settle(marketID, winningOutcome) {
			state.revision++
			updated++
		}
	}

	l.logger.Debug("market-resolved",
		zap.String("market-id", marketID),
		zap.String("winner", winningOutcome),
		zap.Int("wallets-updated", updated))

	return updated
}

// Resolved reports whether a market has been settled in the ledger.
func (l *Ledger) Resolved(marketID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.resolutions[marketID]
	return ok
}

// Seed creates a wallet record from its venue history. Resolved positions in
// the history count toward win rate and are never counted again when the
// same market is later resolved.
func (l *Ledger) Seed(history *types.WalletHistory) error {
	if history == nil || history.Address == "" {
		return fmt.Errorf("seed wallet: %w", ErrUnknownWallet)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wallets[history.Address]; ok {
		return fmt.Errorf("seed %s: %w", history.Address, ErrWalletExists)
	}

	firstSeen := history.FirstTradeAt
	if firstSeen.IsZero() {
		firstSeen = l.now()
	}

	state := newWalletState(history.Address, firstSeen.UTC())
	state.trades = history.TradeCount
	state.volume = history.VolumeUSD
	state.largest = history.LargestTradeUSD
	for _, market := range history.Markets {
		state.addMarket(market)
	}
	for _, position := range history.ResolvedPositions {
		if _, counted := state.settled[position.MarketID]; counted {
			continue
		}
		state.markSettled(position.MarketID, position.Won)
		state.addMarket(position.MarketID)
		state.resolved++
		if position.Won {
			state.won++
		}
	}

	l.wallets[history.Address] = state
	WalletsTracked.Set(float64(len(l.wallets)))
	WalletsSeededTotal.Inc()

	return nil
}

// Snapshots returns every wallet's aggregates ordered by address.
func (l *Ledger) Snapshots() []types.WalletSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.WalletSnapshot, 0, len(l.wallets))
	for _, state := range l.wallets {
		out = append(out, l.snapshotLocked(state))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})

	return out
}

// Restore rebuilds wallet records from persisted snapshots. Open positions
// are not part of a snapshot, so restored wallets only gain win-rate
// samples from markets they trade after the restore.
func (l *Ledger) Restore(snapshots []types.WalletSnapshot) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	restored := 0
	for i := range snapshots {
		snap := &snapshots[i]
		if snap.Address == "" {
			continue
		}
		if _, ok := l.wallets[snap.Address]; ok {
			continue
		}

		state := newWalletState(snap.Address, snap.FirstSeen)
		state.trades = snap.TradeCount
		state.volume = snap.TotalVolumeUSD
		state.largest = snap.LargestTradeUSD
		state.resolved = snap.ResolvedMarkets
		state.won = snap.WinningMarkets
		for _, market := range snap.Markets {
			state.addMarket(market)
		}
		for _, market := range snap.SettledMarkets {
			state.markSettled(market, false)
		}

		l.wallets[snap.Address] = state
		restored++
	}

	WalletsTracked.Set(float64(len(l.wallets)))

	return restored
}

func (l *Ledger) snapshotLocked(state *walletState) types.WalletSnapshot {
	key := cache.Key("wallet", state.address)
	now := l.now()

	if l.cache != nil {
		entry, ok := cache.Lookup[*cachedSnapshot](l.cache, key)
		if ok && entry.revision == state.revision && now.Sub(entry.snapshot.ComputedAt) < l.cacheTTL {
			SnapshotCacheHitsTotal.Inc()
			return entry.snapshot
		}
	}

	snap := state.snapshot(now)
	SnapshotComputationsTotal.Inc()

	if l.cache != nil {
		l.cache.Set(key, &cachedSnapshot{snapshot: snap, revision: state.revision}, l.cacheTTL)
	}

	return snap
}

func newWalletState(address string, firstSeen time.Time) *walletState {
	return &walletState{
		address:   address,
		firstSeen: firstSeen,
		markets:   make(map[string]struct{}),
		positions: make(map[string]map[string]float64),
		settled:   make(map[string]bool),
	}
}

// settle counts a resolved market toward the wallet's win rate once. A
// wallet wins a market when it holds a net long position in the winner.
func (s *walletState) settle(marketID string, winner string) bool {
	if _, counted := s.settled[marketID]; counted {
		return false
	}
	outcomes, ok := s.positions[marketID]
	if !ok {
		return false
	}

	won := outcomes[winner] > 0
	s.markSettled(marketID, won)
	s.resolved++
	if won {
		s.won++
	}

	return true
}

func (s *walletState) addMarket(marketID string) {
	if _, ok := s.markets[marketID]; ok {
		return
	}
	s.markets[marketID] = struct{}{}
	s.marketList = append(s.marketList, marketID)
}

func (s *walletState) markSettled(marketID string, won bool) {
	if _, ok := s.settled[marketID]; !ok {
		s.settledList = append(s.settledList, marketID)
	}
	s.settled[marketID] = won
}

// view shares the append-only lists, capped so later appends never show
// through.
func (s *walletState) view(now time.Time) types.WalletSnapshot {
	return types.WalletSnapshot{
		Address:         s.address,
		FirstSeen:       s.firstSeen,
		TradeCount:      s.trades,
		TotalVolumeUSD:  s.volume,
		LargestTradeUSD: s.largest,
		Markets:         s.marketList[:len(s.marketList):len(s.marketList)],
		SettledMarkets:  s.settledList[:len(s.settledList):len(s.settledList)],
		ResolvedMarkets: s.resolved,
		WinningMarkets:  s.won,
		ComputedAt:      now,
	}
}

func (s *walletState) snapshot(now time.Time) types.WalletSnapshot {
	snap := s.view(now)
	snap.Markets = sortedCopy(s.marketList)
	snap.SettledMarkets = sortedCopy(s.settledList)
	return snap
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
