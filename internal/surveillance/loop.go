// Package surveillance drives the polling ticks that fold trades, prices
// and signals into the aggregates and raise alerts.
package surveillance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/alert"
	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/internal/ledger"
	"github.com/mselser95/polymarket-surveillance/internal/matcher"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/reaction"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSeenTrades  = 100000
	defaultSeenSignals = 10000
)

// Config wires the loop to its sources, aggregates and sinks.
type Config struct {
	TradeSources  []TradeSource
	Directory     MarketDirectory // optional
	SignalSources []SignalSource
	History       HistoryProvider // optional
	// HistoryWorkers bounds concurrent history lookups within a tick.
	HistoryWorkers int

	Ledger    *ledger.Ledger
	Prices    *pricehistory.Tracker
	Matcher   *matcher.Matcher
	Reactions *reaction.Detector
	Alerts    *alert.Generator

	Store Store     // optional
	Sink  AlertSink // optional

	MarketRefreshInterval time.Duration
	OddsMoveWindow        time.Duration
	NewsReactionWindow    time.Duration
	SocialReactionWindow  time.Duration

	// Run cadence.
	PollInterval      time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64

	SeenTrades  int
	SeenSignals int
	Now         func() time.Time
	Logger      *zap.Logger
}

// Loop is the single writer of the ledger, price tracker, reaction
// detector and alert generator. Ticks never overlap.
type Loop struct {
	cfg Config

	tickMu      sync.Mutex
	seenTrades  *dedupe.Seen
	seenSignals *dedupe.Seen
	pending     map[string]*pendingSignal
	lastRefresh time.Time

	mu       sync.RWMutex
	markets  map[string]types.Market
	lastTick time.Time

	now    func() time.Time
	logger *zap.Logger
}

// pendingSignal is a matched signal whose reaction window is still open.
type pendingSignal struct {
	signal   types.Signal
	matches  []types.MatchScore
	markets  map[string]types.Market
	window   time.Duration
	deadline time.Time
	reported map[string]types.Severity
}

// New creates a surveillance loop.
func New(cfg *Config) (*Loop, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Ledger == nil || cfg.Prices == nil || cfg.Reactions == nil || cfg.Alerts == nil {
		return nil, fmt.Errorf("ledger, price tracker, reaction detector and alert generator are required")
	}
	if len(cfg.SignalSources) > 0 && cfg.Matcher == nil {
		return nil, fmt.Errorf("matcher is required when signal sources are configured")
	}
	if cfg.OddsMoveWindow <= 0 || cfg.NewsReactionWindow <= 0 || cfg.SocialReactionWindow <= 0 {
		return nil, fmt.Errorf("odds and reaction windows must be positive")
	}

	c := *cfg
	if c.HistoryWorkers <= 0 {
		c.HistoryWorkers = 4
	}
	if c.SeenTrades <= 0 {
		c.SeenTrades = defaultSeenTrades
	}
	if c.SeenSignals <= 0 {
		c.SeenSignals = defaultSeenSignals
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BackoffMax < c.PollInterval {
		c.BackoffMax = c.PollInterval
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2.0
	}

	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Loop{
		cfg:         c,
		seenTrades:  dedupe.New(c.SeenTrades),
		seenSignals: dedupe.New(c.SeenSignals),
		pending:     make(map[string]*pendingSignal),
		markets:     make(map[string]types.Market),
		now:         now,
		logger:      c.Logger,
	}, nil
}

// SourceError is a fetch failure that degraded one tick.
type SourceError struct {
	Source string
	Err    error
}

// TickResult reports what one tick did.
type TickResult struct {
	Started         time.Time
	Duration        time.Duration
	MarketsRefresh  bool
	MarketsActive   int
	MarketsResolved int
	TradesFetched   int
	TradesNew       int
	TradesSkipped   int
	WalletsSeeded   int
	SignalsFetched  int
	SignalsMatched  int
	SignalsPending  int
	Alerts          []*types.Alert
	Errors          []SourceError

	attempted int
}

// Failed is true when sources were attempted and every one failed.
func (r *TickResult) Failed() bool {
	return r.attempted > 0 && len(r.Errors) == r.attempted
}

// fetched is the raw output of the fetch phase.
type fetched struct {
	markets  []types.Market
	resolved []types.Market
	refresh  bool
	trades   [][]types.Trade
	signals  [][]types.Signal
	errs     []SourceError
	mu       sync.Mutex
}

func (f *fetched) fail(source string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, SourceError{Source: source, Err: err})
}

// Tick fetches from every source concurrently, then folds the results
// serially. Cancelling ctx aborts outstanding fetches; data already fetched
// is still folded.
func (l *Loop) Tick(ctx context.Context) *TickResult {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	start := l.now()
	result := &TickResult{Started: start}

	data := l.fetch(ctx, start, result)

	fold := context.WithoutCancel(ctx)
	l.applyMarkets(data, start, result)
	trades := l.newTrades(data, result)
	l.seedWallets(ctx, trades, result)
	for i := range trades {
		l.foldTrade(fold, &trades[i], result)
	}
	l.foldSignals(fold, data, start, result)

	result.Errors = data.errs
	result.Duration = l.now().Sub(start)

	l.mu.Lock()
	l.lastTick = l.now()
	l.mu.Unlock()

	TicksTotal.Inc()
	TickDurationSeconds.Observe(result.Duration.Seconds())
	LastTickTimestamp.Set(float64(l.now().Unix()))
	PendingSignals.Set(float64(result.SignalsPending))

	l.logger.Info("tick-complete",
		zap.Int("trades-fetched", result.TradesFetched),
		zap.Int("trades-new", result.TradesNew),
		zap.Int("trades-skipped", result.TradesSkipped),
		zap.Int("wallets-seeded", result.WalletsSeeded),
		zap.Int("signals-fetched", result.SignalsFetched),
		zap.Int("signals-matched", result.SignalsMatched),
		zap.Int("signals-pending", result.SignalsPending),
		zap.Int("markets-resolved", result.MarketsResolved),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("source-errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))

	return result
}

func (l *Loop) fetch(ctx context.Context, now time.Time, result *TickResult) *fetched {
	data := &fetched{
		trades:  make([][]types.Trade, len(l.cfg.TradeSources)),
		signals: make([][]types.Signal, len(l.cfg.SignalSources)),
	}

	var g errgroup.Group

	if l.cfg.Directory != nil && (l.lastRefresh.IsZero() || now.Sub(l.lastRefresh) >= l.cfg.MarketRefreshInterval) {
		data.refresh = true
		result.attempted += 2
		g.Go(func() error {
			markets, err := l.cfg.Directory.FetchMarkets(ctx)
			if err != nil {
				data.fail("markets", err)
				return nil
			}
			data.markets = markets
			return nil
		})
		g.Go(func() error {
			resolved, err := l.cfg.Directory.FetchResolved(ctx)
			if err != nil {
				data.fail("resolved-markets", err)
				return nil
			}
			data.resolved = resolved
			return nil
		})
	}

	for i, src := range l.cfg.TradeSources {
		result.attempted++
		g.Go(func() error {
			trades, err := src.FetchTrades(ctx)
			if err != nil {
				data.fail(src.Name(), err)
				return nil
			}
			data.trades[i] = trades
			return nil
		})
	}

	for i, src := range l.cfg.SignalSources {
		result.attempted++
		g.Go(func() error {
			signals, err := src.FetchSignals(ctx)
			if err != nil {
				data.fail(src.Name(), err)
				return nil
			}
			data.signals[i] = signals
			return nil
		})
	}

	_ = g.Wait()

	sort.Slice(data.errs, func(i, j int) bool {
		return data.errs[i].Source < data.errs[j].Source
	})
	for _, e := range data.errs {
		SourceErrorsTotal.WithLabelValues(e.Source).Inc()
		l.logger.Warn("source-fetch-failed",
			zap.String("source", e.Source),
			zap.Error(e.Err))
	}

	return data
}

// applyMarkets replaces the active market set, samples current prices and
// settles resolved markets in the ledger.
func (l *Loop) applyMarkets(data *fetched, now time.Time, result *TickResult) {
	if data.refresh && data.markets != nil {
		active := make(map[string]types.Market, len(data.markets))
		for i := range data.markets {
			m := data.markets[i]
			err := m.Validate()
			if err != nil {
				l.logger.Debug("market-skipped-malformed", zap.Error(err))
				continue
			}
			active[m.ID] = m
			for _, o := range m.Outcomes {
				if o.Price <= 0 {
					continue
				}
				err = l.cfg.Prices.RecordPrice(m.ID, o.Name, o.Price, now)
				if err != nil {
					l.logger.Debug("price-skipped", zap.String("market-id", m.ID), zap.Error(err))
				}
			}
		}

		l.mu.Lock()
		l.markets = active
		l.mu.Unlock()

		l.lastRefresh = now
		result.MarketsRefresh = true
	}

	for i := range data.resolved {
		m := &data.resolved[i]
		winner, ok := m.Resolution()
		if !ok || l.cfg.Ledger.Resolved(m.ID) {
			continue
		}
		settled := l.cfg.Ledger.ResolveMarket(m.ID, winner)
		result.MarketsResolved++
		l.logger.Info("market-resolved",
			zap.String("market-id", m.ID),
			zap.String("winner", winner),
			zap.Int("wallets-settled", settled))
	}

	l.mu.RLock()
	result.MarketsActive = len(l.markets)
	l.mu.RUnlock()
}

// newTrades validates, deduplicates and orders the fetched trades.
func (l *Loop) newTrades(data *fetched, result *TickResult) []types.Trade {
	var out []types.Trade
	for _, batch := range data.trades {
		result.TradesFetched += len(batch)
		for i := range batch {
			t := batch[i]
			err := t.Validate()
			if err != nil {
				result.TradesSkipped++
				TradesSkippedTotal.WithLabelValues("malformed").Inc()
				l.logger.Debug("trade-skipped-malformed",
					zap.String("tx-hash", t.TxHash),
					zap.Error(err))
				continue
			}
			if !l.seenTrades.Add(t.TxHash) {
				TradesSkippedTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].TxHash < out[j].TxHash
	})

	result.TradesNew = len(out)
	return out
}

// seedWallets fetches history for wallets the ledger has never seen, with
// bounded concurrency, then seeds them in address order.
func (l *Loop) seedWallets(ctx context.Context, trades []types.Trade, result *TickResult) {
	if l.cfg.History == nil || len(trades) == 0 {
		return
	}

	unknown := make(map[string]struct{})
	for i := range trades {
		addr := trades[i].WalletAddress
		if !l.cfg.Ledger.Known(addr) {
			unknown[addr] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return
	}

	var mu sync.Mutex
	histories := make(map[string]*types.WalletHistory, len(unknown))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.HistoryWorkers)
	for addr := range unknown {
		g.Go(func() error {
			history, err := l.cfg.History.History(gctx, addr)
			if err != nil {
				l.logger.Debug("wallet-history-unavailable",
					zap.String("wallet", addr),
					zap.Error(err))
				return nil
			}
			if history == nil {
				return nil
			}
			mu.Lock()
			histories[addr] = history
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	addrs := make([]string, 0, len(histories))
	for addr := range histories {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		err := l.cfg.Ledger.Seed(histories[addr])
		if err != nil {
			if !errors.Is(err, ledger.ErrWalletExists) {
				l.logger.Warn("wallet-seed-failed", zap.String("wallet", addr), zap.Error(err))
			}
			continue
		}
		result.WalletsSeeded++
	}
}

func (l *Loop) foldTrade(ctx context.Context, trade *types.Trade, result *TickResult) {
	snapshot, err := l.cfg.Ledger.RecordTrade(trade)
	if err != nil {
		result.TradesSkipped++
		TradesSkippedTotal.WithLabelValues("rejected").Inc()
		l.logger.Warn("trade-rejected", zap.String("tx-hash", trade.TxHash), zap.Error(err))
		return
	}
	TradesFoldedTotal.Inc()

	err = l.cfg.Prices.RecordPrice(trade.MarketID, trade.Outcome, trade.Price, trade.Timestamp)
	if err != nil {
		l.logger.Debug("price-skipped", zap.String("tx-hash", trade.TxHash), zap.Error(err))
	}
	l.cfg.Reactions.Record(trade)

	if l.cfg.Store != nil {
		err = l.cfg.Store.SaveTrade(ctx, trade)
		if err != nil {
			PersistenceErrorsTotal.WithLabelValues("trade").Inc()
			l.logger.Error("trade-persist-failed", zap.String("tx-hash", trade.TxHash), zap.Error(err))
		}
	}

	input := &alert.TradeInput{
		Trade:  trade,
		Wallet: &snapshot,
	}
	if market, ok := l.Market(trade.MarketID); ok {
		input.Market = &market
	}
	if mv, ok := l.cfg.Prices.MovementOver(trade.MarketID, trade.Outcome, l.cfg.OddsMoveWindow, trade.Timestamp); ok {
		input.OddsMovement = &mv.Change
	}

	a, ok := l.cfg.Alerts.EvaluateTrade(input)
	if ok {
		l.publish(ctx, a, result)
	}
}

// foldSignals matches new signals against the active markets and
// re-evaluates every pending signal until its reaction window closes.
func (l *Loop) foldSignals(ctx context.Context, data *fetched, now time.Time, result *TickResult) {
	markets := l.Markets()

	for _, batch := range data.signals {
		result.SignalsFetched += len(batch)
		for i := range batch {
			signal, err := types.NewSignal(batch[i])
			if err != nil {
				l.logger.Debug("signal-skipped-malformed", zap.Error(err))
				continue
			}
			if !l.seenSignals.Add(signal.ID) {
				continue
			}

			matches := l.cfg.Matcher.Match(signal, markets)
			if len(matches) == 0 {
				continue
			}
			result.SignalsMatched++

			window := l.cfg.NewsReactionWindow
			if signal.Kind == types.SignalSocial {
				window = l.cfg.SocialReactionWindow
			}
			byID := make(map[string]types.Market, len(matches))
			for _, m := range matches {
				for j := range markets {
					if markets[j].ID == m.MarketID {
						byID[m.MarketID] = markets[j]
						break
					}
				}
			}
			l.pending[signal.ID] = &pendingSignal{
				signal:   *signal,
				matches:  matches,
				markets:  byID,
				window:   window,
				deadline: signal.PublishedAt.Add(window),
				reported: make(map[string]types.Severity),
			}

			l.logger.Info("signal-matched",
				zap.String("signal-id", signal.ID),
				zap.String("source", signal.Source),
				zap.Int("matches", len(matches)),
				zap.Float64("top-score", matches[0].Score))
		}
	}

	ids := make([]string, 0, len(l.pending))
	for id := range l.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := l.pending[ids[i]], l.pending[ids[j]]
		if !a.signal.PublishedAt.Equal(b.signal.PublishedAt) {
			return a.signal.PublishedAt.Before(b.signal.PublishedAt)
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		p := l.pending[id]

		matches := make([]alert.SignalMatch, 0, len(p.matches))
		for _, score := range p.matches {
			matches = append(matches, alert.SignalMatch{
				Score:    score,
				Market:   p.markets[score.MarketID],
				Reaction: l.cfg.Reactions.Reaction(score.MarketID, p.signal.PublishedAt, p.window),
				Floor:    p.reported[score.MarketID],
			})
		}

		for _, a := range l.cfg.Alerts.EvaluateSignal(&p.signal, matches) {
			p.reported[a.MarketID] = a.Severity
			l.publish(ctx, a, result)
		}

		if !now.Before(p.deadline) {
			delete(l.pending, id)
		}
	}

	result.SignalsPending = len(l.pending)
}

// publish persists an alert and hands it to the notification sink. A
// storage failure does not block notification.
func (l *Loop) publish(ctx context.Context, a *types.Alert, result *TickResult) {
	result.Alerts = append(result.Alerts, a)

	if l.cfg.Store != nil {
		err := l.cfg.Store.SaveAlert(ctx, a)
		if err != nil {
			PersistenceErrorsTotal.WithLabelValues("alert").Inc()
			l.logger.Error("alert-persist-failed", zap.String("alert-id", a.ID), zap.Error(err))
		}
	}

	if l.cfg.Sink != nil {
		l.cfg.Sink.Submit(a)
	}
}

// Market returns an active market by id.
func (l *Loop) Market(id string) (types.Market, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.markets[id]
	return m, ok
}

// Markets returns the active markets ordered by id.
func (l *Loop) Markets() []types.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Market, 0, len(l.markets))
	for _, m := range l.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// LastTick returns when the last tick completed, zero before the first.
func (l *Loop) LastTick() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastTick
}
