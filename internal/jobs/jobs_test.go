package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/ledger"
	"github.com/mselser95/polymarket-surveillance/internal/pricehistory"
	"github.com/mselser95/polymarket-surveillance/internal/reaction"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/internal/testutil"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

const (
	walletA = "0x1111111111111111111111111111111111111111"
	walletB = "0x2222222222222222222222222222222222222222"
	walletC = "0x3333333333333333333333333333333333333333"
)

type fakeHistory struct {
	mu        sync.Mutex
	histories map[string]*types.WalletHistory
	calls     int
}

func (f *fakeHistory) History(ctx context.Context, address string) (*types.WalletHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	h, ok := f.histories[address]
	if !ok {
		return nil, errors.New("history unavailable")
	}
	return h, nil
}

func positions(won int, lost int) []types.ResolvedPosition {
	var out []types.ResolvedPosition
	for i := 0; i < won; i++ {
		out = append(out, types.ResolvedPosition{MarketID: fmt.Sprintf("won-%d", i), Won: true})
	}
	for i := 0; i < lost; i++ {
		out = append(out, types.ResolvedPosition{MarketID: fmt.Sprintf("lost-%d", i)})
	}
	return out
}

type harness struct {
	store     *storage.MemoryStorage
	ledger    *ledger.Ledger
	prices    *pricehistory.Tracker
	reactions *reaction.Detector
	history   *fakeHistory
	scheduler *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	clock := func() time.Time { return now }

	h := &harness{
		store:   storage.NewMemoryStorage(logger),
		history: &fakeHistory{histories: map[string]*types.WalletHistory{}},
	}

	var err error
	h.ledger, err = ledger.New(&ledger.Config{Now: clock, Logger: logger})
	require.NoError(t, err)
	h.prices, err = pricehistory.New(&pricehistory.Config{Retention: 24 * time.Hour, Logger: logger})
	require.NoError(t, err)
	h.reactions, err = reaction.New(&reaction.Config{
		Wallets:     h.ledger,
		HighWinRate: 0.65,
		MinTrades:   10,
		Retention:   48 * time.Hour,
		Logger:      logger,
	})
	require.NoError(t, err)

	h.scheduler, err = New(&Config{
		Storage:           h.store,
		Ledger:            h.ledger,
		Prices:            h.prices,
		Reactions:         h.reactions,
		History:           h.history,
		RetentionTrades:   90 * 24 * time.Hour,
		RetentionAlerts:   30 * 24 * time.Hour,
		RetentionPrices:   7 * 24 * time.Hour,
		ReactionRetention: time.Hour,
		RetentionSchedule: "@every 1h",
		SnapshotSchedule:  "@every 5m",
		ReportSchedule:    "0 0 9 * * *",
		Now:               clock,
		Logger:            logger,
	})
	require.NoError(t, err)

	return h
}

func TestNew_Validation(t *testing.T) {
	logger := zap.NewNop()
	store := storage.NewMemoryStorage(logger)
	l, err := ledger.New(&ledger.Config{Logger: logger})
	require.NoError(t, err)
	p, err := pricehistory.New(&pricehistory.Config{Retention: time.Hour, Logger: logger})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil-config", cfg: nil, wantErr: "config cannot be nil"},
		{name: "nil-logger", cfg: &Config{Storage: store, Ledger: l, Prices: p}, wantErr: "logger cannot be nil"},
		{name: "nil-storage", cfg: &Config{Ledger: l, Prices: p, Logger: logger}, wantErr: "storage cannot be nil"},
		{name: "nil-ledger", cfg: &Config{Storage: store, Prices: p, Logger: logger}, wantErr: "ledger and price tracker"},
		{
			name:    "bad-schedule",
			cfg:     &Config{Storage: store, Ledger: l, Prices: p, RetentionSchedule: "whenever", Logger: logger},
			wantErr: "schedule retention job",
		},
		{
			name: "report-without-history-skipped",
			cfg:  &Config{Storage: store, Ledger: l, Prices: p, ReportSchedule: "@daily", Logger: logger},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, s.cron.Entries())
		})
	}
}

func TestScheduler_RegistersJobs(t *testing.T) {
	h := newHarness(t)
	assert.Len(t, h.scheduler.cron.Entries(), 3)

	h.scheduler.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.scheduler.Stop(ctx))
}

func TestScheduler_Prune(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	oldTrade := testutil.CreateTestTrade("0xold", walletA, "m1", 100, now.Add(-100*24*time.Hour))
	newTrade := testutil.CreateTestTrade("0xnew", walletA, "m1", 100, now.Add(-time.Hour))
	require.NoError(t, h.store.SaveTrade(ctx, &oldTrade))
	require.NoError(t, h.store.SaveTrade(ctx, &newTrade))

	oldAlert := &types.Alert{
		ID:        "alert-old",
		Severity:  types.SeverityLow,
		Kind:      types.KindLargeBet,
		MarketID:  "m1",
		CreatedAt: now.Add(-31 * 24 * time.Hour),
	}
	require.NoError(t, h.store.SaveAlert(ctx, oldAlert))

	require.NoError(t, h.store.SavePricePoints(ctx, []types.PricePoint{
		{MarketID: "m1", Outcome: "Yes", Price: 0.4, Timestamp: now.Add(-8 * 24 * time.Hour)},
		{MarketID: "m1", Outcome: "Yes", Price: 0.5, Timestamp: now.Add(-time.Hour)},
	}))

	stale := testutil.CreateTestTrade("0xr1", walletB, "m2", 50, now.Add(-3*time.Hour))
	fresh := testutil.CreateTestTrade("0xr2", walletB, "m2", 50, now.Add(-10*time.Minute))
	h.reactions.Record(&stale)
	h.reactions.Record(&fresh)

	result, err := h.scheduler.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Trades)
	assert.Equal(t, int64(1), result.Alerts)
	assert.Equal(t, int64(1), result.Prices)

	trades, err := h.store.Trades(ctx, storage.TradeQuery{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "0xnew", trades[0].TxHash)

	r := h.reactions.Reaction("m2", now.Add(-4*time.Hour), 5*time.Hour)
	assert.Equal(t, 1, r.TradeCount, "reaction trades past retention are dropped")
}

func TestScheduler_Snapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trade := testutil.CreateTestTrade("0x1", walletA, "m1", 2500, now.Add(-time.Hour))
	_, err := h.ledger.RecordTrade(&trade)
	require.NoError(t, err)
	require.NoError(t, h.prices.RecordPrice("m1", "Yes", 0.42, now.Add(-time.Hour)))
	require.NoError(t, h.prices.RecordPrice("m1", "Yes", 0.45, now.Add(-30*time.Minute)))

	require.NoError(t, h.scheduler.Snapshot(ctx))

	snap, err := h.store.WalletSnapshot(ctx, walletA)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TradeCount)
	assert.Equal(t, 2500.0, snap.TotalVolumeUSD)

	points, err := h.store.PricePoints(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 2)

	restored, err := ledger.New(&ledger.Config{Logger: zap.NewNop()})
	require.NoError(t, err)
	all, err := h.store.WalletSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Restore(all))
	assert.True(t, restored.Known(walletA))
}

func TestScheduler_SnapshotEmpty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.scheduler.Snapshot(context.Background()))

	all, err := h.store.WalletSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func saveTrades(t *testing.T, store storage.Storage, wallet string, n int, size float64, age time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		trade := testutil.CreateTestTrade(fmt.Sprintf("%s-%d-%d", wallet[:6], int(age.Hours()), i), wallet, fmt.Sprintf("m%d", i%3), size, now.Add(-age))
		require.NoError(t, store.SaveTrade(context.Background(), &trade))
	}
}

func TestTopPerformers(t *testing.T) {
	h := newHarness(t)

	saveTrades(t, h.store, walletA, 12, 1000, 24*time.Hour)
	saveTrades(t, h.store, walletB, 15, 500, 48*time.Hour)
	// walletC has too few trades inside the lookback
	saveTrades(t, h.store, walletC, 9, 5000, 24*time.Hour)
	saveTrades(t, h.store, walletC, 20, 5000, 10*24*time.Hour)

	h.history.histories[walletA] = &types.WalletHistory{Address: walletA, VolumeUSD: 90000, ResolvedPositions: positions(8, 2)}
	// exactly 0.6 is not above the threshold
	h.history.histories[walletB] = &types.WalletHistory{Address: walletB, ResolvedPositions: positions(6, 4)}
	h.history.histories[walletC] = &types.WalletHistory{Address: walletC, ResolvedPositions: positions(10, 0)}

	performers, err := h.scheduler.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, performers, 1)

	p := performers[0]
	assert.Equal(t, walletA, p.Address)
	assert.Equal(t, 12, p.RecentTrades)
	assert.Equal(t, 12000.0, p.RecentVolumeUSD)
	assert.Equal(t, 3, p.RecentMarkets)
	assert.InDelta(t, 0.8, p.WinRate, 1e-9)
	assert.Equal(t, 90000.0, p.TotalVolumeUSD)
	assert.Equal(t, 2, h.history.calls, "only active wallets are looked up")
}

func TestTopPerformers_Ordering(t *testing.T) {
	h := newHarness(t)

	saveTrades(t, h.store, walletA, 10, 100, time.Hour)
	saveTrades(t, h.store, walletB, 10, 900, time.Hour)
	saveTrades(t, h.store, walletC, 10, 500, time.Hour)

	h.history.histories[walletA] = &types.WalletHistory{ResolvedPositions: positions(9, 1)}
	h.history.histories[walletB] = &types.WalletHistory{ResolvedPositions: positions(7, 3)}
	h.history.histories[walletC] = &types.WalletHistory{ResolvedPositions: positions(7, 3)}

	performers, err := TopPerformers(context.Background(), h.store, h.history, ReportQuery{Limit: 2}, now, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, performers, 2)
	assert.Equal(t, walletA, performers[0].Address, "best win rate first")
	assert.Equal(t, walletB, performers[1].Address, "ties broken by recent volume")
}

func TestTopPerformers_HistoryFailureSkipsWallet(t *testing.T) {
	h := newHarness(t)
	saveTrades(t, h.store, walletA, 10, 100, time.Hour)

	performers, err := TopPerformers(context.Background(), h.store, h.history, ReportQuery{}, now, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, performers)
}
