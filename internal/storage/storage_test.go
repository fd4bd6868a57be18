package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*ConsoleStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testTrade(hash string, wallet string, market string, size float64, at time.Time) *types.Trade {
	return &types.Trade{
		TxHash:        hash,
		WalletAddress: wallet,
		MarketID:      market,
		MarketTitle:   "Market " + market,
		Side:          types.SideBuy,
		Outcome:       "Yes",
		Price:         0.42,
		SizeUSD:       size,
		Timestamp:     at,
	}
}

func testAlert(id string, sev types.Severity, kind types.AlertKind, wallet string, market string, at time.Time) *types.Alert {
	return &types.Alert{
		ID:            id,
		Severity:      sev,
		Kind:          kind,
		MarketID:      market,
		MarketTitle:   "Market " + market,
		WalletAddress: wallet,
		Reasons:       []string{"Huge $75,000 bet"},
		Evidence:      types.Evidence{TradeSizeUSD: 75000, Side: types.SideBuy, Outcome: "Yes", Price: 0.42},
		CreatedAt:     at,
	}
}

func TestMemoryStorage_SaveTradeIgnoresDuplicates(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	first := testTrade("0x1", "0xaaa", "m1", 100, base)
	dup := testTrade("0x1", "0xaaa", "m1", 999, base)

	if err := storage.SaveTrade(ctx, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := storage.SaveTrade(ctx, dup); err != nil {
		t.Fatalf("expected no error on duplicate, got %v", err)
	}

	trades, _ := storage.Trades(ctx, TradeQuery{})
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SizeUSD != 100 {
		t.Errorf("expected first write to win, got size %v", trades[0].SizeUSD)
	}
}

func TestMemoryStorage_TradesQuery(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_ = storage.SaveTrade(ctx, testTrade("0x1", "0xaaa", "m1", 100, base))
	_ = storage.SaveTrade(ctx, testTrade("0x2", "0xaaa", "m2", 200, base.Add(time.Minute)))
	_ = storage.SaveTrade(ctx, testTrade("0x3", "0xbbb", "m1", 300, base.Add(2*time.Minute)))

	tests := []struct {
		name   string
		query  TradeQuery
		hashes []string
	}{
		{name: "all-newest-first", query: TradeQuery{}, hashes: []string{"0x3", "0x2", "0x1"}},
		{name: "by-wallet", query: TradeQuery{Wallet: "0xaaa"}, hashes: []string{"0x2", "0x1"}},
		{name: "by-market", query: TradeQuery{MarketID: "m1"}, hashes: []string{"0x3", "0x1"}},
		{name: "since", query: TradeQuery{Since: base.Add(time.Minute)}, hashes: []string{"0x3", "0x2"}},
		{name: "until", query: TradeQuery{Until: base}, hashes: []string{"0x1"}},
		{name: "limit", query: TradeQuery{Limit: 1}, hashes: []string{"0x3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades, err := storage.Trades(ctx, tt.query)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(trades) != len(tt.hashes) {
				t.Fatalf("expected %d trades, got %d", len(tt.hashes), len(trades))
			}
			for i, hash := range tt.hashes {
				if trades[i].TxHash != hash {
					t.Errorf("position %d: expected %s, got %s", i, hash, trades[i].TxHash)
				}
			}
		})
	}
}

func TestMemoryStorage_Alerts(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_ = storage.SaveAlert(ctx, testAlert("a1", types.SeverityLow, types.KindNewsMatch, "", "m1", base))
	_ = storage.SaveAlert(ctx, testAlert("a2", types.SeverityHigh, types.KindVeryLargeBet, "0xaaa", "m1", base.Add(time.Minute)))
	_ = storage.SaveAlert(ctx, testAlert("a3", types.SeverityCritical, types.KindHugeBet, "0xaaa", "m2", base.Add(2*time.Minute)))

	t.Run("min-severity", func(t *testing.T) {
		alerts, _ := storage.Alerts(ctx, AlertQuery{MinSeverity: types.SeverityHigh})
		if len(alerts) != 2 || alerts[0].ID != "a3" || alerts[1].ID != "a2" {
			t.Errorf("unexpected alerts %v", alertIDs(alerts))
		}
	})

	t.Run("kind-and-market", func(t *testing.T) {
		alerts, _ := storage.Alerts(ctx, AlertQuery{Kind: types.KindVeryLargeBet, MarketID: "m1"})
		if len(alerts) != 1 || alerts[0].ID != "a2" {
			t.Errorf("unexpected alerts %v", alertIDs(alerts))
		}
	})

	t.Run("undelivered", func(t *testing.T) {
		if err := storage.MarkAlertDelivered(ctx, "a1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		alerts, _ := storage.Alerts(ctx, AlertQuery{Undelivered: true})
		if len(alerts) != 2 {
			t.Errorf("expected 2 undelivered alerts, got %v", alertIDs(alerts))
		}
	})

	t.Run("mark-unknown", func(t *testing.T) {
		err := storage.MarkAlertDelivered(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid-alert-rejected", func(t *testing.T) {
		bad := testAlert("", types.SeverityLow, types.KindNewsMatch, "", "m1", base)
		if err := storage.SaveAlert(ctx, bad); err == nil {
			t.Error("expected error for alert without id")
		}
	})
}

func alertIDs(alerts []types.Alert) []string {
	ids := make([]string, len(alerts))
	for i := range alerts {
		ids[i] = alerts[i].ID
	}
	return ids
}

func TestMemoryStorage_AlertStats(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_ = storage.SaveAlert(ctx, testAlert("old", types.SeverityHigh, types.KindHugeBet, "0xccc", "m9", base.Add(-48*time.Hour)))
	_ = storage.SaveAlert(ctx, testAlert("a1", types.SeverityMedium, types.KindLargeBet, "0xaaa", "m1", base))
	_ = storage.SaveAlert(ctx, testAlert("a2", types.SeverityHigh, types.KindVeryLargeBet, "0xaaa", "m2", base))
	_ = storage.SaveAlert(ctx, testAlert("a3", types.SeverityHigh, types.KindVeryLargeBet, "0xbbb", "m1", base))
	_ = storage.SaveAlert(ctx, testAlert("a4", types.SeverityLow, types.KindNewsMatch, "", "m1", base))

	stats, err := storage.AlertStats(ctx, base.Add(-time.Hour), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("expected 4 alerts, got %d", stats.Total)
	}
	if stats.BySeverity["HIGH"] != 2 || stats.BySeverity["LOW"] != 1 {
		t.Errorf("unexpected severity counts %v", stats.BySeverity)
	}
	if stats.ByKind["VERY_LARGE_BET"] != 2 {
		t.Errorf("unexpected kind counts %v", stats.ByKind)
	}
	if len(stats.TopWallets) != 1 || stats.TopWallets[0].Key != "0xaaa" || stats.TopWallets[0].Count != 2 {
		t.Errorf("unexpected top wallets %v", stats.TopWallets)
	}
	if len(stats.TopMarkets) != 1 || stats.TopMarkets[0].Key != "m1" || stats.TopMarkets[0].Label != "Market m1" {
		t.Errorf("unexpected top markets %v", stats.TopMarkets)
	}
}

func TestMemoryStorage_SnapshotsAndPrices(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_, err := storage.WalletSnapshot(ctx, "0xaaa")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = storage.SaveWalletSnapshots(ctx, []types.WalletSnapshot{
		{Address: "0xbbb", TradeCount: 1},
		{Address: "0xaaa", TradeCount: 1},
	})
	_ = storage.SaveWalletSnapshots(ctx, []types.WalletSnapshot{{Address: "0xaaa", TradeCount: 5}})

	snap, err := storage.WalletSnapshot(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snap.TradeCount != 5 {
		t.Errorf("expected latest snapshot to replace, got %d trades", snap.TradeCount)
	}

	all, _ := storage.WalletSnapshots(ctx)
	if len(all) != 2 || all[0].Address != "0xaaa" {
		t.Errorf("unexpected snapshots %v", all)
	}

	_ = storage.SavePricePoints(ctx, []types.PricePoint{
		{MarketID: "m1", Outcome: "Yes", Price: 0.5, Timestamp: base.Add(time.Minute)},
		{MarketID: "m1", Outcome: "Yes", Price: 0.4, Timestamp: base},
		{MarketID: "m1", Outcome: "Yes", Price: 0.4, Timestamp: base},
	})

	points, _ := storage.PricePoints(ctx, time.Time{})
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Price != 0.4 {
		t.Errorf("expected oldest first, got %v", points[0].Price)
	}
}

func TestMemoryStorage_ActiveWallets(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_ = storage.SaveTrade(ctx, testTrade("0x1", "0xaaa", "m1", 100, base))
	_ = storage.SaveTrade(ctx, testTrade("0x2", "0xaaa", "m2", 200, base))
	_ = storage.SaveTrade(ctx, testTrade("0x3", "0xbbb", "m1", 300, base))
	_ = storage.SaveTrade(ctx, testTrade("0x4", "0xbbb", "m1", 300, base.Add(-48*time.Hour)))

	wallets, err := storage.ActiveWallets(ctx, base.Add(-time.Hour), 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("expected 1 wallet, got %v", wallets)
	}
	if wallets[0].Address != "0xaaa" || wallets[0].VolumeUSD != 300 || wallets[0].Markets != 2 {
		t.Errorf("unexpected activity %+v", wallets[0])
	}
}

func TestMemoryStorage_Prune(t *testing.T) {
	storage := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	_ = storage.SaveTrade(ctx, testTrade("0x1", "0xaaa", "m1", 100, base.Add(-72*time.Hour)))
	_ = storage.SaveTrade(ctx, testTrade("0x2", "0xaaa", "m1", 100, base))
	_ = storage.SaveAlert(ctx, testAlert("a1", types.SeverityLow, types.KindNewsMatch, "", "m1", base.Add(-72*time.Hour)))
	_ = storage.SavePricePoints(ctx, []types.PricePoint{
		{MarketID: "m1", Outcome: "Yes", Price: 0.5, Timestamp: base.Add(-72 * time.Hour)},
	})

	result, err := storage.Prune(ctx, PruneCutoffs{Trades: base.Add(-time.Hour), Alerts: base.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Trades != 1 || result.Alerts != 1 || result.Prices != 0 {
		t.Errorf("unexpected prune result %+v", result)
	}

	points, _ := storage.PricePoints(ctx, time.Time{})
	if len(points) != 1 {
		t.Errorf("expected zero cutoff to keep prices, got %d", len(points))
	}
}

func TestConsoleStorage_SaveAlert(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop())
	var buf bytes.Buffer
	storage.out = &buf

	alert := testAlert("a1", types.SeverityCritical, types.KindHugeBet, "0xaaa", "m1", base)
	alert.Evidence.WalletAgeHours = types.Float64Ptr(3)

	err := storage.SaveAlert(context.Background(), alert)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	output := buf.String()
	for _, want := range []string{"CRITICAL ALERT - HUGE_BET", "Market m1", "0xaaa", "for $75,000", "Huge $75,000 bet", "3.0h"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}

	alerts, _ := storage.Alerts(context.Background(), AlertQuery{})
	if len(alerts) != 1 {
		t.Errorf("expected alert to be kept in memory, got %d", len(alerts))
	}
}

func TestConsoleStorage_Close(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop())

	err := storage.Close()
	if err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &PostgresStorage{db: db, logger: zap.NewNop()}, mock
}

func TestPostgresStorage_SaveTrade(t *testing.T) {
	storage, mock := newMockStorage(t)
	trade := testTrade("0x1", "0xaaa", "m1", 100, base)

	mock.ExpectExec("INSERT INTO trades").
		WithArgs(
			trade.TxHash,
			trade.WalletAddress,
			trade.MarketID,
			trade.MarketTitle,
			"BUY",
			trade.Outcome,
			trade.Price,
			trade.SizeUSD,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := storage.SaveTrade(context.Background(), trade)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SaveTrade_Error(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO trades").WillReturnError(sqlmock.ErrCancelled)

	err := storage.SaveTrade(context.Background(), testTrade("0x1", "0xaaa", "m1", 100, base))
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestPostgresStorage_SaveAlert(t *testing.T) {
	storage, mock := newMockStorage(t)
	alert := testAlert("a1", types.SeverityHigh, types.KindVeryLargeBet, "0xaaa", "m1", base)

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(
			"a1",
			3,
			"VERY_LARGE_BET",
			"m1",
			"Market m1",
			"0xaaa",
			"",
			"",
			sqlmock.AnyArg(), // reasons
			sqlmock.AnyArg(), // evidence
			sqlmock.AnyArg(),
			false,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := storage.SaveAlert(context.Background(), alert)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SaveAlert_Invalid(t *testing.T) {
	storage, mock := newMockStorage(t)

	alert := testAlert("a1", types.Severity(0), types.KindLargeBet, "", "m1", base)
	err := storage.SaveAlert(context.Background(), alert)
	if err == nil {
		t.Error("expected validation error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no queries, got %v", err)
	}
}

func TestPostgresStorage_MarkAlertDelivered(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectExec("UPDATE alerts SET delivered").
			WithArgs("a1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := storage.MarkAlertDelivered(context.Background(), "a1"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectExec("UPDATE alerts SET delivered").
			WithArgs("nope").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := storage.MarkAlertDelivered(context.Background(), "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPostgresStorage_SaveWalletSnapshots(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO wallet_snapshots")
	prep.ExpectExec().WithArgs("0xaaa", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("0xbbb", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := storage.SaveWalletSnapshots(context.Background(), []types.WalletSnapshot{
		{Address: "0xaaa", ComputedAt: base},
		{Address: "0xbbb", ComputedAt: base},
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SaveWalletSnapshots_RollsBack(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO wallet_snapshots")
	prep.ExpectExec().WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err := storage.SaveWalletSnapshots(context.Background(), []types.WalletSnapshot{{Address: "0xaaa"}})
	if err == nil {
		t.Error("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_Alerts(t *testing.T) {
	storage, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{
		"id", "severity", "kind", "market_id", "market_title", "wallet_address",
		"trade_ref", "signal_ref", "reasons", "evidence", "created_at", "delivered",
	}).AddRow(
		"a1", 4, "HUGE_BET", "m1", "Market m1", "0xaaa", "0xtx", "",
		[]byte(`["Huge $75,000 bet"]`), []byte(`{"trade_size_usd":75000}`), base, false,
	)

	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE severity").
		WithArgs(3, 10).
		WillReturnRows(rows)

	alerts, err := storage.Alerts(context.Background(), AlertQuery{MinSeverity: types.SeverityHigh, Limit: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	got := alerts[0]
	if got.Severity != types.SeverityCritical || got.Kind != types.KindHugeBet {
		t.Errorf("unexpected severity/kind %v/%v", got.Severity, got.Kind)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "Huge $75,000 bet" {
		t.Errorf("unexpected reasons %v", got.Reasons)
	}
	if got.Evidence.TradeSizeUSD != 75000 {
		t.Errorf("unexpected evidence %+v", got.Evidence)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_WalletSnapshot(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectQuery("SELECT snapshot FROM wallet_snapshots").
			WithArgs("0xaaa").
			WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).
				AddRow([]byte(`{"address":"0xaaa","trade_count":7,"resolved_markets":2,"winning_markets":1}`)))

		snap, err := storage.WalletSnapshot(context.Background(), "0xaaa")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snap.TradeCount != 7 {
			t.Errorf("expected 7 trades, got %d", snap.TradeCount)
		}
		if rate, ok := snap.WinRate(); !ok || rate != 0.5 {
			t.Errorf("expected win rate 0.5, got %v (%v)", rate, ok)
		}
	})

	t.Run("missing", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectQuery("SELECT snapshot FROM wallet_snapshots").
			WithArgs("0xbbb").
			WillReturnRows(sqlmock.NewRows([]string{"snapshot"}))

		_, err := storage.WalletSnapshot(context.Background(), "0xbbb")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPostgresStorage_Prune(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("DELETE FROM trades").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM price_points").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 5))

	result, err := storage.Prune(context.Background(), PruneCutoffs{Trades: base, Prices: base})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Trades != 3 || result.Alerts != 0 || result.Prices != 5 {
		t.Errorf("unexpected prune result %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_Close(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectClose()

	err := storage.Close()
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		Database: "surveillance",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=postgres password=secret dbname=surveillance sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNewPostgresStorage_Validation(t *testing.T) {
	_, err := NewPostgresStorage(nil)
	if err == nil {
		t.Error("expected error for nil config")
	}

	_, err = NewPostgresStorage(&PostgresConfig{})
	if err == nil {
		t.Error("expected error for nil logger")
	}
}
