package wallet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid_config",
			cfg:     &Config{BaseURL: "https://data-api.polymarket.com", Logger: logger},
			wantErr: false,
		},
		{
			name:    "nil_config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "empty_base_url",
			cfg:     &Config{Logger: logger},
			wantErr: true,
		},
		{
			name:    "nil_logger",
			cfg:     &Config{BaseURL: "https://data-api.polymarket.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && client.httpClient == nil {
				t.Error("NewClient() httpClient is nil")
			}
		})
	}
}

func newDataAPIServer(t *testing.T, activity string, positions string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user") != testWallet {
			t.Errorf("user = %q, want %q", r.URL.Query().Get("user"), testWallet)
		}
		if r.URL.Query().Get("limit") != "500" {
			t.Errorf("limit = %q, want 500", r.URL.Query().Get("limit"))
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/activity":
			if r.URL.Query().Get("type") != "TRADE" {
				t.Errorf("type = %q, want TRADE", r.URL.Query().Get("type"))
			}
			_, _ = w.Write([]byte(activity))
		case "/positions":
			_, _ = w.Write([]byte(positions))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_History(t *testing.T) {
	activity := `[
		{"proxyWallet":"0x1111111111111111111111111111111111111111","timestamp":1736500000,"conditionId":"m1","type":"TRADE","usdcSize":1200},
		{"proxyWallet":"0x1111111111111111111111111111111111111111","timestamp":1736400000,"conditionId":"m2","type":"TRADE","size":1000,"price":0.4},
		{"proxyWallet":"0x1111111111111111111111111111111111111111","timestamp":1736450000,"conditionId":"m1","type":"TRADE","usdcSize":300}
	]`
	positions := `[
		{"conditionId":"m1","outcome":"Yes","redeemable":true,"cashPnl":250},
		{"conditionId":"m2","outcome":"No","redeemable":true,"cashPnl":-400},
		{"conditionId":"m3","outcome":"Yes","redeemable":false,"cashPnl":90}
	]`

	server := newDataAPIServer(t, activity, positions)
	defer server.Close()

	client, err := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	history, err := client.History(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}

	if history.TradeCount != 3 {
		t.Errorf("TradeCount = %d, want 3", history.TradeCount)
	}
	if history.VolumeUSD != 1900 {
		t.Errorf("VolumeUSD = %v, want 1900", history.VolumeUSD)
	}
	if history.LargestTradeUSD != 1200 {
		t.Errorf("LargestTradeUSD = %v, want 1200", history.LargestTradeUSD)
	}
	if history.FirstTradeAt.Unix() != 1736400000 {
		t.Errorf("FirstTradeAt = %v", history.FirstTradeAt)
	}
	if len(history.Markets) != 2 || history.Markets[0] != "m1" {
		t.Errorf("Markets = %v, want [m1 m2]", history.Markets)
	}

	want := []types.ResolvedPosition{{MarketID: "m1", Won: true}, {MarketID: "m2", Won: false}}
	if len(history.ResolvedPositions) != len(want) {
		t.Fatalf("ResolvedPositions = %v, want %v", history.ResolvedPositions, want)
	}
	for i := range want {
		if history.ResolvedPositions[i] != want[i] {
			t.Errorf("ResolvedPositions[%d] = %v, want %v", i, history.ResolvedPositions[i], want[i])
		}
	}
}

func TestClient_History_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(&Config{BaseURL: server.URL, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	_, err = client.History(context.Background(), testWallet)
	if err == nil {
		t.Error("Expected error for 429 response, got nil")
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	client, err := NewClient(&Config{BaseURL: "http://127.0.0.1:1", Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.GetPositions(ctx, testWallet)
	if err == nil {
		t.Error("Expected error with cancelled context, got nil")
	}
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) History(_ context.Context, address string) (*types.WalletHistory, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &types.WalletHistory{Address: address, TradeCount: 7}, nil
}

func TestCachedClient(t *testing.T) {
	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "wallet-history",
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()
	rc := c.(*cache.RistrettoCache)

	t.Run("second-call-served-from-cache", func(t *testing.T) {
		fetcher := &countingFetcher{}
		cached := NewCachedClient(fetcher, c, time.Hour)

		_, err := cached.History(context.Background(), testWallet)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		rc.Wait()

		history, err := cached.History(context.Background(), testWallet)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if history.TradeCount != 7 {
			t.Errorf("TradeCount = %d, want 7", history.TradeCount)
		}
		if fetcher.calls.Load() != 1 {
			t.Errorf("fetcher calls = %d, want 1", fetcher.calls.Load())
		}

		cached.Invalidate(testWallet)
		_, _ = cached.History(context.Background(), testWallet)
		if fetcher.calls.Load() != 2 {
			t.Errorf("fetcher calls after invalidate = %d, want 2", fetcher.calls.Load())
		}
	})

	t.Run("errors-not-cached", func(t *testing.T) {
		fetcher := &countingFetcher{err: errors.New("down")}
		cached := NewCachedClient(fetcher, nil, time.Hour)

		_, err := cached.History(context.Background(), testWallet)
		if err == nil {
			t.Fatal("expected error")
		}
		_, _ = cached.History(context.Background(), testWallet)
		if fetcher.calls.Load() != 2 {
			t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
		}
	})
}
