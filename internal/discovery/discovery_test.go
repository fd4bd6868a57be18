package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/mselser95/polymarket-surveillance/internal/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	client := NewClient("https://gamma-api.polymarket.com", nil, logger)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid", cfg: &Config{Client: client, MarketLimit: 500, Logger: logger}},
		{name: "nil-config", cfg: nil, wantErr: true},
		{name: "nil-logger", cfg: &Config{Client: client}, wantErr: true},
		{name: "nil-client", cfg: &Config{Logger: logger}, wantErr: true},
		{name: "negative-limit", cfg: &Config{Client: client, MarketLimit: -1, Logger: logger}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && svc.resolvedLimit != defaultResolvedLimit {
				t.Errorf("expected default resolved limit %d, got %d", defaultResolvedLimit, svc.resolvedLimit)
			}
		})
	}
}

func TestService_FetchMarkets(t *testing.T) {
	api := testutil.NewMockGammaAPI([]testutil.GammaMarket{
		testutil.CreateGammaMarket("0xfed", "Will the Fed cut rates in January 2025?", 0.3),
		testutil.CreateGammaMarket("", "Missing condition id", 0.5),
		testutil.CreateGammaMarket("0xbtc", "Will Bitcoin reach $100k?", 0.62),
	}, nil)
	defer api.Close()

	mc := testutil.NewMapCache()
	svc, err := New(&Config{
		Client:      NewClient(api.URL, nil, zap.NewNop()),
		Cache:       mc,
		MarketLimit: 50,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	markets, err := svc.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(markets) != 2 {
		t.Fatalf("expected 2 valid markets, got %d", len(markets))
	}
	if markets[0].ID != "0xfed" || markets[0].Title != "Will the Fed cut rates in January 2025?" {
		t.Errorf("unexpected first market %+v", markets[0])
	}
	if price, ok := markets[1].OutcomePrice("yes"); !ok || price != 0.62 {
		t.Errorf("expected Yes price 0.62, got %v (found=%v)", price, ok)
	}
	if markets[0].Outcomes[0].TokenID != "0xfed-yes" {
		t.Errorf("expected token id 0xfed-yes, got %q", markets[0].Outcomes[0].TokenID)
	}

	cached, ok := svc.GetMarket("0xbtc")
	if !ok {
		t.Fatal("expected market to be cached")
	}
	if cached.Title != "Will Bitcoin reach $100k?" {
		t.Errorf("unexpected cached title %q", cached.Title)
	}
	if _, ok := svc.GetMarket("0xunknown"); ok {
		t.Error("expected cache miss for unknown market")
	}
}

func TestService_FetchResolved(t *testing.T) {
	api := testutil.NewMockGammaAPI(nil, []testutil.GammaMarket{
		testutil.CreateResolvedGammaMarket("0xdone", "Will it snow in Miami?", "No"),
	})
	defer api.Close()

	svc, err := New(&Config{
		Client: NewClient(api.URL, nil, zap.NewNop()),
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	markets, err := svc.FetchResolved(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("expected 1 closed market, got %d", len(markets))
	}
	winner, ok := markets[0].Resolution()
	if !ok || winner != "No" {
		t.Errorf("expected resolution No, got %q (ok=%v)", winner, ok)
	}
}

func TestService_FetchMarkets_APIError(t *testing.T) {
	api := testutil.NewMockGammaAPI(nil, nil)
	defer api.Close()
	api.SetFailing(true)

	svc, _ := New(&Config{
		Client: NewClient(api.URL, nil, zap.NewNop()),
		Logger: zap.NewNop(),
	})

	_, err := svc.FetchMarkets(context.Background())
	if err == nil {
		t.Fatal("expected error when the API fails")
	}
}

func TestClient_Pagination(t *testing.T) {
	tests := []struct {
		name         string
		available    int
		limit        int
		wantMarkets  int
		wantRequests int
	}{
		{name: "single-page", available: 300, limit: 50, wantMarkets: 50, wantRequests: 1},
		{name: "exact-batches", available: 300, limit: 200, wantMarkets: 200, wantRequests: 2},
		{name: "partial-last-page", available: 300, limit: 250, wantMarkets: 250, wantRequests: 3},
		{name: "fetch-all", available: 250, limit: 0, wantMarkets: 250, wantRequests: 3},
		{name: "fewer-than-requested", available: 120, limit: 500, wantMarkets: 120, wantRequests: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
				offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
				if limit > MaxBatchSize {
					t.Errorf("page limit %d exceeds batch size", limit)
				}

				var body []byte
				body = append(body, '[')
				for i := offset; i < offset+limit && i < tt.available; i++ {
					if i > offset {
						body = append(body, ',')
					}
					body = append(body, fmt.Sprintf(`{"id":"%d","conditionId":"0x%d","question":"Q%d"}`, i, i, i)...)
				}
				body = append(body, ']')
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(body)
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, zap.NewNop())
			resp, err := client.FetchMarkets(context.Background(), MarketQuery{Limit: tt.limit, Order: "volume24hr"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Count != tt.wantMarkets {
				t.Errorf("expected %d markets, got %d", tt.wantMarkets, resp.Count)
			}
			if requests != tt.wantRequests {
				t.Errorf("expected %d requests, got %d", tt.wantRequests, requests)
			}
			if resp.Data[len(resp.Data)-1].ID != fmt.Sprintf("0x%d", tt.wantMarkets-1) {
				t.Errorf("unexpected last market %q", resp.Data[len(resp.Data)-1].ID)
			}
		})
	}
}

func TestClient_QueryParameters(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"closed":    r.URL.Query().Get("closed"),
			"active":    r.URL.Query().Get("active"),
			"order":     r.URL.Query().Get("order"),
			"ascending": r.URL.Query().Get("ascending"),
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zap.NewNop())
	_, err := client.FetchMarkets(context.Background(), MarketQuery{Closed: true, Limit: 10, Order: "closedTime"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if query["closed"] != "true" {
		t.Errorf("expected closed=true, got %q", query["closed"])
	}
	if query["active"] != "" {
		t.Errorf("expected no active filter for closed listing, got %q", query["active"])
	}
	if query["order"] != "closedTime" || query["ascending"] != "false" {
		t.Errorf("unexpected ordering %q ascending=%q", query["order"], query["ascending"])
	}
}

func TestClient_RateLimiterCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer server.Close()

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	limiter.Allow() // drain the only token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, limiter, zap.NewNop())
	_, err := client.FetchMarkets(ctx, MarketQuery{Limit: 10})
	if err == nil {
		t.Fatal("expected error when context is cancelled")
	}
}
