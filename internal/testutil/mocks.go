package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// MockGammaAPI is a mock HTTP server that simulates the Gamma /markets
// listing, honouring the closed, limit and offset parameters.
type MockGammaAPI struct {
	*httptest.Server
	mu       sync.RWMutex
	active   []GammaMarket
	closed   []GammaMarket
	requests int
	fail     bool
}

// NewMockGammaAPI creates a new mock Gamma API server.
func NewMockGammaAPI(active []GammaMarket, closed []GammaMarket) *MockGammaAPI {
	mock := &MockGammaAPI{active: active, closed: closed}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests++
		fail := mock.fail
		markets := mock.active
		if r.URL.Query().Get("closed") == "true" {
			markets = mock.closed
		}
		mock.mu.Unlock()

		if fail {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}

		writeJSON(w, page(markets, r))
	}))

	return mock
}

// SetFailing makes every request return 503.
func (m *MockGammaAPI) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Requests returns the number of requests served.
func (m *MockGammaAPI) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests
}

// MockDataAPI simulates the Data API /trades endpoint.
type MockDataAPI struct {
	*httptest.Server
	mu     sync.RWMutex
	trades []map[string]interface{}
	last   *http.Request
}

// NewMockDataAPI creates a new mock Data API server.
func NewMockDataAPI(trades []map[string]interface{}) *MockDataAPI {
	mock := &MockDataAPI{trades: trades}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.last = r.Clone(r.Context())
		trades := mock.trades
		mock.mu.Unlock()

		if r.URL.Path != "/trades" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, page(trades, r))
	}))

	return mock
}

// SetTrades replaces the served trades.
func (m *MockDataAPI) SetTrades(trades []map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = trades
}

// LastQuery returns the query parameter of the most recent request.
func (m *MockDataAPI) LastQuery(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return ""
	}
	return m.last.URL.Query().Get(key)
}

func page[T any](items []T, r *http.Request) []T {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = len(items)
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// MapCache is a synchronous cache.Cache for tests. TTLs are honoured
// against the wall clock.
type MapCache struct {
	mu      sync.Mutex
	entries map[string]mapEntry
}

type mapEntry struct {
	value   interface{}
	expires time.Time
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]mapEntry)}
}

func (c *MapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return nil, false
	}
	return e.value, true
}

func (c *MapCache) Set(key string, value interface{}, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := mapEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.entries[key] = e
	return true
}

func (c *MapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]mapEntry)
}

func (c *MapCache) Close() {}
