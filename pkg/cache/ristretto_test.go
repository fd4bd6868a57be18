package cache

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type walletEntry struct {
	address string
	trades  int
}

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	c, err := NewRistrettoCache(&RistrettoConfig{
		Name:    "wallet-snapshots",
		MaxCost: 100,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)

	return c.(*RistrettoCache)
}

func TestNewRistrettoCache_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *RistrettoConfig
	}{
		{name: "nil-config", cfg: nil},
		{name: "nil-logger", cfg: &RistrettoConfig{MaxCost: 10}},
		{name: "zero-max-cost", cfg: &RistrettoConfig{Logger: zap.NewNop()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRistrettoCache(tt.cfg)
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRistrettoCache_SetGetDelete(t *testing.T) {
	c := newTestCache(t)
	key := Key("wallet", "0x1111111111111111111111111111111111111111")

	if !c.Set(key, &walletEntry{address: "0x1111111111111111111111111111111111111111", trades: 3}, time.Hour) {
		t.Fatal("expected Set to succeed")
	}
	c.Wait()

	entry, ok := Lookup[*walletEntry](c, key)
	if !ok {
		t.Fatal("expected cached entry")
	}
	if entry.trades != 3 {
		t.Errorf("expected 3 trades, got %d", entry.trades)
	}

	c.Delete(key)
	if _, ok := c.Get(key); ok {
		t.Error("expected key to be deleted")
	}
}

func TestRistrettoCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t)

	c.Set("history:0xabc", "history", 50*time.Millisecond)
	c.Wait()

	if _, ok := c.Get("history:0xabc"); !ok {
		t.Fatal("expected entry before expiry")
	}

	time.Sleep(1500 * time.Millisecond)

	if _, ok := c.Get("history:0xabc"); ok {
		t.Error("expected entry to expire")
	}
}

func TestRistrettoCache_Clear(t *testing.T) {
	c := newTestCache(t)

	for _, key := range []string{"market:1", "market:2"} {
		c.Set(key, key, time.Hour)
	}
	c.Wait()
	c.Clear()

	for _, key := range []string{"market:1", "market:2"} {
		if _, ok := c.Get(key); ok {
			t.Errorf("expected %s to be cleared", key)
		}
	}
}

func TestLookup(t *testing.T) {
	c := newTestCache(t)

	c.Set("market:1", "not-a-wallet", time.Hour)
	c.Wait()

	if _, ok := Lookup[*walletEntry](c, "market:1"); ok {
		t.Error("value of another type must be a miss")
	}
	if _, ok := Lookup[*walletEntry](c, "missing"); ok {
		t.Error("missing key must be a miss")
	}
	if _, ok := Lookup[*walletEntry](nil, "market:1"); ok {
		t.Error("nil cache must be a miss")
	}

	title, ok := Lookup[string](c, "market:1")
	if !ok || title != "not-a-wallet" {
		t.Errorf("Lookup = %q, %v", title, ok)
	}
}

func TestKey(t *testing.T) {
	if got := Key("history", "0xabc"); got != "history:0xabc" {
		t.Errorf("Key = %q", got)
	}
}
