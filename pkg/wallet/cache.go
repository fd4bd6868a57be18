package wallet

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// HistoryFetcher returns the pre-existing record of a wallet.
type HistoryFetcher interface {
	History(ctx context.Context, address string) (*types.WalletHistory, error)
}

// CachedClient wraps a HistoryFetcher with a TTL cache.
type CachedClient struct {
	client HistoryFetcher
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedClient creates a cached history client. A nil cache disables caching.
func NewCachedClient(client HistoryFetcher, c cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
	}
}

// History returns a cached history when fresh, otherwise fetches and caches it.
func (c *CachedClient) History(ctx context.Context, address string) (*types.WalletHistory, error) {
	cacheKey := cache.Key("history", address)

	if c.cache != nil {
		if history, ok := cache.Lookup[*types.WalletHistory](c.cache, cacheKey); ok {
			HistoryCacheHitsTotal.Inc()
			return history, nil
		}
		HistoryCacheMissesTotal.Inc()
	}

	history, err := c.client.History(ctx, address)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, history, c.ttl)
	}

	return history, nil
}

// Invalidate drops the cached history of a wallet.
func (c *CachedClient) Invalidate(address string) {
	if c.cache == nil {
		return
	}
	c.cache.Delete(cache.Key("history", address))
}
