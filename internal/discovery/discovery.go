// Package discovery is the market directory: it lists active markets and
// recently closed ones from the Gamma API.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/cache"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL      = 24 * time.Hour
	defaultResolvedLimit = 100
)

// Service answers the market directory queries of the surveillance loop
// and caches every market it sees by id.
type Service struct {
	client        *Client
	cache         cache.Cache
	marketLimit   int
	resolvedLimit int
	cacheTTL      time.Duration
	logger        *zap.Logger
}

// Config holds discovery service configuration.
type Config struct {
	Client        *Client
	Cache         cache.Cache // optional
	MarketLimit   int
	ResolvedLimit int
	CacheTTL      time.Duration
	Logger        *zap.Logger
}

// New creates a new discovery service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if cfg.MarketLimit < 0 {
		return nil, fmt.Errorf("market limit cannot be negative")
	}

	resolvedLimit := cfg.ResolvedLimit
	if resolvedLimit <= 0 {
		resolvedLimit = defaultResolvedLimit
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &Service{
		client:        cfg.Client,
		cache:         cfg.Cache,
		marketLimit:   cfg.MarketLimit,
		resolvedLimit: resolvedLimit,
		cacheTTL:      ttl,
		logger:        cfg.Logger,
	}, nil
}

// FetchMarkets returns the active markets, most traded first. Malformed
// records are skipped.
func (s *Service) FetchMarkets(ctx context.Context) ([]types.Market, error) {
	start := time.Now()
	defer func() {
		PollDurationSeconds.WithLabelValues("active").Observe(time.Since(start).Seconds())
	}()

	resp, err := s.client.FetchMarkets(ctx, MarketQuery{
		Limit: s.marketLimit,
		Order: "volume24hr",
	})
	if err != nil {
		PollErrorsTotal.WithLabelValues("active").Inc()
		return nil, fmt.Errorf("fetch active markets: %w", err)
	}

	markets := s.keepValid(resp.Data, false)
	MarketsDiscoveredTotal.Add(float64(len(markets)))

	s.logger.Debug("active-markets-fetched",
		zap.Int("received", len(resp.Data)),
		zap.Int("kept", len(markets)),
		zap.Duration("duration", time.Since(start)))

	return markets, nil
}

// FetchResolved returns the most recently closed markets.
func (s *Service) FetchResolved(ctx context.Context) ([]types.Market, error) {
	start := time.Now()
	defer func() {
		PollDurationSeconds.WithLabelValues("closed").Observe(time.Since(start).Seconds())
	}()

	resp, err := s.client.FetchMarkets(ctx, MarketQuery{
		Closed: true,
		Limit:  s.resolvedLimit,
		Order:  "closedTime",
	})
	if err != nil {
		PollErrorsTotal.WithLabelValues("closed").Inc()
		return nil, fmt.Errorf("fetch closed markets: %w", err)
	}

	markets := s.keepValid(resp.Data, true)
	resolved := 0
	for i := range markets {
		if _, ok := markets[i].Resolution(); ok {
			resolved++
		}
	}
	ResolvedMarketsSeenTotal.Add(float64(resolved))

	s.logger.Debug("closed-markets-fetched",
		zap.Int("closed", len(markets)),
		zap.Int("resolved", resolved))

	return markets, nil
}

func (s *Service) keepValid(markets []types.Market, closed bool) []types.Market {
	out := make([]types.Market, 0, len(markets))
	for i := range markets {
		m := markets[i]
		err := m.Validate()
		if err != nil {
			MarketsSkippedTotal.Inc()
			s.logger.Debug("skipping-malformed-market",
				zap.String("gamma-id", m.GammaID),
				zap.Error(err))
			continue
		}
		if closed {
			m.Closed = true
			m.Active = false
		}
		s.cacheMarket(&m)
		out = append(out, m)
	}
	return out
}

func (s *Service) cacheMarket(market *types.Market) {
	if s.cache == nil {
		return
	}

	success := s.cache.Set(cache.Key("market", market.ID), *market, s.cacheTTL)
	if !success {
		s.logger.Warn("failed-to-cache-market", zap.String("market-id", market.ID))
	}
}

// GetMarket retrieves a previously listed market from the cache.
func (s *Service) GetMarket(marketID string) (types.Market, bool) {
	return cache.Lookup[types.Market](s.cache, cache.Key("market", marketID))
}
