// Package trades polls the Polymarket Data API for recent trades across
// all markets.
package trades

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultLimit    = 500
	defaultSeenSize = 100000
)

// Source is a trade source backed by the Data API /trades endpoint. Each
// call returns the trades not returned before.
type Source struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	limit      int
	minSize    float64
	seen       *dedupe.Seen
	logger     *zap.Logger
}

// Config holds trade source configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client  // optional, defaults to a 15s-timeout client
	Limiter    *rate.Limiter // optional, shared with other Data API callers
	// Limit is the number of most recent trades requested per poll.
	Limit int
	// MinSizeUSD asks the API to drop trades below this cash size. Zero
	// disables the filter.
	MinSizeUSD float64
	SeenSize   int
	Logger     *zap.Logger
}

// New creates a Data API trade source.
func New(cfg *Config) (*Source, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.MinSizeUSD < 0 {
		return nil, errors.New("min size cannot be negative")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	seenSize := cfg.SeenSize
	if seenSize <= 0 {
		seenSize = defaultSeenSize
	}

	return &Source{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		limit:      limit,
		minSize:    cfg.MinSizeUSD,
		seen:       dedupe.New(seenSize),
		logger:     cfg.Logger,
	}, nil
}

// Name identifies the source in tick results and metrics.
func (s *Source) Name() string {
	return "data-api-trades"
}

// FetchTrades requests the most recent trades and returns the ones not
// seen before. Malformed records are logged and skipped.
func (s *Source) FetchTrades(ctx context.Context) ([]types.Trade, error) {
	start := time.Now()
	defer func() {
		FetchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	records, err := s.fetch(ctx)
	if err != nil {
		FetchErrorsTotal.Inc()
		return nil, err
	}

	out := make([]types.Trade, 0, len(records))
	for i := range records {
		trade, err := records[i].ToTrade()
		if err != nil {
			RecordsSkippedTotal.WithLabelValues("malformed").Inc()
			s.logger.Debug("trade-record-skipped",
				zap.String("tx-hash", records[i].TransactionHash),
				zap.Error(err))
			continue
		}
		if !s.seen.Add(trade.TxHash) {
			RecordsSkippedTotal.WithLabelValues("seen").Inc()
			continue
		}
		out = append(out, trade)
	}

	TradesFetchedTotal.Add(float64(len(out)))
	s.logger.Debug("trades-fetched",
		zap.Int("records", len(records)),
		zap.Int("new", len(out)),
		zap.Duration("duration", time.Since(start)))

	return out, nil
}

func (s *Source) fetch(ctx context.Context) ([]types.DataAPITrade, error) {
	if s.limiter != nil {
		err := s.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Add("limit", strconv.Itoa(s.limit))
	params.Add("takerOnly", "true")
	if s.minSize > 0 {
		params.Add("filterType", "CASH")
		params.Add("filterAmount", strconv.FormatFloat(s.minSize, 'f', -1, 64))
	}

	requestURL := fmt.Sprintf("%s/trades?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-surveillance/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var records []types.DataAPITrade
	err = json.NewDecoder(resp.Body).Decode(&records)
	if err != nil {
		return nil, fmt.Errorf("decode trades response: %w", err)
	}

	return records, nil
}
