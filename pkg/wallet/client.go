package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pageLimit is the number of records requested per Data API call.
const pageLimit = 500

// Client fetches wallet activity and positions from the Polymarket Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Config holds wallet client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client  // optional, defaults to a 15s-timeout client
	Limiter    *rate.Limiter // optional, shared with other Data API callers
	Logger     *zap.Logger
}

// Activity is one record from the Data API /activity endpoint.
type Activity struct {
	ProxyWallet     string              `json:"proxyWallet"`
	Timestamp       int64               `json:"timestamp"`
	ConditionID     string              `json:"conditionId"`
	Type            string              `json:"type"`
	Size            decimal.NullDecimal `json:"size"`
	UsdcSize        decimal.NullDecimal `json:"usdcSize"`
	Price           decimal.NullDecimal `json:"price"`
	Side            string              `json:"side"`
	Outcome         string              `json:"outcome"`
	Title           string              `json:"title"`
	TransactionHash string              `json:"transactionHash"`
}

// Position is one record from the Data API /positions endpoint.
type Position struct {
	ConditionID  string  `json:"conditionId"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	CurPrice     float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
}

// NewClient creates a new wallet client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
	}, nil
}

// GetActivity fetches the most recent trades of a wallet.
func (c *Client) GetActivity(ctx context.Context, address string) ([]Activity, error) {
	params := url.Values{}
	params.Add("user", address)
	params.Add("limit", strconv.Itoa(pageLimit))
	params.Add("type", "TRADE")

	var activity []Activity
	err := c.getJSON(ctx, "activity", params, &activity)
	if err != nil {
		return nil, err
	}

	return activity, nil
}

// GetPositions fetches the current and redeemable positions of a wallet.
func (c *Client) GetPositions(ctx context.Context, address string) ([]Position, error) {
	params := url.Values{}
	params.Add("user", address)
	params.Add("limit", strconv.Itoa(pageLimit))

	var positions []Position
	err := c.getJSON(ctx, "positions", params, &positions)
	if err != nil {
		return nil, err
	}

	return positions, nil
}

// History builds the pre-existing record of a wallet from its activity and
// positions. A redeemable position belongs to a resolved market; it is a
// win when its cash P&L is positive.
func (c *Client) History(ctx context.Context, address string) (*types.WalletHistory, error) {
	start := time.Now()
	defer func() {
		HistoryFetchDuration.Observe(time.Since(start).Seconds())
	}()

	activity, err := c.GetActivity(ctx, address)
	if err != nil {
		HistoryFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("get activity: %w", err)
	}

	positions, err := c.GetPositions(ctx, address)
	if err != nil {
		HistoryFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("get positions: %w", err)
	}

	history := buildHistory(address, activity, positions)

	c.logger.Debug("wallet-history-fetched",
		zap.String("wallet", types.ShortAddress(address)),
		zap.Int("trades", history.TradeCount),
		zap.Int("markets", len(history.Markets)),
		zap.Int("resolved-positions", len(history.ResolvedPositions)))

	return history, nil
}

func buildHistory(address string, activity []Activity, positions []Position) *types.WalletHistory {
	history := &types.WalletHistory{Address: address}
	markets := make(map[string]struct{})

	for i := range activity {
		a := &activity[i]
		if a.Type != "" && a.Type != "TRADE" {
			continue
		}
		if a.Timestamp <= 0 {
			continue
		}

		ts := time.Unix(a.Timestamp, 0).UTC()
		if history.FirstTradeAt.IsZero() || ts.Before(history.FirstTradeAt) {
			history.FirstTradeAt = ts
		}

		notional := activityNotional(a)
		history.TradeCount++
		history.VolumeUSD += notional
		if notional > history.LargestTradeUSD {
			history.LargestTradeUSD = notional
		}
		if a.ConditionID != "" {
			markets[a.ConditionID] = struct{}{}
		}
	}

	history.Markets = make([]string, 0, len(markets))
	for m := range markets {
		history.Markets = append(history.Markets, m)
	}
	sort.Strings(history.Markets)

	// One result per market: a wallet holding both sides wins if either paid out.
	won := make(map[string]bool)
	for i := range positions {
		p := &positions[i]
		if !p.Redeemable || p.ConditionID == "" {
			continue
		}
		won[p.ConditionID] = won[p.ConditionID] || p.CashPnL > 0
	}

	resolved := make([]string, 0, len(won))
	for m := range won {
		resolved = append(resolved, m)
	}
	sort.Strings(resolved)

	history.ResolvedPositions = make([]types.ResolvedPosition, 0, len(resolved))
	for _, m := range resolved {
		history.ResolvedPositions = append(history.ResolvedPositions, types.ResolvedPosition{
			MarketID: m,
			Won:      won[m],
		})
	}

	return history
}

func activityNotional(a *Activity) float64 {
	if a.UsdcSize.Valid && a.UsdcSize.Decimal.IsPositive() {
		return a.UsdcSize.Decimal.InexactFloat64()
	}
	if a.Size.Valid && a.Price.Valid {
		return a.Size.Decimal.Mul(a.Price.Decimal).InexactFloat64()
	}
	return 0
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if c.limiter != nil {
		err := c.limiter.Wait(ctx)
		if err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-surveillance/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		DataAPIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	DataAPIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	return nil
}
