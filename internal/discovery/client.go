package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// MaxBatchSize is the maximum number of markets to fetch per API request.
	MaxBatchSize = 100
)

// Client is an HTTP client for the Polymarket Gamma API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new Gamma API client. A nil limiter disables rate
// limiting.
func NewClient(baseURL string, limiter *rate.Limiter, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// MarketQuery selects one listing of the Gamma /markets endpoint.
type MarketQuery struct {
	Closed bool
	Limit  int // 0 fetches everything available
	Offset int
	// Order is the sort field: "volume24hr", "createdAt", "endDate" or "closedTime".
	Order     string
	Ascending bool
}

// FetchMarkets fetches markets with automatic pagination. If the limit
// exceeds MaxBatchSize, multiple requests are made and results are
// aggregated.
func (c *Client) FetchMarkets(ctx context.Context, q MarketQuery) (*types.MarketsResponse, error) {
	if q.Limit > MaxBatchSize || q.Limit == 0 {
		return c.fetchWithPagination(ctx, q)
	}

	return c.fetchSinglePage(ctx, q)
}

func (c *Client) fetchSinglePage(ctx context.Context, q MarketQuery) (*types.MarketsResponse, error) {
	limit := q.Limit
	if limit == 0 {
		limit = MaxBatchSize
	}

	if c.limiter != nil {
		err := c.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Add("closed", strconv.FormatBool(q.Closed))
	if !q.Closed {
		params.Add("active", "true")
	}
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(q.Offset))
	if q.Order != "" {
		params.Add("order", q.Order)
		params.Add("ascending", strconv.FormatBool(q.Ascending))
	}

	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-surveillance/1.0")

	c.logger.Debug("fetching-markets",
		zap.String("url", requestURL),
		zap.Int("limit", limit),
		zap.Int("offset", q.Offset))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Gamma API returns a direct array, not wrapped in an object
	var markets []types.Market
	err = json.Unmarshal(body, &markets)
	if err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Debug("fetched-markets", zap.Int("count", len(markets)))

	return &types.MarketsResponse{
		Data:   markets,
		Count:  len(markets),
		Limit:  limit,
		Offset: q.Offset,
	}, nil
}

func (c *Client) fetchWithPagination(ctx context.Context, q MarketQuery) (*types.MarketsResponse, error) {
	var (
		allMarkets   []types.Market
		currentPage  = 0
		totalFetched = 0
		fetchAll     = q.Limit == 0
	)

	for {
		pageSize := MaxBatchSize
		if !fetchAll {
			remaining := q.Limit - totalFetched
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page := q
		page.Limit = pageSize
		page.Offset = q.Offset + currentPage*MaxBatchSize

		resp, err := c.fetchSinglePage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", currentPage, err)
		}

		allMarkets = append(allMarkets, resp.Data...)
		totalFetched += len(resp.Data)

		c.logger.Debug("fetched-page",
			zap.Int("page", currentPage),
			zap.Int("markets", len(resp.Data)),
			zap.Int("total", totalFetched))

		// A short page means there is no more data.
		if len(resp.Data) < pageSize {
			break
		}

		currentPage++
	}

	return &types.MarketsResponse{
		Data:   allMarkets,
		Count:  len(allMarkets),
		Limit:  q.Limit,
		Offset: q.Offset,
	}, nil
}
