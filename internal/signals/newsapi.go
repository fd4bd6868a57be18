package signals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxQueryKeywords caps the OR query sent to NewsAPI.
const maxQueryKeywords = 20

// NewsAPISource searches NewsAPI.org for recent articles mentioning the
// configured keywords.
type NewsAPISource struct {
	baseURL    string
	apiKey     string
	query      string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	seen       *dedupe.Seen
	logger     *zap.Logger
}

// NewsAPIConfig holds NewsAPI configuration.
type NewsAPIConfig struct {
	BaseURL    string
	APIKey     string
	Keywords   []string
	PageSize   int
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// NewNewsAPISource creates a NewsAPI source.
func NewNewsAPISource(cfg *NewsAPIConfig) (*NewsAPISource, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key cannot be empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	keywords := cfg.Keywords
	if len(keywords) > maxQueryKeywords {
		keywords = keywords[:maxQueryKeywords]
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			kw = `"` + kw + `"`
		}
		quoted = append(quoted, kw)
	}
	query := strings.Join(quoted, " OR ")
	if query == "" {
		query = "breaking"
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &NewsAPISource{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		query:      query,
		pageSize:   pageSize,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		seen:       dedupe.New(seenCapacity),
		logger:     cfg.Logger,
	}, nil
}

// Name identifies the source.
func (s *NewsAPISource) Name() string {
	return "newsapi"
}

// FetchSignals returns articles not returned before, newest first.
func (s *NewsAPISource) FetchSignals(ctx context.Context) ([]types.Signal, error) {
	params := url.Values{}
	params.Add("q", s.query)
	params.Add("sortBy", "publishedAt")
	params.Add("language", "en")
	params.Add("pageSize", strconv.Itoa(s.pageSize))

	header := http.Header{}
	header.Set("X-Api-Key", s.apiKey)

	var resp newsAPIResponse
	err := getJSON(ctx, s.httpClient, s.limiter, s.baseURL+"/v2/everything?"+params.Encode(), header, &resp)
	if err != nil {
		FeedErrorsTotal.WithLabelValues(s.Name()).Inc()
		return nil, fmt.Errorf("newsapi search: %w", err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		FeedErrorsTotal.WithLabelValues(s.Name()).Inc()
		return nil, fmt.Errorf("newsapi search: status %s: %s", resp.Status, resp.Message)
	}

	out := make([]types.Signal, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" || !s.seen.Add(a.URL) {
			continue
		}
		text := joinText(a.Title, a.Description)
		if text == "" || a.PublishedAt.IsZero() {
			continue
		}
		source := a.Source.Name
		if source == "" {
			source = s.Name()
		}
		out = append(out, types.Signal{
			ID:          "newsapi:" + a.URL,
			Kind:        types.SignalNews,
			Source:      source,
			Author:      a.Author,
			Text:        text,
			URL:         a.URL,
			PublishedAt: a.PublishedAt.UTC(),
		})
	}

	SignalsFetchedTotal.WithLabelValues(s.Name()).Add(float64(len(out)))
	return out, nil
}
