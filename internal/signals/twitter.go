package signals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// XSource polls the X API v2 timelines of monitored accounts.
type XSource struct {
	baseURL    string
	token      string
	accounts   []string
	weights    Weights
	filter     SocialFilter
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	seen       *dedupe.Seen
	now        func() time.Time
	logger     *zap.Logger

	mu      sync.Mutex
	userIDs map[string]string
}

// XConfig holds X API configuration.
type XConfig struct {
	BaseURL     string
	BearerToken string
	Accounts    []string
	Weights     map[string]float64
	Filter      SocialFilter
	MaxResults  int // per account and poll, 5..100
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	Now         func() time.Time
	Logger      *zap.Logger
}

type xUserResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type xTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
	} `json:"referenced_tweets"`
}

type xTimelineResponse struct {
	Data []xTweet `json:"data"`
}

// NewXSource creates an X API source.
func NewXSource(cfg *XConfig) (*XSource, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BearerToken == "" {
		return nil, errors.New("bearer token cannot be empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("at least one account is required")
	}

	maxResults := cfg.MaxResults
	switch {
	case maxResults <= 0:
		maxResults = 10
	case maxResults < 5:
		maxResults = 5
	case maxResults > 100:
		maxResults = 100
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	filter := cfg.Filter
	if filter.Now == nil {
		filter.Now = now
	}

	return &XSource{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.BearerToken,
		accounts:   cfg.Accounts,
		weights:    NewWeights(cfg.Weights),
		filter:     filter,
		maxResults: maxResults,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		seen:       dedupe.New(seenCapacity),
		now:        now,
		logger:     cfg.Logger,
		userIDs:    make(map[string]string),
	}, nil
}

// Name identifies the source.
func (s *XSource) Name() string {
	return "x"
}

// FetchSignals returns posts not returned before from every monitored
// account. A rate limit stops the poll early and keeps what was read; the
// call fails only when no account could be read.
func (s *XSource) FetchSignals(ctx context.Context) ([]types.Signal, error) {
	var out []types.Signal
	failed := 0
	var lastErr error

	for i, account := range s.accounts {
		posts, err := s.timeline(ctx, account)
		if err != nil {
			FeedErrorsTotal.WithLabelValues(s.Name()).Inc()
			s.logger.Warn("x-timeline-failed", zap.String("account", account), zap.Error(err))
			failed++
			lastErr = err
			if errors.Is(err, ErrRateLimited) {
				failed += len(s.accounts) - i - 1
				break
			}
			continue
		}
		out = append(out, posts...)
	}

	if failed == len(s.accounts) {
		return nil, fmt.Errorf("read %d x timelines: %w", len(s.accounts), lastErr)
	}

	SignalsFetchedTotal.WithLabelValues(s.Name()).Add(float64(len(out)))
	return out, nil
}

func (s *XSource) timeline(ctx context.Context, account string) ([]types.Signal, error) {
	userID, err := s.userID(ctx, account)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("max_results", strconv.Itoa(s.maxResults))
	params.Add("tweet.fields", "created_at,public_metrics,referenced_tweets")
	if s.filter.Lookback > 0 {
		params.Add("start_time", s.now().Add(-s.filter.Lookback).UTC().Format(time.RFC3339))
	}

	var resp xTimelineResponse
	err = getJSON(ctx, s.httpClient, s.limiter,
		fmt.Sprintf("%s/2/users/%s/tweets?%s", s.baseURL, userID, params.Encode()),
		s.authHeader(), &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch tweets of %s: %w", account, err)
	}

	var out []types.Signal
	for _, tweet := range resp.Data {
		if tweet.ID == "" || s.seen.Contains(tweet.ID) {
			continue
		}
		signal := types.Signal{
			ID:           "x:" + tweet.ID,
			Kind:         types.SignalSocial,
			Source:       "x",
			Author:       account,
			Text:         tweet.Text,
			URL:          fmt.Sprintf("https://x.com/%s/status/%s", account, tweet.ID),
			PublishedAt:  tweet.CreatedAt.UTC(),
			AuthorWeight: s.weights.Of(account),
			Engagement: types.Engagement{
				Likes:   tweet.PublicMetrics.LikeCount,
				Reposts: tweet.PublicMetrics.RetweetCount,
				Replies: tweet.PublicMetrics.ReplyCount,
			},
		}
		for _, ref := range tweet.ReferencedTweets {
			switch ref.Type {
			case "retweeted":
				signal.IsRepost = true
			case "replied_to":
				signal.IsReply = true
			}
		}

		// Filtered posts are not remembered and are re-checked next poll.
		if keep, reason := s.filter.Keep(&signal); !keep {
			SignalsFilteredTotal.WithLabelValues(s.Name(), reason).Inc()
			continue
		}
		s.seen.Add(tweet.ID)
		out = append(out, signal)
	}

	return out, nil
}

func (s *XSource) userID(ctx context.Context, account string) (string, error) {
	s.mu.Lock()
	id, ok := s.userIDs[account]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp xUserResponse
	err := getJSON(ctx, s.httpClient, s.limiter,
		fmt.Sprintf("%s/2/users/by/username/%s", s.baseURL, url.PathEscape(account)),
		s.authHeader(), &resp)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", account, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("look up %s: user not found", account)
	}

	s.mu.Lock()
	s.userIDs[account] = resp.Data.ID
	s.mu.Unlock()

	return resp.Data.ID, nil
}

func (s *XSource) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.token)
	return h
}
