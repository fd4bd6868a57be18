package signals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// defaultRoute is the RSSHub route of a Truth Social profile.
const defaultRoute = "truthsocial/user/%s"

// RSSHubSource reads social posts of monitored accounts through an RSSHub
// instance.
type RSSHubSource struct {
	baseURL  string
	route    string
	platform string
	accounts []string
	weights  Weights
	filter   SocialFilter
	perFeed  int
	reader   *feedReader
	seen     *dedupe.Seen
	now      func() time.Time
	logger   *zap.Logger
}

// RSSHubConfig holds RSSHub configuration.
type RSSHubConfig struct {
	BaseURL  string
	Route    string // fmt pattern taking the account, defaults to Truth Social
	Platform string // Source of the produced signals
	Accounts []string
	Weights  map[string]float64
	// Filter applies to every post; RSSHub reports no engagement so
	// MinEngagement is ignored.
	Filter     SocialFilter
	PerFeed    int
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *zap.Logger
}

// NewRSSHubSource creates an RSSHub social source.
func NewRSSHubSource(cfg *RSSHubConfig) (*RSSHubSource, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("at least one account is required")
	}

	route := cfg.Route
	if route == "" {
		route = defaultRoute
	}
	platform := cfg.Platform
	if platform == "" {
		platform = "truthsocial"
	}
	perFeed := cfg.PerFeed
	if perFeed <= 0 {
		perFeed = defaultPerFeed
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	filter := cfg.Filter
	filter.MinEngagement = 0
	if filter.Now == nil {
		filter.Now = now
	}

	return &RSSHubSource{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		route:    route,
		platform: platform,
		accounts: cfg.Accounts,
		weights:  NewWeights(cfg.Weights),
		filter:   filter,
		perFeed:  perFeed,
		reader:   newFeedReader(cfg.HTTPClient),
		seen:     dedupe.New(seenCapacity),
		now:      now,
		logger:   cfg.Logger,
	}, nil
}

// Name identifies the source.
func (s *RSSHubSource) Name() string {
	return "rsshub-" + s.platform
}

// FetchSignals returns posts not returned before. The call fails only when
// every account feed fails.
func (s *RSSHubSource) FetchSignals(ctx context.Context) ([]types.Signal, error) {
	var out []types.Signal
	var errs []error

	for _, account := range s.accounts {
		feedURL := s.baseURL + "/" + fmt.Sprintf(s.route, account)
		feed, err := s.reader.read(ctx, feedURL)
		if err != nil {
			FeedErrorsTotal.WithLabelValues(s.Name()).Inc()
			s.logger.Warn("rsshub-feed-failed", zap.String("account", account), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		items := feed.Items
		if len(items) > s.perFeed {
			items = items[:s.perFeed]
		}
		for _, item := range items {
			key := item.GUID
			if key == "" {
				key = item.Link
			}
			if key == "" || s.seen.Contains(key) {
				continue
			}
			text := joinText(item.Title, item.Description)
			if text == "" {
				continue
			}

			signal := types.Signal{
				ID:           s.platform + ":" + key,
				Kind:         types.SignalSocial,
				Source:       s.platform,
				Author:       account,
				Text:         text,
				URL:          item.Link,
				PublishedAt:  itemTime(item, s.now()),
				AuthorWeight: s.weights.Of(account),
				IsRepost:     strings.HasPrefix(text, "RT @") || strings.HasPrefix(text, "RT:"),
				IsReply:      strings.HasPrefix(text, "@") || strings.HasPrefix(text, "Replying to"),
			}

			s.seen.Add(key)
			if keep, reason := s.filter.Keep(&signal); !keep {
				SignalsFilteredTotal.WithLabelValues(s.Name(), reason).Inc()
				continue
			}
			out = append(out, signal)
		}
	}

	if len(errs) == len(s.accounts) {
		return nil, fmt.Errorf("all %d rsshub feeds failed: %w", len(s.accounts), errors.Join(errs...))
	}

	SignalsFetchedTotal.WithLabelValues(s.Name()).Add(float64(len(out)))
	return out, nil
}
