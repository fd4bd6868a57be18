package signals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mselser95/polymarket-surveillance/internal/dedupe"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

const defaultPerFeed = 10

// feedReader fetches and parses RSS and Atom feeds.
type feedReader struct {
	parser *gofeed.Parser
}

func newFeedReader(client *http.Client) *feedReader {
	parser := gofeed.NewParser()
	parser.UserAgent = "polymarket-surveillance/1.0"
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	parser.Client = client
	return &feedReader{parser: parser}
}

func (r *feedReader) read(ctx context.Context, url string) (*gofeed.Feed, error) {
	feed, err := r.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}
	return feed, nil
}

// itemTime is the publication time of an item, falling back to its update
// time and then to now.
func itemTime(item *gofeed.Item, now time.Time) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

func itemKey(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	return item.GUID
}

// RSSSource reads news items from a fixed list of RSS feeds.
type RSSSource struct {
	feeds   []string
	perFeed int
	reader  *feedReader
	seen    *dedupe.Seen
	now     func() time.Time
	logger  *zap.Logger
}

// RSSConfig holds news feed configuration.
type RSSConfig struct {
	Feeds      []string
	PerFeed    int // newest items read per feed
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *zap.Logger
}

// NewRSSSource creates a news source over RSS feeds.
func NewRSSSource(cfg *RSSConfig) (*RSSSource, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("at least one feed is required")
	}

	perFeed := cfg.PerFeed
	if perFeed <= 0 {
		perFeed = defaultPerFeed
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &RSSSource{
		feeds:   cfg.Feeds,
		perFeed: perFeed,
		reader:  newFeedReader(cfg.HTTPClient),
		seen:    dedupe.New(seenCapacity),
		now:     now,
		logger:  cfg.Logger,
	}, nil
}

// Name identifies the source.
func (s *RSSSource) Name() string {
	return "rss"
}

// FetchSignals returns news items not returned before. A failing feed is
// skipped; the call fails only when every feed fails.
func (s *RSSSource) FetchSignals(ctx context.Context) ([]types.Signal, error) {
	var out []types.Signal
	var errs []error

	for _, url := range s.feeds {
		feed, err := s.reader.read(ctx, url)
		if err != nil {
			FeedErrorsTotal.WithLabelValues(s.Name()).Inc()
			s.logger.Warn("news-feed-failed", zap.String("feed", url), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		source := feed.Title
		if source == "" {
			source = url
		}

		items := feed.Items
		if len(items) > s.perFeed {
			items = items[:s.perFeed]
		}
		for _, item := range items {
			key := itemKey(item)
			if key == "" || !s.seen.Add(key) {
				continue
			}
			text := joinText(item.Title, item.Description)
			if text == "" {
				continue
			}
			out = append(out, types.Signal{
				ID:          "rss:" + key,
				Kind:        types.SignalNews,
				Source:      source,
				Text:        text,
				URL:         item.Link,
				PublishedAt: itemTime(item, s.now()),
			})
		}
	}

	if len(errs) == len(s.feeds) {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(s.feeds), errors.Join(errs...))
	}

	SignalsFetchedTotal.WithLabelValues(s.Name()).Add(float64(len(out)))
	s.logger.Debug("news-feeds-read",
		zap.Int("feeds", len(s.feeds)),
		zap.Int("failed", len(errs)),
		zap.Int("new-items", len(out)))

	return out, nil
}
