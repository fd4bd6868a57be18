// Package signals fetches news items and social posts and normalises them
// into signals for the matcher.
package signals

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
)

// seenCapacity bounds the remembered news URLs and post ids per source.
const seenCapacity = 1000

// SocialFilter drops social posts that should never reach the matcher.
type SocialFilter struct {
	IgnoreReposts bool
	IgnoreReplies bool
	MinEngagement int
	// Lookback drops posts published longer ago than this. Zero keeps all.
	Lookback time.Duration
	Now      func() time.Time
}

// Keep reports whether a social post passes the filter and, if not, why.
func (f *SocialFilter) Keep(s *types.Signal) (bool, string) {
	switch {
	case f.IgnoreReposts && s.IsRepost:
		return false, "repost"
	case f.IgnoreReplies && s.IsReply:
		return false, "reply"
	case s.Engagement.Total() < f.MinEngagement:
		return false, "low-engagement"
	}

	if f.Lookback > 0 {
		now := time.Now()
		if f.Now != nil {
			now = f.Now()
		}
		if s.PublishedAt.Before(now.Add(-f.Lookback)) {
			return false, "too-old"
		}
	}

	return true, ""
}

// Weights maps account handles to author weights, case-insensitively.
type Weights map[string]float64

// NewWeights normalises account handles.
func NewWeights(m map[string]float64) Weights {
	w := make(Weights, len(m))
	for account, weight := range m {
		w[normalizeHandle(account)] = weight
	}
	return w
}

// Of returns the weight of an account, zero when unknown.
func (w Weights) Of(account string) float64 {
	return w[normalizeHandle(account)]
}

func normalizeHandle(account string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(account), "@"))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// plainText strips markup and collapses whitespace.
func plainText(s string) string {
	s = html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
	return strings.Join(strings.Fields(s), " ")
}

// joinText combines a headline with its summary.
func joinText(title string, summary string) string {
	title = plainText(title)
	summary = plainText(summary)
	switch {
	case summary == "" || summary == title:
		return title
	case title == "":
		return summary
	}
	return title + " " + summary
}
