package types

import (
	"fmt"
	"strings"
	"time"
)

// SignalKind distinguishes the signal families.
type SignalKind string

const (
	SignalNews   SignalKind = "news"
	SignalSocial SignalKind = "social"
)

// Signal is an external event: a news item or a social post. AuthorWeight
// is zero for news and account-specific for social posts.
type Signal struct {
	ID           string     `json:"id"`
	Kind         SignalKind `json:"kind"`
	Source       string     `json:"source"`
	Author       string     `json:"author,omitempty"`
	Text         string     `json:"text"`
	URL          string     `json:"url,omitempty"`
	PublishedAt  time.Time  `json:"published_at"`
	AuthorWeight float64    `json:"author_weight"`
	Engagement   Engagement `json:"engagement"`
	IsRepost     bool       `json:"is_repost,omitempty"`
	IsReply      bool       `json:"is_reply,omitempty"`
}

// Engagement holds social metrics reported by the platform.
type Engagement struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
}

// Total is the sum of likes and reposts used for the engagement filter.
func (e Engagement) Total() int {
	return e.Likes + e.Reposts
}

// NewSignal validates a signal record and returns a normalized copy.
func NewSignal(s Signal) (*Signal, error) {
	s.ID = strings.TrimSpace(s.ID)
	s.Text = strings.TrimSpace(s.Text)
	s.Author = strings.TrimSpace(s.Author)

	switch {
	case s.ID == "":
		return nil, recordError(ErrInvalidSignal, "signal", "id", "missing")
	case s.Kind != SignalNews && s.Kind != SignalSocial:
		return nil, recordError(ErrInvalidSignal, "signal", "kind", fmt.Sprintf("unknown kind %q", s.Kind))
	case s.Text == "":
		return nil, recordError(ErrInvalidSignal, "signal", "text", "missing")
	case s.PublishedAt.IsZero():
		return nil, recordError(ErrInvalidSignal, "signal", "published_at", "missing")
	case s.AuthorWeight < 0 || s.AuthorWeight > 1:
		return nil, recordError(ErrInvalidSignal, "signal", "author_weight", fmt.Sprintf("out of range: %v", s.AuthorWeight))
	case s.Kind == SignalNews && s.AuthorWeight != 0:
		return nil, recordError(ErrInvalidSignal, "signal", "author_weight", "news items carry no author weight")
	}

	s.PublishedAt = s.PublishedAt.UTC()
	return &s, nil
}

// MatchScore is the ephemeral relevance of a signal to one market.
type MatchScore struct {
	SignalID string       `json:"signal_id"`
	MarketID string       `json:"market_id"`
	Score    float64      `json:"score"`
	Factors  MatchFactors `json:"factors"`
}

// MatchFactors are the sub-scores that produced a MatchScore, each in [0,1].
type MatchFactors struct {
	Keyword         float64  `json:"keyword"`
	Entity          float64  `json:"entity"`
	Lexical         float64  `json:"lexical"`
	AuthorBoost     float64  `json:"author_boost"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	SharedEntities  []string `json:"shared_entities,omitempty"`
}
