package matcher

import (
	"math"
	"testing"
	"time"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

var (
	newsKeywords   = []string{"Fed", "Federal Reserve", "rate", "rate cut", "inflation", "Bitcoin", "election"}
	socialKeywords = []string{"tariff", "China", "Bitcoin"}
)

func newMatcher(t *testing.T) *Matcher {
	t.Helper()

	m, err := New(&Config{
		NewsKeywords:        newsKeywords,
		SocialKeywords:      socialKeywords,
		NewsMinConfidence:   0.7,
		SocialMinConfidence: 0.6,
		MaxPerSignal:        2,
		Logger:              zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func news(id, text string) *types.Signal {
	return &types.Signal{ID: id, Kind: types.SignalNews, Source: "test", Text: text, PublishedAt: time.Now()}
}

func post(id, author, text string, weight float64) *types.Signal {
	return &types.Signal{
		ID:           id,
		Kind:         types.SignalSocial,
		Source:       "twitter",
		Author:       author,
		Text:         text,
		PublishedAt:  time.Now(),
		AuthorWeight: weight,
	}
}

func market(id, title string) types.Market {
	return types.Market{ID: id, Title: title, Active: true}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil-config", cfg: nil},
		{name: "nil-logger", cfg: &Config{MaxPerSignal: 1}},
		{name: "zero-max", cfg: &Config{Logger: zap.NewNop()}},
		{name: "confidence-above-one", cfg: &Config{Logger: zap.NewNop(), MaxPerSignal: 1, NewsMinConfidence: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestScore_FedRateCut(t *testing.T) {
	m := newMatcher(t)
	mk := market("m1", "Will the Fed cut rates in January 2025?")

	score := m.Score(news("n1", "Fed announces surprise rate cut of 0.5%"), &mk)

	if math.Abs(score.Factors.Keyword-2.0/3.0) > 1e-9 {
		t.Errorf("expected keyword overlap 2/3, got %v (%v)", score.Factors.Keyword, score.Factors.MatchedKeywords)
	}
	if score.Factors.Entity != 1 {
		t.Errorf("expected entity overlap 1, got %v", score.Factors.Entity)
	}
	if math.Abs(score.Factors.Lexical-0.5) > 1e-9 {
		t.Errorf("expected lexical 0.5, got %v", score.Factors.Lexical)
	}
	if score.Score < 0.7 {
		t.Errorf("expected score above news minimum, got %v", score.Score)
	}
	if score.SignalID != "n1" || score.MarketID != "m1" {
		t.Errorf("unexpected ids %q %q", score.SignalID, score.MarketID)
	}
}

func TestScore_Unrelated(t *testing.T) {
	m := newMatcher(t)
	mk := market("m1", "Will Arsenal win the Premier League?")

	score := m.Score(news("n1", "Bitcoin rallies past record high"), &mk)
	if score.Score != 0 {
		t.Errorf("expected zero score, got %v (%+v)", score.Score, score.Factors)
	}
}

func TestScore_AuthorBoostCapped(t *testing.T) {
	m := newMatcher(t)
	mk := market("m1", "Will Trump impose a tariff on China?")

	plain := m.Score(post("p1", "someone", "New tariff on China announced", 0), &mk)
	boosted := m.Score(post("p2", "realDonaldTrump", "New tariff on China announced", 0.3), &mk)

	if boosted.Factors.AuthorBoost != 0.3 {
		t.Errorf("expected boost 0.3, got %v", boosted.Factors.AuthorBoost)
	}
	if boosted.Score <= plain.Score {
		t.Errorf("expected boosted score above plain: %v <= %v", boosted.Score, plain.Score)
	}

	huge := m.Score(post("p3", "x", "New tariff on China announced", 1), &mk)
	if huge.Score != 1 {
		t.Errorf("expected score capped at 1, got %v", huge.Score)
	}

	newsWithWeight := news("n1", "New tariff on China announced")
	newsWithWeight.AuthorWeight = 0.3
	if got := m.Score(newsWithWeight, &mk); got.Factors.AuthorBoost != 0 {
		t.Errorf("news never gets an author boost, got %v", got.Factors.AuthorBoost)
	}
}

func TestScore_MonotonicInKeywordOverlap(t *testing.T) {
	m := newMatcher(t)
	sig := news("n1", "Fed rate decision and inflation data")

	// same entity and lexical profile, increasing keyword coverage
	titles := []string{
		"Fed decision data",
		"Fed decision data rate",
		"Fed decision data rate inflation",
	}

	prev := -1.0
	prevKeyword := -1.0
	for _, title := range titles {
		mk := market("m", title)
		score := m.Score(sig, &mk)
		if score.Factors.Keyword < prevKeyword {
			t.Fatalf("keyword overlap decreased for %q", title)
		}
		if score.Factors.Keyword > prevKeyword && score.Score < prev {
			t.Errorf("score decreased as keyword overlap grew: %v < %v", score.Score, prev)
		}
		prev = score.Score
		prevKeyword = score.Factors.Keyword
	}
}

func TestMatch_FilterSortCap(t *testing.T) {
	m := newMatcher(t)
	sig := news("n1", "Fed announces surprise rate cut of 0.5%")

	closed := market("m0", "Will the Fed cut rates in January 2025?")
	closed.Closed = true

	markets := []types.Market{
		market("m3", "Will the Fed cut rates in January 2025?"),
		market("m1", "Will the Fed cut rates in January 2025?"),
		market("m2", "Will the Fed cut rates twice in March 2025?"),
		market("m4", "Will Arsenal win the Premier League?"),
		closed,
	}

	matches := m.Match(sig, markets)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches after cap, got %d", len(matches))
	}
	for _, match := range matches {
		if match.MarketID == "m0" || match.MarketID == "m4" {
			t.Errorf("unexpected match %s", match.MarketID)
		}
	}
	// m1 and m3 tie exactly; lower id wins.
	if matches[0].MarketID != "m1" || matches[1].MarketID != "m3" {
		t.Errorf("expected m1, m3 order, got %s, %s", matches[0].MarketID, matches[1].MarketID)
	}
}

func TestSort_TieBreaks(t *testing.T) {
	matches := []types.MatchScore{
		{MarketID: "c", Score: 0.8, Factors: types.MatchFactors{Keyword: 0.5, Lexical: 0.4}},
		{MarketID: "b", Score: 0.8, Factors: types.MatchFactors{Keyword: 0.5, Lexical: 0.6}},
		{MarketID: "a", Score: 0.8, Factors: types.MatchFactors{Keyword: 0.3, Lexical: 0.9}},
		{MarketID: "d", Score: 0.9},
	}

	Sort(matches)

	want := []string{"d", "b", "c", "a"}
	for i, id := range want {
		if matches[i].MarketID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, matches[i].MarketID)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Fed cuts RATES, 0.5% (again)")
	want := []string{"fed", "cut", "rate", "0", "5", "again"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
