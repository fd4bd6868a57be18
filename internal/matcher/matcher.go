// Package matcher scores relevance between external signals and markets.
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"go.uber.org/zap"
)

// Sub-score weights. Author influence is added on top, capped at 1.
const (
	KeywordWeight = 0.4
	EntityWeight  = 0.3
	LexicalWeight = 0.3
)

// Matcher scores signals against markets.
type Matcher struct {
	newsKeywords   []keyword
	socialKeywords []keyword
	minConfidence  map[types.SignalKind]float64
	maxPerSignal   int
	logger         *zap.Logger
}

// Config holds matcher configuration.
type Config struct {
	NewsKeywords        []string
	SocialKeywords      []string
	NewsMinConfidence   float64
	SocialMinConfidence float64
	MaxPerSignal        int
	Logger              *zap.Logger
}

type keyword struct {
	text   string
	tokens []string
}

// New creates a new matcher.
func New(cfg *Config) (*Matcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxPerSignal <= 0 {
		return nil, fmt.Errorf("max matches per signal must be positive")
	}
	for _, c := range []float64{cfg.NewsMinConfidence, cfg.SocialMinConfidence} {
		if c < 0 || c > 1 {
			return nil, fmt.Errorf("min confidence must be between 0 and 1, got %v", c)
		}
	}

	return &Matcher{
		newsKeywords:   compileKeywords(cfg.NewsKeywords),
		socialKeywords: compileKeywords(cfg.SocialKeywords),
		minConfidence: map[types.SignalKind]float64{
			types.SignalNews:   cfg.NewsMinConfidence,
			types.SignalSocial: cfg.SocialMinConfidence,
		},
		maxPerSignal: cfg.MaxPerSignal,
		logger:       cfg.Logger,
	}, nil
}

func compileKeywords(words []string) []keyword {
	out := make([]keyword, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		tokens := tokenize(w)
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, " ")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, keyword{text: strings.TrimSpace(w), tokens: tokens})
	}
	return out
}

// MinConfidence returns the retention threshold for a signal kind.
func (m *Matcher) MinConfidence(kind types.SignalKind) float64 {
	return m.minConfidence[kind]
}

// Score computes the relevance of one signal to one market.
func (m *Matcher) Score(signal *types.Signal, market *types.Market) types.MatchScore {
	return m.score(signal, newDocument(signal.Text), market, newDocument(market.Title))
}

type document struct {
	raw     string
	tokens  []string
	lexical map[string]struct{}
}

func newDocument(text string) document {
	tokens := tokenize(text)
	return document{raw: text, tokens: tokens, lexical: lexicalSet(tokens)}
}

func (m *Matcher) score(signal *types.Signal, sig document, market *types.Market, title document) types.MatchScore {
	keywords := m.newsKeywords
	if signal.Kind == types.SignalSocial {
		keywords = m.socialKeywords
	}

	// keyword overlap: configured keywords found in the signal that the
	// market title also mentions
	var inSignal, shared []string
	for _, kw := range keywords {
		if !containsPhrase(sig.tokens, kw.tokens) {
			continue
		}
		inSignal = append(inSignal, kw.text)
		if containsPhrase(title.tokens, kw.tokens) {
			shared = append(shared, kw.text)
		}
	}
	keywordScore := 0.0
	if len(inSignal) > 0 {
		keywordScore = float64(len(shared)) / float64(len(inSignal))
	}

	sigEntities := entities(sig.raw)
	var sharedEntities []string
	for _, e := range sigEntities {
		if containsPhrase(title.tokens, tokenize(e)) {
			sharedEntities = append(sharedEntities, e)
		}
	}
	entityScore := 0.0
	if len(sigEntities) > 0 {
		entityScore = float64(len(sharedEntities)) / float64(len(sigEntities))
	}

	lexicalScore := jaccard(sig.lexical, title.lexical)

	total := KeywordWeight*keywordScore + EntityWeight*entityScore + LexicalWeight*lexicalScore

	boost := 0.0
	if signal.Kind == types.SignalSocial && signal.AuthorWeight > 0 {
		boost = signal.AuthorWeight
		total += boost
	}
	if total > 1 {
		total = 1
	}

	return types.MatchScore{
		SignalID: signal.ID,
		MarketID: market.ID,
		Score:    total,
		Factors: types.MatchFactors{
			Keyword:         keywordScore,
			Entity:          entityScore,
			Lexical:         lexicalScore,
			AuthorBoost:     boost,
			MatchedKeywords: shared,
			SharedEntities:  sharedEntities,
		},
	}
}

// Match scores a signal against every active market and returns the
// matches at or above the kind's minimum confidence, best first, capped at
// the configured maximum. Ties prefer higher keyword overlap, then higher
// lexical similarity, then the smaller market id.
func (m *Matcher) Match(signal *types.Signal, markets []types.Market) []types.MatchScore {
	minConfidence := m.minConfidence[signal.Kind]
	sig := newDocument(signal.Text)

	var matches []types.MatchScore
	for i := range markets {
		market := &markets[i]
		if !market.Active || market.Closed {
			continue
		}

		score := m.score(signal, sig, market, newDocument(market.Title))
		if score.Score < minConfidence {
			continue
		}
		matches = append(matches, score)
	}

	Sort(matches)

	if len(matches) > m.maxPerSignal {
		matches = matches[:m.maxPerSignal]
	}

	MatchesTotal.WithLabelValues(string(signal.Kind)).Add(float64(len(matches)))
	if len(matches) > 0 {
		m.logger.Debug("signal-matched",
			zap.String("signal-id", signal.ID),
			zap.Int("matches", len(matches)),
			zap.Float64("best-score", matches[0].Score))
	}

	return matches
}

// Sort orders matches deterministically, best first.
func Sort(matches []types.MatchScore) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := &matches[i], &matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Factors.Keyword != b.Factors.Keyword {
			return a.Factors.Keyword > b.Factors.Keyword
		}
		if a.Factors.Lexical != b.Factors.Lexical {
			return a.Factors.Lexical > b.Factors.Lexical
		}
		return a.MarketID < b.MarketID
	})
}
