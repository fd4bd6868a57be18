package matcher

import (
	"regexp"
	"strings"
	"unicode"
)

//nolint:gochecknoglobals // compiled once
var entityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)

//nolint:gochecknoglobals // read-only lookup
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "will": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "had": {},
	"but": {}, "not": {}, "its": {}, "into": {}, "over": {}, "after": {}, "before": {},
	"than": {}, "what": {}, "who": {}, "when": {}, "which": {}, "about": {}, "any": {},
	"all": {}, "our": {}, "they": {}, "their": {}, "there": {}, "been": {}, "being": {},
	"end": {}, "new": {}, "say": {}, "said": {}, "says": {},
}

// tokenize lower-cases text, splits on non-alphanumerics and folds simple
// plurals so "rates" and "rate" compare equal.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, stem(f))
	}
	return tokens
}

func stem(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return token[:len(token)-1]
	}
	return token
}

// lexicalSet is the set of content words used for Jaccard similarity.
func lexicalSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || isNumeric(tok) {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func jaccard(a map[string]struct{}, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared

	return float64(shared) / float64(union)
}

// containsPhrase reports whether the token sequence of phrase occurs in tokens.
func containsPhrase(tokens []string, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}

outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j := range phrase {
			if tokens[i+j] != phrase[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// entities extracts capitalised word runs, a cheap proxy for named entities.
func entities(text string) []string {
	matches := entityPattern.FindAllString(text, -1)

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
