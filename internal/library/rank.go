package library

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for a title that
	// shares a Double Metaphone code with the query.
	phoneticThreshold = 0.70

	// fuzzyThreshold is the minimum score for a title with no phonetic
	// overlap.
	fuzzyThreshold = 0.85
)

// query is a search string prepared once for ranking against many titles.
type query struct {
	full   string
	tokens []string
	codes  map[string]struct{}
}

func newQuery(s string) query {
	tokens := tokenize(s)
	return query{
		full:   strings.Join(tokens, " "),
		tokens: tokens,
		codes:  codesForTokens(tokens),
	}
}

// score rates how well title matches q in [0, 1]. A title containing the
// whole query scores 1. ok is false when the title should not be listed.
func (q query) score(title string) (score float64, ok bool) {
	if q.full == "" {
		return 0, false
	}
	tt := tokenize(title)
	full := strings.Join(tt, " ")
	if strings.Contains(full, q.full) {
		return 1, true
	}

	jw := bestJWScore(q.tokens, tt, q.full, full)
	if codesOverlap(q.codes, codesForTokens(tt)) && jw >= phoneticThreshold {
		return jw, true
	}
	return jw, jw >= fuzzyThreshold
}

// tokenize lower-cases s and splits it on anything that is not a letter or
// digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings
// and the space-stripped strings. A single-word query of three or more
// letters is also compared with each title word.
func bestJWScore(queryTokens, titleTokens []string, queryFull, titleFull string) float64 {
	score := matchr.JaroWinkler(queryFull, titleFull, false)

	if len(queryTokens) > 1 || len(titleTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(queryTokens, ""), strings.Join(titleTokens, ""), false); s > score {
			score = s
		}
	}

	if len(queryTokens) == 1 && len([]rune(queryTokens[0])) >= 3 {
		for _, tt := range titleTokens {
			if s := matchr.JaroWinkler(queryTokens[0], tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
