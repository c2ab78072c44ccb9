package retention

import (
	"math"
	"strings"
	"unicode"

	"cwb/internal/extract"
)

// Priorities for the fixed scoring rules. Anything at or above
// PriorityRetained is emitted verbatim by the assembler.
const (
	PriorityCursor   = 1000.0
	PriorityRetained = 100.0

	// SimilarityThreshold is the minimum name similarity for a unit to be
	// considered related to the cursor unit or a retained name.
	SimilarityThreshold = 0.6
)

// Set is a caller-supplied collection of names that must survive collapsing
// regardless of distance from the cursor. It lives for a single assembly
// request.
type Set map[string]struct{}

// NewSet builds a retention set from a list of names. Empty names are
// dropped.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Contains reports exact membership.
func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the members in unspecified order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	return out
}

// Score computes the retention priority of a unit relative to the cursor.
// Rules are evaluated in order, first match wins:
//
//  1. the unit contains the cursor: PriorityCursor
//  2. the unit's name is in the retention set: PriorityRetained
//  3. the unit's name is similar (>= SimilarityThreshold) to a retained
//     name: PriorityRetained, or to the cursor unit's name: 50 * similarity
//  4. proximity decay: 100 / (1 + distance/1000)
func Score(unit *extract.Unit, cursorUnit *extract.Unit, cursorOffset int, set Set) float64 {
	if unit.ContainsOffset(cursorOffset) {
		return PriorityCursor
	}
	if unit.Name != "" {
		if set.Contains(unit.Name) {
			return PriorityRetained
		}
		for name := range set {
			if Similarity(unit.Name, name) >= SimilarityThreshold {
				return PriorityRetained
			}
		}
		if cursorUnit != nil && cursorUnit.Name != "" {
			if sim := Similarity(unit.Name, cursorUnit.Name); sim >= SimilarityThreshold {
				return 50 * sim
			}
		}
	}
	distance := math.Abs(float64(unit.Full.Start - cursorOffset))
	return 100 / (1 + distance/1000)
}

// Similarity measures how related two identifiers are, in [0, 1]. Each
// identifier is split into words at camelCase boundaries and _ and -
// separators; word-frequency cosine similarity is blended with character
// bigram cosine similarity of the raw lower-cased strings at 0.7/0.3. When
// either identifier yields no words the bigram score stands alone.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	charSim := cosine(bigramCounts(strings.ToLower(a)), bigramCounts(strings.ToLower(b)))

	wordsA := splitWords(a)
	wordsB := splitWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return charSim
	}
	wordSim := cosine(wordCounts(wordsA), wordCounts(wordsB))
	return 0.7*wordSim + 0.3*charSim
}

// splitWords breaks an identifier into lower-cased words. Boundaries are
// underscores, hyphens, lower-to-upper transitions, and the last upper of an
// acronym run followed by a lower (HTTPServer yields http, server).
func splitWords(ident string) []string {
	var words []string
	var current []rune
	runes := []rune(ident)

	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && len(current) > 0) {
				flush()
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func wordCounts(words []string) map[string]int {
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	return counts
}

func bigramCounts(s string) map[string]int {
	runes := []rune(s)
	counts := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		counts[string(runes[i:i+2])]++
	}
	return counts
}

func cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for k, va := range a {
		normA += float64(va * va)
		if vb, ok := b[k]; ok {
			dot += float64(va * vb)
		}
	}
	for _, vb := range b {
		normB += float64(vb * vb)
	}
	if dot == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}
