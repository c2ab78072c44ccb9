package retention

import (
	"math"
	"testing"

	"cwb/internal/extract"
)

func unit(name string, start, end int) extract.Unit {
	return extract.Unit{
		Kind: extract.KindFunction,
		Name: name,
		Full: extract.Range{Start: start, End: end},
	}
}

func TestScoreCursorUnit(t *testing.T) {
	u := unit("foo", 10, 50)
	for _, offset := range []int{10, 30, 49} {
		if got := Score(&u, &u, offset, nil); got != PriorityCursor {
			t.Errorf("Score(cursor at %d) = %v, want %v", offset, got, PriorityCursor)
		}
	}
}

func TestScoreRetentionSet(t *testing.T) {
	cursor := unit("main", 0, 100)
	far := unit("helper", 90000, 90100)

	set := NewSet("helper")
	if got := Score(&far, &cursor, 50, set); got != PriorityRetained {
		t.Errorf("exact retention match = %v, want %v", got, PriorityRetained)
	}

	// Similarity to a retained name counts as full retention.
	similar := unit("helperFunc", 90000, 90100)
	if got := Score(&similar, &cursor, 50, set); got != PriorityRetained {
		t.Errorf("retention-similar score = %v, want %v", got, PriorityRetained)
	}
}

func TestScoreCursorSimilarity(t *testing.T) {
	cursor := unit("getUserName", 0, 100)
	related := unit("getUserEmail", 5000, 5100)

	sim := Similarity("getUserName", "getUserEmail")
	if sim < SimilarityThreshold {
		t.Fatalf("Similarity(getUserName, getUserEmail) = %v, want >= %v", sim, SimilarityThreshold)
	}
	got := Score(&related, &cursor, 50, nil)
	want := 50 * sim
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("cursor-similar score = %v, want %v", got, want)
	}
}

func TestScoreProximityDecay(t *testing.T) {
	cursor := unit("alpha", 0, 100)
	near := unit("zzz", 500, 600)
	far := unit("qqq", 20000, 20100)

	cursorOffset := 50
	nearScore := Score(&near, &cursor, cursorOffset, nil)
	farScore := Score(&far, &cursor, cursorOffset, nil)
	if nearScore <= farScore {
		t.Errorf("near unit scored %v, far unit %v; want near > far", nearScore, farScore)
	}

	// 100 / (1 + 450/1000)
	want := 100 / 1.45
	if math.Abs(nearScore-want) > 1e-9 {
		t.Errorf("decay score = %v, want %v", nearScore, want)
	}
}

func TestSimilaritySymmetryAndIdentity(t *testing.T) {
	pairs := [][2]string{
		{"calculateTax", "computeTaxAmount"},
		{"getUserName", "getUserEmail"},
		{"foo", "bar"},
		{"snake_case_name", "snakeCaseName"},
		{"x", "y"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q,%q)=%v but reversed %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("Similarity(%q,%q)=%v out of range", p[0], p[1], ab)
		}
	}
	for _, s := range []string{"a", "getUserName", "HTTP_SERVER"} {
		if got := Similarity(s, s); got != 1.0 {
			t.Errorf("Similarity(%q,%q) = %v, want 1.0", s, s, got)
		}
	}
}

func TestSimilarityRelatedNames(t *testing.T) {
	if sim := Similarity("calculateTax", "computeTaxAmount"); sim <= 0 {
		t.Errorf("related names scored %v, want > 0", sim)
	}
	close := Similarity("getUserName", "getUserEmail")
	distant := Similarity("getUserName", "renderWidget")
	if close <= distant {
		t.Errorf("close pair %v should outrank distant pair %v", close, distant)
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getUserName", []string{"get", "user", "name"}},
		{"snake_case_name", []string{"snake", "case", "name"}},
		{"kebab-case", []string{"kebab", "case"}},
		{"HTTPServer", []string{"http", "server"}},
		{"parseJSON", []string{"parse", "json"}},
		{"__", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := splitWords(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitWords(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitWords(%q) = %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}

func TestSimilarityDegradesWithoutWords(t *testing.T) {
	// Pure separators produce zero words; the bigram score stands alone
	// and an empty string never panics.
	if got := Similarity("__", "getUser"); got != 0 {
		t.Errorf("Similarity(separator-only) = %v, want 0", got)
	}
	if got := Similarity("", ""); got != 0 {
		t.Errorf("Similarity empty = %v, want 0", got)
	}
	if got := Similarity("ab", ""); got != 0 {
		t.Errorf("Similarity vs empty = %v, want 0", got)
	}
}
