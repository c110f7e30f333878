package search

import (
	"strings"
	"testing"
)

func TestCanonicalOrdering(t *testing.T) {
	tags := map[string]float64{"beach": 0.9, "person": 0.95, "sunset": 0.4, "dog": 0.4}
	got := Canonical("waves crashing on the shore", tags, []string{"Noor", "Ada", "Ada"}, 3)
	want := "waves crashing on the shore\ntags: person, beach, dog\npeople: Ada, Noor"
	if got != want {
		t.Fatalf("Canonical = %q, want %q", got, want)
	}
}

func TestCanonicalDeterministic(t *testing.T) {
	tags := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}
	first := Canonical("x", tags, []string{"p2", "p1"}, 2)
	for i := 0; i < 20; i++ {
		if got := Canonical("x", tags, []string{"p2", "p1"}, 2); got != first {
			t.Fatalf("iteration %d produced %q, first run produced %q", i, got, first)
		}
	}
	// Equal weights break ties by name.
	if !strings.Contains(first, "tags: a, b") {
		t.Fatalf("tie-break not alphabetical: %q", first)
	}
}

func TestCanonicalEmptyPieces(t *testing.T) {
	if got := Canonical("", nil, nil, 5); got != "" {
		t.Fatalf("empty input produced %q", got)
	}
	if got := Canonical("  only transcript  ", nil, nil, 5); got != "only transcript" {
		t.Fatalf("got %q", got)
	}
	if got := Canonical("", map[string]float64{"cat": 1}, nil, 5); got != "tags: cat" {
		t.Fatalf("got %q", got)
	}
}

func TestTrimTokensUnderLimitUntouched(t *testing.T) {
	text := "one two three."
	if got := TrimTokens(text, 10); got != text {
		t.Fatalf("got %q, want unchanged", got)
	}
	if got := TrimTokens(text, 0); got != text {
		t.Fatalf("zero limit should disable trimming, got %q", got)
	}
}

func TestTrimTokensCutsAtSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence is longer. Third one never fits at all"
	got := TrimTokens(text, 7)
	want := "First sentence here."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTrimTokensHardCutWithoutBoundary(t *testing.T) {
	text := "words without any punctuation keep going forever and ever"
	got := TrimTokens(text, 4)
	want := "words without any punctuation"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTrimTokensBoundaryInsideQuotes(t *testing.T) {
	text := `she said "stop." and then the scene cut away to the street outside`
	got := TrimTokens(text, 5)
	want := `she said "stop."`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
