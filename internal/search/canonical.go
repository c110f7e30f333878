package search

import (
	"sort"
	"strings"
)

// Canonical builds the deterministic text form of a scene used for text
// embedding and export: transcript first, then the strongest vision tags,
// then the matched people sorted by name. Identical inputs always produce
// identical output.
func Canonical(transcript string, tags map[string]float64, people []string, topTags int) string {
	parts := []string{}
	if t := strings.TrimSpace(transcript); t != "" {
		parts = append(parts, t)
	}
	if names := topTagNames(tags, topTags); len(names) > 0 {
		parts = append(parts, "tags: "+strings.Join(names, ", "))
	}
	if names := sortedUnique(people); len(names) > 0 {
		parts = append(parts, "people: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "\n")
}

// TrimTokens bounds text to maxTokens whitespace tokens, preferring to cut
// at the last sentence end inside the window so the embedder never sees a
// half sentence when a whole one is available.
func TrimTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) <= maxTokens {
		return text
	}
	window := tokens[:maxTokens]
	cut := -1
	for i, tok := range window {
		if endsSentence(tok) {
			cut = i
		}
	}
	if cut >= 0 {
		return strings.Join(window[:cut+1], " ")
	}
	return strings.Join(window, " ")
}

func endsSentence(tok string) bool {
	t := strings.TrimRight(tok, `"')]`)
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?")
}

// topTagNames orders tags by weight descending with name ascending as the
// tiebreak, then keeps the first n.
func topTagNames(tags map[string]float64, n int) []string {
	if len(tags) == 0 || n <= 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if tags[names[i]] != tags[names[j]] {
			return tags[names[i]] > tags[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func sortedUnique(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
