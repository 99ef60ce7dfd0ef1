package search

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/kiosk/internal/domain"
)

// Filter keeps descriptors matching any comma-separated term of pattern.
// A term matches a descriptor's name or id fuzzily (case and accent insensitive),
// or its category exactly. An empty pattern keeps everything.
func Filter(items []domain.MediaDescriptor, pattern string) []domain.MediaDescriptor {
	terms := splitTerms(pattern)
	if len(terms) == 0 {
		return items
	}

	kept := make([]domain.MediaDescriptor, 0, len(items))
	for _, d := range items {
		if matchesAny(d, terms) {
			kept = append(kept, d)
		}
	}
	return kept
}

func splitTerms(pattern string) []string {
	var terms []string
	for _, t := range strings.Split(pattern, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesAny(d domain.MediaDescriptor, terms []string) bool {
	for _, term := range terms {
		if c, ok := domain.ParseCategory(term); ok && c == d.Category {
			return true
		}
		if fuzzy.MatchNormalizedFold(term, d.Name) || fuzzy.MatchNormalizedFold(term, d.ID) {
			return true
		}
	}
	return false
}
