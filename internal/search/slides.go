package search

import (
	"strings"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Match is a ranked slide lookup result
type Match struct {
	Index          int // position in the playlist
	Item           domain.MediaDescriptor
	MatchedIndexes []int // matched rune positions in Item.Name, for highlighting
	Score          int   // higher is better
}

// SlideIndex implements sahilm/fuzzy.Source over slide names
type SlideIndex struct {
	items []domain.MediaDescriptor
	lower []string // pre-computed lowercase names
}

// NewSlideIndex indexes items by name
func NewSlideIndex(items []domain.MediaDescriptor) *SlideIndex {
	idx := &SlideIndex{
		items: items,
		lower: make([]string, len(items)),
	}
	for i, d := range items {
		idx.lower[i] = strings.ToLower(d.Name)
	}
	return idx
}

// String returns the lowercase name at index i (implements fuzzy.Source)
func (idx *SlideIndex) String(i int) string { return idx.lower[i] }

// Len returns the number of slides (implements fuzzy.Source)
func (idx *SlideIndex) Len() int { return len(idx.items) }

// Find ranks slides against query, best first. An empty query matches nothing.
func (idx *SlideIndex) Find(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || idx.Len() == 0 {
		return nil
	}

	found := fuzzy.FindFrom(query, idx)
	matches := make([]Match, len(found))
	for i, m := range found {
		matches[i] = Match{
			Index:          m.Index,
			Item:           idx.items[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return matches
}

// Best returns the playlist index of the top match
func (idx *SlideIndex) Best(query string) (int, bool) {
	matches := idx.Find(query)
	if len(matches) == 0 {
		return 0, false
	}
	return matches[0].Index, true
}
