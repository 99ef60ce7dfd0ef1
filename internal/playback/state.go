package playback

import (
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
)

// Status is the loop's run state
type Status string

const (
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEmpty   Status = "empty"
)

// State is a snapshot of the loop. It is never persisted.
type State struct {
	SessionID   string
	Items       []domain.MediaDescriptor
	Index       int
	Status      Status
	Elapsed     time.Duration
	ResolvedURL string
	Local       bool // ResolvedURL points at the local cache
	Fullscreen  bool
}

// Current returns the descriptor at Index
func (s State) Current() (domain.MediaDescriptor, bool) {
	if s.Index < 0 || s.Index >= len(s.Items) {
		return domain.MediaDescriptor{}, false
	}
	return s.Items[s.Index], true
}

// Progress returns elapsed/duration of the current slide in [0,1]
func (s State) Progress() float64 {
	d, ok := s.Current()
	if !ok || d.Duration <= 0 {
		return 0
	}
	p := float64(s.Elapsed) / float64(d.Duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
