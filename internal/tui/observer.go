package tui

import "github.com/mmcdole/kiosk/internal/domain"

// ChannelObserver adapts domain.ProgressObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.CacheProgress
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.CacheProgress) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnProgress sends progress to the channel (non-blocking if full).
func (o *ChannelObserver) OnProgress(progress domain.CacheProgress) {
	select {
	case o.ch <- progress:
	default: // Non-blocking if channel full
	}
}
