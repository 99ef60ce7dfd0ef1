package playback

import (
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
)

// EventKind identifies what changed
type EventKind string

const (
	EventSlide    EventKind = "slide"    // a new slide is on screen
	EventState    EventKind = "state"    // status or fullscreen changed
	EventProgress EventKind = "progress" // periodic countdown tick
)

// Event is published to observers on every transition and progress tick
type Event struct {
	Kind       EventKind
	SessionID  string
	Index      int
	Total      int
	Item       domain.MediaDescriptor
	Status     Status
	Progress   float64
	URL        string
	Local      bool
	Fullscreen bool
	At         time.Time
}

// Observer receives loop events. OnEvent is called without the loop's lock held
// and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// ChannelObserver forwards events to a channel, dropping them when it is full.
type ChannelObserver struct {
	ch chan<- Event
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- Event) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnEvent sends the event to the channel (non-blocking if full).
func (o *ChannelObserver) OnEvent(e Event) {
	select {
	case o.ch <- e:
	default:
	}
}
