package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/kiosk/internal/domain"
)

// DefaultTickInterval is how often progress is published while playing
const DefaultTickInterval = 100 * time.Millisecond

// Options configures a Loop
type Options struct {
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Loop plays an ordered media list as a slideshow. Each slide stays on screen for
// exactly its descriptor's duration, then the loop advances circularly.
//
// Every transition bumps a generation counter. Timer callbacks carry the generation
// they were scheduled under and do nothing once it is stale, so at most one countdown
// is ever live.
type Loop struct {
	resolver Resolver
	surface  Surface
	logger   *slog.Logger
	tick     time.Duration

	mu         sync.Mutex
	sessionID  string
	items      []domain.MediaDescriptor
	index      int
	status     Status
	fullscreen bool
	url        string
	local      bool
	started    bool
	closed     bool

	gen       uint64
	countdown *time.Timer
	ticker    *time.Timer
	startedAt time.Time     // when the running countdown was last (re)scheduled
	banked    time.Duration // elapsed time accrued before the last pause

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewLoop creates a loop. A nil surface renders nothing.
func NewLoop(resolver Resolver, surface Surface, opts Options) *Loop {
	if surface == nil {
		surface = nopSurface{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	sessionID := uuid.NewString()
	return &Loop{
		resolver:  resolver,
		surface:   surface,
		logger:    logger.With("session", sessionID),
		tick:      tick,
		sessionID: sessionID,
		status:    StatusEmpty,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers o for events and returns a function that removes it
func (l *Loop) Subscribe(o Observer) func() {
	l.obsMu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = o
	l.obsMu.Unlock()

	return func() {
		l.obsMu.Lock()
		delete(l.observers, id)
		l.obsMu.Unlock()
	}
}

// SessionID identifies this loop in logs and events
func (l *Loop) SessionID() string {
	return l.sessionID
}

// === Lifecycle ===

// Load replaces the media list and rewinds to the first item. Invalid descriptors
// are dropped. A loop that was already started keeps playing the new list.
func (l *Loop) Load(items []domain.MediaDescriptor) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	l.invalidateLocked()
	l.stopSurfaceLocked()
	l.items = l.items[:0:0]
	for _, d := range items {
		if err := d.Validate(); err != nil {
			l.logger.Warn("skipping invalid media", "id", d.ID, "error", err)
			continue
		}
		l.items = append(l.items, d)
	}
	l.index = 0
	l.url, l.local = "", false
	l.banked = 0

	var events []Event
	switch {
	case len(l.items) == 0:
		l.status = StatusEmpty
		events = append(events, l.eventLocked(EventState))
	case l.started:
		l.status = StatusLoading
		events = append(events, l.eventLocked(EventState))
		events = append(events, l.showLocked(0)...)
	default:
		l.status = StatusLoading
		events = append(events, l.eventLocked(EventState))
	}
	l.logger.Info("media list loaded", "items", len(l.items))
	l.mu.Unlock()

	l.publish(events...)
}

// Start begins playback at the current index
func (l *Loop) Start() {
	l.mu.Lock()
	if l.closed || l.started {
		l.mu.Unlock()
		return
	}
	l.started = true

	var events []Event
	if len(l.items) == 0 {
		l.status = StatusEmpty
		events = append(events, l.eventLocked(EventState))
	} else {
		events = l.showLocked(l.index)
	}
	l.mu.Unlock()

	l.publish(events...)
}

// Close cancels all timers and stops the surface. The loop is unusable afterwards.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.invalidateLocked()
	l.stopSurfaceLocked()
}

// === Navigation ===

// Advance moves to the next item, wrapping after the last
func (l *Loop) Advance() {
	l.navigate(func(i, n int) int { return (i + 1) % n })
}

// Retreat moves to the previous item, wrapping before the first
func (l *Loop) Retreat() {
	l.navigate(func(i, n int) int { return (i - 1 + n) % n })
}

// Jump moves to item i
func (l *Loop) Jump(i int) error {
	l.mu.Lock()
	if i < 0 || i >= len(l.items) {
		n := len(l.items)
		l.mu.Unlock()
		return fmt.Errorf("jump to %d of %d: %w", i, n, domain.ErrIndexOutOfRange)
	}
	l.mu.Unlock()

	l.navigate(func(int, int) int { return i })
	return nil
}

func (l *Loop) navigate(next func(i, n int) int) {
	l.mu.Lock()
	if l.closed || len(l.items) == 0 {
		l.mu.Unlock()
		return
	}
	target := next(l.index, len(l.items))
	if target < 0 || target >= len(l.items) {
		l.mu.Unlock()
		return
	}
	l.started = true
	events := l.showLocked(target)
	l.mu.Unlock()

	l.publish(events...)
}

// === Play/pause ===

// Pause freezes the countdown, keeping the elapsed time
func (l *Loop) Pause() {
	l.mu.Lock()
	if l.closed || l.status != StatusPlaying {
		l.mu.Unlock()
		return
	}
	l.banked += time.Since(l.startedAt)
	l.invalidateLocked()
	l.status = StatusPaused
	if err := l.surface.Pause(); err != nil {
		l.logger.Warn("surface pause failed", "error", err)
	}
	events := []Event{l.eventLocked(EventState)}
	l.mu.Unlock()

	l.publish(events...)
}

// Resume continues the countdown with the remaining time
func (l *Loop) Resume() {
	l.mu.Lock()
	if l.closed || l.status != StatusPaused {
		l.mu.Unlock()
		return
	}
	l.invalidateLocked()
	l.status = StatusPlaying
	if err := l.surface.Resume(); err != nil {
		l.logger.Warn("surface resume failed", "error", err)
	}
	l.scheduleLocked()
	events := []Event{l.eventLocked(EventState)}
	l.mu.Unlock()

	l.publish(events...)
}

// TogglePlayPause pauses a playing loop and resumes a paused one
func (l *Loop) TogglePlayPause() {
	switch l.State().Status {
	case StatusPlaying:
		l.Pause()
	case StatusPaused:
		l.Resume()
	}
}

// ToggleFullscreen flips the fullscreen flag on the surface
func (l *Loop) ToggleFullscreen() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.fullscreen = !l.fullscreen
	if err := l.surface.SetFullscreen(l.fullscreen); err != nil {
		l.logger.Warn("surface fullscreen failed", "error", err)
	}
	events := []Event{l.eventLocked(EventState)}
	l.mu.Unlock()

	l.publish(events...)
}

// === Queries ===

// State returns a snapshot of the loop
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		SessionID:   l.sessionID,
		Items:       append([]domain.MediaDescriptor(nil), l.items...),
		Index:       l.index,
		Status:      l.status,
		Elapsed:     l.elapsedLocked(),
		ResolvedURL: l.url,
		Local:       l.local,
		Fullscreen:  l.fullscreen,
	}
}

// Progress returns the current slide's elapsed fraction in [0,1]
func (l *Loop) Progress() float64 {
	return l.State().Progress()
}

// === Internals (l.mu held) ===

// showLocked puts item i on screen and starts its countdown. A paused loop stays
// paused on the new slide.
func (l *Loop) showLocked(i int) []Event {
	l.invalidateLocked()
	l.stopSurfaceLocked()

	d := l.items[i]
	l.index = i
	l.banked = 0

	l.url, l.local = d.URL, false
	if l.resolver != nil {
		if local, ok := l.resolver.ResolveLocalURL(d.ID); ok {
			l.url, l.local = local, true
		}
	}
	if !l.local {
		l.logger.Debug("media not cached, using remote url", "id", d.ID)
	}

	// A slide that cannot be rendered still holds the screen for its duration
	if err := l.surface.Show(d, l.url); err != nil {
		l.logger.Warn("failed to show media", "id", d.ID, "url", l.url, "error", err)
	}

	if l.status == StatusPaused {
		if err := l.surface.Pause(); err != nil {
			l.logger.Warn("surface pause failed", "error", err)
		}
		l.startedAt = time.Now()
	} else {
		l.status = StatusPlaying
		l.scheduleLocked()
	}

	l.logger.Info("showing slide", "index", i, "id", d.ID, "name", d.Name, "type", d.Type, "duration", d.Duration, "local", l.local)
	return []Event{l.eventLocked(EventSlide), l.eventLocked(EventState)}
}

// scheduleLocked arms the countdown for the remaining time and the progress ticker
func (l *Loop) scheduleLocked() {
	gen := l.gen
	remaining := l.items[l.index].Duration - l.banked
	if remaining < 0 {
		remaining = 0
	}
	l.startedAt = time.Now()
	l.countdown = time.AfterFunc(remaining, func() { l.expire(gen) })
	l.ticker = time.AfterFunc(l.tick, func() { l.onTick(gen) })
}

// invalidateLocked makes every outstanding timer callback stale and stops them
func (l *Loop) invalidateLocked() {
	l.gen++
	if l.countdown != nil {
		l.countdown.Stop()
		l.countdown = nil
	}
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
}

func (l *Loop) stopSurfaceLocked() {
	if err := l.surface.Stop(); err != nil {
		l.logger.Warn("surface stop failed", "error", err)
	}
}

func (l *Loop) elapsedLocked() time.Duration {
	if l.status == StatusPlaying {
		return l.banked + time.Since(l.startedAt)
	}
	return l.banked
}

func (l *Loop) eventLocked(kind EventKind) Event {
	e := Event{
		Kind:       kind,
		SessionID:  l.sessionID,
		Index:      l.index,
		Total:      len(l.items),
		Status:     l.status,
		URL:        l.url,
		Local:      l.local,
		Fullscreen: l.fullscreen,
		At:         time.Now(),
	}
	if l.index < len(l.items) {
		e.Item = l.items[l.index]
		if d := e.Item.Duration; d > 0 {
			e.Progress = min(float64(l.elapsedLocked())/float64(d), 1)
		}
	}
	return e
}

// === Timer callbacks ===

func (l *Loop) expire(gen uint64) {
	l.mu.Lock()
	if l.closed || gen != l.gen || l.status != StatusPlaying {
		l.mu.Unlock()
		return
	}
	next := (l.index + 1) % len(l.items)
	events := l.showLocked(next)
	l.mu.Unlock()

	l.publish(events...)
}

func (l *Loop) onTick(gen uint64) {
	l.mu.Lock()
	if l.closed || gen != l.gen || l.status != StatusPlaying {
		l.mu.Unlock()
		return
	}
	events := []Event{l.eventLocked(EventProgress)}
	l.ticker = time.AfterFunc(l.tick, func() { l.onTick(gen) })
	l.mu.Unlock()

	l.publish(events...)
}

func (l *Loop) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	l.obsMu.Lock()
	observers := make([]Observer, 0, len(l.observers))
	for _, o := range l.observers {
		observers = append(observers, o)
	}
	l.obsMu.Unlock()

	for _, e := range events {
		for _, o := range observers {
			o.OnEvent(e)
		}
	}
}
