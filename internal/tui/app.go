package tui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
	"github.com/mmcdole/kiosk/internal/search"
	"github.com/mmcdole/kiosk/internal/tui/components"
	"github.com/mmcdole/kiosk/internal/tui/styles"
)

// Screen is the top-level view being shown
type Screen int

const (
	ScreenPreCache Screen = iota
	ScreenSlideshow
)

const tickInterval = 100 * time.Millisecond

// Precacher downloads the media list before playback (consumer-defined interface)
type Precacher interface {
	PreCacheAll(ctx context.Context, ds []domain.MediaDescriptor, onProgress domain.ProgressFunc) (domain.CacheSummary, error)
}

// Player is the slideshow loop driven by the console (consumer-defined interface)
type Player interface {
	Load(items []domain.MediaDescriptor)
	Start()
	Advance()
	Retreat()
	Jump(i int) error
	TogglePlayPause()
	ToggleFullscreen()
	State() playback.State
	Subscribe(o playback.Observer) func()
}

// Options wires the console to the cache and the playback loop
type Options struct {
	Title        string // display name shown in the header
	Source       string // where the display configuration came from
	Items        []domain.MediaDescriptor
	Cache        Precacher
	Player       Player
	Connectivity domain.Connectivity
	Observers    []domain.ProgressObserver // also receive pre-cache progress
	OnPreCached  func(domain.CacheSummary, error)
	Logger       *slog.Logger
}

// Model is the main Bubble Tea model for the application
type Model struct {
	Screen Screen
	Width  int
	Height int

	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	events chan playback.Event

	// Pre-cache state
	Progress domain.CacheProgress
	Summary  *domain.CacheSummary

	// Slideshow state
	Playback      playback.State
	SlideProgress float64
	Online        bool

	// UI components
	CacheBar components.ProgressBar
	SlideBar components.ProgressBar
	Jump     components.JumpModal
	Help     help.Model

	StatusMsg    string
	StatusIsErr  bool
	SpinnerFrame int
}

// NewModel creates a new application model and subscribes it to the player
func NewModel(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Connectivity == nil {
		opts.Connectivity = domain.AlwaysOnline{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan playback.Event, 64)
	opts.Player.Subscribe(playback.NewChannelObserver(events))

	jump := components.NewJumpModal()
	jump.SetIndex(search.NewSlideIndex(opts.Items))

	return Model{
		Screen:   ScreenPreCache,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		events:   events,
		Online:   opts.Connectivity.Online(),
		CacheBar: components.NewProgressBar(progress.WithSolidFill(string(styles.Amber))),
		SlideBar: components.NewProgressBar(progress.WithSolidFill(string(styles.Green))),
		Jump:     jump,
		Help:     help.New(),
	}
}

// Init starts pre-caching and begins listening for playback events
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		PreCacheCmd(m.ctx, m.opts.Cache, m.opts.Items, m.opts.Observers...),
		ListenPlaybackCmd(m.events),
		TickCmd(tickInterval),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		m.Online = m.opts.Connectivity.Online()
		return m, TickCmd(tickInterval)

	case CacheProgressMsg:
		m.Progress = msg.Progress
		if next, ok := msg.NextCmd.(tea.Cmd); ok {
			return m, next
		}
		return m, nil

	case PreCacheDoneMsg:
		return m.startSlideshow(msg)

	case PlaybackEventMsg:
		m.SlideProgress = msg.Event.Progress
		if msg.Event.Kind != playback.EventProgress {
			m.Playback = m.opts.Player.State()
		}
		return m, ListenPlaybackCmd(m.events)

	case StatusMsg:
		m.StatusMsg = msg.Message
		m.StatusIsErr = msg.IsError
		return m, ClearStatusCmd(3 * time.Second)

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil

	case ErrMsg:
		m.StatusMsg = msg.Error()
		m.StatusIsErr = true
		return m, nil
	}

	if m.Jump.IsVisible() {
		var cmd tea.Cmd
		m.Jump, cmd, _ = m.Jump.Update(msg)
		return m, cmd
	}
	return m, nil
}

// startSlideshow hands the media list to the player once pre-caching is over.
// Failed items still play from their remote URL.
func (m Model) startSlideshow(msg PreCacheDoneMsg) (tea.Model, tea.Cmd) {
	summary := msg.Summary
	m.Summary = &summary
	m.Screen = ScreenSlideshow

	if m.opts.OnPreCached != nil {
		m.opts.OnPreCached(summary, msg.Err)
	}

	var cmd tea.Cmd
	if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
		m.logger.Error("pre-cache failed", "error", msg.Err)
		cmd = func() tea.Msg { return ErrMsg{Err: msg.Err, Context: "Pre-cache"} }
	}

	m.opts.Player.Load(m.opts.Items)
	m.opts.Player.Start()
	m.Playback = m.opts.Player.State()
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.Jump.IsVisible() {
		var cmd tea.Cmd
		var selected bool
		m.Jump, cmd, selected = m.Jump.Update(msg)
		if selected {
			idx, _ := m.Jump.Selected()
			m.Jump.Hide()
			if err := m.opts.Player.Jump(idx); err != nil {
				return m, func() tea.Msg { return ErrMsg{Err: err, Context: "Jump"} }
			}
			m.Playback = m.opts.Player.State()
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, Keys.Quit), key.Matches(msg, Keys.Escape):
		m.cancel()
		return m, tea.Quit
	}

	// Controls only apply once the slideshow is running
	if m.Screen != ScreenSlideshow {
		return m, nil
	}

	switch {
	case key.Matches(msg, Keys.PlayPause):
		m.opts.Player.TogglePlayPause()
	case key.Matches(msg, Keys.Next):
		m.opts.Player.Advance()
	case key.Matches(msg, Keys.Prev):
		m.opts.Player.Retreat()
	case key.Matches(msg, Keys.Fullscreen):
		m.opts.Player.ToggleFullscreen()
	case key.Matches(msg, Keys.Jump):
		m.Jump.Show()
		return m, nil
	default:
		return m, nil
	}

	m.Playback = m.opts.Player.State()
	return m, nil
}

// updateLayout updates component sizes based on window size
func (m *Model) updateLayout() {
	if m.Width == 0 || m.Height == 0 {
		return
	}
	barWidth := min(max(m.Width-8, 10), 60)
	m.CacheBar.SetWidth(barWidth)
	m.SlideBar.SetWidth(barWidth)
	m.Jump.SetSize(m.Width, m.Height)
	m.Help.Width = m.Width
}

// View renders the current screen
func (m Model) View() string {
	if m.Jump.IsVisible() {
		return m.Jump.View()
	}
	switch m.Screen {
	case ScreenPreCache:
		return m.renderPreCache()
	default:
		return m.renderSlideshow()
	}
}
