package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrecacher struct {
	summary domain.CacheSummary
	err     error
}

func (f fakePrecacher) PreCacheAll(_ context.Context, ds []domain.MediaDescriptor, onProgress domain.ProgressFunc) (domain.CacheSummary, error) {
	for i, d := range ds {
		onProgress(i, len(ds), d.Name, domain.StatusDownloading)
		onProgress(i+1, len(ds), d.Name, domain.StatusComplete)
	}
	return f.summary, f.err
}

type recordingObserver struct {
	got []domain.CacheProgress
}

func (r *recordingObserver) OnProgress(p domain.CacheProgress) { r.got = append(r.got, p) }

func testItems() []domain.MediaDescriptor {
	return []domain.MediaDescriptor{
		{ID: "a", Name: "Alpha Promo", URL: "https://cdn/a.jpg", Type: domain.MediaTypeImage, Duration: time.Minute, Category: domain.CategoryPromotion},
		{ID: "b", Name: "Beta Video", URL: "https://cdn/b.mp4", Type: domain.MediaTypeVideo, Duration: time.Minute},
		{ID: "c", Name: "Gamma Store", URL: "https://cdn/c.jpg", Type: domain.MediaTypeImage, Duration: time.Minute},
	}
}

func newTestModel(t *testing.T, cacher Precacher) (Model, *playback.Loop) {
	t.Helper()
	loop := playback.NewLoop(nil, nil, playback.Options{})
	t.Cleanup(loop.Close)

	m := NewModel(Options{
		Title:  "Lobby",
		Items:  testItems(),
		Cache:  cacher,
		Player: loop,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), loop
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestPreCacheCmd_StreamsProgressThenSummary(t *testing.T) {
	want := domain.CacheSummary{CachedCount: 3}
	extra := &recordingObserver{}
	cmd := PreCacheCmd(context.Background(), fakePrecacher{summary: want}, testItems(), extra)

	var progress []domain.CacheProgress
	msg := cmd()
	for {
		p, ok := msg.(CacheProgressMsg)
		if !ok {
			break
		}
		progress = append(progress, p.Progress)
		msg = p.NextCmd.(tea.Cmd)()
	}

	done, ok := msg.(PreCacheDoneMsg)
	require.True(t, ok)
	assert.Equal(t, want, done.Summary)
	require.Len(t, progress, 6)
	assert.Equal(t, domain.CacheProgress{Completed: 0, Total: 3, Name: "Alpha Promo", Status: domain.StatusDownloading}, progress[0])
	assert.Equal(t, domain.CacheProgress{Completed: 3, Total: 3, Name: "Gamma Store", Status: domain.StatusComplete}, progress[5])
	assert.Equal(t, progress, extra.got)
}

func TestModel_ProgressUpdatesPreCacheScreen(t *testing.T) {
	m, _ := newTestModel(t, fakePrecacher{})

	m, _ = update(t, m, CacheProgressMsg{Progress: domain.CacheProgress{Completed: 1, Total: 3, Name: "Beta Video", Status: domain.StatusDownloading}})

	assert.Equal(t, ScreenPreCache, m.Screen)
	assert.Contains(t, m.View(), "1/3 · Beta Video")
}

func TestModel_PreCacheDoneStartsSlideshow(t *testing.T) {
	var gotSummary domain.CacheSummary
	loop := playback.NewLoop(nil, nil, playback.Options{})
	t.Cleanup(loop.Close)
	m := NewModel(Options{
		Items:       testItems(),
		Cache:       fakePrecacher{},
		Player:      loop,
		OnPreCached: func(s domain.CacheSummary, _ error) { gotSummary = s },
	})

	summary := domain.CacheSummary{CachedCount: 2, FailedCount: 1, TotalCacheSizeBytes: 45 * 1024 * 1024, Failed: []string{"c"}}
	m, _ = update(t, m, PreCacheDoneMsg{Summary: summary})

	assert.Equal(t, ScreenSlideshow, m.Screen)
	assert.Equal(t, summary, gotSummary)
	assert.Equal(t, playback.StatusPlaying, loop.State().Status)
	assert.Len(t, loop.State().Items, 3)

	view := m.View()
	assert.Contains(t, view, "Alpha Promo")
	assert.Contains(t, view, "Slide 1/3")
	assert.Contains(t, view, "2 of 3 cached, 1 failed, 45MB used")
	assert.Contains(t, view, "remote")
}

func TestModel_PreCacheErrorStillPlays(t *testing.T) {
	m, loop := newTestModel(t, fakePrecacher{})

	m, cmd := update(t, m, PreCacheDoneMsg{Err: &domain.StorageFailure{Op: "put", Err: errors.New("disk full")}})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, playback.StatusPlaying, loop.State().Status)
	assert.True(t, m.StatusIsErr)
	assert.Contains(t, m.StatusMsg, "disk full")
}

func TestModel_PlaybackKeys(t *testing.T) {
	m, loop := newTestModel(t, fakePrecacher{})
	m, _ = update(t, m, PreCacheDoneMsg{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 1, loop.State().Index)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, loop.State().Index)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Equal(t, playback.StatusPaused, loop.State().Status)
	assert.Equal(t, playback.StatusPaused, m.Playback.Status)
	assert.Contains(t, m.View(), "paused")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, playback.StatusPlaying, loop.State().Status)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	assert.True(t, loop.State().Fullscreen)
	assert.Contains(t, m.View(), "fullscreen")
}

func TestModel_ControlsIgnoredWhilePreCaching(t *testing.T) {
	m, loop := newTestModel(t, fakePrecacher{})

	_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})

	assert.Equal(t, playback.StatusEmpty, loop.State().Status)
}

func TestModel_FuzzyJump(t *testing.T) {
	m, loop := newTestModel(t, fakePrecacher{})
	m, _ = update(t, m, PreCacheDoneMsg{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	require.True(t, m.Jump.IsVisible())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("gamma")})
	require.NotEmpty(t, m.Jump.Results())
	assert.Contains(t, m.View(), "Gamma Store")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.Jump.IsVisible())
	assert.Equal(t, 2, loop.State().Index)
	assert.Equal(t, 2, m.Playback.Index)
}

func TestModel_JumpEscapeKeepsSlide(t *testing.T) {
	m, loop := newTestModel(t, fakePrecacher{})
	m, _ = update(t, m, PreCacheDoneMsg{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Nil(t, cmd)
	assert.False(t, m.Jump.IsVisible())
	assert.Equal(t, 0, loop.State().Index)
}

func TestModel_QuitCancelsPreCache(t *testing.T) {
	m, _ := newTestModel(t, fakePrecacher{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

func TestModel_PlaybackEventsRefreshState(t *testing.T) {
	m, _ := newTestModel(t, fakePrecacher{})
	m, _ = update(t, m, PreCacheDoneMsg{})

	m, cmd := update(t, m, PlaybackEventMsg{Event: playback.Event{Kind: playback.EventProgress, Progress: 0.4}})
	assert.InDelta(t, 0.4, m.SlideProgress, 1e-9)
	assert.NotNil(t, cmd)
}

func TestModel_OnlineBadge(t *testing.T) {
	m, _ := newTestModel(t, fakePrecacher{})
	m.opts.Connectivity = offline{}

	m, _ = update(t, m, TickMsg{})

	assert.False(t, m.Online)
	assert.Contains(t, m.View(), "OFFLINE")
}

type offline struct{}

func (offline) Online() bool { return false }
