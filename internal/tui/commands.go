package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
)

// PreCacheCmd runs the pre-cache pass with streaming progress updates using channels.
// Uses a continuation pattern to pump all progress messages to the UI.
// Extra observers receive the same progress reports.
func PreCacheCmd(
	ctx context.Context,
	cacher Precacher,
	items []domain.MediaDescriptor,
	observers ...domain.ProgressObserver,
) tea.Cmd {
	return func() tea.Msg {
		// Two reports per item, so the observer never has to drop one
		progressCh := make(chan domain.CacheProgress, 2*len(items)+1)
		doneCh := make(chan PreCacheDoneMsg, 1)
		all := append([]domain.ProgressObserver{NewChannelObserver(progressCh)}, observers...)

		go func() {
			summary, err := cacher.PreCacheAll(ctx, items, func(completed, total int, name string, status domain.ProgressStatus) {
				p := domain.CacheProgress{Completed: completed, Total: total, Name: name, Status: status}
				for _, o := range all {
					o.OnProgress(p)
				}
			})
			close(progressCh)
			doneCh <- PreCacheDoneMsg{Summary: summary, Err: err}
		}()

		return readPreCacheProgress(progressCh, doneCh)
	}
}

// readPreCacheProgress reads one message from the channel and attaches the continuation
// command. Once the channel is drained the final summary is returned.
func readPreCacheProgress(progressCh <-chan domain.CacheProgress, doneCh <-chan PreCacheDoneMsg) tea.Msg {
	progress, ok := <-progressCh
	if !ok {
		return <-doneCh
	}
	return CacheProgressMsg{
		Progress: progress,
		NextCmd:  listenPreCacheCmd(progressCh, doneCh),
	}
}

func listenPreCacheCmd(progressCh <-chan domain.CacheProgress, doneCh <-chan PreCacheDoneMsg) tea.Cmd {
	return func() tea.Msg {
		return readPreCacheProgress(progressCh, doneCh)
	}
}

// ListenPlaybackCmd waits for the next playback event
func ListenPlaybackCmd(events <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		return PlaybackEventMsg{Event: <-events}
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
