package tui

import (
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// CacheProgressMsg is sent for each pre-cache progress report
type CacheProgressMsg struct {
	Progress domain.CacheProgress
	NextCmd  interface{} // Continuation command (tea.Cmd) for streaming
}

// PreCacheDoneMsg signals that the pre-cache pass finished
type PreCacheDoneMsg struct {
	Summary domain.CacheSummary
	Err     error
}

// PlaybackEventMsg wraps an event from the playback loop
type PlaybackEventMsg struct {
	Event playback.Event
}

// TickMsg is a general tick message for animations and the online badge
type TickMsg struct{}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}
