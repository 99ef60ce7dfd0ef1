package player

import (
	"log/slog"

	"github.com/mmcdole/kiosk/internal/domain"
)

// LogSurface is a headless surface that only records what would be on screen
type LogSurface struct {
	logger *slog.Logger
}

// NewLogSurface creates a log-only surface
func NewLogSurface(logger *slog.Logger) *LogSurface {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSurface{logger: logger}
}

func (s *LogSurface) Show(d domain.MediaDescriptor, url string) error {
	s.logger.Info("slide", "id", d.ID, "name", d.Name, "type", d.Type, "duration", d.Duration, "url", url)
	return nil
}

func (s *LogSurface) Pause() error {
	s.logger.Debug("surface paused")
	return nil
}

func (s *LogSurface) Resume() error {
	s.logger.Debug("surface resumed")
	return nil
}

func (s *LogSurface) Stop() error { return nil }

func (s *LogSurface) SetFullscreen(on bool) error {
	s.logger.Debug("fullscreen", "on", on)
	return nil
}
