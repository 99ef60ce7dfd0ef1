package playback

import "github.com/mmcdole/kiosk/internal/domain"

// Surface renders slides. The loop owns timing; a surface only shows what it is told.
// Implementations must not call back into the Loop.
type Surface interface {
	// Show puts d on screen from url. Videos start playing and loop until stopped.
	Show(d domain.MediaDescriptor, url string) error
	// Pause and Resume freeze and continue a playing video
	Pause() error
	Resume() error
	// Stop halts and rewinds whatever is on screen
	Stop() error
	SetFullscreen(on bool) error
}

// Resolver maps a media id to a locally servable URL (consumer-defined interface)
type Resolver interface {
	ResolveLocalURL(id string) (string, bool)
}

type nopSurface struct{}

func (nopSurface) Show(domain.MediaDescriptor, string) error { return nil }
func (nopSurface) Pause() error                               { return nil }
func (nopSurface) Resume() error                              { return nil }
func (nopSurface) Stop() error                                { return nil }
func (nopSurface) SetFullscreen(bool) error                   { return nil }
