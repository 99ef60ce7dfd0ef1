package player

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/mmcdole/kiosk/internal/domain"
)

// playerConfig defines the flags a known player needs for unattended slideshow use
type playerConfig struct {
	loopFlags       []string // repeat the file until stopped
	fullscreenFlags []string
	imageFlags      []string // keep a still image on screen indefinitely
	extraFlags      []string // always passed (quiet, no OSD, ...)
}

// players registry - single source of truth for player flags
var players = map[string]playerConfig{
	"mpv": {
		loopFlags:       []string{"--loop-file=inf"},
		fullscreenFlags: []string{"--fs"},
		imageFlags:      []string{"--image-display-duration=inf"},
		extraFlags:      []string{"--really-quiet", "--no-osc", "--no-input-default-bindings"},
	},
	"vlc": {
		loopFlags:       []string{"--loop"},
		fullscreenFlags: []string{"--fullscreen"},
		imageFlags:      []string{"--image-duration=-1"},
		extraFlags:      []string{"--no-video-title-show", "--quiet"},
	},
	"cvlc": {
		loopFlags:       []string{"--loop"},
		fullscreenFlags: []string{"--fullscreen"},
		imageFlags:      []string{"--image-duration=-1"},
		extraFlags:      []string{"--no-video-title-show", "--quiet"},
	},
	"celluloid": {
		loopFlags:       []string{"--mpv-loop-file=inf"},
		fullscreenFlags: []string{"--mpv-fs"},
		imageFlags:      []string{"--mpv-image-display-duration=inf"},
	},
}

// ErrNoPlayer is returned by Show when no player is configured or installed.
// The slide still holds for its duration.
var ErrNoPlayer = errors.New("no media player found")

// candidatePlayers defines the preferred player order for each platform
var candidatePlayers = map[string][]string{
	"darwin":  {"mpv", "vlc"},
	"linux":   {"mpv", "cvlc", "vlc", "celluloid"},
	"windows": {"mpv", "vlc"},
}

// Launcher is a playback surface that renders slides in an external player process.
// Each Show replaces the previous process.
type Launcher struct {
	command string   // configured player command, empty to auto-detect
	args    []string // additional arguments for the player
	logger  *slog.Logger

	// start launches cmd without waiting; replaced in tests
	start func(cmd *exec.Cmd) error

	mu         sync.Mutex
	cmd        *exec.Cmd
	fullscreen bool
	current    *domain.MediaDescriptor
	currentURL string
	paused     bool
}

// NewLauncher creates a launcher. An empty command picks the first installed candidate player.
func NewLauncher(command string, args []string, fullscreen bool, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command:    command,
		args:       args,
		fullscreen: fullscreen,
		logger:     logger,
		start:      func(cmd *exec.Cmd) error { return cmd.Start() },
	}
}

// playerName returns the registry key for a command path ("/usr/bin/mpv.exe" -> "mpv")
func playerName(command string) string {
	base := filepath.Base(command)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// detectPlayer returns the first candidate player found in PATH
func detectPlayer(logger *slog.Logger) (string, error) {
	candidates, ok := candidatePlayers[runtime.GOOS]
	if !ok {
		candidates = candidatePlayers["linux"] // default
	}
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err == nil {
			logger.Info("detected player", "player", name, "path", path)
			return path, nil
		}
		logger.Debug("player not available", "player", name, "error", err)
	}
	return "", ErrNoPlayer
}

// buildArgs assembles the player command line for one slide
func buildArgs(command string, extra []string, d domain.MediaDescriptor, url string, fullscreen bool) []string {
	var args []string
	if cfg, ok := players[playerName(command)]; ok {
		args = append(args, cfg.extraFlags...)
		if d.IsVideo() {
			args = append(args, cfg.loopFlags...)
		} else {
			args = append(args, cfg.imageFlags...)
		}
		if fullscreen {
			args = append(args, cfg.fullscreenFlags...)
		}
	}
	args = append(args, extra...)
	return append(args, url)
}

// Show starts the player on url, stopping whatever was on screen
func (l *Launcher) Show(d domain.MediaDescriptor, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.current = &d
	l.currentURL = url
	return l.launchLocked()
}

func (l *Launcher) launchLocked() error {
	if l.current == nil {
		return nil
	}

	command := l.command
	if command == "" {
		detected, err := detectPlayer(l.logger)
		if err != nil {
			return err
		}
		// Remember the detection for subsequent slides
		l.command = detected
		command = detected
	}

	args := buildArgs(command, l.args, *l.current, l.currentURL, l.fullscreen)
	cmd := exec.Command(command, args...)
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to launch %s: %w", playerName(command), err)
	}

	l.cmd = cmd
	l.paused = false
	l.logger.Debug("player launched", "player", playerName(command), "id", l.current.ID, "url", l.currentURL)

	// Reap the process so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}

// Pause freezes the player process
func (l *Launcher) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil || l.cmd.Process == nil || l.paused {
		return nil
	}
	if err := suspend(l.cmd.Process); err != nil {
		return err
	}
	l.paused = true
	return nil
}

// Resume continues a frozen player process
func (l *Launcher) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil || l.cmd.Process == nil || !l.paused {
		return nil
	}
	if err := resume(l.cmd.Process); err != nil {
		return err
	}
	l.paused = false
	return nil
}

// Stop kills the current player process
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	return nil
}

func (l *Launcher) stopLocked() {
	if l.cmd == nil || l.cmd.Process == nil {
		l.cmd = nil
		return
	}
	if l.paused {
		_ = resume(l.cmd.Process)
	}
	if err := l.cmd.Process.Kill(); err != nil {
		l.logger.Debug("failed to kill player", "error", err)
	}
	l.cmd = nil
	l.paused = false
}

// SetFullscreen relaunches the current slide with the new window mode
func (l *Launcher) SetFullscreen(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fullscreen == on {
		return nil
	}
	l.fullscreen = on
	if l.cmd == nil {
		return nil
	}
	l.stopLocked()
	return l.launchLocked()
}
