package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/kiosk/internal/cache"
	"github.com/mmcdole/kiosk/internal/config"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
	"github.com/mmcdole/kiosk/internal/player"
	"github.com/mmcdole/kiosk/internal/server"
	"github.com/mmcdole/kiosk/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const shutdownTimeout = 5 * time.Second

func newPlayCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Pre-cache the display's media and run the slideshow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			interactive := !cfg.Player.Headless && term.IsTerminal(int(os.Stdout.Fd()))
			return runPlayer(cmd.Context(), cfg, logger, cfg.Player.Headless, interactive)
		},
	}
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run headless: cache, serve media locally and log the slideshow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runPlayer(cmd.Context(), cfg, logger, true, false)
		},
	}
}

// runPlayer is the full device runtime: media server, pre-cache, slideshow and
// background refresh. logOnly replaces the external player with a log surface;
// interactive runs the console UI instead of plain log output.
func runPlayer(parent context.Context, cfg *config.Config, logger *slog.Logger, logOnly, interactive bool) error {
	if err := requireDisplay(cfg); err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.monitor.Probe(ctx)

	d, source, err := a.loadDisplay(ctx)
	if err != nil {
		return err
	}

	srv := server.New(a.store, a.manager, server.Options{
		Listen:         cfg.Server.Listen,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	if _, err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("media server shutdown failed", "error", err)
		}
	}()

	var surface playback.Surface
	if logOnly {
		surface = player.NewLogSurface(logger)
	} else {
		surface = player.NewLauncher(cfg.Player.Command, cfg.Player.Args, cfg.Player.Fullscreen, logger)
	}

	loop := playback.NewLoop(a.manager, surface, playback.Options{Logger: logger})
	defer loop.Close()
	loop.Subscribe(srv)
	srv.SetPlayer(loop)

	bg := &background{app: a, items: d.Items, logger: logger}
	defer bg.Stop()

	onPreCached := func(summary domain.CacheSummary, err error) {
		srv.SetSummary(summary)
		logger.Info("pre-cache finished", "summary", summary.String(), "error", err)
		bg.Start()
	}

	if interactive {
		model := tui.NewModel(tui.Options{
			Title:        d.Name,
			Source:       string(source),
			Items:        d.Items,
			Cache:        a.manager,
			Player:       loop,
			Connectivity: a.monitor,
			Observers:    []domain.ProgressObserver{srv},
			OnPreCached:  onPreCached,
			Logger:       logger,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		logger.Info("starting TUI")
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			logger.Error("TUI error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		logger.Info("shutting down")
		return nil
	}

	fmt.Printf("Playing %q (%d items, %s)\n", d.Name, len(d.Items), source)
	summary, err := a.manager.PreCacheAll(ctx, d.Items, printProgress(srv))
	onPreCached(summary, err)
	fmt.Println(summary.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	loop.Load(d.Items)
	loop.Start()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// printProgress reports pre-cache progress on stdout and to the event stream
func printProgress(observer domain.ProgressObserver) domain.ProgressFunc {
	notify := domain.ObserverFunc(observer)
	return func(completed, total int, name string, status domain.ProgressStatus) {
		notify(completed, total, name, status)
		if status != domain.StatusDownloading {
			fmt.Printf("[%d/%d] %s: %s\n", completed, total, name, status)
		}
	}
}

// background runs the connectivity probe and periodic refresh once pre-caching is over
type background struct {
	app    *app
	items  []domain.MediaDescriptor
	logger *slog.Logger

	once  sync.Once
	mu    sync.Mutex
	sched *cache.Scheduler
}

func (b *background) Start() {
	b.once.Do(func() {
		cfg := b.app.cfg
		sched, err := cache.NewScheduler(b.app.manager, b.app.monitor, func() []domain.MediaDescriptor { return b.items }, cache.SchedulerConfig{
			SyncInterval:  cfg.Sync.Interval,
			InitialDelay:  cfg.Sync.InitialDelay,
			ProbeInterval: cfg.Sync.ProbeInterval,
		}, b.logger)
		if err != nil {
			b.logger.Error("failed to start background sync", "error", err)
			return
		}
		sched.Start()

		b.mu.Lock()
		b.sched = sched
		b.mu.Unlock()
	})
}

func (b *background) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sched != nil {
		b.sched.Stop()
	}
}
