package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/kiosk/internal/cache"
	"github.com/mmcdole/kiosk/internal/config"
	"github.com/mmcdole/kiosk/internal/display"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/fetch"
	"github.com/mmcdole/kiosk/internal/store"
)

const probeTimeout = 5 * time.Second

// app holds the long-lived components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.MediaStore
	manager  *cache.Manager
	monitor  *cache.Monitor
	displays *display.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open(cfg.Cache.DataDir, store.Options{
		TTL:         cfg.Cache.TTL,
		HotTTL:      cfg.Cache.HotTTL,
		HotCleanup:  cfg.Cache.HotTTL,
		HotMaxBytes: cfg.Cache.HotMaxMB << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	fetcher := fetch.NewMux(fetch.NewHTTPFetcher(fetch.NewHTTPClient(cfg.Cache.FetchTimeout), logger))
	if cfg.ObjectStore.Endpoint != "" {
		s3, err := fetch.NewS3Fetcher(fetch.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Region:    cfg.ObjectStore.Region,
			UseSSL:    cfg.ObjectStore.UseSSL,
		}, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		fetcher.Handle("s3", s3)
	}

	monitor := cache.NewMonitor(cfg.Display.APIURL, &http.Client{Timeout: probeTimeout}, logger)

	manager := cache.NewManager(st, fetcher, cache.Config{
		TTL:                cfg.Cache.TTL,
		MaxSizeBytes:       cfg.Cache.MaxSizeBytes(),
		MaxRetries:         cfg.Cache.MaxRetries,
		RetryBackoffBase:   cfg.Cache.RetryBackoffBase,
		BaseURL:            cfg.Server.BaseURL(),
		BackgroundInterval: cfg.Sync.FetchSpacing,
	}, cache.WithConnectivity(monitor), cache.WithLogger(logger))

	client := display.NewClient(cfg.Display.APIURL, nil, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		manager:  manager,
		monitor:  monitor,
		displays: display.NewService(client, st, cfg.Display.Only, logger),
	}, nil
}

// loadDisplay fetches the configured display, falling back to the offline snapshot
func (a *app) loadDisplay(ctx context.Context) (domain.Display, display.Source, error) {
	d, source, err := a.displays.Load(ctx, a.cfg.Display.ClientID, a.cfg.Display.DisplayID)
	if err != nil {
		return domain.Display{}, "", fmt.Errorf("failed to load display %s: %w", a.cfg.Display.DisplayID, err)
	}
	a.logger.Info("display loaded", "display", d.ID, "name", d.Name, "items", len(d.Items), "source", source)
	return d, source, nil
}

func (a *app) Close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close cache", "error", err)
	}
}
