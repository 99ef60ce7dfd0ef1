package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/mmcdole/kiosk/internal/domain"
)

// SchedulerConfig controls recurring cache jobs
type SchedulerConfig struct {
	SyncInterval  time.Duration // background sync period
	InitialDelay  time.Duration // delay before the first background sync
	ProbeInterval time.Duration // connectivity probe period, 0 disables probing
}

// Scheduler runs connectivity probes and periodic background syncs.
// Jobs run in singleton mode so a slow pass is never overlapped by the next tick.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *slog.Logger
}

// NewScheduler wires jobs for manager. items is called at each tick to pick up
// the current playlist. A nil monitor disables probing.
func NewScheduler(manager *Manager, monitor *Monitor, items func() []domain.MediaDescriptor, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	if monitor != nil && cfg.ProbeInterval > 0 {
		_, err := cron.Every(cfg.ProbeInterval).Do(func() {
			monitor.Probe(context.Background())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule connectivity probe: %w", err)
		}

		// Coming back online is a good moment to catch up
		monitor.OnChange(func(up bool) {
			if up {
				manager.BackgroundSync(items())
			}
		})
	}

	if cfg.SyncInterval > 0 {
		_, err := cron.Every(cfg.SyncInterval).
			StartAt(time.Now().Add(cfg.InitialDelay)).
			Do(func() {
				if manager.BackgroundSync(items()) {
					logger.Debug("scheduled background sync started")
				}
			})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule background sync: %w", err)
		}
	}

	return &Scheduler{cron: cron, logger: logger}, nil
}

// Start runs the jobs asynchronously
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
