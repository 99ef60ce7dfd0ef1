package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/spf13/cobra"
)

func newPreCacheCmd(opts *globalOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "precache",
		Short: "Download the display's media into the cache and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh {
				return runRefresh(cmd, opts)
			}
			return runCachePass(cmd, opts, false)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "only refresh entries past half their lifetime, as the background sync does")
	return cmd
}

func newSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Re-download every media item of the display, ignoring freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePass(cmd, opts, true)
		},
	}
}

func runCachePass(cmd *cobra.Command, opts *globalOptions, force bool) error {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := requireDisplay(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	d, source, err := a.loadDisplay(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Caching %q (%d items, %s)\n", d.Name, len(d.Items), source)

	progress := func(completed, total int, name string, status domain.ProgressStatus) {
		if status != domain.StatusDownloading {
			fmt.Fprintf(out, "[%d/%d] %s: %s\n", completed, total, name, status)
		}
	}

	var summary domain.CacheSummary
	if force {
		summary, err = a.manager.ForceSync(ctx, d.Items, progress)
	} else {
		summary, err = a.manager.PreCacheAll(ctx, d.Items, progress)
	}
	fmt.Fprintln(out, summary.String())
	if err != nil {
		return err
	}
	if summary.FailedCount > 0 {
		return fmt.Errorf("%d media items could not be cached", summary.FailedCount)
	}
	return nil
}

// runRefresh runs one background-sync pass in the foreground
func runRefresh(cmd *cobra.Command, opts *globalOptions) error {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := requireDisplay(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.monitor.Probe(ctx)
	d, _, err := a.loadDisplay(ctx)
	if err != nil {
		return err
	}

	stale := len(a.manager.Stale(d.Items))
	refreshed, err := a.manager.SyncNow(ctx, d.Items)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d stale items refreshed\n", refreshed, stale)
	return nil
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache contents and storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.manager.GetStats()
			if err != nil {
				return err
			}
			info, err := a.manager.StorageInfo()
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, info)
			return nil
		},
	}
}

func printStats(w io.Writer, stats domain.CacheStats, info domain.StorageInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Items:\t%d\n", stats.TotalItems)
	fmt.Fprintf(tw, "Size:\t%s\n", domain.FormatBytes(stats.TotalSizeBytes))
	if !stats.OldestEntry.IsZero() {
		fmt.Fprintf(tw, "Oldest:\t%s\n", stats.OldestEntry.Format(time.RFC3339))
		fmt.Fprintf(tw, "Newest:\t%s\n", stats.NewestEntry.Format(time.RFC3339))
	}
	source := "budget"
	if info.FromQuota {
		source = "quota"
	}
	fmt.Fprintf(tw, "Storage:\t%s used, %s available (%d%%, %s)\n",
		domain.FormatBytes(info.UsedBytes), domain.FormatBytes(info.AvailableBytes), info.UsagePercent, source)
	tw.Flush()
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached media item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

