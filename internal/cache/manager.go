package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Store is the cache store as the manager uses it (consumer-defined interface)
type Store interface {
	domain.BlobStore
	PutWithType(id string, blob []byte, sourceURL string, sizeBytes int64, contentType string) error
	Stat(id string) (domain.CacheEntry, bool, error) // fresh entry metadata, Blob is nil
}

// evictionTarget is the fraction of MaxSizeBytes an over-budget pass shrinks the cache to
const evictionTargetNum, evictionTargetDen = 4, 5

// Config holds the cache policy
type Config struct {
	TTL                time.Duration
	MaxSizeBytes       int64
	MaxRetries         int           // total fetch attempts per descriptor
	RetryBackoffBase   time.Duration // wait before the second attempt, doubled after each failure
	BaseURL            string        // local media server, e.g. http://127.0.0.1:8787
	BackgroundInterval time.Duration // minimum spacing between background fetches, 0 = unthrottled
}

// Option configures a Manager
type Option func(*Manager)

// WithConnectivity sets the online check used by BackgroundSync
func WithConnectivity(c domain.Connectivity) Option {
	return func(m *Manager) { m.conn = c }
}

// WithQuotaEstimator sets the optional platform quota source used by StorageInfo
func WithQuotaEstimator(q domain.QuotaEstimator) Option {
	return func(m *Manager) { m.quota = q }
}

// WithClock overrides the time source
func WithClock(now domain.Clock) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager bridges network fetches and the cache store.
type Manager struct {
	store   Store
	fetcher domain.Fetcher
	conn    domain.Connectivity
	quota   domain.QuotaEstimator
	cfg     Config
	now     domain.Clock
	logger  *slog.Logger

	// Store-wide write lock: eviction passes and writes never interleave
	writeMu sync.Mutex

	flights singleflight.Group
	limiter *rate.Limiter

	// Background sync reentrancy guard
	syncing atomic.Bool
	bg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a cache manager
func NewManager(store Store, fetcher domain.Fetcher, cfg Config, opts ...Option) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:   store,
		fetcher: fetcher,
		conn:    domain.AlwaysOnline{},
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Inf, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.BackgroundInterval > 0 {
		m.limiter = rate.NewLimiter(rate.Every(cfg.BackgroundInterval), 1)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close stops any background sync and waits for it to exit
func (m *Manager) Close() {
	m.cancel()
	m.bg.Wait()
}

// Config returns the active policy
func (m *Manager) Config() Config {
	return m.cfg
}

// === Resolution ===

// LocalURL builds the media server URL for id without checking the cache
func (m *Manager) LocalURL(id string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/media/" + url.PathEscape(id)
}

// ResolveLocalURL returns a locally servable URL for id when a fresh entry exists.
// It never touches the network.
func (m *Manager) ResolveLocalURL(id string) (string, bool) {
	ok, err := m.IsCached(id)
	if err != nil {
		m.logger.Warn("cache lookup failed", "id", id, "error", err)
		return "", false
	}
	if !ok {
		cacheMisses.Inc()
		return "", false
	}
	cacheHits.Inc()
	return m.LocalURL(id), true
}

// IsCached reports whether a fresh entry exists for id
func (m *Manager) IsCached(id string) (bool, error) {
	_, ok, err := m.store.Stat(id)
	return ok, err
}

// === Single item ===

// EnsureCached makes sure descriptor d has a fresh cache entry.
// A fresh entry returns immediately without any network I/O.
func (m *Manager) EnsureCached(ctx context.Context, d domain.MediaDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	_, fresh, err := m.store.Stat(d.ID)
	if err != nil {
		// A corrupt record is dropped and refetched
		m.logger.Warn("discarding unreadable cache entry", "id", d.ID, "error", err)
		if delErr := m.store.Delete(d.ID); delErr != nil {
			return err
		}
	}
	if fresh {
		return nil
	}

	return m.refresh(ctx, d)
}

// refresh fetches d and stores it, regardless of any existing entry.
// Concurrent refreshes of the same id share one fetch.
func (m *Manager) refresh(ctx context.Context, d domain.MediaDescriptor) error {
	_, err, _ := m.flights.Do(d.ID, func() (interface{}, error) {
		return nil, m.fetchAndStore(ctx, d)
	})
	return err
}

func (m *Manager) fetchAndStore(ctx context.Context, d domain.MediaDescriptor) error {
	if err := m.EvictIfOverBudget(); err != nil {
		return err
	}

	res, err := m.fetchWithRetry(ctx, d)
	if err != nil {
		return err
	}

	size := int64(len(res.Body))
	err = m.put(d, res, size)
	if err == nil {
		return nil
	}
	if !domain.IsStorageFailure(err) {
		return err
	}

	// Quota pressure: shrink the cache and try the write once more
	m.logger.Warn("cache write failed, forcing eviction", "id", d.ID, "error", err)
	if _, _, evErr := m.evict(true); evErr != nil {
		return err
	}
	return m.put(d, res, size)
}

func (m *Manager) put(d domain.MediaDescriptor, res domain.FetchResult, size int64) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.PutWithType(d.ID, res.Body, d.URL, size, res.ContentType); err != nil {
		return err
	}
	bytesDownloaded.Add(float64(size))
	m.logger.Debug("cached media", "id", d.ID, "name", d.Name, "size", size)
	return nil
}

// fetchWithRetry makes up to MaxRetries attempts, waiting base, 2*base, 4*base... between them
func (m *Manager) fetchWithRetry(ctx context.Context, d domain.MediaDescriptor) (domain.FetchResult, error) {
	backoff := retry.WithMaxRetries(uint64(m.cfg.MaxRetries-1), retry.NewExponential(m.cfg.RetryBackoffBase))

	var (
		result   domain.FetchResult
		attempts int
		lastErr  error
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		fetchAttempts.Inc()

		res, err := m.fetcher.Fetch(ctx, d.URL)
		if err != nil {
			lastErr = err
			m.logger.Warn("fetch attempt failed", "id", d.ID, "url", d.URL, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		fetchFailures.Inc()
		m.logger.Error("fetch failed", "id", d.ID, "url", d.URL, "attempts", attempts, "error", lastErr)
		return domain.FetchResult{}, &domain.FetchFailure{ID: d.ID, URL: d.URL, Attempts: attempts, Err: lastErr}
	}

	if attempts > 1 {
		m.logger.Info("fetch succeeded after retry", "id", d.ID, "attempts", attempts)
	}
	return result, nil
}

// === Bulk ===

// PreCacheAll caches descriptors one at a time, in order.
// A failing item is counted and skipped; only a StorageFailure stops the pass,
// after the current item, and is returned together with the partial summary.
func (m *Manager) PreCacheAll(ctx context.Context, ds []domain.MediaDescriptor, onProgress domain.ProgressFunc) (domain.CacheSummary, error) {
	report := func(completed int, name string, status domain.ProgressStatus) {
		if onProgress != nil {
			onProgress(completed, len(ds), name, status)
		}
	}

	var summary domain.CacheSummary
	for i, d := range ds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		report(i, d.Name, domain.StatusDownloading)

		entry, fresh, err := m.store.Stat(d.ID)
		if err == nil && fresh {
			summary.AlreadyFreshCount++
			summary.TotalCacheSizeBytes += entry.SizeBytes
			report(i+1, d.Name, domain.StatusComplete)
			continue
		}

		err = m.EnsureCached(ctx, d)
		if err == nil {
			summary.CachedCount++
			if entry, ok, _ := m.store.Stat(d.ID); ok {
				summary.TotalCacheSizeBytes += entry.SizeBytes
			}
			report(i+1, d.Name, domain.StatusComplete)
			continue
		}

		summary.FailedCount++
		summary.Failed = append(summary.Failed, d.ID)
		m.logger.Error("failed to cache media", "id", d.ID, "name", d.Name, "error", err)
		report(i+1, d.Name, domain.StatusFailed)

		if domain.IsStorageFailure(err) {
			return summary, fmt.Errorf("pre-cache aborted at %q: %w", d.ID, err)
		}
	}

	m.logger.Info("pre-cache complete",
		"cached", summary.CachedCount,
		"already_fresh", summary.AlreadyFreshCount,
		"failed", summary.FailedCount,
		"bytes", summary.TotalCacheSizeBytes)
	m.updateGauges()
	return summary, nil
}

// ForceSync drops the given entries and caches them again
func (m *Manager) ForceSync(ctx context.Context, ds []domain.MediaDescriptor, onProgress domain.ProgressFunc) (domain.CacheSummary, error) {
	for _, d := range ds {
		if err := m.Invalidate(d.ID); err != nil {
			m.logger.Warn("failed to clear cache entry", "id", d.ID, "error", err)
		}
	}
	return m.PreCacheAll(ctx, ds, onProgress)
}

// Invalidate removes the entry for id
func (m *Manager) Invalidate(id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.Delete(id)
}

// Clear removes every cached entry
func (m *Manager) Clear() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.updateGaugesLocked(nil)
	return nil
}

// === Eviction ===

// EvictIfOverBudget deletes expired entries and, when the cache exceeds MaxSizeBytes,
// deletes oldest entries until it is at or under 80% of the budget.
func (m *Manager) EvictIfOverBudget() error {
	_, _, err := m.evict(false)
	return err
}

// evict runs one scan-and-delete pass under the write lock. force shrinks to the
// 80% target even when the cache is not over budget.
func (m *Manager) evict(force bool) (removed int, freed int64, err error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	entries, err := m.store.ListAll()
	if err != nil {
		return 0, 0, err
	}

	now := m.now()
	live := entries[:0]
	for _, e := range entries {
		if m.cfg.TTL > 0 && e.Age(now) >= m.cfg.TTL {
			if err := m.store.Delete(e.ID); err != nil {
				return removed, freed, err
			}
			removed++
			freed += e.SizeBytes
			continue
		}
		live = append(live, e)
	}

	var total int64
	for _, e := range live {
		total += e.SizeBytes
	}

	if m.cfg.MaxSizeBytes > 0 && (force || total > m.cfg.MaxSizeBytes) {
		target := m.cfg.MaxSizeBytes * evictionTargetNum / evictionTargetDen
		sort.Slice(live, func(i, j int) bool {
			return live[i].CachedAt.Before(live[j].CachedAt)
		})
		for _, e := range live {
			if total <= target {
				break
			}
			if err := m.store.Delete(e.ID); err != nil {
				return removed, freed, err
			}
			total -= e.SizeBytes
			removed++
			freed += e.SizeBytes
		}
	}

	if removed > 0 {
		evictions.Add(float64(removed))
		evictedBytes.Add(float64(freed))
		m.logger.Info("evicted cache entries", "count", removed, "bytes", freed, "remaining_bytes", total)
	}
	m.updateGaugesLocked(nil)
	return removed, freed, nil
}

// === Background sync ===

// BackgroundSync refreshes stale entries without blocking the caller.
// It does nothing while offline or while a previous pass is still running,
// and reports whether a pass was started.
func (m *Manager) BackgroundSync(ds []domain.MediaDescriptor) bool {
	if !m.conn.Online() {
		m.logger.Debug("background sync skipped, offline")
		return false
	}
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Debug("background sync already running")
		return false
	}

	items := append([]domain.MediaDescriptor(nil), ds...)
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		defer m.syncing.Store(false)
		m.runSync(m.ctx, items)
	}()
	return true
}

// SyncNow runs a background sync pass in the caller's goroutine and returns how many
// entries were refreshed. It honors the same reentrancy guard as BackgroundSync.
func (m *Manager) SyncNow(ctx context.Context, ds []domain.MediaDescriptor) (int, error) {
	if !m.conn.Online() {
		return 0, domain.ErrServerOffline
	}
	if !m.syncing.CompareAndSwap(false, true) {
		return 0, errors.New("background sync already running")
	}
	defer m.syncing.Store(false)
	return m.runSync(ctx, ds), nil
}

// Syncing reports whether a background pass is in flight
func (m *Manager) Syncing() bool {
	return m.syncing.Load()
}

// Stale returns descriptors whose entry is missing or older than half the TTL
func (m *Manager) Stale(ds []domain.MediaDescriptor) []domain.MediaDescriptor {
	halfLife := m.cfg.TTL / 2
	now := m.now()

	var stale []domain.MediaDescriptor
	for _, d := range ds {
		entry, ok, err := m.store.Stat(d.ID)
		if err != nil || !ok || (halfLife > 0 && entry.Age(now) > halfLife) {
			stale = append(stale, d)
		}
	}
	return stale
}

func (m *Manager) runSync(ctx context.Context, ds []domain.MediaDescriptor) int {
	backgroundSyncRuns.Inc()

	stale := m.Stale(ds)
	if len(stale) == 0 {
		m.logger.Debug("background sync: nothing stale")
		return 0
	}

	m.logger.Info("background sync started", "stale", len(stale))

	refreshed := 0
	for i, d := range stale {
		if err := m.limiter.Wait(ctx); err != nil {
			m.logger.Info("background sync stopped", "error", err)
			break
		}
		if err := d.Validate(); err != nil {
			m.logger.Warn("background sync: skipping invalid descriptor", "id", d.ID, "error", err)
			continue
		}
		if err := m.refresh(ctx, d); err != nil {
			m.logger.Warn("background sync: refresh failed", "id", d.ID, "error", err)
			continue
		}
		refreshed++
		m.logger.Debug("background sync progress", "completed", i+1, "total", len(stale), "name", d.Name)
	}

	m.logger.Info("background sync finished", "refreshed", refreshed, "stale", len(stale))
	m.updateGauges()
	return refreshed
}

// === Diagnostics ===

// GetStats summarizes the physical cache contents
func (m *Manager) GetStats() (domain.CacheStats, error) {
	entries, err := m.store.ListAll()
	if err != nil {
		return domain.CacheStats{}, err
	}
	return statsOf(entries), nil
}

func statsOf(entries []domain.CacheEntry) domain.CacheStats {
	stats := domain.CacheStats{TotalItems: len(entries)}
	for _, e := range entries {
		stats.TotalSizeBytes += e.SizeBytes
		if stats.OldestEntry.IsZero() || e.CachedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = e.CachedAt
		}
		if e.CachedAt.After(stats.NewestEntry) {
			stats.NewestEntry = e.CachedAt
		}
	}
	return stats
}

// StorageInfo reports usage against the platform quota when one is available,
// otherwise against the configured budget using tracked totals.
func (m *Manager) StorageInfo() (domain.StorageInfo, error) {
	if m.quota != nil {
		usage, quota, err := m.quota.Estimate()
		if err == nil && quota > 0 {
			return domain.StorageInfo{
				UsedBytes:      usage,
				AvailableBytes: quota - usage,
				UsagePercent:   int(usage * 100 / quota),
				FromQuota:      true,
			}, nil
		}
		m.logger.Debug("storage estimate unavailable", "error", err)
	}

	stats, err := m.GetStats()
	if err != nil {
		return domain.StorageInfo{}, err
	}
	info := domain.StorageInfo{
		UsedBytes:      stats.TotalSizeBytes,
		AvailableBytes: m.cfg.MaxSizeBytes - stats.TotalSizeBytes,
	}
	if m.cfg.MaxSizeBytes > 0 {
		info.UsagePercent = int(stats.TotalSizeBytes * 100 / m.cfg.MaxSizeBytes)
	}
	return info, nil
}

func (m *Manager) updateGauges() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.updateGaugesLocked(nil)
}

func (m *Manager) updateGaugesLocked(entries []domain.CacheEntry) {
	if entries == nil {
		var err error
		if entries, err = m.store.ListAll(); err != nil {
			return
		}
	}
	stats := statsOf(entries)
	cacheItems.Set(float64(stats.TotalItems))
	cacheBytes.Set(float64(stats.TotalSizeBytes))
}
