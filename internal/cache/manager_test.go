package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === Fakes ===

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // remaining failures per url, -1 fails forever
	size     int

	gate    chan struct{} // when set, fetches block until closed
	started chan string
}

func newFetcher(size int) *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, failures: map[string]int{}, size: size}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (domain.FetchResult, error) {
	f.mu.Lock()
	f.calls[url]++
	remaining := f.failures[url]
	if remaining > 0 {
		f.failures[url] = remaining - 1
	}
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- url
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.FetchResult{}, ctx.Err()
		}
	}

	if remaining != 0 {
		return domain.FetchResult{}, &domain.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
	}
	return domain.FetchResult{Body: make([]byte, f.size), ContentType: "image/jpeg", StatusCode: 200}, nil
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// countingStore counts blob reads and writes and can be told to fail writes
type countingStore struct {
	*store.MediaStore

	mu       sync.Mutex
	puts     int
	gets     int
	failPuts int // remaining write failures, -1 fails forever
}

func (s *countingStore) Get(id string) (domain.CacheEntry, bool, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.MediaStore.Get(id)
}

func (s *countingStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *countingStore) PutWithType(id string, blob []byte, sourceURL string, size int64, contentType string) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPuts
	if fail > 0 {
		s.failPuts--
	}
	s.mu.Unlock()

	if fail != 0 {
		return &domain.StorageFailure{Op: "put", ID: id, Err: errors.New("quota exceeded")}
	}
	return s.MediaStore.PutWithType(id, blob, sourceURL, size, contentType)
}

func (s *countingStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type offline struct{}

func (offline) Online() bool { return false }

type fixedQuota struct {
	usage, quota int64
	err          error
}

func (q fixedQuota) Estimate() (int64, int64, error) { return q.usage, q.quota, q.err }

// === Helpers ===

type harness struct {
	clock   *fakeClock
	store   *countingStore
	fetcher *fakeFetcher
	manager *Manager
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	clock := newClock()
	ms, err := store.Open("", store.Options{TTL: cfg.TTL, Clock: clock.Now})
	require.NoError(t, err)

	if cfg.RetryBackoffBase == 0 {
		cfg.RetryBackoffBase = time.Millisecond
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8787"
	}

	h := &harness{
		clock:   clock,
		store:   &countingStore{MediaStore: ms},
		fetcher: newFetcher(100),
	}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	h.manager = NewManager(h.store, h.fetcher, cfg, opts...)
	t.Cleanup(h.manager.Close)
	return h
}

func descriptor(id string) domain.MediaDescriptor {
	return domain.MediaDescriptor{
		ID:       id,
		Name:     "Item " + id,
		URL:      "http://origin/" + id + ".jpg",
		Type:     domain.MediaTypeImage,
		Duration: 5 * time.Second,
		Category: domain.CategoryPromotion,
	}
}

func descriptors(n int) []domain.MediaDescriptor {
	ds := make([]domain.MediaDescriptor, n)
	for i := range ds {
		ds[i] = descriptor(fmt.Sprintf("m%d", i+1))
	}
	return ds
}

func (h *harness) ids(t *testing.T) []string {
	t.Helper()
	all, err := h.store.ListAll()
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	return ids
}

// === EnsureCached ===

func TestEnsureCached_FreshEntryIsNotRefetched(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	d := descriptor("m1")

	require.NoError(t, h.manager.EnsureCached(context.Background(), d))
	require.NoError(t, h.manager.EnsureCached(context.Background(), d))

	assert.Equal(t, 1, h.fetcher.Calls(d.URL))
	assert.Equal(t, 1, h.store.Puts())
}

func TestEnsureCached_ExpiredEntryIsRefetched(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	d := descriptor("m1")

	require.NoError(t, h.manager.EnsureCached(context.Background(), d))
	h.clock.Advance(time.Hour)
	require.NoError(t, h.manager.EnsureCached(context.Background(), d))

	assert.Equal(t, 2, h.fetcher.Calls(d.URL))
	ok, err := h.manager.IsCached(d.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureCached_RetriesThenFails(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxRetries: 3})
	d := descriptor("m1")
	h.fetcher.failures[d.URL] = -1

	err := h.manager.EnsureCached(context.Background(), d)
	require.Error(t, err)

	var ff *domain.FetchFailure
	require.ErrorAs(t, err, &ff)
	assert.Equal(t, 3, ff.Attempts)
	assert.Equal(t, d.ID, ff.ID)

	var se *domain.StatusError
	assert.ErrorAs(t, err, &se)

	assert.Equal(t, 3, h.fetcher.Calls(d.URL))
	assert.Equal(t, 0, h.store.Puts())
}

func TestEnsureCached_RecoversFromTransientFailures(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxRetries: 3})
	d := descriptor("m1")
	h.fetcher.failures[d.URL] = 2

	require.NoError(t, h.manager.EnsureCached(context.Background(), d))
	assert.Equal(t, 3, h.fetcher.Calls(d.URL))
	assert.Equal(t, 1, h.store.Puts())
}

func TestEnsureCached_BackoffDoublesBetweenAttempts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ms, err := store.Open("", store.Options{TTL: time.Hour})
		require.NoError(t, err)

		fetcher := newFetcher(10)
		d := descriptor("m1")
		fetcher.failures[d.URL] = -1

		m := NewManager(ms, fetcher, Config{TTL: time.Hour, MaxRetries: 3, RetryBackoffBase: time.Second})

		start := time.Now()
		err = m.EnsureCached(context.Background(), d)
		require.Error(t, err)

		// 1s after the first failure, 2s after the second, none after the last
		assert.Equal(t, 3*time.Second, time.Since(start))
		assert.Equal(t, 3, fetcher.Calls(d.URL))
	})
}

func TestEnsureCached_InvalidDescriptorIsRejected(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	d := descriptor("m1")
	d.Duration = 0

	err := h.manager.EnsureCached(context.Background(), d)

	var ce *domain.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, h.fetcher.TotalCalls())
}

func TestEnsureCached_ConcurrentCallsShareOneFetch(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan string, 8)
	d := descriptor("m1")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.manager.EnsureCached(context.Background(), d)
		}(i)
	}

	<-h.fetcher.started
	// Let the other callers reach the in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(h.fetcher.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.fetcher.Calls(d.URL))
	assert.Equal(t, 1, h.store.Puts())
}

func TestEnsureCached_StorageFailureEvictsAndRetriesOnce(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})

	// 9 x 100 bytes: under budget, so only a forced pass evicts anything
	for _, d := range descriptors(9) {
		require.NoError(t, h.manager.EnsureCached(context.Background(), d))
		h.clock.Advance(time.Second)
	}

	h.store.failPuts = 1
	d := descriptor("new")
	require.NoError(t, h.manager.EnsureCached(context.Background(), d))

	assert.Equal(t, 11, h.store.Puts(), "one failed write, one retried write")
	ids := h.ids(t)
	assert.Contains(t, ids, "new")
	assert.NotContains(t, ids, "m1", "oldest entry makes room")
	assert.Contains(t, ids, "m9")
}

func TestEnsureCached_PersistentStorageFailureSurfaces(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})
	h.store.failPuts = -1

	err := h.manager.EnsureCached(context.Background(), descriptor("m1"))
	require.Error(t, err)
	assert.True(t, domain.IsStorageFailure(err))
	assert.Equal(t, 2, h.store.Puts())
}

// === Eviction ===

func TestEvictIfOverBudget_RemovesOldestDownToTarget(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})

	// Six 200-byte entries written a second apart: 1200 bytes, target 800
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, h.store.Put(id, make([]byte, 200), "http://origin/"+id, 200))
		h.clock.Advance(time.Second)
	}

	require.NoError(t, h.manager.EvictIfOverBudget())

	assert.ElementsMatch(t, []string{"m3", "m4", "m5", "m6"}, h.ids(t))
	stats, err := h.manager.GetStats()
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.TotalSizeBytes, int64(800))
}

func TestEvictIfOverBudget_UnderBudgetKeepsEverything(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, h.store.Put(id, make([]byte, 200), "u", 200))
	}

	require.NoError(t, h.manager.EvictIfOverBudget())
	assert.Len(t, h.ids(t), 5)
}

func TestEvictIfOverBudget_RemovesExpiredEntries(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1 << 20})

	require.NoError(t, h.store.Put("old", []byte("a"), "u", 1))
	h.clock.Advance(45 * time.Minute)
	require.NoError(t, h.store.Put("young", []byte("b"), "u", 1))
	h.clock.Advance(15 * time.Minute)

	require.NoError(t, h.manager.EvictIfOverBudget())
	assert.Equal(t, []string{"young"}, h.ids(t))
}

func TestEvictIfOverBudget_BudgetHoldsAcrossBulkCaching(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})
	h.fetcher.size = 300

	for _, d := range descriptors(8) {
		require.NoError(t, h.manager.EnsureCached(context.Background(), d))
		h.clock.Advance(time.Second)

		require.NoError(t, h.manager.EvictIfOverBudget())
		stats, err := h.manager.GetStats()
		require.NoError(t, err)
		assert.LessOrEqual(t, stats.TotalSizeBytes, int64(1000))
	}
}

// === PreCacheAll ===

type progressCall struct {
	completed, total int
	name             string
	status           domain.ProgressStatus
}

func TestPreCacheAll_PartialFailure(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxRetries: 3})
	ds := descriptors(5)
	h.fetcher.failures[ds[2].URL] = -1

	var calls []progressCall
	summary, err := h.manager.PreCacheAll(context.Background(), ds, func(completed, total int, name string, status domain.ProgressStatus) {
		calls = append(calls, progressCall{completed, total, name, status})
	})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.CachedCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, []string{"m3"}, summary.Failed)
	assert.Equal(t, int64(400), summary.TotalCacheSizeBytes)

	require.Len(t, calls, 10)
	assert.Equal(t, progressCall{0, 5, "Item m1", domain.StatusDownloading}, calls[0])
	assert.Equal(t, progressCall{1, 5, "Item m1", domain.StatusComplete}, calls[1])
	assert.Equal(t, progressCall{2, 5, "Item m3", domain.StatusDownloading}, calls[4])
	assert.Equal(t, progressCall{3, 5, "Item m3", domain.StatusFailed}, calls[5])
	assert.Equal(t, domain.ProgressStatus("error"), calls[5].status, "wire value of a failed item")
	assert.Equal(t, progressCall{5, 5, "Item m5", domain.StatusComplete}, calls[9])

	for _, d := range []domain.MediaDescriptor{ds[0], ds[1], ds[3], ds[4]} {
		ok, err := h.manager.IsCached(d.ID)
		require.NoError(t, err)
		assert.True(t, ok, d.ID)
	}
}

func TestBulkPassesReadMetadataOnly(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	ds := descriptors(4)

	_, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.NoError(t, err)
	summary, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.AlreadyFreshCount)
	assert.Equal(t, int64(400), summary.TotalCacheSizeBytes)

	require.NoError(t, h.manager.EnsureCached(context.Background(), ds[0]))
	assert.Empty(t, h.manager.Stale(ds))
	_, err = h.manager.SyncNow(context.Background(), ds)
	require.NoError(t, err)
	_, err = h.manager.IsCached(ds[1].ID)
	require.NoError(t, err)

	assert.Zero(t, h.store.Gets(), "freshness checks must not load blobs")
}

func TestPreCacheAll_CountsAlreadyFresh(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	ds := descriptors(3)
	require.NoError(t, h.manager.EnsureCached(context.Background(), ds[0]))

	summary, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AlreadyFreshCount)
	assert.Equal(t, 2, summary.CachedCount)
	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, 1, h.fetcher.Calls(ds[0].URL))
}

func TestPreCacheAll_StopsOnStorageFailure(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000})
	h.store.failPuts = -1
	ds := descriptors(4)

	summary, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.Error(t, err)
	assert.True(t, domain.IsStorageFailure(err))

	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, []string{"m1"}, summary.Failed)
	assert.Equal(t, 0, h.fetcher.Calls(ds[1].URL), "items after the failure are not attempted")
}

func TestPreCacheAll_EmptyList(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})

	summary, err := h.manager.PreCacheAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
}

func TestForceSync_RefetchesFreshEntries(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	ds := descriptors(2)
	_, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.NoError(t, err)

	summary, err := h.manager.ForceSync(context.Background(), ds, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CachedCount)
	assert.Equal(t, 2, h.fetcher.Calls(ds[0].URL))
	assert.Equal(t, 2, h.fetcher.Calls(ds[1].URL))
}

// === Background sync ===

func TestStale_SelectsMissingAndPastHalfLife(t *testing.T) {
	h := newHarness(t, Config{TTL: 10 * time.Hour})

	require.NoError(t, h.store.Put("old", []byte("a"), "u", 1))
	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.store.Put("recent", []byte("a"), "u", 1))
	h.clock.Advance(4 * time.Hour)

	// old is 6h (past 5h half-life), recent is 4h
	stale := h.manager.Stale([]domain.MediaDescriptor{descriptor("old"), descriptor("recent"), descriptor("missing")})

	var ids []string
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"old", "missing"}, ids)
}

func TestSyncNow_RefreshesHalfStaleEntries(t *testing.T) {
	h := newHarness(t, Config{TTL: 10 * time.Hour})
	d := descriptor("m1")
	require.NoError(t, h.manager.EnsureCached(context.Background(), d))

	h.clock.Advance(6 * time.Hour)
	refreshed, err := h.manager.SyncNow(context.Background(), []domain.MediaDescriptor{d})
	require.NoError(t, err)

	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, h.fetcher.Calls(d.URL))
	assert.Empty(t, h.manager.Stale([]domain.MediaDescriptor{d}))
}

func TestBackgroundSync_SkipsWhenOffline(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour}, WithConnectivity(offline{}))

	assert.False(t, h.manager.BackgroundSync(descriptors(3)))
	h.manager.Close()
	assert.Equal(t, 0, h.fetcher.TotalCalls())

	_, err := h.manager.SyncNow(context.Background(), descriptors(1))
	assert.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestBackgroundSync_OnlyOnePassAtATime(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan string, 8)
	ds := descriptors(2)

	require.True(t, h.manager.BackgroundSync(ds))
	<-h.fetcher.started

	assert.True(t, h.manager.Syncing())
	assert.False(t, h.manager.BackgroundSync(ds), "second pass must be refused while the first runs")

	close(h.fetcher.gate)
	<-h.fetcher.started
	h.manager.bg.Wait()

	assert.False(t, h.manager.Syncing())
	assert.Equal(t, 2, h.fetcher.TotalCalls())

	// Guard is released once the pass finishes
	h.clock.Advance(time.Hour)
	assert.True(t, h.manager.BackgroundSync(ds))
	h.manager.bg.Wait()
}

func TestBackgroundSync_SurvivesFetchErrors(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, MaxRetries: 1})
	ds := descriptors(3)
	h.fetcher.failures[ds[0].URL] = -1

	refreshed, err := h.manager.SyncNow(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
}

// === Resolution and diagnostics ===

func TestResolveLocalURL(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour, BaseURL: "http://127.0.0.1:8787/"})
	d := descriptor("promo 1")

	_, ok := h.manager.ResolveLocalURL(d.ID)
	assert.False(t, ok)

	require.NoError(t, h.manager.EnsureCached(context.Background(), d))
	url, ok := h.manager.ResolveLocalURL(d.ID)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8787/media/promo%201", url)

	h.clock.Advance(time.Hour)
	_, ok = h.manager.ResolveLocalURL(d.ID)
	assert.False(t, ok, "expired entries do not resolve")
}

func TestGetStats(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	first := h.clock.Now()
	require.NoError(t, h.store.Put("a", []byte("x"), "u", 100))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.store.Put("b", []byte("y"), "u", 250))

	stats, err := h.manager.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, int64(350), stats.TotalSizeBytes)
	assert.True(t, stats.OldestEntry.Equal(first))
	assert.True(t, stats.NewestEntry.Equal(first.Add(time.Minute)))
}

func TestStorageInfo(t *testing.T) {
	t.Run("quota", func(t *testing.T) {
		h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000}, WithQuotaEstimator(fixedQuota{usage: 250, quota: 1000}))
		info, err := h.manager.StorageInfo()
		require.NoError(t, err)
		assert.Equal(t, domain.StorageInfo{UsedBytes: 250, AvailableBytes: 750, UsagePercent: 25, FromQuota: true}, info)
	})

	t.Run("fallback", func(t *testing.T) {
		h := newHarness(t, Config{TTL: time.Hour, MaxSizeBytes: 1000}, WithQuotaEstimator(fixedQuota{err: errors.New("unsupported")}))
		require.NoError(t, h.store.Put("a", []byte("x"), "u", 500))

		info, err := h.manager.StorageInfo()
		require.NoError(t, err)
		assert.Equal(t, domain.StorageInfo{UsedBytes: 500, AvailableBytes: 500, UsagePercent: 50}, info)
	})
}

func TestInvalidateAndClear(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	ds := descriptors(3)
	_, err := h.manager.PreCacheAll(context.Background(), ds, nil)
	require.NoError(t, err)

	require.NoError(t, h.manager.Invalidate("m2"))
	assert.ElementsMatch(t, []string{"m1", "m3"}, h.ids(t))

	require.NoError(t, h.manager.Clear())
	assert.Empty(t, h.ids(t))
}
