package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// openModes returns a bolt-backed and a memory-only store sharing the same clock
func openModes(t *testing.T, clock *fakeClock, ttl time.Duration) map[string]*MediaStore {
	t.Helper()

	disk, err := Open(t.TempDir(), Options{TTL: ttl, HotTTL: time.Minute, Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })

	mem, err := Open("", Options{TTL: ttl, Clock: clock.Now})
	require.NoError(t, err)

	return map[string]*MediaStore{"bolt": disk, "memory": mem}
}

func TestMediaStore_PutGet(t *testing.T) {
	for name, s := range openModes(t, newClock(), time.Hour) {
		t.Run(name, func(t *testing.T) {
			blob := []byte("jpeg-bytes")
			require.NoError(t, s.PutWithType("m1", blob, "http://x/a.jpg", int64(len(blob)), "image/jpeg"))

			entry, ok, err := s.Get("m1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, blob, entry.Blob)
			assert.Equal(t, "http://x/a.jpg", entry.SourceURL)
			assert.Equal(t, "image/jpeg", entry.ContentType)
			assert.Equal(t, int64(len(blob)), entry.SizeBytes)

			_, ok, err = s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMediaStore_PutOverwrites(t *testing.T) {
	for name, s := range openModes(t, newClock(), time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("m1", []byte("old"), "http://x/a", 3))
			_, _, _ = s.Serve("m1") // promote into the hot layer
			require.NoError(t, s.Put("m1", []byte("newer"), "http://x/a", 5))

			entry, ok, err := s.Get("m1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("newer"), entry.Blob)

			all, err := s.ListAll()
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestMediaStore_TTLExpiry(t *testing.T) {
	clock := newClock()
	for name, s := range openModes(t, clock, 24*time.Hour) {
		t.Run(name, func(t *testing.T) {
			start := clock.t
			t.Cleanup(func() { clock.t = start })

			require.NoError(t, s.Put("m1", []byte("a"), "http://x/a", 1))
			_, ok, _ := s.Get("m1")
			require.True(t, ok)

			clock.Advance(24*time.Hour - time.Millisecond)
			_, ok, _ = s.Get("m1")
			assert.True(t, ok, "entry younger than TTL must be readable")

			clock.Advance(time.Millisecond)
			_, ok, err := s.Get("m1")
			require.NoError(t, err)
			assert.False(t, ok, "entry at TTL must read as absent")

			// The physical record remains until eviction
			all, err := s.ListAll()
			require.NoError(t, err)
			assert.Len(t, all, 1)

			_, fresh, err := s.Stat("m1")
			require.NoError(t, err)
			assert.False(t, fresh)
		})
	}
}

func TestMediaStore_DeleteIsIdempotent(t *testing.T) {
	for name, s := range openModes(t, newClock(), time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("m1", []byte("a"), "http://x/a", 1))
			require.NoError(t, s.Delete("m1"))
			require.NoError(t, s.Delete("m1"))
			require.NoError(t, s.Delete("never-existed"))

			_, ok, err := s.Get("m1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMediaStore_ListAllAndClear(t *testing.T) {
	clock := newClock()
	for name, s := range openModes(t, clock, time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("a", []byte("1"), "u1", 100))
			clock.Advance(time.Second)
			require.NoError(t, s.Put("b", []byte("22"), "u2", 200))

			all, err := s.ListAll()
			require.NoError(t, err)
			require.Len(t, all, 2)
			for _, e := range all {
				assert.Nil(t, e.Blob, "ListAll must not load blobs")
			}

			total, err := s.TotalSizeBytes()
			require.NoError(t, err)
			assert.Equal(t, int64(300), total)

			require.NoError(t, s.Clear())
			all, err = s.ListAll()
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestMediaStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{TTL: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Put("m1", []byte("payload"), "http://x/a", 7))
	require.NoError(t, s.Close())

	s, err = Open(dir, Options{TTL: time.Hour})
	require.NoError(t, err)
	defer s.Close()

	entry, ok, err := s.Get("m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), entry.Blob)
	assert.FileExists(t, filepath.Join(dir, dbFileName))
}

func TestMediaStore_ChecksumMismatchIsStorageFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{TTL: time.Hour})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("m1", []byte("payload"), "http://x/a", 7))

	// Corrupt the blob behind the store's back
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte("m1"), []byte("tampered"))
	})
	require.NoError(t, err)

	_, ok, err := s.Get("m1")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, domain.IsStorageFailure(err))
}

// === Read layer ===

func hotUsed(s *MediaStore) int64 {
	s.hotMu.Lock()
	defer s.hotMu.Unlock()
	return s.hotUsedLocked()
}

func openHot(t *testing.T, maxBytes int64) *MediaStore {
	t.Helper()
	s, err := Open(t.TempDir(), Options{TTL: time.Hour, HotTTL: time.Minute, HotMaxBytes: maxBytes})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMediaStore_OnlyServeFillsReadLayer(t *testing.T) {
	s := openHot(t, 1<<20)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.Put(id, []byte("0123456789"), "http://x/"+id, 10))
	}

	for _, id := range []string{"m1", "m2", "m3"} {
		_, ok, err := s.Get(id)
		require.NoError(t, err)
		require.True(t, ok)
		_, ok, err = s.Stat(id)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Zero(t, hotUsed(s), "Get and Stat must not retain blobs")

	_, ok, err := s.Serve("m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), hotUsed(s))
}

func TestMediaStore_ReadLayerByteCap(t *testing.T) {
	s := openHot(t, 15)

	require.NoError(t, s.Put("m1", []byte("0123456789"), "http://x/1", 10))
	require.NoError(t, s.Put("m2", []byte("0123456789"), "http://x/2", 10))
	require.NoError(t, s.Put("big", make([]byte, 64), "http://x/big", 64))

	_, _, _ = s.Serve("m1")
	_, _, _ = s.Serve("m2")
	_, _, _ = s.Serve("big")
	assert.Equal(t, int64(10), hotUsed(s))

	// Entries over the cap are still served from disk
	entry, ok, err := s.Serve("big")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.Blob, 64)
}

func TestMediaStore_DeleteDuringServeIsNotResurrected(t *testing.T) {
	s := openHot(t, 1<<20)
	require.NoError(t, s.Put("m1", []byte("stale"), "http://x/a", 5))

	s.afterRead = func(id string) {
		s.afterRead = nil
		require.NoError(t, s.Delete(id))
	}
	_, ok, err := s.Serve("m1")
	require.NoError(t, err)
	assert.True(t, ok, "the read itself completed before the delete")

	_, ok, err = s.Serve("m1")
	require.NoError(t, err)
	assert.False(t, ok, "deleted entry must not be served from memory")
	assert.Zero(t, hotUsed(s))
}

func TestMediaStore_PutDuringServeKeepsNewBlob(t *testing.T) {
	s := openHot(t, 1<<20)
	require.NoError(t, s.Put("m1", []byte("old"), "http://x/a", 3))

	s.afterRead = func(id string) {
		s.afterRead = nil
		require.NoError(t, s.Put(id, []byte("refreshed"), "http://x/a", 9))
	}
	_, _, err := s.Serve("m1")
	require.NoError(t, err)

	entry, ok, err := s.Serve("m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("refreshed"), entry.Blob)
}

func TestMediaStore_OpenFailsOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Open(filepath.Join(blocker, "sub"), Options{})
	require.Error(t, err)
	assert.True(t, domain.IsStorageFailure(err))
}

func TestMediaStore_DisplaySnapshot(t *testing.T) {
	for name, s := range openModes(t, newClock(), time.Hour) {
		t.Run(name, func(t *testing.T) {
			want := domain.Display{
				ID:        "d1",
				ClientID:  "c1",
				Name:      "Front window",
				FetchedAt: time.Unix(1700000000, 0),
				Items: []domain.MediaDescriptor{
					{ID: "m1", Name: "Banner", URL: "http://x/a.jpg", Type: domain.MediaTypeImage, Duration: 5 * time.Second, Category: domain.CategoryPromotion},
					{ID: "m2", Name: "Clip", URL: "http://x/b.mp4", Type: domain.MediaTypeVideo, Duration: 10 * time.Second, Category: domain.CategoryStore},
				},
			}
			require.NoError(t, s.SaveDisplay(want))

			got, ok, err := s.LoadDisplay("d1")
			require.NoError(t, err)
			require.True(t, ok)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("display mismatch (-want +got):\n%s", diff)
			}

			_, ok, err = s.LoadDisplay("nope")
			require.NoError(t, err)
			assert.False(t, ok)

			// Clearing media keeps the snapshot
			require.NoError(t, s.Clear())
			_, ok, _ = s.LoadDisplay("d1")
			assert.True(t, ok)
		})
	}
}
