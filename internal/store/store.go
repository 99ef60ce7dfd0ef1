package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcdole/kiosk/internal/domain"
	gocache "github.com/patrickmn/go-cache"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketBlobs    = []byte("blobs")
	bucketEntries  = []byte("entries")
	bucketDisplays = []byte("displays")
)

const dbFileName = "kiosk.db"

// defaultHotMaxBytes caps the in-memory read layer when Options.HotMaxBytes is unset
const defaultHotMaxBytes = 64 << 20

// entryMeta is the JSON metadata record stored next to each blob
type entryMeta struct {
	ID          string `json:"id"`
	SourceURL   string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size"`
	CachedAtMs  int64  `json:"timestamp"`
	Checksum    uint64 `json:"checksum"`
}

func (m entryMeta) toEntry(blob []byte) domain.CacheEntry {
	return domain.CacheEntry{
		ID:          m.ID,
		SourceURL:   m.SourceURL,
		ContentType: m.ContentType,
		Blob:        blob,
		SizeBytes:   m.SizeBytes,
		CachedAt:    time.UnixMilli(m.CachedAtMs),
		Checksum:    m.Checksum,
	}
}

// Options configures a MediaStore
type Options struct {
	TTL         time.Duration // entries at or past this age read as absent
	HotTTL      time.Duration // lifetime of the in-memory read layer, 0 disables it
	HotCleanup  time.Duration // janitor interval for the read layer, 0 disables the janitor
	HotMaxBytes int64         // byte cap for the read layer
	Clock       domain.Clock
	OpenTimeout time.Duration
}

// MediaStore implements domain.BlobStore and domain.DisplayStore using BoltDB.
type MediaStore struct {
	db  *bolt.DB
	ttl time.Duration
	now domain.Clock

	// Memory-only mode (no persistence)
	mu      sync.RWMutex
	memMeta map[string]entryMeta
	memBlob map[string][]byte
	memDisp map[string][]byte

	// In-memory hot layer for reads served to the media server.
	// hotMu orders promotions against writes; writeSeq is bumped after every commit.
	hot      *gocache.Cache
	hotMax   int64
	hotMu    sync.Mutex
	writeSeq uint64

	afterRead func(id string) // test hook between the durable read and promotion
}

// Open opens (or creates) the store under dataDir. An empty dataDir selects memory-only mode.
func Open(dataDir string, opts Options) (*MediaStore, error) {
	s := &MediaStore{ttl: opts.TTL, now: opts.Clock}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.HotTTL > 0 {
		s.hot = gocache.New(opts.HotTTL, opts.HotCleanup)
		s.hotMax = opts.HotMaxBytes
		if s.hotMax <= 0 {
			s.hotMax = defaultHotMaxBytes
		}
	}

	if dataDir == "" {
		s.memMeta = make(map[string]entryMeta)
		s.memBlob = make(map[string][]byte)
		s.memDisp = make(map[string][]byte)
		return s, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, &domain.StorageFailure{Op: "open", Err: err}
	}

	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, &domain.StorageFailure{Op: "open", Err: fmt.Errorf("failed to open bolt db: %w", err)}
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlobs, bucketEntries, bucketDisplays} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &domain.StorageFailure{Op: "open", Err: err}
	}

	s.db = db
	return s, nil
}

func (s *MediaStore) Close() error {
	if s.hot != nil {
		s.hot.Flush()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// TTL returns the configured entry lifetime
func (s *MediaStore) TTL() time.Duration {
	return s.ttl
}

func (s *MediaStore) expired(cachedAt time.Time) bool {
	return s.ttl > 0 && s.now().Sub(cachedAt) >= s.ttl
}

// === Blobs ===

// Put stores or overwrites the entry for id. The write is visible to Get immediately.
func (s *MediaStore) Put(id string, blob []byte, sourceURL string, sizeBytes int64) error {
	return s.PutWithType(id, blob, sourceURL, sizeBytes, "")
}

// PutWithType is Put with an explicit content type for the media server
func (s *MediaStore) PutWithType(id string, blob []byte, sourceURL string, sizeBytes int64, contentType string) error {
	meta := entryMeta{
		ID:          id,
		SourceURL:   sourceURL,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		CachedAtMs:  s.now().UnixMilli(),
		Checksum:    xxhash.Sum64(blob),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return &domain.StorageFailure{Op: "put", ID: id, Err: err}
	}

	if s.db == nil {
		stored := make([]byte, len(blob))
		copy(stored, blob)
		s.mu.Lock()
		s.memMeta[id] = meta
		s.memBlob[id] = stored
		s.mu.Unlock()
		s.invalidate(id)
		return nil
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Put([]byte(id), blob); err != nil {
			return err
		}
		return tx.Bucket(bucketEntries).Put([]byte(id), data)
	})
	s.invalidate(id)
	if err != nil {
		return &domain.StorageFailure{Op: "put", ID: id, Err: err}
	}
	return nil
}

// invalidate drops id from the read layer after a write has committed.
// An empty id drops everything.
func (s *MediaStore) invalidate(id string) {
	if s.hot == nil {
		return
	}
	s.hotMu.Lock()
	defer s.hotMu.Unlock()
	s.writeSeq++
	if id == "" {
		s.hot.Flush()
		return
	}
	s.hot.Delete(id)
}

// Get returns the entry for id. Missing and expired entries both report ok=false.
// Get never fills the read layer; see Serve.
func (s *MediaStore) Get(id string) (domain.CacheEntry, bool, error) {
	return s.lookup(id, false)
}

// Serve is Get for the media server. Blobs that fit under the byte cap are kept
// in the read layer for HotTTL.
func (s *MediaStore) Serve(id string) (domain.CacheEntry, bool, error) {
	return s.lookup(id, true)
}

func (s *MediaStore) lookup(id string, promote bool) (domain.CacheEntry, bool, error) {
	var seq uint64
	if s.hot != nil {
		s.hotMu.Lock()
		v, hit := s.hot.Get(id)
		seq = s.writeSeq
		s.hotMu.Unlock()
		if hit {
			entry := v.(domain.CacheEntry)
			if !s.expired(entry.CachedAt) {
				return entry, true, nil
			}
			s.invalidate(id)
			return domain.CacheEntry{}, false, nil
		}
	}

	meta, blob, found, err := s.read(id)
	if err != nil || !found {
		return domain.CacheEntry{}, false, err
	}
	if s.expired(time.UnixMilli(meta.CachedAtMs)) {
		return domain.CacheEntry{}, false, nil
	}
	if xxhash.Sum64(blob) != meta.Checksum {
		return domain.CacheEntry{}, false, &domain.StorageFailure{Op: "get", ID: id, Err: fmt.Errorf("checksum mismatch")}
	}

	entry := meta.toEntry(blob)
	if promote && s.hot != nil {
		if s.afterRead != nil {
			s.afterRead(id)
		}
		s.promote(id, entry, seq)
	}
	return entry, true, nil
}

// promote adds entry to the read layer unless a write committed since seq was
// taken or the layer would grow past its byte cap.
func (s *MediaStore) promote(id string, entry domain.CacheEntry, seq uint64) {
	s.hotMu.Lock()
	defer s.hotMu.Unlock()
	if s.writeSeq != seq {
		return
	}
	s.hot.DeleteExpired()
	if s.hotUsedLocked()+entry.SizeBytes > s.hotMax {
		return
	}
	s.hot.SetDefault(id, entry)
}

func (s *MediaStore) hotUsedLocked() int64 {
	var used int64
	for _, item := range s.hot.Items() {
		used += item.Object.(domain.CacheEntry).SizeBytes
	}
	return used
}

// Stat returns metadata for a fresh entry without loading the blob (Blob is nil)
func (s *MediaStore) Stat(id string) (domain.CacheEntry, bool, error) {
	meta, found, err := s.readMeta(id)
	if err != nil || !found {
		return domain.CacheEntry{}, false, err
	}
	if s.expired(time.UnixMilli(meta.CachedAtMs)) {
		return domain.CacheEntry{}, false, nil
	}
	return meta.toEntry(nil), true, nil
}

// Peek returns metadata for id regardless of expiry (Blob is nil)
func (s *MediaStore) Peek(id string) (domain.CacheEntry, bool, error) {
	meta, found, err := s.readMeta(id)
	if err != nil || !found {
		return domain.CacheEntry{}, false, err
	}
	return meta.toEntry(nil), true, nil
}

func (s *MediaStore) read(id string) (entryMeta, []byte, bool, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		meta, ok := s.memMeta[id]
		if !ok {
			return entryMeta{}, nil, false, nil
		}
		blob := s.memBlob[id]
		out := make([]byte, len(blob))
		copy(out, blob)
		return meta, out, true, nil
	}

	var (
		meta  entryMeta
		blob  []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntries).Get([]byte(id))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("corrupt metadata: %w", err)
		}
		v := tx.Bucket(bucketBlobs).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("blob missing for metadata")
		}
		// Bolt memory is only valid for the life of the transaction
		blob = make([]byte, len(v))
		copy(blob, v)
		found = true
		return nil
	})
	if err != nil {
		return entryMeta{}, nil, false, &domain.StorageFailure{Op: "get", ID: id, Err: err}
	}
	return meta, blob, found, nil
}

func (s *MediaStore) readMeta(id string) (entryMeta, bool, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		meta, ok := s.memMeta[id]
		return meta, ok, nil
	}

	var (
		meta  entryMeta
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntries).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &meta)
	})
	if err != nil {
		return entryMeta{}, false, &domain.StorageFailure{Op: "get", ID: id, Err: err}
	}
	return meta, found, nil
}

// Delete removes the entry for id. Deleting a missing id is not an error.
func (s *MediaStore) Delete(id string) error {
	if s.db == nil {
		s.mu.Lock()
		delete(s.memMeta, id)
		delete(s.memBlob, id)
		s.mu.Unlock()
		s.invalidate(id)
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketEntries).Delete([]byte(id))
	})
	s.invalidate(id)
	if err != nil {
		return &domain.StorageFailure{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// ListAll returns metadata for every physical entry, expired ones included. Blob is nil.
func (s *MediaStore) ListAll() ([]domain.CacheEntry, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		entries := make([]domain.CacheEntry, 0, len(s.memMeta))
		for _, meta := range s.memMeta {
			entries = append(entries, meta.toEntry(nil))
		}
		return entries, nil
	}

	var entries []domain.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var meta entryMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("corrupt metadata for %q: %w", k, err)
			}
			entries = append(entries, meta.toEntry(nil))
			return nil
		})
	})
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list", Err: err}
	}
	return entries, nil
}

// TotalSizeBytes sums entry sizes. Derived on every call, never cached.
func (s *MediaStore) TotalSizeBytes() (int64, error) {
	entries, err := s.ListAll()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.SizeBytes
	}
	return total, nil
}

// Clear removes every cached blob. Display snapshots are kept.
func (s *MediaStore) Clear() error {
	if s.db == nil {
		s.mu.Lock()
		s.memMeta = make(map[string]entryMeta)
		s.memBlob = make(map[string][]byte)
		s.mu.Unlock()
		s.invalidate("")
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlobs, bucketEntries} {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	s.invalidate("")
	if err != nil {
		return &domain.StorageFailure{Op: "clear", Err: err}
	}
	return nil
}
