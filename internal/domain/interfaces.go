package domain

import (
	"context"
	"time"
)

// BlobStore is the durable local store of cached media.
// Implementations perform no retries; failures surface as *StorageFailure.
type BlobStore interface {
	Put(id string, blob []byte, sourceURL string, sizeBytes int64) error
	Get(id string) (CacheEntry, bool, error)
	Delete(id string) error
	ListAll() ([]CacheEntry, error) // metadata only, Blob is nil
	Clear() error
}

// DisplayStore keeps the last known display configuration for offline start.
type DisplayStore interface {
	SaveDisplay(d Display) error
	LoadDisplay(displayID string) (Display, bool, error)
}

// FetchResult is a fetched payload
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Fetcher retrieves a media payload. Implementations must bypass intermediate HTTP caches.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Connectivity reports whether the network is currently reachable.
type Connectivity interface {
	Online() bool
}

// QuotaEstimator is an optional platform capability reporting storage usage and quota.
type QuotaEstimator interface {
	Estimate() (usage, quota int64, err error)
}

// AlwaysOnline is a Connectivity that never reports offline (for tests/headless use).
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

// Clock returns the current time; injected for TTL tests
type Clock func() time.Time
