package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaType distinguishes how a slide is rendered
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// ParseMediaType accepts both the short form ("image") and MIME strings ("video/mp4")
func ParseMediaType(s string) (MediaType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "image" || strings.HasPrefix(s, "image/"):
		return MediaTypeImage, true
	case s == "video" || strings.HasPrefix(s, "video/"):
		return MediaTypeVideo, true
	default:
		return "", false
	}
}

// Category is the content owner bucket assigned in the media library
type Category string

const (
	CategoryPromotion  Category = "Promotion"
	CategoryHeadOffice Category = "Head Office"
	CategoryStore      Category = "Store"
)

// ParseCategory normalizes category strings ("HeadOffice", "head office", ...)
func ParseCategory(s string) (Category, bool) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	switch norm {
	case "promotion":
		return CategoryPromotion, true
	case "headoffice":
		return CategoryHeadOffice, true
	case "store":
		return CategoryStore, true
	default:
		return "", false
	}
}

// MediaDescriptor describes one media asset of a display. Immutable once loaded.
type MediaDescriptor struct {
	ID       string        // Unique media identifier
	Name     string        // Display name shown in progress reports
	URL      string        // Remote source location (http(s):// or s3://)
	Type     MediaType     // Image or video
	Duration time.Duration // On-screen time, independent of the file's own length
	Category Category
}

// IsVideo reports whether the descriptor needs a video surface
func (d MediaDescriptor) IsVideo() bool {
	return d.Type == MediaTypeVideo
}

// FormattedDuration returns the slide duration as "5s" or "1m30s"
func (d MediaDescriptor) FormattedDuration() string {
	return d.Duration.Round(time.Second).String()
}

// Validate rejects descriptors that cannot be cached or played
func (d MediaDescriptor) Validate() error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return &ConfigurationError{ID: d.ID, Field: "id", Reason: "missing id"}
	case strings.TrimSpace(d.URL) == "":
		return &ConfigurationError{ID: d.ID, Field: "url", Reason: "missing url"}
	case d.Duration <= 0:
		return &ConfigurationError{ID: d.ID, Field: "duration", Reason: fmt.Sprintf("non-positive duration %s", d.Duration)}
	case d.Type != MediaTypeImage && d.Type != MediaTypeVideo:
		return &ConfigurationError{ID: d.ID, Field: "type", Reason: fmt.Sprintf("unknown media type %q", d.Type)}
	}
	return nil
}

// Display is a display configuration: the ordered media list for one screen
type Display struct {
	ID        string
	ClientID  string
	Name      string
	Items     []MediaDescriptor
	FetchedAt time.Time
}

// CacheEntry is one cached media blob plus its bookkeeping
type CacheEntry struct {
	ID          string
	SourceURL   string
	ContentType string
	Blob        []byte
	SizeBytes   int64
	CachedAt    time.Time
	Checksum    uint64
}

// Age returns how long ago the entry was written
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// CacheSummary reports the outcome of a bulk pre-cache pass
type CacheSummary struct {
	CachedCount         int
	AlreadyFreshCount   int
	FailedCount         int
	TotalCacheSizeBytes int64
	Failed              []string // IDs that could not be cached
}

// Total returns the number of descriptors processed
func (s CacheSummary) Total() int {
	return s.CachedCount + s.AlreadyFreshCount + s.FailedCount
}

// String renders the operator-facing line, e.g. "9 of 10 cached, 1 failed, 45MB used"
func (s CacheSummary) String() string {
	ok := s.CachedCount + s.AlreadyFreshCount
	return fmt.Sprintf("%d of %d cached, %d failed, %s used", ok, s.Total(), s.FailedCount, FormatBytes(s.TotalCacheSizeBytes))
}

// CacheStats is a read-only snapshot of the cache contents
type CacheStats struct {
	TotalItems     int
	TotalSizeBytes int64
	OldestEntry    time.Time // zero when empty
	NewestEntry    time.Time // zero when empty
}

// StorageInfo reports storage usage against the quota or configured budget
type StorageInfo struct {
	UsedBytes      int64
	AvailableBytes int64
	UsagePercent   int
	FromQuota      bool // true when a platform quota estimate was available
}

// FormatBytes returns a human-readable size
func FormatBytes(n int64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1fGB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= kb:
		return fmt.Sprintf("%dKB", n/kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
