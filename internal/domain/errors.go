package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrNotCached indicates the media id has no fresh cache entry
	ErrNotCached = errors.New("media not cached")

	// ErrServerOffline indicates the signage API is unreachable
	ErrServerOffline = errors.New("signage server is unreachable")

	// ErrIndexOutOfRange indicates a jump target outside the media list
	ErrIndexOutOfRange = errors.New("slide index out of range")

	// ErrDisplayNotFound indicates the display configuration does not exist
	ErrDisplayNotFound = errors.New("display not found")
)

// StorageFailure wraps errors from the local blob store (unavailable, corrupt, quota exceeded).
type StorageFailure struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageFailure) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// FetchFailure is returned once a descriptor's fetch has exhausted its retries.
type FetchFailure struct {
	ID       string
	URL      string
	Attempts int
	Err      error // last error seen
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %q from %s failed after %d attempts: %v", e.ID, e.URL, e.Attempts, e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// ConfigurationError marks a malformed descriptor. It is never retried.
type ConfigurationError struct {
	ID     string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid media descriptor: %s", e.Reason)
	}
	return fmt.Sprintf("invalid media descriptor %q: %s", e.ID, e.Reason)
}

// StatusError is a non-success HTTP response from a fetch
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// IsStorageFailure reports whether err carries a StorageFailure
func IsStorageFailure(err error) bool {
	var sf *StorageFailure
	return errors.As(err, &sf)
}
