package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/kiosk/internal/domain"
)

// Mux routes a fetch to the fetcher registered for the URL scheme
type Mux struct {
	fetchers map[string]domain.Fetcher
}

// NewMux creates a Mux with http and https served by httpFetcher
func NewMux(httpFetcher domain.Fetcher) *Mux {
	m := &Mux{fetchers: make(map[string]domain.Fetcher)}
	if httpFetcher != nil {
		m.Handle("http", httpFetcher)
		m.Handle("https", httpFetcher)
	}
	return m
}

// Handle registers f for scheme
func (m *Mux) Handle(scheme string, f domain.Fetcher) {
	m.fetchers[strings.ToLower(scheme)] = f
}

// Fetch dispatches by scheme
func (m *Mux) Fetch(ctx context.Context, rawURL string) (domain.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("invalid media url: %w", err)
	}
	f, ok := m.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return domain.FetchResult{}, fmt.Errorf("no fetcher for scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}
