package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
)

const (
	defaultTimeout = 5 * time.Minute
	userAgent      = "Kiosk/1.0"
	acceptMedia    = "image/*,video/*,*/*"
)

// uaRoundTripper stamps every request with the kiosk user agent
type uaRoundTripper struct {
	rt http.RoundTripper
}

func (u *uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	return u.rt.RoundTrip(req)
}

// NewHTTPClient returns the client used for media downloads
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &uaRoundTripper{rt: http.DefaultTransport},
	}
}

// HTTPFetcher downloads media over http(s), bypassing intermediate caches
type HTTPFetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client uses NewHTTPClient defaults.
func NewHTTPFetcher(client *http.Client, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{client: client, logger: logger}
}

// Fetch performs a single attempt. Non-2xx responses return *domain.StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (domain.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", acceptMedia)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	f.logger.Debug("media request", "url", url)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, resp.Body)
		return domain.FetchResult{StatusCode: resp.StatusCode}, &domain.StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	return domain.FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}
