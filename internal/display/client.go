package display

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Kiosk/1.0"
)

// Client fetches display configurations from the signage API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        domain.Clock
}

// NewClient creates a new signage API client
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// FetchDisplay returns the display's configuration. Invalid media items are dropped
// and logged. Transport failures return domain.ErrServerOffline.
func (c *Client) FetchDisplay(ctx context.Context, clientID, displayID string) (domain.Display, error) {
	query := url.Values{}
	query.Set("clientId", clientID)
	reqURL := fmt.Sprintf("%s/api/displays/%s?%s", c.baseURL, url.PathEscape(displayID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Display{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("display request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("display request failed", "error", err)
		return domain.Display{}, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Display{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Display{}, fmt.Errorf("display %q: %w", displayID, domain.ErrDisplayNotFound)
	case resp.StatusCode != http.StatusOK:
		var apiErr errorDTO
		_ = json.Unmarshal(body, &apiErr)
		c.logger.Error("display request error", "status", resp.StatusCode, "error", apiErr.Error)
		return domain.Display{}, &domain.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var dto DisplayDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return domain.Display{}, fmt.Errorf("failed to parse display: %w", err)
	}

	display, err := MapDisplay(dto, c.now())
	if err != nil {
		c.logger.Warn("display has invalid media items", "display", displayID, "error", err)
	}
	return display, nil
}
