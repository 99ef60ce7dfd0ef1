package cache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor tracks reachability of the media origin with periodic HEAD probes.
// It implements domain.Connectivity.
type Monitor struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
}

// NewMonitor creates a monitor probing probeURL. The initial state is online
// until a probe says otherwise.
func NewMonitor(probeURL string, client *http.Client, logger *slog.Logger) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		url:     probeURL,
		client:  client,
		timeout: 5 * time.Second,
		logger:  logger,
	}
	m.online.Store(true)
	onlineGauge.Set(1)
	return m
}

// Online reports the result of the last probe
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnChange registers fn to be called on every online/offline transition
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Probe checks the origin once and updates state. Any HTTP response counts as
// online; only transport errors count as offline.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.url == "" {
		return m.Online()
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	up := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err == nil {
		var resp *http.Response
		resp, err = m.client.Do(req)
		if err == nil {
			resp.Body.Close()
			up = true
		}
	}

	m.Set(up)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "url", m.url, "error", err)
	}
	return up
}

// Set records a connectivity state and notifies listeners on change
func (m *Monitor) Set(up bool) {
	if m.online.Swap(up) == up {
		return
	}

	if up {
		onlineGauge.Set(1)
		m.logger.Info("connection restored")
	} else {
		onlineGauge.Set(0)
		m.logger.Warn("connection lost")
	}

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(up)
	}
}
