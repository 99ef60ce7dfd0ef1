package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
)

// Event stream names
const (
	StreamCache    = "cache"
	StreamPlayback = "playback"
)

// mediaSource reads cached blobs (consumer-defined interface)
type mediaSource interface {
	Serve(id string) (domain.CacheEntry, bool, error)
}

// cacheInfo reports cache diagnostics (consumer-defined interface)
type cacheInfo interface {
	GetStats() (domain.CacheStats, error)
	StorageInfo() (domain.StorageInfo, error)
}

// stateSource exposes the playback loop's state (consumer-defined interface)
type stateSource interface {
	State() playback.State
}

// Options configures the media server
type Options struct {
	Listen         string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the loopback HTTP server that plays cached media to the surface and
// exposes cache and playback diagnostics.
type Server struct {
	media  mediaSource
	cache  cacheInfo
	events *sse.Server
	logger *slog.Logger

	handler http.Handler
	listen  string
	httpSrv *http.Server

	mu       sync.RWMutex
	player   stateSource
	summary  *domain.CacheSummary
	progress *domain.CacheProgress
}

// New creates the server and registers its routes
func New(media mediaSource, cache cacheInfo, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(StreamCache)
	events.CreateStream(StreamPlayback)

	s := &Server{
		media:  media,
		cache:  cache,
		events: events,
		logger: logger,
		listen: opts.Listen,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /media/{id}", s.handleMedia)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/storage", s.handleStorage)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /events", events.ServeHTTP)
	mux.Handle("GET /metrics", promhttp.Handler())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Range"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
	})
	s.handler = c.Handler(mux)
	return s
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetPlayer attaches the playback loop whose state /api/state reports
func (s *Server) SetPlayer(p stateSource) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("media server stopped", "error", err)
		}
	}()

	addr := ln.Addr().String()
	s.logger.Info("media server listening", "addr", addr)
	return addr, nil
}

// Shutdown closes event streams and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// OnProgress records and streams pre-cache progress (implements domain.ProgressObserver)
func (s *Server) OnProgress(p domain.CacheProgress) {
	s.mu.Lock()
	s.progress = &p
	s.mu.Unlock()

	s.publish(StreamCache, progressResponse{
		Type:      "progress",
		Completed: p.Completed,
		Total:     p.Total,
		Name:      p.Name,
		Status:    string(p.Status),
	})
}

// SetSummary records and streams the result of a pre-cache pass
func (s *Server) SetSummary(sum domain.CacheSummary) {
	s.mu.Lock()
	s.summary = &sum
	s.mu.Unlock()

	s.publish(StreamCache, newSummaryResponse(sum))
}

// OnEvent streams slide and state changes (implements playback.Observer).
// Progress ticks are not streamed.
func (s *Server) OnEvent(e playback.Event) {
	if e.Kind == playback.EventProgress {
		return
	}
	s.publish(StreamPlayback, newEventResponse(e))
}
