package display

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/search"
)

// fetcher abstracts the signage API (consumer-defined interface)
type fetcher interface {
	FetchDisplay(ctx context.Context, clientID, displayID string) (domain.Display, error)
}

// Source tells where a loaded display came from
type Source string

const (
	SourceNetwork  Source = "network"
	SourceSnapshot Source = "snapshot"
)

// Service loads display configurations, keeping a local snapshot for offline starts
type Service struct {
	client fetcher
	store  domain.DisplayStore
	only   string // optional filter pattern
	logger *slog.Logger
}

// NewService creates a display service. only, when set, narrows the media list (see search.Filter).
func NewService(client fetcher, store domain.DisplayStore, only string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		store:  store,
		only:   only,
		logger: logger,
	}
}

// Load fetches the display and saves it as the offline snapshot. When the API is
// unreachable or failing, the last saved snapshot is used instead. A display the
// API reports as missing is never replaced by a snapshot.
func (s *Service) Load(ctx context.Context, clientID, displayID string) (domain.Display, Source, error) {
	display, err := s.client.FetchDisplay(ctx, clientID, displayID)
	if err == nil {
		if saveErr := s.store.SaveDisplay(display); saveErr != nil {
			s.logger.Warn("failed to save display snapshot", "display", displayID, "error", saveErr)
		}
		return s.filter(display), SourceNetwork, nil
	}

	if errors.Is(err, domain.ErrDisplayNotFound) {
		return domain.Display{}, "", err
	}

	snapshot, ok, loadErr := s.store.LoadDisplay(displayID)
	if loadErr != nil {
		s.logger.Error("failed to read display snapshot", "display", displayID, "error", loadErr)
		return domain.Display{}, "", err
	}
	if !ok {
		return domain.Display{}, "", err
	}

	s.logger.Warn("signage API unavailable, using saved display",
		"display", displayID, "fetched_at", snapshot.FetchedAt, "error", err)
	return s.filter(snapshot), SourceSnapshot, nil
}

func (s *Service) filter(d domain.Display) domain.Display {
	if s.only == "" {
		return d
	}
	before := len(d.Items)
	d.Items = search.Filter(d.Items, s.only)
	s.logger.Info("filtered media list", "pattern", s.only, "kept", len(d.Items), "total", before)
	return d
}
