package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/r3labs/sse/v2"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) publish(stream string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode event", "stream", stream, "error", err)
		return
	}
	s.events.Publish(stream, &sse.Event{Data: data})
}

// handleMedia serves a cached blob. Range requests are honored so video surfaces can seek.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entry, ok, err := s.media.Serve(id)
	if err != nil {
		s.logger.Error("failed to read cached media", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read cached media")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "media not cached")
		return
	}

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%x"`, entry.Checksum))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, id, entry.CachedAt, bytes.NewReader(entry.Blob))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.GetStats()
	if err != nil {
		s.logger.Error("failed to compute cache stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute cache stats")
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(stats))
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	info, err := s.cache.StorageInfo()
	if err != nil {
		s.logger.Error("failed to compute storage info", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute storage info")
		return
	}
	writeJSON(w, http.StatusOK, storageResponse{
		UsedBytes:      info.UsedBytes,
		AvailableBytes: info.AvailableBytes,
		UsagePercent:   info.UsagePercent,
		FromQuota:      info.FromQuota,
		Used:           domain.FormatBytes(info.UsedBytes),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	summary, progress := s.summary, s.progress
	s.mu.RUnlock()

	resp := statusResponse{}
	if summary != nil {
		sr := newSummaryResponse(*summary)
		resp.Summary = &sr
	}
	if progress != nil {
		resp.Progress = &progressResponse{
			Type:      "progress",
			Completed: progress.Completed,
			Total:     progress.Total,
			Name:      progress.Name,
			Status:    string(progress.Status),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	player := s.player
	s.mu.RUnlock()

	if player == nil {
		writeError(w, http.StatusServiceUnavailable, "playback not running")
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(player.State()))
}
