package server

import (
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
)

type statsResponse struct {
	TotalItems     int        `json:"totalItems"`
	TotalSizeBytes int64      `json:"totalSizeBytes"`
	TotalSize      string     `json:"totalSize"`
	OldestEntry    *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry    *time.Time `json:"newestEntry,omitempty"`
}

func newStatsResponse(s domain.CacheStats) statsResponse {
	resp := statsResponse{
		TotalItems:     s.TotalItems,
		TotalSizeBytes: s.TotalSizeBytes,
		TotalSize:      domain.FormatBytes(s.TotalSizeBytes),
	}
	if !s.OldestEntry.IsZero() {
		resp.OldestEntry = &s.OldestEntry
	}
	if !s.NewestEntry.IsZero() {
		resp.NewestEntry = &s.NewestEntry
	}
	return resp
}

type storageResponse struct {
	UsedBytes      int64  `json:"usedBytes"`
	AvailableBytes int64  `json:"availableBytes"`
	UsagePercent   int    `json:"usagePercent"`
	FromQuota      bool   `json:"fromQuota"`
	Used           string `json:"used"`
}

type summaryResponse struct {
	Type                string   `json:"type"`
	CachedCount         int      `json:"cachedCount"`
	AlreadyFreshCount   int      `json:"alreadyFreshCount"`
	FailedCount         int      `json:"failedCount"`
	TotalCacheSizeBytes int64    `json:"totalCacheSizeBytes"`
	Failed              []string `json:"failed,omitempty"`
	Message             string   `json:"message"`
}

func newSummaryResponse(s domain.CacheSummary) summaryResponse {
	return summaryResponse{
		Type:                "summary",
		CachedCount:         s.CachedCount,
		AlreadyFreshCount:   s.AlreadyFreshCount,
		FailedCount:         s.FailedCount,
		TotalCacheSizeBytes: s.TotalCacheSizeBytes,
		Failed:              s.Failed,
		Message:             s.String(),
	}
}

type progressResponse struct {
	Type      string `json:"type"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

type statusResponse struct {
	Summary  *summaryResponse  `json:"summary,omitempty"`
	Progress *progressResponse `json:"progress,omitempty"`
}

type slideResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Duration float64 `json:"duration"`
}

func newSlideResponse(d domain.MediaDescriptor) *slideResponse {
	return &slideResponse{
		ID:       d.ID,
		Name:     d.Name,
		Type:     string(d.Type),
		Category: string(d.Category),
		Duration: d.Duration.Seconds(),
	}
}

type stateResponse struct {
	Session    string         `json:"session"`
	Index      int            `json:"index"`
	Total      int            `json:"total"`
	Status     string         `json:"status"`
	Item       *slideResponse `json:"item,omitempty"`
	Progress   float64        `json:"progress"`
	URL        string         `json:"url,omitempty"`
	Local      bool           `json:"local"`
	Fullscreen bool           `json:"fullscreen"`
}

func newStateResponse(st playback.State) stateResponse {
	resp := stateResponse{
		Session:    st.SessionID,
		Index:      st.Index,
		Total:      len(st.Items),
		Status:     string(st.Status),
		Progress:   st.Progress(),
		URL:        st.ResolvedURL,
		Local:      st.Local,
		Fullscreen: st.Fullscreen,
	}
	if d, ok := st.Current(); ok {
		resp.Item = newSlideResponse(d)
	}
	return resp
}

type eventResponse struct {
	Type       string         `json:"type"`
	Session    string         `json:"session"`
	Index      int            `json:"index"`
	Total      int            `json:"total"`
	Status     string         `json:"status"`
	Item       *slideResponse `json:"item,omitempty"`
	Local      bool           `json:"local"`
	Fullscreen bool           `json:"fullscreen"`
	At         time.Time      `json:"at"`
}

func newEventResponse(e playback.Event) eventResponse {
	resp := eventResponse{
		Type:       string(e.Kind),
		Session:    e.SessionID,
		Index:      e.Index,
		Total:      e.Total,
		Status:     string(e.Status),
		Local:      e.Local,
		Fullscreen: e.Fullscreen,
		At:         e.At,
	}
	if e.Item.ID != "" {
		resp.Item = newSlideResponse(e.Item)
	}
	return resp
}
