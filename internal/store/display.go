package store

import (
	"encoding/json"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// displaySnapshot wraps domain.Display for JSON serialization
type displaySnapshot struct {
	ID        string               `json:"id"`
	ClientID  string               `json:"client_id"`
	Name      string               `json:"name"`
	FetchedAt int64                `json:"fetched_at"`
	Items     []descriptorSnapshot `json:"items"`
}

type descriptorSnapshot struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Type        string  `json:"type"`
	DurationSec float64 `json:"duration"`
	Category    string  `json:"category"`
}

// SaveDisplay stores the last known configuration for a display
func (s *MediaStore) SaveDisplay(d domain.Display) error {
	snap := displaySnapshot{
		ID:        d.ID,
		ClientID:  d.ClientID,
		Name:      d.Name,
		FetchedAt: d.FetchedAt.Unix(),
		Items:     make([]descriptorSnapshot, len(d.Items)),
	}
	for i, item := range d.Items {
		snap.Items[i] = descriptorSnapshot{
			ID:          item.ID,
			Name:        item.Name,
			URL:         item.URL,
			Type:        string(item.Type),
			DurationSec: item.Duration.Seconds(),
			Category:    string(item.Category),
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return &domain.StorageFailure{Op: "save display", ID: d.ID, Err: err}
	}

	if s.db == nil {
		s.mu.Lock()
		s.memDisp[d.ID] = data
		s.mu.Unlock()
		return nil
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDisplays).Put([]byte(d.ID), data)
	})
	if err != nil {
		return &domain.StorageFailure{Op: "save display", ID: d.ID, Err: err}
	}
	return nil
}

// LoadDisplay returns the stored configuration for displayID, if any
func (s *MediaStore) LoadDisplay(displayID string) (domain.Display, bool, error) {
	var data []byte

	if s.db == nil {
		s.mu.RLock()
		data = s.memDisp[displayID]
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(bucketDisplays).Get([]byte(displayID)); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
		if err != nil {
			return domain.Display{}, false, &domain.StorageFailure{Op: "load display", ID: displayID, Err: err}
		}
	}

	if data == nil {
		return domain.Display{}, false, nil
	}

	var snap displaySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Display{}, false, &domain.StorageFailure{Op: "load display", ID: displayID, Err: err}
	}

	d := domain.Display{
		ID:        snap.ID,
		ClientID:  snap.ClientID,
		Name:      snap.Name,
		FetchedAt: time.Unix(snap.FetchedAt, 0),
		Items:     make([]domain.MediaDescriptor, len(snap.Items)),
	}
	for i, item := range snap.Items {
		d.Items[i] = domain.MediaDescriptor{
			ID:       item.ID,
			Name:     item.Name,
			URL:      item.URL,
			Type:     domain.MediaType(item.Type),
			Duration: time.Duration(item.DurationSec * float64(time.Second)),
			Category: domain.Category(item.Category),
		}
	}
	return d, true, nil
}
