package display

import (
	"errors"
	"math"
	"time"

	"github.com/mmcdole/kiosk/internal/domain"
)

// MapDisplay converts an API display to the domain model. Items that fail
// validation are left out and reported together in the returned error.
func MapDisplay(dto DisplayDTO, fetchedAt time.Time) (domain.Display, error) {
	display := domain.Display{
		ID:        dto.ID,
		ClientID:  dto.ClientID,
		Name:      dto.Name,
		FetchedAt: fetchedAt,
		Items:     make([]domain.MediaDescriptor, 0, len(dto.MediaItems)),
	}

	var errs []error
	for _, item := range dto.MediaItems {
		d, err := MapMediaItem(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		display.Items = append(display.Items, d)
	}
	return display, errors.Join(errs...)
}

// MapMediaItem converts and validates a single media item
func MapMediaItem(item MediaItemDTO) (domain.MediaDescriptor, error) {
	d := domain.MediaDescriptor{
		ID:       item.ID,
		Name:     item.Name,
		URL:      item.URL,
		Duration: time.Duration(item.Duration * float64(time.Second)),
		Category: domain.Category(item.Category),
	}
	if d.Name == "" {
		d.Name = d.ID
	}

	if item.Duration != math.Trunc(item.Duration) {
		return d, &domain.ConfigurationError{ID: item.ID, Field: "durationSeconds", Reason: "duration must be a whole number of seconds"}
	}

	typ, ok := domain.ParseMediaType(item.Type)
	if !ok {
		return d, &domain.ConfigurationError{ID: item.ID, Field: "type", Reason: "unknown media type " + item.Type}
	}
	d.Type = typ

	if c, ok := domain.ParseCategory(item.Category); ok {
		d.Category = c
	}

	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}
