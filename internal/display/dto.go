package display

// DisplayDTO is the display configuration returned by GET /api/displays/{id}
type DisplayDTO struct {
	ID         string         `json:"id"`
	ClientID   string         `json:"clientId"`
	Name       string         `json:"name"`
	MediaItems []MediaItemDTO `json:"mediaItems,omitempty"`
}

// MediaItemDTO is one entry of a display's media list
type MediaItemDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Type     string  `json:"type"`     // "image" | "video", or a MIME type
	Category string  `json:"category"` // "Promotion" | "Head Office" | "Store"
	Duration float64 `json:"duration"` // seconds
}

// errorDTO is the API's error body
type errorDTO struct {
	Error string `json:"error"`
}
