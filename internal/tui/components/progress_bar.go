package components

import (
	"github.com/charmbracelet/bubbles/progress"
)

// ProgressBar renders a static fraction with the bubbles progress bar.
// Frames are not animated; the bar is redrawn from the latest value.
type ProgressBar struct {
	bar progress.Model
}

// NewProgressBar creates a progress bar
func NewProgressBar(opts ...progress.Option) ProgressBar {
	opts = append([]progress.Option{progress.WithWidth(40)}, opts...)
	return ProgressBar{bar: progress.New(opts...)}
}

// SetWidth sets the bar width including the percentage label
func (p *ProgressBar) SetWidth(width int) {
	p.bar.Width = width
}

// View renders fraction, clamped to [0,1]
func (p ProgressBar) View(fraction float64) string {
	return p.bar.ViewAs(min(max(fraction, 0), 1))
}
