package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/playback"
	"github.com/mmcdole/kiosk/internal/tui/styles"
)

// RenderSpinner renders a loading spinner
func RenderSpinner(frame int) string {
	return styles.SpinnerStyle.Render(styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])
}

// RenderOnlineBadge renders the connectivity indicator
func RenderOnlineBadge(online bool) string {
	if online {
		return styles.OnlineBadge.Render("ONLINE")
	}
	return styles.OfflineBadge.Render("OFFLINE")
}

// RenderSlideMeta renders "image · Promotion · 5s"
func RenderSlideMeta(d domain.MediaDescriptor) string {
	parts := []string{string(d.Type)}
	if d.Category != "" {
		parts = append(parts, string(d.Category))
	}
	parts = append(parts, d.FormattedDuration())
	return strings.Join(parts, " · ")
}

func (m Model) renderHeader() string {
	title := m.opts.Title
	if title == "" {
		title = "Kiosk"
	}
	left := styles.TitleStyle.Render(title)
	if m.opts.Source != "" {
		left += styles.DimStyle.Render(" (" + m.opts.Source + ")")
	}
	right := RenderOnlineBadge(m.Online)

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderPreCache() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(styles.SubtitleStyle.Render("Caching media for offline playback"))
	b.WriteString("\n\n")

	p := m.Progress
	var fraction float64
	if p.Total > 0 {
		fraction = float64(p.Completed) / float64(p.Total)
	}

	line := fmt.Sprintf("%d/%d", p.Completed, p.Total)
	if p.Name != "" {
		line += " · " + p.Name
	}
	status := styles.DimStyle.Render(string(p.Status))
	if p.Status == domain.StatusFailed {
		status = styles.ErrorStyle.Render(string(p.Status))
	}
	b.WriteString(RenderSpinner(m.SpinnerFrame) + " " + line + " " + status)
	b.WriteString("\n")
	b.WriteString(m.CacheBar.View(fraction))
	b.WriteString("\n\n")
	b.WriteString(m.Help.ShortHelpView([]key.Binding{Keys.Quit}))

	return styles.ScreenStyle.Render(b.String())
}

func (m Model) renderSlideshow() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	st := m.Playback
	if d, ok := st.Current(); ok && st.Status != playback.StatusEmpty {
		var slide strings.Builder
		slide.WriteString(styles.DimStyle.Render(fmt.Sprintf("Slide %d/%d", st.Index+1, len(st.Items))))
		slide.WriteString("\n")
		slide.WriteString(styles.TitleStyle.Render(d.Name))
		slide.WriteString("\n")
		slide.WriteString(styles.SubtitleStyle.Render(RenderSlideMeta(d)))
		slide.WriteString("\n\n")

		if st.Local {
			slide.WriteString(styles.DimBadgeStyle.Render("local"))
		} else {
			slide.WriteString(styles.BadgeStyle.Render("remote"))
		}
		slide.WriteString(" ")
		switch st.Status {
		case playback.StatusPaused:
			slide.WriteString(styles.AccentStyle.Render("paused"))
		default:
			slide.WriteString(styles.SuccessStyle.Render(string(st.Status)))
		}
		if st.Fullscreen {
			slide.WriteString(styles.DimStyle.Render(" · fullscreen"))
		}
		slide.WriteString("\n")
		slide.WriteString(m.SlideBar.View(m.SlideProgress))

		b.WriteString(styles.SlideStyle.Render(slide.String()))
	} else {
		b.WriteString(styles.DimStyle.Render("No media to play"))
	}
	b.WriteString("\n\n")

	if m.Summary != nil {
		b.WriteString(styles.SubtitleStyle.Render(m.Summary.String()))
		b.WriteString("\n")
	}
	if m.StatusMsg != "" {
		if m.StatusIsErr {
			b.WriteString(styles.ErrorStyle.Render(m.StatusMsg))
		} else {
			b.WriteString(styles.DimStyle.Render(m.StatusMsg))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.Help.View(Keys))

	return styles.ScreenStyle.Render(b.String())
}
