package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/kiosk/internal/search"
	"github.com/mmcdole/kiosk/internal/tui/styles"
)

// JumpModal is the fuzzy slide finder
type JumpModal struct {
	input     textinput.Model
	index     *search.SlideIndex
	results   []search.Match
	cursor    int
	visible   bool
	width     int
	height    int
	prevQuery string
}

// NewJumpModal creates a new jump modal
func NewJumpModal() JumpModal {
	ti := textinput.New()
	ti.Placeholder = "Jump to slide..."
	ti.CharLimit = 100
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = styles.AccentStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return JumpModal{
		input: ti,
	}
}

// SetIndex replaces the slides searched by the modal
func (j *JumpModal) SetIndex(idx *search.SlideIndex) {
	j.index = idx
	j.results = nil
	j.cursor = 0
}

// Show makes the modal visible and focuses the input
func (j *JumpModal) Show() {
	j.visible = true
	j.input.SetValue("")
	j.input.Focus()
	j.results = nil
	j.cursor = 0
	j.prevQuery = ""
}

// Hide hides the modal
func (j *JumpModal) Hide() {
	j.visible = false
	j.input.Blur()
}

// IsVisible returns whether the modal is shown
func (j JumpModal) IsVisible() bool {
	return j.visible
}

// SetSize sets the area the modal is centered in
func (j *JumpModal) SetSize(width, height int) {
	j.width = width
	j.height = height
}

// Results returns the current matches, best first
func (j JumpModal) Results() []search.Match {
	return j.results
}

// Selected returns the playlist index under the cursor
func (j JumpModal) Selected() (int, bool) {
	if j.cursor < 0 || j.cursor >= len(j.results) {
		return 0, false
	}
	return j.results[j.cursor].Index, true
}

// Update handles input events, returns (modal, cmd, selected)
func (j JumpModal) Update(msg tea.Msg) (JumpModal, tea.Cmd, bool) {
	if !j.visible {
		return j, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			j.Hide()
			return j, nil, false
		case "enter":
			return j, nil, len(j.results) > 0
		case "down", "ctrl+n":
			if j.cursor < len(j.results)-1 {
				j.cursor++
			}
			return j, nil, false
		case "up", "ctrl+p":
			if j.cursor > 0 {
				j.cursor--
			}
			return j, nil, false
		}
	}

	var cmd tea.Cmd
	j.input, cmd = j.input.Update(msg)

	if q := j.input.Value(); q != j.prevQuery {
		j.prevQuery = q
		j.cursor = 0
		j.results = nil
		if j.index != nil {
			j.results = j.index.Find(q)
		}
	}
	return j, cmd, false
}

// View renders the modal
func (j JumpModal) View() string {
	if !j.visible {
		return ""
	}

	modalWidth := min(max(j.width*2/3, 40), 80)
	const maxResults = 10

	var b strings.Builder
	b.WriteString(j.input.View())
	b.WriteString("\n\n")

	switch {
	case len(j.results) == 0 && j.input.Value() != "":
		b.WriteString(styles.DimStyle.Render("No matches found"))
	default:
		for i, m := range j.results {
			if i == maxResults {
				b.WriteString(styles.DimStyle.Render(fmt.Sprintf("... and %d more", len(j.results)-maxResults)))
				break
			}
			selected := i == j.cursor
			b.WriteString(styles.DimBadgeStyle.Render(fmt.Sprintf("%2d", m.Index+1)))
			b.WriteString(" ")
			b.WriteString(styles.HighlightMatches(m.Item.Name, m.MatchedIndexes, selected))
			b.WriteString("\n")
		}
	}

	content := lipgloss.NewStyle().
		Width(modalWidth - 4).
		Render(b.String())

	modal := styles.ModalStyle.
		Width(modalWidth).
		Render(content)

	return lipgloss.Place(j.width, j.height, lipgloss.Center, lipgloss.Center, modal)
}
