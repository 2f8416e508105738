// Package help renders the key reference overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/theme"
)

// Model caches the rendered overlay for one width.
type Model struct {
	// Style is a glamour standard style name.
	Style string

	width    int
	rendered string
}

// New creates a help overlay using the given glamour style ("dark",
// "light", "notty").
func New(style string) Model {
	if style == "" {
		style = "dark"
	}
	return Model{Style: style}
}

// Markdown builds the overlay source from the active bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString("# WSMD Console\n\n")
	b.WriteString("Devices and users update live from the backend stream. ")
	b.WriteString("Rows whose hit counter is above max hits are flagged with `!`.\n\n")
	b.WriteString("## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\n## Forms\n\n")
	b.WriteString("- `tab` and `shift+tab` move between fields and panels.\n")
	b.WriteString("- `enter` submits; a successful submit clears the form.\n")
	b.WriteString("- `space` flips a checkbox.\n")
	b.WriteString("- `↑` and `↓` pick a user in the password form.\n")
	b.WriteString("- `esc` returns to the device table.\n")
	return b.String()
}

// Render renders the overlay for width, reusing the last result when the
// width is unchanged.
func (m *Model) Render(width int, bindings []key.Binding) string {
	if m.rendered != "" && width == m.width {
		return m.rendered
	}
	md := Markdown(bindings)
	wrap := width - 8
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		md, err = r.Render(md)
	}
	if err != nil {
		md = Markdown(bindings)
	}
	m.width = width
	m.rendered = md
	return md
}

func innerWidth(width int) int {
	return max(30, width-4)
}

// Prepare renders the overlay for a screen width so that later View calls
// at that width reuse it.
func (m *Model) Prepare(width int, bindings []key.Binding) {
	m.Render(innerWidth(width), bindings)
}

// View renders the overlay panel.
func (m Model) View(width int, bindings []key.Binding) string {
	innerW := innerWidth(width)
	body := m.Render(innerW, bindings)
	footer := theme.StyleDimmed.Render("esc:close")
	return lipgloss.NewStyle().
		Width(innerW).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, body, footer))
}
