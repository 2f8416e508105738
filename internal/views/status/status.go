package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/stream"
	"github.com/wsmd/console/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Status     stream.Status
	Alert      string
	LastUpdate time.Time
	Username   string
	KeyUser    bool
	OverLimit  int
	Width      int

	spinner spinner.Model
}

// New creates a status bar model in the connecting state.
func New() Model {
	return Model{
		Status: stream.Status{State: stream.Connecting, Text: stream.StatusConnecting},
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(theme.ColorConnecting)),
		),
	}
}

// Tick starts the spinner.
func (m Model) Tick() tea.Cmd {
	return m.spinner.Tick
}

// SetStatus applies a status line from the stream. Alerts are kept apart
// from the connection status and cleared by the next connect.
func (m *Model) SetStatus(s stream.Status) {
	if s.Alert {
		m.Alert = s.Text
		return
	}
	if s.State == stream.Connected {
		m.Alert = ""
	}
	m.Status = s
}

// Update advances the spinner.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	color := theme.StateColor(m.Status.State.String())
	var connStr string
	switch m.Status.State {
	case stream.Connected:
		connStr = lipgloss.NewStyle().Foreground(color).Render("● " + m.Status.Text)
	case stream.Connecting, stream.Idle:
		connStr = m.spinner.View() + lipgloss.NewStyle().Foreground(color).Render(m.Status.Text)
	default:
		connStr = lipgloss.NewStyle().Foreground(color).Render("○ " + m.Status.Text)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr

	updated := "Last update: never"
	if !m.LastUpdate.IsZero() {
		updated = "Last update: " + m.LastUpdate.Format("15:04:05")
	}
	content += sep + theme.StyleDimmed.Render(updated)

	if m.OverLimit > 0 {
		content += sep + theme.StyleWarning.Render(fmt.Sprintf("%d over limit", m.OverLimit))
	}

	if m.Username != "" {
		user := m.Username
		if m.KeyUser {
			user += lipgloss.NewStyle().Foreground(theme.ColorKeyUser).Render(" [key]")
		}
		content += sep + user
	}

	if m.Alert != "" {
		content += sep + theme.StyleError.Render(m.Alert)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
