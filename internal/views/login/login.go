// Package login renders the sign-in screen.
package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/theme"
)

// SubmitMsg is emitted when the user confirms both fields.
type SubmitMsg struct {
	Username string
	Password string
}

// Model holds the sign-in form.
type Model struct {
	// Notice is shown above the form, e.g. after a session expired.
	Notice  string
	Error   string
	Pending bool
	Width   int
	Height  int

	username textinput.Model
	password textinput.Model
	cursor   int
}

// New creates the sign-in form with the username focused.
func New() Model {
	u := textinput.New()
	u.Placeholder = "username"
	u.CharLimit = 64
	u.Focus()

	p := textinput.New()
	p.Placeholder = "password"
	p.CharLimit = 128
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'

	return Model{username: u, password: p}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Reset clears the password and error and refocuses the username. The
// username is kept for a quicker retry.
func (m *Model) Reset() tea.Cmd {
	m.password.Reset()
	m.Error = ""
	m.Pending = false
	m.cursor = 0
	m.password.Blur()
	return m.username.Focus()
}

// Fail records a rejected attempt and clears the password.
func (m *Model) Fail(message string) {
	m.Pending = false
	m.Error = message
	m.password.Reset()
}

// Update handles field navigation and submission.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.Pending {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "down", "shift+tab", "up":
			return m, m.toggle()
		case "enter":
			if m.cursor == 0 {
				return m, m.toggle()
			}
			u := strings.TrimSpace(m.username.Value())
			p := m.password.Value()
			if u == "" || p == "" {
				m.Error = "Username and password are required"
				return m, nil
			}
			m.Pending = true
			m.Error = ""
			return m, func() tea.Msg { return SubmitMsg{Username: u, Password: p} }
		}
	}

	var cmd tea.Cmd
	if m.cursor == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggle() tea.Cmd {
	if m.cursor == 0 {
		m.cursor = 1
		m.username.Blur()
		return m.password.Focus()
	}
	m.cursor = 0
	m.password.Blur()
	return m.username.Focus()
}

// View renders the form centered on the screen.
func (m Model) View() string {
	title := theme.StyleHeader.Render("WSMD Device Manager")
	lines := []string{title, theme.StyleDimmed.Render("Sign in to continue"), ""}

	if m.Notice != "" {
		lines = append(lines, theme.StyleWarning.Render(m.Notice), "")
	}

	marker := func(i int) string {
		if i == m.cursor {
			return "> "
		}
		return "  "
	}
	lines = append(lines,
		marker(0)+theme.StyleDimmed.Render("Username  ")+m.username.View(),
		marker(1)+theme.StyleDimmed.Render("Password  ")+m.password.View(),
	)

	switch {
	case m.Pending:
		lines = append(lines, "", theme.StyleDimmed.Render("Signing in..."))
	case m.Error != "":
		lines = append(lines, "", theme.StyleError.Render(m.Error))
	}
	lines = append(lines, "", theme.StyleDimmed.Render("tab:switch field  enter:sign in  ctrl+c:quit"))

	box := theme.StyleFocused.Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	if m.Width == 0 || m.Height == 0 {
		return box
	}
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, box)
}
