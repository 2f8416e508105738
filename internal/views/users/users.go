// Package users renders the account list shown to key users.
package users

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/theme"
)

// Model holds the user list.
type Model struct {
	Width int
	users []client.User
}

// New creates an empty user list.
func New() Model {
	return Model{}
}

// SetUsers replaces the list.
func (m *Model) SetUsers(users []client.User) {
	m.users = append(m.users[:0:0], users...)
}

// Users returns the current list.
func (m Model) Users() []client.User {
	return m.users
}

// View renders the list.
func (m Model) View() string {
	header := theme.StyleHeader.Render("  Users")
	if len(m.users) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No users"))
	}

	keyStyle := lipgloss.NewStyle().Foreground(theme.ColorKeyUser)
	lines := []string{header}
	for _, u := range m.users {
		line := fmt.Sprintf("  %3d  %s", u.ID, theme.Truncate(u.Username, 24))
		if u.IsKeyUser {
			line += keyStyle.Render(" (Key User)")
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
