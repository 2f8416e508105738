package form

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wsmd/console/internal/client"
)

func deviceForm() Model {
	return New("Update Device",
		Field{Name: "mac_address", Label: "MAC", Required: true},
		Field{Name: "order", Label: "Order", Kind: Number, Required: true},
		Field{Name: "max_hits", Label: "Max hits", Kind: Number, Required: true},
		Field{Name: "name", Label: "Name"},
	)
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   string
	}{
		{name: "valid", values: map[string]string{"mac_address": "AA", "order": "1", "max_hits": "9"}},
		{name: "missing mac", values: map[string]string{"order": "1", "max_hits": "9"}, want: "MAC is required"},
		{name: "blank is missing", values: map[string]string{"mac_address": "  ", "order": "1", "max_hits": "9"}, want: "MAC is required"},
		{name: "non numeric", values: map[string]string{"mac_address": "AA", "order": "one", "max_hits": "9"}, want: "Order must be a whole number"},
		{name: "optional name", values: map[string]string{"mac_address": "AA", "order": "1", "max_hits": "9", "name": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := deviceForm()
			for k, v := range tt.values {
				m.SetValue(k, v)
			}
			err := m.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) || err.Error() != tt.want {
				t.Errorf("Validate = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTypingAndNavigation(t *testing.T) {
	m := deviceForm()
	m = typeText(m, "ignored")
	if m.Value("mac_address") != "" {
		t.Fatal("unfocused form accepted input")
	}

	m.Focus()
	m = typeText(m, "AA:BB")
	if moved, _ := m.Next(); !moved {
		t.Fatal("Next from first field did not move")
	}
	m = typeText(m, "3")
	m.Last()
	if moved, _ := m.Next(); moved {
		t.Error("Next moved past the last field")
	}
	m.First()
	if moved, _ := m.Prev(); moved {
		t.Error("Prev moved before the first field")
	}

	if m.Value("mac_address") != "AA:BB" || m.Int("order") != 3 {
		t.Errorf("values = %q, %d", m.Value("mac_address"), m.Int("order"))
	}
}

func TestToggle(t *testing.T) {
	m := New("New User",
		Field{Name: "username", Label: "Username", Required: true},
		Field{Name: "is_key_user", Label: "Key user", Kind: Toggle},
	)
	m.Focus()
	m.Next()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.Bool("is_key_user") {
		t.Fatal("space did not set the toggle")
	}
	if !strings.Contains(m.View(60), "[x]") {
		t.Error("view does not show checked box")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if m.Bool("is_key_user") {
		t.Error("second space did not clear the toggle")
	}
}

func TestChoice(t *testing.T) {
	m := New("Update Password",
		Field{Name: "username", Label: "Username", Kind: Choice, Required: true, Placeholder: "no users"},
		Field{Name: "password", Label: "New password", Kind: Password, Required: true},
	)
	m.Focus()
	if !strings.Contains(m.View(60), "no users") {
		t.Errorf("empty choice view:\n%s", m.View(60))
	}
	if err := m.Validate(); err == nil || err.Error() != "Username is required" {
		t.Errorf("Validate() = %v, want Username is required", err)
	}

	m.SetOptions("username", []string{"admin", "operator", "viewer"})
	if got := m.Value("username"); got != "admin" {
		t.Fatalf("initial pick = %q, want admin", got)
	}
	m = typeText(m, "xyz")
	if got := m.Value("username"); got != "admin" {
		t.Errorf("typing changed the pick to %q", got)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := m.Value("username"); got != "viewer" {
		t.Errorf("after two downs = %q, want viewer", got)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := m.Value("username"); got != "admin" {
		t.Errorf("down on last option = %q, want wrap to admin", got)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.Value("username"); got != "viewer" {
		t.Errorf("up on first option = %q, want wrap to viewer", got)
	}
	if !strings.Contains(m.View(60), "< viewer >") {
		t.Errorf("view does not show the pick:\n%s", m.View(60))
	}

	// A refreshed list keeps the pick while it is still offered.
	m.SetOptions("username", []string{"viewer", "admin"})
	if got := m.Value("username"); got != "viewer" {
		t.Errorf("pick after refresh = %q, want viewer", got)
	}
	m.SetOptions("username", []string{"admin"})
	if got := m.Value("username"); got != "admin" {
		t.Errorf("pick after removal = %q, want admin", got)
	}

	m.Reset()
	if got := m.Value("username"); got != "admin" {
		t.Errorf("pick after reset = %q, want first option", got)
	}
	if got := m.Options("username"); len(got) != 1 {
		t.Errorf("options after reset = %v", got)
	}
}

func TestFinish(t *testing.T) {
	tests := []struct {
		name      string
		outcome   client.Outcome
		wantMsg   string
		wantReset bool
	}{
		{
			name:      "success resets",
			outcome:   client.Outcome{Success: true, Message: "Device properties updated successfully"},
			wantMsg:   "Device properties updated successfully",
			wantReset: true,
		},
		{
			name:    "failure keeps values",
			outcome: client.Outcome{Message: "Device not found"},
			wantMsg: "Device not found",
		},
		{
			name:    "expired keeps values silently",
			outcome: client.Outcome{Message: client.ErrSessionExpired.Error(), Expired: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := deviceForm()
			m.SetValue("mac_address", "AA")
			m.SetValue("order", "2")
			m.Begin()
			if !m.Pending {
				t.Fatal("Begin did not mark pending")
			}

			m.Finish(tt.outcome)
			if m.Pending {
				t.Error("still pending after Finish")
			}
			if m.Message != tt.wantMsg || m.Success != tt.outcome.Success && !tt.outcome.Expired {
				t.Errorf("message = %q success = %v", m.Message, m.Success)
			}
			reset := m.Value("mac_address") == "" && m.Value("order") == ""
			if reset != tt.wantReset {
				t.Errorf("reset = %v, want %v", reset, tt.wantReset)
			}
		})
	}
}

func TestPasswordMasked(t *testing.T) {
	m := New("Password",
		Field{Name: "username", Label: "Username", Required: true},
		Field{Name: "password", Label: "Password", Kind: Password, Required: true},
	)
	m.SetValue("password", "hunter2")
	if v := m.View(60); strings.Contains(v, "hunter2") {
		t.Errorf("password rendered in clear:\n%s", v)
	}
	if m.Value("password") != "hunter2" {
		t.Errorf("Value = %q", m.Value("password"))
	}
}
