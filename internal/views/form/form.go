// Package form provides the editable forms of the dashboard: labelled
// bubbles text inputs, checkbox toggles and option pickers, with required
// and integer validation and an outcome line.
package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/theme"
)

// Kind selects how a field is edited and validated.
type Kind int

const (
	Text Kind = iota
	Password
	Number
	Toggle
	// Choice picks one of the options set with SetOptions; up and down
	// cycle through them.
	Choice
)

// Field describes one form control.
type Field struct {
	Name        string
	Label       string
	Kind        Kind
	Required    bool
	Placeholder string
}

// FieldError reports the first invalid field.
type FieldError struct {
	Label  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Label, e.Reason)
}

// Model is one form.
type Model struct {
	Title   string
	Message string
	Success bool
	Pending bool

	fields  []Field
	inputs  []textinput.Model
	toggles []bool
	options [][]string
	cursor  int
	focused bool
}

// New builds a form from its fields.
func New(title string, fields ...Field) Model {
	m := Model{
		Title:   title,
		fields:  fields,
		inputs:  make([]textinput.Model, len(fields)),
		toggles: make([]bool, len(fields)),
		options: make([][]string, len(fields)),
	}
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = f.Placeholder
		ti.CharLimit = 64
		switch f.Kind {
		case Password:
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		case Number:
			ti.CharLimit = 9
		}
		m.inputs[i] = ti
	}
	return m
}

// Focused reports whether the form holds keyboard focus.
func (m Model) Focused() bool {
	return m.focused
}

// Focus gives the form keyboard focus on its current field.
func (m *Model) Focus() tea.Cmd {
	m.focused = true
	return m.focusCursor()
}

// Blur removes keyboard focus.
func (m *Model) Blur() {
	m.focused = false
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

// First moves the cursor to the first field.
func (m *Model) First() tea.Cmd {
	m.cursor = 0
	return m.focusCursor()
}

// Last moves the cursor to the last field.
func (m *Model) Last() tea.Cmd {
	m.cursor = len(m.fields) - 1
	return m.focusCursor()
}

// Next moves to the following field. It reports false, without moving,
// when the cursor is already on the last field.
func (m *Model) Next() (bool, tea.Cmd) {
	if m.cursor >= len(m.fields)-1 {
		return false, nil
	}
	m.cursor++
	return true, m.focusCursor()
}

// Prev moves to the preceding field. It reports false on the first field.
func (m *Model) Prev() (bool, tea.Cmd) {
	if m.cursor == 0 {
		return false, nil
	}
	m.cursor--
	return true, m.focusCursor()
}

func (m *Model) focusCursor() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.cursor && m.focused && m.fields[i].Kind != Toggle && m.fields[i].Kind != Choice {
			cmd = m.inputs[i].Focus()
			continue
		}
		m.inputs[i].Blur()
	}
	return cmd
}

// Update forwards a key to the field under the cursor. Space flips a
// toggle; up and down step a choice.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused || len(m.fields) == 0 {
		return m, nil
	}
	k, isKey := msg.(tea.KeyMsg)
	switch m.fields[m.cursor].Kind {
	case Toggle:
		if isKey && (k.Type == tea.KeySpace || k.String() == " ") {
			m.toggles[m.cursor] = !m.toggles[m.cursor]
		}
		return m, nil
	case Choice:
		if isKey {
			switch k.Type {
			case tea.KeyUp:
				m.step(m.cursor, -1)
			case tea.KeyDown:
				m.step(m.cursor, 1)
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.cursor], cmd = m.inputs[m.cursor].Update(msg)
	return m, cmd
}

func (m *Model) step(i, delta int) {
	opts := m.options[i]
	if len(opts) == 0 {
		return
	}
	cur := indexOf(opts, m.inputs[i].Value())
	if cur < 0 {
		cur = 0
	} else {
		cur = (cur + delta + len(opts)) % len(opts)
	}
	m.inputs[i].SetValue(opts[cur])
}

func indexOf(opts []string, v string) int {
	for i, o := range opts {
		if o == v {
			return i
		}
	}
	return -1
}

func (m Model) index(name string) int {
	for i, f := range m.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the trimmed text of a field.
func (m Model) Value(name string) string {
	i := m.index(name)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(m.inputs[i].Value())
}

// Int returns a numeric field. Call Validate first.
func (m Model) Int(name string) int {
	n, _ := strconv.Atoi(m.Value(name))
	return n
}

// Bool returns a toggle field.
func (m Model) Bool(name string) bool {
	i := m.index(name)
	return i >= 0 && m.toggles[i]
}

// SetValue fills a text field. Unknown names are ignored.
func (m *Model) SetValue(name, value string) {
	if i := m.index(name); i >= 0 {
		m.inputs[i].SetValue(value)
	}
}

// SetOptions replaces the options of a choice field. The current pick is
// kept while it is still offered; otherwise the first option is picked.
func (m *Model) SetOptions(name string, opts []string) {
	i := m.index(name)
	if i < 0 || m.fields[i].Kind != Choice {
		return
	}
	m.options[i] = append(opts[:0:0], opts...)
	if indexOf(m.options[i], m.inputs[i].Value()) >= 0 {
		return
	}
	if len(m.options[i]) == 0 {
		m.inputs[i].SetValue("")
		return
	}
	m.inputs[i].SetValue(m.options[i][0])
}

// Options returns the options of a choice field.
func (m Model) Options(name string) []string {
	if i := m.index(name); i >= 0 {
		return m.options[i]
	}
	return nil
}

// Validate checks required and integer fields in order.
func (m Model) Validate() error {
	for i, f := range m.fields {
		if f.Kind == Toggle {
			continue
		}
		v := strings.TrimSpace(m.inputs[i].Value())
		if v == "" {
			if f.Required {
				return &FieldError{Label: f.Label, Reason: "is required"}
			}
			continue
		}
		if f.Kind == Number {
			if _, err := strconv.Atoi(v); err != nil {
				return &FieldError{Label: f.Label, Reason: "must be a whole number"}
			}
		}
	}
	return nil
}

// Begin marks a submission in flight.
func (m *Model) Begin() {
	m.Pending = true
	m.Success = false
	m.Message = "Submitting..."
}

// Reject shows a validation failure without submitting.
func (m *Model) Reject(err error) {
	m.Pending = false
	m.Success = false
	m.Message = err.Error()
}

// Finish applies a submission outcome. A successful outcome resets every
// field. An expired session leaves the fields as they were.
func (m *Model) Finish(out client.Outcome) {
	m.Pending = false
	if out.Expired {
		m.Message = ""
		return
	}
	m.Success = out.Success
	m.Message = out.Message
	if out.Success {
		m.Reset()
	}
}

// Reset clears every field and moves the cursor to the first one.
func (m *Model) Reset() {
	for i := range m.inputs {
		m.inputs[i].Reset()
		m.toggles[i] = false
		if len(m.options[i]) > 0 {
			m.inputs[i].SetValue(m.options[i][0])
		}
	}
	m.cursor = 0
	m.focusCursor()
}

// View renders the form inside a border, highlighted while focused.
func (m Model) View(width int) string {
	if width < 30 {
		width = 30
	}
	labelW := 0
	for _, f := range m.fields {
		labelW = max(labelW, len(f.Label))
	}

	lines := []string{theme.StyleHeader.Render(m.Title)}
	for i, f := range m.fields {
		marker := "  "
		if m.focused && i == m.cursor {
			marker = "> "
		}
		label := theme.StyleDimmed.Render(fmt.Sprintf("%-*s", labelW, f.Label))
		var control string
		switch f.Kind {
		case Toggle:
			box := "[ ]"
			if m.toggles[i] {
				box = "[x]"
			}
			control = box
		case Choice:
			if v := m.inputs[i].Value(); v != "" {
				control = "< " + v + " >"
			} else {
				control = theme.StyleDimmed.Render(f.Placeholder)
			}
		default:
			control = m.inputs[i].View()
		}
		lines = append(lines, marker+label+"  "+control)
	}

	if m.Message != "" {
		style := theme.StyleError
		switch {
		case m.Pending:
			style = theme.StyleDimmed
		case m.Success:
			style = theme.StyleSuccess
		}
		lines = append(lines, "", style.Render(m.Message))
	}

	box := theme.StyleBorder
	if m.focused {
		box = theme.StyleFocused
	}
	return box.Width(width - 2).Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
