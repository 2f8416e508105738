// Package debug keeps the console's event log: stream status changes,
// navigation, form outcomes and load failures, viewable as an overlay and
// filterable by kind.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindStream = "strm"
	KindNav    = "nav"
	KindForm   = "form"
	KindLoad   = "load"
	KindError  = "err"
)

// Kinds is the filter cycle order after "all".
var Kinds = []string{KindStream, KindNav, KindForm, KindLoad, KindError}

// Entry is one log line. Repeats counts identical events that arrived back
// to back and were folded into this entry.
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
	Repeats int
}

// Model is the log plus its overlay state.
type Model struct {
	Entries []Entry
	// Filter limits the overlay to one kind; empty shows every kind.
	Filter string
	// Offset counts visible lines scrolled up from the newest.
	Offset int

	now func() time.Time
}

// New creates an empty log.
func New() Model {
	return Model{now: time.Now}
}

// Add records an event. An event equal to the newest entry bumps that
// entry's repeat count and time instead of adding a line.
func (m *Model) Add(kind, message string) {
	at := m.clock()
	if n := len(m.Entries); n > 0 {
		last := &m.Entries[n-1]
		if last.Kind == kind && last.Message == message {
			last.Repeats++
			last.Time = at
			m.Offset = 0
			return
		}
	}
	m.Entries = append(m.Entries, Entry{Time: at, Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Addf is Add with fmt formatting.
func (m *Model) Addf(kind, format string, args ...interface{}) {
	m.Add(kind, fmt.Sprintf(format, args...))
}

func (m *Model) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// CycleFilter steps the filter through all, then each kind in Kinds.
func (m *Model) CycleFilter() {
	next := ""
	if m.Filter == "" {
		next = Kinds[0]
	} else {
		for i, k := range Kinds {
			if k == m.Filter && i+1 < len(Kinds) {
				next = Kinds[i+1]
			}
		}
	}
	m.Filter = next
	m.Offset = 0
}

// Visible returns the entries passing the filter, oldest first.
func (m Model) Visible() []Entry {
	if m.Filter == "" {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.Filter {
			out = append(out, e)
		}
	}
	return out
}

// ScrollUp moves towards older entries, stopping at the oldest visible one.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Visible())-1, 0))
}

// ScrollDown moves towards the newest entry.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-7, 3)

	filter := "all"
	if m.Filter != "" {
		filter = m.Filter
	}
	title := theme.StyleHeader.Render(" DEBUG LOG ") + theme.StyleDimmed.Render("  showing "+filter)
	visible := m.Visible()
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter  esc:close  %d of %d entries", len(visible), len(m.Entries)))

	var body string
	if len(visible) == 0 {
		body = theme.StyleDimmed.Render("  No events recorded yet.")
	} else {
		end := len(visible) - m.Offset
		start := max(end-rows, 0)
		lines := make([]string, 0, end-start)
		for _, e := range visible[start:end] {
			lines = append(lines, m.renderEntry(e, innerW))
		}
		body = strings.Join(lines, "\n")
	}

	parts := []string{title, m.counts(), "", body}
	if m.Offset > 0 {
		parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset)))
	}
	parts = append(parts, "", help)

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderEntry(e Entry, width int) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(e.Kind)
	msg := e.Message
	if e.Repeats > 0 {
		msg = fmt.Sprintf("%s (x%d)", msg, e.Repeats+1)
	}
	if width > 20 {
		msg = theme.Truncate(msg, width-20)
	}
	return ts + " " + kind + " " + msg
}

// counts renders a per-kind tally over the whole log.
func (m Model) counts() string {
	tally := make(map[string]int, len(Kinds))
	for _, e := range m.Entries {
		tally[e.Kind] += e.Repeats + 1
	}
	parts := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		s := lipgloss.NewStyle().Foreground(kindColor(k))
		if m.Filter != "" && m.Filter != k {
			s = theme.StyleDimmed
		}
		parts = append(parts, s.Render(fmt.Sprintf("%s %d", k, tally[k])))
	}
	return strings.Join(parts, "  ")
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindStream:
		return theme.ColorStream
	case KindError:
		return theme.ColorDanger
	case KindNav:
		return theme.ColorNav
	case KindForm:
		return theme.ColorForm
	case KindLoad:
		return theme.ColorWarning
	}
	return theme.ColorDimmed
}
