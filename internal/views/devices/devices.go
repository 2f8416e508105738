// Package devices renders the live device table of the WSMD console.
package devices

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/theme"
)

// Column widths (fixed layout).
const (
	colName  = 24
	colMAC   = 18
	colOrder = 6
	colHits  = 14
	colMax   = 5
)

// Model holds the device table state.
type Model struct {
	Width    int
	devices  []client.Device
	selected int
}

// New creates an empty device table.
func New() Model {
	return Model{}
}

// SetDevices replaces the table rows, in the order received. The cursor
// stays on the same MAC when it is still present.
func (m *Model) SetDevices(devices []client.Device) {
	var mac string
	if d, ok := m.Selected(); ok {
		mac = d.MACAddress
	}
	m.devices = append(m.devices[:0:0], devices...)

	m.selected = 0
	for i, d := range m.devices {
		if d.MACAddress == mac {
			m.selected = i
			break
		}
	}
}

// Devices returns the current rows.
func (m Model) Devices() []client.Device {
	return m.devices
}

// Selected returns the device under the cursor.
func (m Model) Selected() (client.Device, bool) {
	if m.selected < 0 || m.selected >= len(m.devices) {
		return client.Device{}, false
	}
	return m.devices[m.selected], true
}

// Next moves the cursor down, wrapping.
func (m *Model) Next() {
	if len(m.devices) > 0 {
		m.selected = (m.selected + 1) % len(m.devices)
	}
}

// Prev moves the cursor up, wrapping.
func (m *Model) Prev() {
	if len(m.devices) > 0 {
		m.selected = (m.selected - 1 + len(m.devices)) % len(m.devices)
	}
}

// OverLimit counts rows whose hit counter exceeds max_hits.
func (m Model) OverLimit() int {
	n := 0
	for _, d := range m.devices {
		if d.OverLimit() {
			n++
		}
	}
	return n
}

// View renders the table. focused draws the cursor.
func (m Model) View(focused bool) string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := theme.StyleHeader.Render("  Devices")
	if len(m.devices) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No devices registered"),
		)
	}

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)

	tableHeader := fmt.Sprintf("  %-*s %-*s %*s %-*s %*s",
		colName, "Name",
		colMAC, "MAC",
		colOrder, "Order",
		colHits, "Hits",
		colMax, "Max",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colName+colMAC+colOrder+colHits+colMax+4))),
	}

	for i, d := range m.devices {
		prefix := "  "
		if focused && i == m.selected {
			prefix = "> "
		}
		lines = append(lines, prefix+renderRow(d))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(d client.Device) string {
	rowStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
	if d.OverLimit() {
		rowStyle = theme.StyleWarning
	}

	name := theme.Truncate(d.DisplayName(), colName-1)
	nameStr := rowStyle.Width(colName).Render(name)
	macStr := theme.StyleDimmed.Width(colMAC).Render(d.MACAddress)
	orderStr := rowStyle.Width(colOrder).Align(lipgloss.Right).Render(fmt.Sprintf("%d", d.Order))
	hitsStr := lipgloss.NewStyle().Width(colHits).Render(renderHitBar(d.HitCounter, d.MaxHits, colHits-1))
	maxStr := rowStyle.Width(colMax).Align(lipgloss.Right).Render(fmt.Sprintf("%d", d.MaxHits))

	line := fmt.Sprintf("%s %s %s %s %s", nameStr, macStr, orderStr, hitsStr, maxStr)
	if d.OverLimit() {
		line += theme.StyleWarning.Render("  !")
	}
	return line
}

// renderHitBar draws a small gauge of hits against max_hits followed by
// the raw counter.
func renderHitBar(hits, ceiling, barWidth int) string {
	label := fmt.Sprintf(" %3d", hits)
	fillWidth := barWidth - len(label)
	if fillWidth < 3 {
		fillWidth = 3
	}

	filled := fillWidth
	if ceiling > 0 {
		filled = max(0, min(hits*fillWidth/ceiling, fillWidth))
	}
	empty := fillWidth - filled

	color := theme.HitColor(hits, ceiling)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", empty))
	return bar + lipgloss.NewStyle().Foreground(color).Render(label)
}
