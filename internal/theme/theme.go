// Package theme provides the Lip Gloss color palette and reusable styles
// for the WSMD console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
)

// Device row colors.
var (
	ColorOverLimit = lipgloss.Color("#f59e0b")
	ColorNearLimit = lipgloss.Color("#fde68a")
	ColorKeyUser   = lipgloss.Color("#a855f7")
)

// Debug log kind colors.
var (
	ColorStream = lipgloss.Color("#2563eb")
	ColorForm   = lipgloss.Color("#16a34a")
	ColorNav    = lipgloss.Color("#7c3aed")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorFocus   = lipgloss.Color("#3b82f6")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a connection state name as reported by
// stream.State.String.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorConnected
	case "connecting", "idle":
		return ColorConnecting
	case "disconnected", "closed":
		return ColorDisconnected
	default:
		return ColorDimmed
	}
}

// HitColor returns the color for a device hit counter against its ceiling.
func HitColor(hits, ceiling int) lipgloss.Color {
	switch {
	case hits > ceiling:
		return ColorOverLimit
	case ceiling > 0 && hits == ceiling:
		return ColorNearLimit
	default:
		return ColorBright
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleFocused = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorFocus)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleWarning = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorOverLimit)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorHealthy)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
