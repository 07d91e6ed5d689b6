// Package ui provides terminal styling for tn CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/tenet/internal/health"
	"github.com/steveyegge/tenet/internal/types"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
)

// CategoryStyle for section headers - bold with accent color
var CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconLock = "🔒"
	IconInfo = "ℹ"
)

const (
	TreeChild  = "⎿ "
	TreeIndent = "  "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// lifecycleStyle maps a lifecycle to the status color it is shown in.
func lifecycleStyle(l types.Lifecycle) lipgloss.Style {
	switch l {
	case types.LifecycleStable:
		return PassStyle
	case types.LifecycleUnderReview, types.LifecycleAtRisk:
		return WarnStyle
	case types.LifecycleInvalidated:
		return FailStyle
	default:
		return MutedStyle
	}
}

// RenderLifecycle renders a lifecycle in its status color.
func RenderLifecycle(l types.Lifecycle) string {
	return lifecycleStyle(l).Render(string(l))
}

// RenderHealth renders a health signal as "NN/100" colored by the band it
// falls in.
func RenderHealth(h int) string {
	return lifecycleStyle(health.LifecycleFor(h)).Render(fmt.Sprintf("%d/%d", h, types.MaxHealth))
}

// RenderHealthBar renders a ten-cell bar for the health signal.
func RenderHealthBar(h int) string {
	filled := (h + 5) / 10
	filled = max(0, min(10, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
	return lifecycleStyle(health.LifecycleFor(h)).Render(bar)
}

// RenderAssumptionStatus renders an assumption status with its icon.
func RenderAssumptionStatus(s types.AssumptionStatus) string {
	switch s {
	case types.StatusValid:
		return PassStyle.Render(IconPass + " " + string(s))
	case types.StatusShaky:
		return WarnStyle.Render(IconWarn + " " + string(s))
	default:
		return FailStyle.Render(IconFail + " " + string(s))
	}
}

// RenderConfidence renders a classifier confidence as a percentage; 0.9 and
// above is shown as critical.
func RenderConfidence(c float64) string {
	s := fmt.Sprintf("%.0f%%", c*100)
	if c >= 0.9 {
		return FailStyle.Render(s)
	}
	return WarnStyle.Render(s)
}

// RenderLock renders the governance-lock marker, or nothing when unlocked.
func RenderLock(locked bool) string {
	if !locked {
		return ""
	}
	if ShouldUseEmoji() {
		return IconLock
	}
	return WarnStyle.Render("locked")
}
