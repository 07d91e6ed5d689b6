package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions:
// NO_COLOR wins, CLICOLOR_FORCE forces color, CLICOLOR=0 disables it, and
// otherwise color is used on a terminal only.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether icons may use emoji. TN_NO_EMOJI turns them
// off; off a terminal they are never used.
func ShouldUseEmoji() bool {
	if os.Getenv("TN_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// InitColor sets the lipgloss color profile for this process. Call once
// from main before rendering anything.
func InitColor() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
