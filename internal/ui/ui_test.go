package ui

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/steveyegge/tenet/internal/types"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func TestRenderLifecycleAndHealth(t *testing.T) {
	if got := RenderLifecycle(types.LifecycleAtRisk); got != "AT_RISK" {
		t.Errorf("RenderLifecycle = %q", got)
	}
	if got := RenderHealth(55); got != "55/100" {
		t.Errorf("RenderHealth = %q", got)
	}

	tests := []struct {
		health int
		filled int
	}{
		{0, 0}, {4, 0}, {5, 1}, {50, 5}, {94, 9}, {100, 10},
	}
	for _, tt := range tests {
		bar := RenderHealthBar(tt.health)
		if n := strings.Count(bar, "█"); n != tt.filled {
			t.Errorf("RenderHealthBar(%d) has %d filled cells, want %d", tt.health, n, tt.filled)
		}
		if n := len([]rune(bar)); n != 10 {
			t.Errorf("RenderHealthBar(%d) is %d cells wide", tt.health, n)
		}
	}
}

func TestRenderAssumptionStatus(t *testing.T) {
	tests := map[types.AssumptionStatus]string{
		types.StatusValid:  IconPass + " VALID",
		types.StatusShaky:  IconWarn + " SHAKY",
		types.StatusBroken: IconFail + " BROKEN",
	}
	for s, want := range tests {
		if got := RenderAssumptionStatus(s); got != want {
			t.Errorf("RenderAssumptionStatus(%s) = %q, want %q", s, got, want)
		}
	}
	if got := RenderConfidence(0.875); got != "88%" {
		t.Errorf("RenderConfidence = %q", got)
	}
}

func TestRenderLockWithoutTerminal(t *testing.T) {
	if got := RenderLock(false); got != "" {
		t.Errorf("RenderLock(false) = %q", got)
	}
	// Tests do not run on a terminal, so no emoji.
	if got := RenderLock(true); got != "locked" {
		t.Errorf("RenderLock(true) = %q", got)
	}
}

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		cliColor      string
		cliColorForce string
		want          bool
	}{
		{name: "NO_COLOR disables color", noColor: "1", want: false},
		{name: "CLICOLOR=0 disables color", cliColor: "0", want: false},
		{name: "CLICOLOR_FORCE enables color off a terminal", cliColorForce: "1", want: true},
		{name: "NO_COLOR beats CLICOLOR_FORCE", noColor: "1", cliColorForce: "1", want: false},
		{name: "no terminal, no color", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetenv(t, "NO_COLOR")
			unsetenv(t, "CLICOLOR")
			unsetenv(t, "CLICOLOR_FORCE")
			if tt.noColor != "" {
				t.Setenv("NO_COLOR", tt.noColor)
			}
			if tt.cliColor != "" {
				t.Setenv("CLICOLOR", tt.cliColor)
			}
			if tt.cliColorForce != "" {
				t.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldUseEmoji(t *testing.T) {
	t.Setenv("TN_NO_EMOJI", "1")
	if ShouldUseEmoji() {
		t.Error("TN_NO_EMOJI should disable emoji")
	}
}

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestTruncateSimple(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer sentence", 10, "a longe..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "..."},
	}
	for _, tt := range tests {
		if got := TruncateSimple(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateSimple(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	got := WrapText("the quick brown fox jumps over the lazy dog", 15)
	want := "the quick brown\nfox jumps over\nthe lazy dog"
	if got != want {
		t.Errorf("WrapText = %q, want %q", got, want)
	}
	if got := WrapText("keep\nbreaks", 80); got != "keep\nbreaks" {
		t.Errorf("WrapText dropped a line break: %q", got)
	}
	if got := WrapText("supercalifragilistic word", 5); got != "supercalifragilistic\nword" {
		t.Errorf("WrapText long word = %q", got)
	}
}

func TestIndent(t *testing.T) {
	if got := Indent("a\n\nb", "  "); got != "  a\n\n  b" {
		t.Errorf("Indent = %q", got)
	}
}

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "TITLE"}, [][]string{{"dec-1", "Use Postgres"}, {"dec-2", "Use Redis"}})
	for _, want := range []string{"ID", "TITLE", "dec-1", "Use Postgres", "dec-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestContentHeight(t *testing.T) {
	if contentHeight("") != 0 || contentHeight("a") != 1 || contentHeight("a\nb\n") != 3 {
		t.Error("contentHeight miscounts lines")
	}
}
