package timeparsing

import (
	"errors"
	"testing"
	"time"
)

// Wednesday, so weekday phrases have an unambiguous answer.
var now = time.Date(2026, time.March, 18, 15, 30, 0, 0, time.UTC)

func TestParseCompactDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"-6h", now.Add(-6 * time.Hour)},
		{"+6h", now.Add(6 * time.Hour)},
		{"6h", now.Add(6 * time.Hour)},
		{"-1d", now.AddDate(0, 0, -1)},
		{"-2w", now.AddDate(0, 0, -14)},
		{"-1m", now.AddDate(0, -1, 0)},
		{"1y", now.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.in, now)
			if err != nil {
				t.Fatalf("ParseCompactDuration(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "6", "d", "6h+", "--1d", "1x", "- 1d", "2026-01-01", "yesterday"} {
		if IsCompactDuration(bad) {
			t.Errorf("IsCompactDuration(%q) = true", bad)
		}
		if _, err := ParseCompactDuration(bad, now); !errors.Is(err, ErrNotTime) {
			t.Errorf("ParseCompactDuration(%q) err = %v, want ErrNotTime", bad, err)
		}
	}
}

func TestCompactDurationKeepsZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	local := time.Date(2026, time.March, 31, 9, 0, 0, 0, ny)
	got, err := ParseCompactDuration("-1m", local)
	if err != nil {
		t.Fatal(err)
	}
	// AddDate normalizes Feb 31 to Mar 3
	if got.Location() != ny || got.Month() != time.March || got.Day() != 3 {
		t.Errorf("-1m from %v = %v", local, got)
	}
}

func TestParseRelativeTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"compact", "-3d", now.AddDate(0, 0, -3)},
		{"date only", "2026-01-02", time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", "2026-02-01T08:00:00Z", time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)},
		{"padded", "  -1h ", now.Add(-time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.in, now)
			if err != nil {
				t.Fatalf("ParseRelativeTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseRelativeTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "   ", "xyzzy"} {
		if _, err := ParseRelativeTime(bad, now); !errors.Is(err, ErrNotTime) {
			t.Errorf("ParseRelativeTime(%q) err = %v, want ErrNotTime", bad, err)
		}
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	got, err := ParseNaturalLanguage("yesterday", now)
	if err != nil {
		t.Fatalf("yesterday: %v", err)
	}
	if y := now.AddDate(0, 0, -1); got.YearDay() != y.YearDay() {
		t.Errorf("yesterday = %v", got)
	}

	got, err = ParseNaturalLanguage("3 days ago", now)
	if err != nil {
		t.Fatalf("3 days ago: %v", err)
	}
	if !got.Before(now) || got.YearDay() != now.AddDate(0, 0, -3).YearDay() {
		t.Errorf("3 days ago = %v", got)
	}

	if _, err := ParseNaturalLanguage("xyzzy", now); !errors.Is(err, ErrNotTime) {
		t.Errorf("xyzzy err = %v, want ErrNotTime", err)
	}
}

func TestParseSinceLooksBack(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"7d", now.AddDate(0, 0, -7)},
		{"-7d", now.AddDate(0, 0, -7)},
		{"+1h", now.Add(time.Hour)},
		{"12h", now.Add(-12 * time.Hour)},
		{"2026-03-01", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseSince(tt.in, now)
		if err != nil {
			t.Fatalf("ParseSince(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseSince("", now); err == nil {
		t.Error("empty since should fail")
	}
}
