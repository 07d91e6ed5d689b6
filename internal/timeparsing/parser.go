// Package timeparsing parses the time expressions tn accepts for --since
// filters on decision history.
//
// Layers are tried in order:
//  1. Compact duration (+6h, -1d, 2w)
//  2. Absolute timestamp (date-only, RFC3339)
//  3. Natural language (yesterday, last monday, 3 days ago)
package timeparsing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrNotTime is returned when no layer recognises the expression.
var ErrNotTime = errors.New("not a time expression")

// compact offsets: an optional sign, an amount and one of h d w m y
var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether s is a compact offset such as "-2d".
func IsCompactDuration(s string) bool {
	return compactRe.MatchString(s)
}

// ParseCompactDuration applies a compact offset to now. An unsigned offset
// moves forward, so "3m" is three months from now.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a compact duration", ErrNotTime, s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("duration amount %q: %w", m[2], err)
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	default:
		return now.AddDate(n, 0, 0), nil
	}
}

var nlp = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseNaturalLanguage parses English expressions such as "yesterday",
// "last friday" or "3 days ago" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := nlp.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNotTime, s)
	}
	return r.Time, nil
}

// ParseRelativeTime parses s with every layer in turn. Dates without a time
// are midnight in now's location.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrNotTime)
	}
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q (use -6h/2d, YYYY-MM-DD, RFC3339 or phrases like \"last monday\")", ErrNotTime, s)
}

// ParseSince parses a history cutoff. A --since value always points into
// the past, so an unsigned compact offset ("7d") looks back rather than
// forward. Everything else parses as in ParseRelativeTime.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if IsCompactDuration(s) && s[0] != '+' && s[0] != '-' {
		s = "-" + s
	}
	return ParseRelativeTime(s, now)
}
