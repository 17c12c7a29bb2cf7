package pncp

import (
	"regexp"
	"strings"
	"time"
)

// The portal emits dates in three shapes depending on the page and component.
// Patterns are tried in order; first match wins.
var (
	dayMonthYearSlash = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	dayMonthYearDash  = regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`)
	yearMonthDayDash  = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
)

var parseLayouts = []string{"2/1/2006", "2-1-2006", "2006-1-2"}

// NormalizeDate rewrites a recognized date string into the canonical
// DD/MM/YYYY form. Unrecognized input is passed through verbatim, never an
// error. Idempotent for all recognized formats.
func NormalizeDate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	if m := dayMonthYearSlash.FindStringSubmatch(trimmed); m != nil {
		return m[1] + "/" + m[2] + "/" + m[3]
	}
	if m := dayMonthYearDash.FindStringSubmatch(trimmed); m != nil {
		return m[1] + "/" + m[2] + "/" + m[3]
	}
	if m := yearMonthDayDash.FindStringSubmatch(trimmed); m != nil {
		return m[3] + "/" + m[2] + "/" + m[1]
	}
	return raw
}

// ParseDate attempts DD/MM/YYYY, DD-MM-YYYY and YYYY-MM-DD in order and
// reports whether any layout matched. Single-digit day and month are accepted,
// matching the portal's looser listing output.
func ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
