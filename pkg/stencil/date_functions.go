package stencil

import (
	"strings"
	"time"
)

// dateLayouts are tried in order when a date-styled field is rendered.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02.01.2006T15:04",
	"02.01.2006T15:04:05",
	"02.01.2006",
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
}

// canonicalDateLayout is the output form of every date field.
const canonicalDateLayout = "2006-01-02"

// parseDate reads raw with the first matching layout.
func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatDate re-emits raw as yyyy-MM-dd. The calendar date is taken in the
// offset the value was written with.
func formatDate(raw string) (string, bool) {
	t, ok := parseDate(raw)
	if !ok {
		return "", false
	}
	return t.Format(canonicalDateLayout), true
}
