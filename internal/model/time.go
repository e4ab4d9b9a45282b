package model

import (
	"strings"
	"time"
)

// WireTimeLayout is the ISO-8601 layout used for every instant exchanged
// with the AI source and the calendar sink.
const WireTimeLayout = "2006-01-02T15:04:05.000Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatWireTime formats t in UTC with millisecond precision.
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(WireTimeLayout)
}

// ParseWireTime accepts the wire layout and a few looser ISO forms. Values
// without an offset are read as UTC.
func ParseWireTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
