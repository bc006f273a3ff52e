package model

import (
	"fmt"
	"time"
)

// DateLayout is the storage and wire format of acquisition dates.
const DateLayout = "2006-01-02"

// TimestampLayout is the storage format of timestamps. It is fixed width so
// that text comparison orders timestamps correctly.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Drivers hand back dates either as time.Time or as text, depending on the
// backend and column type, so text is parsed leniently.
var catalogTimeLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseCatalogTime is a drop-in replacement for time.Parse, matching against the layouts the catalog may produce
func ParseCatalogTime(value string) (time.Time, error) {
	for _, layout := range catalogTimeLayouts {
		if output, err := time.Parse(layout, value); err == nil {
			return output.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("Date could not be parsed by any expected time format: `%s`", value)
}

// Day truncates a time to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatTimestamp formats t with TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
