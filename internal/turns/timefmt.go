package turns

import (
	"strings"
	"time"
)

const (
	layoutMicros  = "2006-01-02T15:04:05.000000-07:00"
	layoutSeconds = "2006-01-02T15:04:05-07:00"
)

// FormatTimestamp renders t in UTC as "2006-01-02T15:04:05.000000+00:00",
// dropping the fraction when it is zero. Sub-microsecond precision is
// truncated. Existing rows written by older deployments use this shape.
func FormatTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(layoutSeconds)
	}
	return t.Format(layoutMicros)
}

// ParseTimestamp accepts RFC 3339 with either "Z" or a numeric offset.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}
