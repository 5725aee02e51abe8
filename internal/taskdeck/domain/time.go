package domain

import "time"

// TimeFormat is the canonical timestamp encoding for persisted rows and
// exported records.
const TimeFormat = time.RFC3339Nano

// FormatTime encodes t in the canonical format, UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime decodes a canonical timestamp string.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
