// time.go — Timestamp helpers shared by the recorder and telemetry.
package util

import "time"

// ParseTimestamp parses an RFC3339 timestamp string, trying RFC3339Nano first
// (since it's a superset of RFC3339), then RFC3339 as a fallback.
// Returns zero time on failure.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// canonicalLayout is RFC3339 with a fixed nine-digit fraction, so formatted
// UTC timestamps sort in time order as text.
const canonicalLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t in the canonical wire format used across
// persisted recordings and telemetry rows.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(canonicalLayout)
}
