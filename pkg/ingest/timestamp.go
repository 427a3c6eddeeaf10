package ingest

import (
	"strings"
	"time"
)

// Layouts for device clocks that report local wall time without a zone.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// Layouts for timestamps that carry their own zone.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02T15:04:05-0700",
}

// hasZone reports whether raw carries a zone designator ('Z' or an offset).
func hasZone(raw string) bool {
	if strings.HasSuffix(raw, "Z") || strings.Contains(raw, "+") {
		return true
	}
	// A '-' after the time part is an offset; dashes in the date are not
	if i := strings.LastIndexAny(raw, "T "); i >= 0 {
		return strings.Contains(raw[i:], "-")
	}
	return false
}

// ParseTimestamp interprets a device-supplied timestamp. Zoned values are
// honoured; unzoned wall-clock values are read in assumed. Empty or
// unparsable input yields fallback.
func ParseTimestamp(raw string, assumed *time.Location, fallback time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, false
	}

	// '+' arrives as ' ' when the firmware doesn't URL-encode the offset
	if i := strings.LastIndex(raw, " "); i > 0 && strings.Contains(raw[:i], "T") && len(raw)-i == 6 {
		raw = raw[:i] + "+" + raw[i+1:]
	}

	if hasZone(raw) {
		for _, layout := range zonedLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, true
			}
		}
		return fallback, false
	}

	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, raw, assumed); err == nil {
			return ts, true
		}
	}
	return fallback, false
}
