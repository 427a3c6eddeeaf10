package report

import (
	"maps"
	"sort"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

// DefaultBucketWidth is used for unrecognised interval labels.
const DefaultBucketWidth = 60

// bucketWidths lists the supported interval labels in minutes.
var bucketWidths = []struct {
	label   string
	minutes int
}{
	{"5m", 5},
	{"10m", 10},
	{"15m", 15},
	{"30m", 30},
	{"1h", 60},
	{"6h", 360},
	{"12h", 720},
	{"24h", 1440},
}

// ParseBucketWidth maps an interval label such as "15m" to minutes,
// falling back to DefaultBucketWidth.
func ParseBucketWidth(label string) int {
	for _, b := range bucketWidths {
		if b.label == label {
			return b.minutes
		}
	}
	return DefaultBucketWidth
}

// BucketLabel is the inverse of ParseBucketWidth.
func BucketLabel(minutes int) string {
	for _, b := range bucketWidths {
		if b.minutes == minutes {
			return b.label
		}
	}
	return BucketLabel(DefaultBucketWidth)
}

// BucketKey floors ts's minute-of-hour to a multiple of width and zeroes
// seconds, keeping the hour and date. Widths of an hour or more therefore
// always land on the top of the reading's own hour.
func BucketKey(ts time.Time, width int) time.Time {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	y, mo, d := ts.Date()
	minute := (ts.Minute() / width) * width
	return time.Date(y, mo, d, ts.Hour(), minute, 0, 0, ts.Location())
}

// Aggregate down-samples readings to at most one per bucket within w.
// Readings are bucketed in w.Start's location. The first reading met in
// each bucket wins and is returned with its timestamp set to the bucket
// key; results are sorted ascending. Zero timestamps are skipped.
func Aggregate(readings []model.Reading, w Window, width int) []model.Reading {
	loc := w.Start.Location()
	seen := make(map[int64]struct{})
	out := make([]model.Reading, 0)

	for _, r := range readings {
		if r.Timestamp.IsZero() || !w.Contains(r.Timestamp) {
			continue
		}

		key := BucketKey(r.Timestamp.In(loc), width)
		k := key.UnixNano()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, model.Reading{
			DeviceID:  r.DeviceID,
			Timestamp: key,
			Values:    maps.Clone(r.Values),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
