package devices

import (
	"sort"

	"github.com/nicktill/facilityobs/pkg/model"
)

// Point is a single chart sample.
type Point struct {
	Timestamp int64   `json:"t"` // Unix timestamp in milliseconds
	Value     float64 `json:"v"`
}

// Series is one sensor's chart data.
type Series struct {
	DeviceID string   `json:"deviceId"`
	Field    string   `json:"field"`
	Name     string   `json:"name,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Points   []Point  `json:"points"`
}

// buildSeries extracts field from readings, sorted, downsampled to maxPoints.
func buildSeries(readings []model.Reading, field string, maxPoints int) []Point {
	points := make([]Point, 0, len(readings))
	for _, r := range readings {
		if v, ok := r.Values[field]; ok {
			points = append(points, Point{Timestamp: r.Timestamp.UnixMilli(), Value: v})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})

	if len(points) > maxPoints {
		points = downsamplePoints(points, maxPoints)
	}
	return points
}

// downsamplePoints reduces points using average bucketing
func downsamplePoints(points []Point, maxPoints int) []Point {
	if len(points) <= maxPoints {
		return points
	}

	// Round up so the result never exceeds maxPoints
	bucketSize := (len(points) + maxPoints - 1) / maxPoints

	downsampled := make([]Point, 0, maxPoints)
	for i := 0; i < len(points); i += bucketSize {
		end := i + bucketSize
		if end > len(points) {
			end = len(points)
		}

		var sum float64
		for j := i; j < end; j++ {
			sum += points[j].Value
		}
		downsampled = append(downsampled, Point{
			Timestamp: points[i].Timestamp,
			Value:     sum / float64(end-i),
		})
	}

	return downsampled
}
