package report

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nicktill/facilityobs/pkg/model"
)

// ColumnSummary holds descriptive statistics for one sensor column.
type ColumnSummary struct {
	Field      string  `json:"field"`
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stddev"`
	OutOfRange int     `json:"outOfRange"`
}

// Summarize computes per-sensor statistics over the report rows.
// Columns without values report only their field and a zero count.
func Summarize(sensors []model.SensorDefinition, rows []Row) []ColumnSummary {
	summaries := make([]ColumnSummary, 0, len(sensors))
	for _, s := range sensors {
		sum := ColumnSummary{Field: s.Field}

		values := make([]float64, 0, len(rows))
		for _, r := range rows {
			if v := r.Values[s.Field]; v != nil {
				values = append(values, *v)
				if !s.InRange(*v) {
					sum.OutOfRange++
				}
			}
		}

		sum.Count = len(values)
		if sum.Count > 0 {
			sum.Min = floats.Min(values)
			sum.Max = floats.Max(values)
			sum.Mean = stat.Mean(values, nil)
		}
		// Sample deviation is undefined below two points
		if sum.Count > 1 {
			sum.StdDev = stat.StdDev(values, nil)
		}
		summaries = append(summaries, sum)
	}
	return summaries
}
