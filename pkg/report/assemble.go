package report

import (
	"strconv"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

const (
	// NoDataMessage fills the placeholder row of an empty report.
	NoDataMessage = "No data available for the selected period"

	// EmptyCell is rendered for absent values and empty header bounds.
	EmptyCell = "-"

	dateLayout     = "02/01/2006"
	timeLayout     = "15:04:05"
	dateTimeLayout = dateLayout + " " + timeLayout
)

// Column describes one sensor column of a report.
type Column struct {
	Field  string `json:"field"`
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Header string `json:"header"`
}

// Row is one numbered report line.
type Row struct {
	Sequence  int                 `json:"sequence"`
	Timestamp time.Time           `json:"timestamp"`
	Date      string              `json:"date"`
	Time      string              `json:"time"`
	Values    map[string]*float64 `json:"values"`
}

// Cell renders field's value, or EmptyCell when absent.
func (r Row) Cell(field string) string {
	v := r.Values[field]
	if v == nil {
		return EmptyCell
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Report is a device's formatted, row-numbered history for one window.
type Report struct {
	DeviceID     string          `json:"deviceId"`
	DeviceName   string          `json:"deviceName"`
	Columns      []Column        `json:"columns"`
	Window       Window          `json:"window"`
	Interval     string          `json:"interval,omitempty"`
	DisplayStart string          `json:"displayStart"`
	DisplayEnd   string          `json:"displayEnd"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Rows         []Row           `json:"rows"`
	NoData       bool            `json:"noData"`
	Placeholder  string          `json:"placeholder,omitempty"`
	Summary      []ColumnSummary `json:"summary"`
}

// Generated formats GeneratedAt for display.
func (r *Report) Generated() string {
	return r.GeneratedAt.Format(dateTimeLayout)
}

// Assemble builds a report from a bucketed, sorted series. The displayed
// start and end are the first and last row timestamps, not the window.
func Assemble(device model.Device, series []model.Reading, w Window, now time.Time) *Report {
	rep := &Report{
		DeviceID:     device.ID,
		DeviceName:   device.DisplayName,
		Columns:      make([]Column, 0, len(device.Sensors)),
		Window:       w,
		DisplayStart: EmptyCell,
		DisplayEnd:   EmptyCell,
		GeneratedAt:  now,
		Rows:         make([]Row, 0, len(series)),
	}
	if rep.DeviceName == "" {
		rep.DeviceName = device.ID
	}

	for _, s := range device.Sensors {
		rep.Columns = append(rep.Columns, Column{
			Field:  s.Field,
			Name:   s.Name,
			Unit:   s.Unit,
			Header: s.Header(),
		})
	}

	for i, r := range series {
		row := Row{
			Sequence:  i + 1,
			Timestamp: r.Timestamp,
			Date:      r.Timestamp.Format(dateLayout),
			Time:      r.Timestamp.Format(timeLayout),
			Values:    make(map[string]*float64, len(rep.Columns)),
		}
		for _, c := range rep.Columns {
			if v, ok := r.Values[c.Field]; ok {
				row.Values[c.Field] = &v
			} else {
				row.Values[c.Field] = nil
			}
		}
		rep.Rows = append(rep.Rows, row)
	}

	if len(rep.Rows) == 0 {
		rep.NoData = true
		rep.Placeholder = NoDataMessage
	} else {
		rep.DisplayStart = rep.Rows[0].Timestamp.Format(dateTimeLayout)
		rep.DisplayEnd = rep.Rows[len(rep.Rows)-1].Timestamp.Format(dateTimeLayout)
	}

	rep.Summary = Summarize(device.Sensors, rep.Rows)
	return rep
}
