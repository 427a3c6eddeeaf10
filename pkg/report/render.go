package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatHTML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q (json, csv, html)", s)
}

// Headers returns the table header row: number, date, time, then one
// column per sensor with its unit.
func (r *Report) Headers() []string {
	headers := []string{"No.", "Date", "Time"}
	for _, c := range r.Columns {
		headers = append(headers, c.Header)
	}
	return headers
}

// Cells returns row's sensor cells in column order.
func (r *Report) Cells(row Row) []string {
	cells := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		cells = append(cells, row.Cell(c.Field))
	}
	return cells
}

// WriteCSV writes the report table. An empty report gets one placeholder
// row with the message in the first column and EmptyCell elsewhere.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	headers := r.Headers()

	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	if r.NoData {
		placeholder := make([]string, len(headers))
		placeholder[0] = r.Placeholder
		for i := 1; i < len(placeholder); i++ {
			placeholder[i] = EmptyCell
		}
		if err := cw.Write(placeholder); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	for _, row := range r.Rows {
		record := append([]string{strconv.Itoa(row.Sequence), row.Date, row.Time}, r.Cells(row)...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.DeviceName}} report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #444; padding: 4px 8px; text-align: center; }
th { background: #eee; }
.meta td { border: none; text-align: left; padding: 2px 8px; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>{{.DeviceName}}</h1>
<table class="meta">
<tr><td>Device ID</td><td>{{.DeviceID}}</td></tr>
<tr><td>Start</td><td>{{.DisplayStart}}</td></tr>
<tr><td>End</td><td>{{.DisplayEnd}}</td></tr>
{{- if .Interval}}
<tr><td>Interval</td><td>{{.Interval}}</td></tr>
{{- end}}
<tr><td>Generated</td><td>{{.Generated}}</td></tr>
</table>
<br>
<table>
<thead>
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
</thead>
<tbody>
{{- if .NoData}}
<tr><td colspan="{{len .Headers}}">{{.Placeholder}}</td></tr>
{{- end}}
{{- range $row := .Rows}}
<tr><td>{{$row.Sequence}}</td><td>{{$row.Date}}</td><td>{{$row.Time}}</td>{{range $.Cells $row}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// WriteHTML renders the report as a printable HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	if err := htmlTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
