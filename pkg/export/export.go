package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nicktill/facilityobs/pkg/history"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// Exporter handles exporting device history to various formats
type Exporter struct {
	storage storage.Storage
}

// NewExporter creates a new exporter
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{storage: store}
}

// ExportOptions configures the export operation
type ExportOptions struct {
	// Device whose history is exported
	DeviceID string

	// Inclusive time range to export
	Start time.Time
	End   time.Time
}

// ExportResult contains stats about the export
type ExportResult struct {
	DeviceID         string    `json:"device_id"`
	ReadingsExported int       `json:"readings_exported"`
	TimeRange        string    `json:"time_range"`
	Format           string    `json:"format"`
	ExportedAt       time.Time `json:"exported_at"`
}

func (e *Exporter) query(ctx context.Context, opts ExportOptions) ([]model.Reading, error) {
	readings, err := e.storage.Query(ctx, storage.QueryRequest{
		DeviceID: opts.DeviceID,
		Start:    opts.Start,
		End:      opts.End,
		Limit:    0, // No limit - export everything
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	return readings, nil
}

func newResult(opts ExportOptions, count int, format string) *ExportResult {
	return &ExportResult{
		DeviceID:         opts.DeviceID,
		ReadingsExported: count,
		TimeRange:        fmt.Sprintf("%s to %s", opts.Start.Format(time.RFC3339), opts.End.Format(time.RFC3339)),
		Format:           format,
		ExportedAt:       time.Now(),
	}
}

// ExportToJSON writes the device history as a JSON array of
// {"timestamp": ..., "field1": ...} entries, oldest first. The output is
// accepted as-is by ImportFromJSON.
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	readings, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(history.Flatten(readings)); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return newResult(opts, len(readings), "json"), nil
}

// ExportToCSV writes the device history as CSV with one column per field.
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	readings, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Collect all field keys so every row has the same columns
	fields := collectFieldKeys(readings)

	header := append([]string{"timestamp"}, fields...)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range readings {
		row := []string{r.Timestamp.Format(time.RFC3339Nano)}
		for _, field := range fields {
			if v, ok := r.Values[field]; ok {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return newResult(opts, len(readings), "csv"), nil
}

// collectFieldKeys gathers all field keys from readings and returns them sorted
func collectFieldKeys(readings []model.Reading) []string {
	keySet := make(map[string]bool)
	for _, r := range readings {
		for key := range r.Values {
			keySet[key] = true
		}
	}

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
