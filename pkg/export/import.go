package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// Importer handles importing device history from backup files
type Importer struct {
	storage   storage.Storage
	batchSize int
	now       func() time.Time
}

// NewImporter creates a new importer
func NewImporter(store storage.Storage) *Importer {
	return &Importer{storage: store, batchSize: config.ImportBatchSize, now: time.Now}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	DeviceID         string    `json:"device_id"`
	ReadingsImported int       `json:"readings_imported"`
	BatchesWritten   int       `json:"batches_written"`
	TimeRange        string    `json:"time_range"`
	ImportedAt       time.Time `json:"imported_at"`
	Errors           []string  `json:"errors,omitempty"`
}

// Entry is one history record: a timestamp plus fieldN values. Other keys
// (database ids, device ids) are ignored.
type Entry map[string]json.RawMessage

// ImportFromJSON reads a JSON array of entries and writes them as readings
// for device. Invalid entries are skipped and reported in the result.
func (im *Importer) ImportFromJSON(ctx context.Context, device model.Device, r io.Reader) (*ImportResult, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	result := &ImportResult{DeviceID: device.ID, TimeRange: "empty", ImportedAt: im.now()}
	if len(entries) == 0 {
		return result, nil
	}

	valid := make([]model.Reading, 0, len(entries))
	for i, e := range entries {
		reading, err := im.parseEntry(device, e)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		valid = append(valid, reading)
	}

	// Write readings in batches to avoid overwhelming storage
	for i := 0; i < len(valid); i += im.batchSize {
		end := i + im.batchSize
		if end > len(valid) {
			end = len(valid)
		}

		if err := im.storage.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", result.BatchesWritten, err)
		}
		result.BatchesWritten++
	}

	if len(valid) > 0 {
		minTime, maxTime := valid[0].Timestamp, valid[0].Timestamp
		for _, r := range valid {
			if r.Timestamp.Before(minTime) {
				minTime = r.Timestamp
			}
			if r.Timestamp.After(maxTime) {
				maxTime = r.Timestamp
			}
		}
		result.TimeRange = fmt.Sprintf("%s to %s", minTime.Format(time.RFC3339), maxTime.Format(time.RFC3339))
	}
	result.ReadingsImported = len(valid)

	return result, nil
}

func (im *Importer) parseEntry(device model.Device, e Entry) (model.Reading, error) {
	raw, ok := e["timestamp"]
	if !ok {
		return model.Reading{}, fmt.Errorf("missing timestamp")
	}
	ts, err := parseEntryTime(raw)
	if err != nil {
		return model.Reading{}, err
	}
	if err := im.validateTimestamp(ts); err != nil {
		return model.Reading{}, err
	}

	values := make(map[string]float64)
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, "field") {
			continue
		}
		if len(device.Sensors) > 0 && !device.HasField(key) {
			return model.Reading{}, fmt.Errorf("field %q is not declared by device %s", key, device.ID)
		}
		var v float64
		if err := json.Unmarshal(e[key], &v); err != nil {
			return model.Reading{}, fmt.Errorf("field %q is not a number", key)
		}
		values[key] = v
	}
	if len(values) == 0 {
		return model.Reading{}, fmt.Errorf("no field values")
	}

	return model.Reading{DeviceID: device.ID, Timestamp: ts, Values: values}, nil
}

// parseEntryTime accepts an RFC3339 string or Unix milliseconds.
func parseEntryTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
		}
		return ts, nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
	}
	return time.UnixMilli(ms), nil
}

// validateTimestamp rejects timestamps that are unset or implausibly far
// from now.
func (im *Importer) validateTimestamp(ts time.Time) error {
	if ts.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	now := im.now()
	if ts.Before(now.Add(-10 * 365 * 24 * time.Hour)) {
		return fmt.Errorf("timestamp too far in past: %s", ts)
	}
	if ts.After(now.Add(24 * time.Hour)) {
		return fmt.Errorf("timestamp too far in future: %s", ts)
	}
	return nil
}
