// Package history reads device reading history out of storage in the
// shapes the dashboard and reports consume.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// Range selects how much history Fetch returns.
type Range string

const (
	// RangeRecent is the last 24 hours, newest 1440 readings.
	RangeRecent Range = "24h"
	// RangeAll is the newest 5000 readings regardless of age.
	RangeAll Range = "all"
)

// ParseRange maps a query parameter to a Range; anything but "all" is recent.
func ParseRange(s string) Range {
	if s == string(RangeAll) {
		return RangeAll
	}
	return RangeRecent
}

// Service fetches history for a device.
type Service struct {
	storage storage.Storage
	now     func() time.Time
}

// NewService creates a history service over store.
func NewService(store storage.Storage) *Service {
	return &Service{storage: store, now: time.Now}
}

// Fetch returns the device's history for r in chronological order.
func (s *Service) Fetch(ctx context.Context, deviceID string, r Range) ([]model.Reading, error) {
	req := storage.QueryRequest{DeviceID: deviceID, Newest: true}
	switch r {
	case RangeAll:
		req.Limit = config.AllHistoryLimit
	default:
		now := s.now()
		req.Start = now.Add(-config.RecentWindow)
		req.End = now
		req.Limit = config.RecentHistoryLimit
	}

	readings, err := s.storage.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", deviceID, err)
	}
	return readings, nil
}

// Between returns every reading of the device in [start, end], oldest
// first, capped at limit (0 = no cap). When capped the newest readings win.
func (s *Service) Between(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.Reading, error) {
	readings, err := s.storage.Query(ctx, storage.QueryRequest{
		DeviceID: deviceID,
		Start:    start,
		End:      end,
		Limit:    limit,
		Newest:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", deviceID, err)
	}
	return readings, nil
}

// Row is one flattened history entry: {"timestamp": ..., "field1": ...}.
type Row map[string]interface{}

// Flatten converts readings to the dashboard's row shape.
func Flatten(readings []model.Reading) []Row {
	rows := make([]Row, 0, len(readings))
	for _, r := range readings {
		row := Row{"timestamp": r.Timestamp}
		for field, v := range r.Values {
			row[field] = v
		}
		rows = append(rows, row)
	}
	return rows
}
