package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage is closed")

// Storage defines the interface for reading history backends.
// Implementations: memory (testing), badger (production)
type Storage interface {
	// Write stores readings
	Write(ctx context.Context, readings []model.Reading) error

	// Query retrieves readings within a time range, oldest first
	Query(ctx context.Context, req QueryRequest) ([]model.Reading, error)

	// Delete removes readings matching the options
	Delete(ctx context.Context, opts DeleteOptions) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what readings to retrieve
type QueryRequest struct {
	// Device to read (empty = all devices)
	DeviceID string

	// Inclusive time range; zero End means no upper bound
	Start time.Time
	End   time.Time

	// Limit number of results (0 = no limit)
	Limit int

	// Newest keeps the most recent Limit readings instead of the oldest
	Newest bool
}

// Matches reports whether a reading falls inside the request.
func (q QueryRequest) Matches(r model.Reading) bool {
	if q.DeviceID != "" && r.DeviceID != q.DeviceID {
		return false
	}
	return q.InRange(r.Timestamp)
}

// InRange reports whether ts lies within the request's inclusive bounds.
func (q QueryRequest) InRange(ts time.Time) bool {
	if ts.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ts.After(q.End) {
		return false
	}
	return true
}

// DeleteOptions specifies which readings to remove
type DeleteOptions struct {
	// Remove readings strictly older than Before
	Before time.Time

	// Restrict deletion to one device (empty = all devices)
	DeviceID string
}

// Stats provides storage health and usage info
type Stats struct {
	// Total readings stored
	TotalReadings uint64 `json:"total_readings"`

	// Devices with at least one reading
	TotalDevices uint64 `json:"total_devices"`

	// Storage size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	// Oldest and newest reading timestamps
	OldestReading time.Time `json:"oldest_reading"`
	NewestReading time.Time `json:"newest_reading"`
}
