package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// Storage stores readings in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	readings []model.Reading
	closed   bool
	mu       sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		readings: make([]model.Reading, 0, 1024),
	}
}

// Write stores readings in memory
func (s *Storage) Write(ctx context.Context, readings []model.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	for _, r := range readings {
		r.Values = maps.Clone(r.Values)
		s.readings = append(s.readings, r)
	}
	return nil
}

// Query retrieves readings matching the request, oldest first
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]model.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrClosed
	}
	var results []model.Reading
	for _, r := range s.readings {
		if req.Matches(r) {
			r.Values = maps.Clone(r.Values)
			results = append(results, r)
		}
	}
	s.mu.RUnlock()

	// Writes may arrive out of order (device backfill)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if req.Limit > 0 && len(results) > req.Limit {
		if req.Newest {
			results = results[len(results)-req.Limit:]
		} else {
			results = results[:req.Limit]
		}
	}

	return results, nil
}

// Delete removes readings older than the cutoff
func (s *Storage) Delete(ctx context.Context, opts storage.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	filtered := make([]model.Reading, 0, len(s.readings))
	for _, r := range s.readings {
		matchesDevice := opts.DeviceID == "" || r.DeviceID == opts.DeviceID
		if matchesDevice && r.Timestamp.Before(opts.Before) {
			continue
		}
		filtered = append(filtered, r)
	}

	s.readings = filtered
	return nil
}

// Close marks the store closed
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	stats := &storage.Stats{
		TotalReadings: uint64(len(s.readings)),
	}

	if len(s.readings) == 0 {
		return stats, nil
	}

	devices := make(map[string]bool)
	oldest := s.readings[0].Timestamp
	newest := s.readings[0].Timestamp

	for _, r := range s.readings {
		devices[r.DeviceID] = true
		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}

	stats.TotalDevices = uint64(len(devices))
	stats.OldestReading = oldest
	stats.NewestReading = newest

	// Rough size estimate (each reading ~64 bytes + 16 per value)
	for _, r := range s.readings {
		stats.SizeBytes += 64 + uint64(len(r.Values))*16
	}

	return stats, nil
}
