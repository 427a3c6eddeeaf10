package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage"
)

const (
	keyLen     = 24
	prefixLen  = 8
	tsSignFlip = uint64(1) << 63

	slowQueryThreshold = 5 * time.Second
)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db  *badger.DB
	seq atomic.Uint64
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly defaults)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Badger defaults to 64 MB memtables x 5; readings are tiny, so stay small.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &Storage{db: db}
	// Seed from the clock so keys written after a restart never collide
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Write stores readings in BadgerDB
func (s *Storage) Write(ctx context.Context, readings []model.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()

		for i, r := range readings {
			if i%100 == 0 {
				select {
				case <-ctx.Done():
					done <- ctx.Err()
					return
				default:
				}
			}

			value, err := msgpack.Marshal(&r)
			if err != nil {
				done <- fmt.Errorf("failed to encode reading: %w", err)
				return
			}
			if err := wb.Set(s.makeKey(r.DeviceID, r.Timestamp), value); err != nil {
				done <- fmt.Errorf("failed to write reading: %w", err)
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

// Query retrieves readings matching the request, oldest first.
// Device queries seek straight to the device's key range; an empty
// DeviceID falls back to a full scan.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]model.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		results []model.Reading
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		startTime := time.Now()
		var iterCount int

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100

			var seekKey []byte
			if req.DeviceID != "" {
				prefix := devicePrefix(req.DeviceID)
				opts.Prefix = prefix
				if req.Newest && req.Limit > 0 {
					opts.Reverse = true
					seekKey = rangeKey(prefix, req.End, math.MaxUint64)
				} else {
					seekKey = rangeKey(prefix, req.Start, 0)
				}
			}

			it := txn.NewIterator(opts)
			defer it.Close()

			if seekKey != nil {
				it.Seek(seekKey)
			} else {
				it.Rewind()
			}

			deviceScan := req.DeviceID != ""
			for ; it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				ts := keyTimestamp(item.Key())
				if !req.InRange(ts) {
					// Device ranges are contiguous, so leaving the window ends the scan
					if deviceScan && (opts.Reverse && ts.Before(req.Start) || !opts.Reverse && !req.End.IsZero() && ts.After(req.End)) {
						break
					}
					continue
				}

				var r model.Reading
				if err := item.Value(func(val []byte) error {
					return msgpack.Unmarshal(val, &r)
				}); err != nil {
					return fmt.Errorf("failed to decode reading: %w", err)
				}
				// Guards against xxhash prefix collisions
				if !req.Matches(r) {
					continue
				}

				res.results = append(res.results, r)
				if deviceScan && req.Limit > 0 && len(res.results) >= req.Limit {
					break
				}
			}
			return nil
		})

		if res.err == nil {
			res.results = finalize(res.results, req)
		}

		if elapsed := time.Since(startTime); elapsed > slowQueryThreshold {
			logging.Warnw("slow storage query",
				"device", req.DeviceID,
				"elapsed", elapsed,
				"iterations", iterCount,
				"results", len(res.results))
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// finalize puts results in ascending order and applies the limit.
func finalize(results []model.Reading, req storage.QueryRequest) []model.Reading {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	if req.Limit > 0 && len(results) > req.Limit {
		if req.Newest {
			return results[len(results)-req.Limit:]
		}
		return results[:req.Limit]
	}
	return results
}

// Delete removes readings older than the cutoff
func (s *Storage) Delete(ctx context.Context, opts storage.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		var keysToDelete [][]byte

		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.PrefetchValues = opts.DeviceID != ""
			if opts.DeviceID != "" {
				iterOpts.Prefix = devicePrefix(opts.DeviceID)
			}

			it := txn.NewIterator(iterOpts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				if !keyTimestamp(item.Key()).Before(opts.Before) {
					if opts.DeviceID != "" {
						break
					}
					continue
				}

				if opts.DeviceID != "" {
					var r model.Reading
					if err := item.Value(func(val []byte) error {
						return msgpack.Unmarshal(val, &r)
					}); err != nil {
						return fmt.Errorf("failed to decode reading: %w", err)
					}
					if r.DeviceID != opts.DeviceID {
						continue
					}
				}

				keysToDelete = append(keysToDelete, item.KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			done <- err
			return
		}

		// Batched so large retention sweeps don't hit ErrTxnTooBig
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				done <- err
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delete operation cancelled: %w", ctx.Err())
	}
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded (0.5 = 50%)
// Returns nil if GC was not needed or succeeded.
func (s *Storage) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			devices := make(map[uint64]struct{})
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				key := it.Item().Key()
				stats.TotalReadings++
				devices[binary.BigEndian.Uint64(key[:prefixLen])] = struct{}{}

				ts := keyTimestamp(key)
				if stats.OldestReading.IsZero() || ts.Before(stats.OldestReading) {
					stats.OldestReading = ts
				}
				if ts.After(stats.NewestReading) {
					stats.NewestReading = ts
				}
			}

			stats.TotalDevices = uint64(len(devices))
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// makeKey creates a sortable key.
// Format: [device_hash (8 bytes)][timestamp (8 bytes)][sequence (8 bytes)]
func (s *Storage) makeKey(deviceID string, ts time.Time) []byte {
	return rangeKey(devicePrefix(deviceID), ts, s.seq.Add(1))
}

func devicePrefix(deviceID string) []byte {
	prefix := make([]byte, prefixLen)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(deviceID))
	return prefix
}

// rangeKey builds a full-length key; a zero ts with seq 0 sorts before
// every reading of the device and a zero ts with MaxUint64 after all of them.
func rangeKey(prefix []byte, ts time.Time, seq uint64) []byte {
	key := make([]byte, keyLen)
	copy(key, prefix)

	var encoded uint64
	switch {
	case !ts.IsZero():
		encoded = encodeTimestamp(ts)
	case seq == math.MaxUint64:
		encoded = math.MaxUint64
	}
	binary.BigEndian.PutUint64(key[8:16], encoded)
	binary.BigEndian.PutUint64(key[16:24], seq)
	return key
}

// encodeTimestamp flips the sign bit so pre-1970 times still sort first.
func encodeTimestamp(ts time.Time) uint64 {
	return uint64(ts.UnixNano()) ^ tsSignFlip
}

func keyTimestamp(key []byte) time.Time {
	if len(key) < 16 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[8:16])^tsSignFlip))
}
