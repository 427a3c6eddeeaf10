/*
Package storage provides the pluggable history store for device readings.

# Storage Interface

Two backends implement the Storage interface:

  - memory: in-memory storage for tests and throwaway runs
  - badger: BadgerDB (LSM tree + Snappy compression) for persistent storage

The interface:

	type Storage interface {
	    Write(ctx context.Context, readings []model.Reading) error
	    Query(ctx context.Context, req QueryRequest) ([]model.Reading, error)
	    Delete(ctx context.Context, opts DeleteOptions) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Ordering

Query always returns readings in ascending timestamp order. When a limit is
set, Newest selects which end of the range is kept:

	// the 1440 most recent readings of the last 24h, oldest first
	store.Query(ctx, storage.QueryRequest{
	    DeviceID: "RST10000001",
	    Start:    time.Now().Add(-24 * time.Hour),
	    End:      time.Now(),
	    Limit:    1440,
	    Newest:   true,
	})

Both bounds are inclusive. A zero End means "no upper bound".

# Keys

The badger backend keys readings as

	[xxhash(device id) 8 bytes][timestamp 8 bytes][sequence 8 bytes]

so one device's history is a contiguous, time-ordered key range and two
readings with the same timestamp never overwrite each other.
*/
package storage
