// Package retention prunes reading history older than the configured
// retention period.
//
// Retention is measured in whole days from the moment the job runs. A
// retention of 0 days keeps history forever and Prune becomes a no-op.
// Device registry rows are never touched: a device keeps its last values
// and heartbeat even after all of its readings have aged out.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/nicktill/facilityobs/pkg/storage"
)

// Result describes one pruning pass.
type Result struct {
	Cutoff  time.Time     `json:"cutoff"`
	Removed uint64        `json:"removed"`
	Took    time.Duration `json:"took"`
	Skipped bool          `json:"skipped,omitempty"`
}

// Pruner deletes readings older than a fixed number of days.
type Pruner struct {
	storage storage.Storage
	days    int
	now     func() time.Time
}

// New creates a pruner keeping days of history. days <= 0 disables pruning.
func New(store storage.Storage, days int) *Pruner {
	return &Pruner{storage: store, days: days, now: time.Now}
}

// Enabled reports whether the pruner deletes anything.
func (p *Pruner) Enabled() bool {
	return p.days > 0
}

// Cutoff returns the instant before which readings are removed.
func (p *Pruner) Cutoff() time.Time {
	return p.now().AddDate(0, 0, -p.days)
}

// Prune removes readings older than the cutoff. The removed count comes
// from storage stats taken before and after the delete.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	start := p.now()
	if !p.Enabled() {
		return Result{Skipped: true}, nil
	}
	cutoff := p.Cutoff()

	before, err := p.storage.Stats(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read storage stats: %w", err)
	}

	// Nothing old enough to remove
	if before.TotalReadings == 0 || !before.OldestReading.Before(cutoff) {
		return Result{Cutoff: cutoff, Took: p.now().Sub(start)}, nil
	}

	if err := p.storage.Delete(ctx, storage.DeleteOptions{Before: cutoff}); err != nil {
		return Result{}, fmt.Errorf("failed to delete readings before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	after, err := p.storage.Stats(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read storage stats: %w", err)
	}

	res := Result{Cutoff: cutoff, Took: p.now().Sub(start)}
	if before.TotalReadings > after.TotalReadings {
		res.Removed = before.TotalReadings - after.TotalReadings
	}
	return res, nil
}
