package server

import (
	"context"
	"sync"
	"time"

	"github.com/nicktill/facilityobs/pkg/auth"
	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/retention"
	"github.com/nicktill/facilityobs/pkg/server/monitor"
	"github.com/nicktill/facilityobs/pkg/storage/badger"
)

// job is one run of a background task; the result is kept by the monitor.
type job func(ctx context.Context) (interface{}, error)

// retryPolicy controls runWithRetry.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
}

var defaultRetry = retryPolicy{maxRetries: config.JobMaxRetries, baseDelay: config.JobRetryBaseDelay}

// runWithRetry runs fn, retrying failures with exponential backoff
// (baseDelay, 2x, 4x...). It gives up early when stop is closed.
func runWithRetry(ctx context.Context, name string, fn job, m *monitor.JobMonitor, policy retryPolicy, stop <-chan struct{}) {
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.baseDelay * time.Duration(1<<(attempt-1))
			logging.Infow("retrying job", "job", name, "delay", delay, "attempt", attempt+1, "max_attempts", policy.maxRetries+1)
			select {
			case <-time.After(delay):
			case <-stop:
				return
			}
		}

		start := time.Now()
		result, err := fn(ctx)
		if err == nil {
			m.RecordSuccess(result)
			logging.Debugw("job completed", "job", name, "took", time.Since(start).Round(time.Millisecond))
			return
		}

		m.RecordFailure(err)
		logging.Errorw("job failed", "job", name, "attempt", attempt+1, "max_attempts", policy.maxRetries+1, "error", err)

		if status := m.Status(); status.ConsecutiveErrors > 3 {
			logging.Warnw("job keeps failing", "job", name, "consecutive_errors", status.ConsecutiveErrors)
		}
	}

	logging.Warnw("job failed after all attempts, will retry on next schedule", "job", name, "attempts", policy.maxRetries+1)
}

// runPeriodically runs fn once at startup and then every interval until stop closes.
func runPeriodically(name string, interval time.Duration, fn job, m *monitor.JobMonitor, policy retryPolicy, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Infow("scheduler started", "job", name, "interval", interval)
	runWithRetry(ctx, name, fn, m, policy, stop)

	for {
		select {
		case <-ticker.C:
			runWithRetry(ctx, name, fn, m, policy, stop)
		case <-stop:
			logging.Infow("stopping scheduler", "job", name)
			return
		}
	}
}

// RunRetention prunes history older than the retention period every hour.
func RunRetention(pruner *retention.Pruner, m *monitor.JobMonitor, stop <-chan struct{}, wg *sync.WaitGroup) {
	if !pruner.Enabled() {
		wg.Done()
		return
	}

	prune := func(ctx context.Context) (interface{}, error) {
		res, err := pruner.Prune(ctx)
		if err != nil {
			return nil, err
		}
		if res.Removed > 0 {
			logging.Infow("retention pruned readings", "removed", res.Removed, "cutoff", res.Cutoff, "took", res.Took)
		}
		return res, nil
	}
	runPeriodically("retention", config.RetentionInterval, prune, m, defaultRetry, stop, wg)
}

// RunBadgerGC runs value-log garbage collection to reclaim disk space after
// deletes. Failures are not retried; the next tick tries again.
func RunBadgerGC(store *badger.Storage, m *monitor.JobMonitor, stop <-chan struct{}, wg *sync.WaitGroup) {
	gc := func(context.Context) (interface{}, error) {
		return nil, store.RunGC(config.BadgerGCDiscardRatio)
	}
	runPeriodically("badger_gc", config.BadgerGCInterval, gc, m, retryPolicy{}, stop, wg)
}

// RunSessionPurge deletes expired sessions every hour.
func RunSessionPurge(sessions *auth.Manager, m *monitor.JobMonitor, stop <-chan struct{}, wg *sync.WaitGroup) {
	purge := func(ctx context.Context) (interface{}, error) {
		n, err := sessions.PurgeExpired(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			logging.Infow("expired sessions purged", "count", n)
		}
		return map[string]int64{"purged": n}, nil
	}
	runPeriodically("session_purge", config.SessionPurgeInterval, purge, m, defaultRetry, stop, wg)
}
