package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
)

// Sender delivers a group of readings for one device.
type Sender interface {
	SendBatch(ctx context.Context, deviceID string, readings []model.Reading) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, deviceID string, readings []model.Reading) error

// SendBatch calls f.
func (f SenderFunc) SendBatch(ctx context.Context, deviceID string, readings []model.Reading) error {
	return f(ctx, deviceID, readings)
}

// Config holds configuration for the batcher
type Config struct {
	MaxBatchSize int
	FlushEvery   time.Duration
	SendTimeout  time.Duration
}

// Batcher groups readings by device and sends them when the buffer fills up
// or the flush interval passes.
type Batcher struct {
	config Config
	sender Sender

	pending map[string][]model.Reading
	size    int
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	sends  sync.WaitGroup

	flushing atomic.Bool // at most one background flush at a time
	sent     atomic.Int64
	failed   atomic.Int64
}

// New creates a new batcher
func New(sender Sender, config Config) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 500
	}
	if config.FlushEvery <= 0 {
		config.FlushEvery = 5 * time.Second
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	return &Batcher{
		config:  config,
		sender:  sender,
		pending: make(map[string][]model.Reading),
		done:    make(chan struct{}),
	}
}

// Start starts the periodic flush loop.
func (b *Batcher) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	go b.flushLoop()
	return nil
}

// Add buffers a reading. A full buffer triggers a background flush.
func (b *Batcher) Add(reading model.Reading) {
	b.mu.Lock()
	b.pending[reading.DeviceID] = append(b.pending[reading.DeviceID], reading)
	b.size++
	shouldFlush := b.size >= b.config.MaxBatchSize
	b.mu.Unlock()

	if shouldFlush && b.flushing.CompareAndSwap(false, true) {
		b.sends.Add(1)
		go func() {
			defer b.sends.Done()
			b.logFlush(b.Flush())
			b.flushing.Store(false)
		}()
	}
}

// Flush sends everything buffered and waits for the result.
func (b *Batcher) Flush() error {
	groups := b.drain()
	if len(groups) == 0 {
		return nil
	}

	devices := make([]string, 0, len(groups))
	for id := range groups {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	var errs []error
	for _, id := range devices {
		if err := b.send(id, groups[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop ends the flush loop, waits for in-flight sends and flushes what is left.
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	b.sends.Wait()

	return b.Flush()
}

// Sent is the number of readings delivered so far.
func (b *Batcher) Sent() int64 {
	return b.sent.Load()
}

// Failed is the number of readings whose batch was rejected.
func (b *Batcher) Failed() int64 {
	return b.failed.Load()
}

func (b *Batcher) flushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.flushing.CompareAndSwap(false, true) {
				b.logFlush(b.Flush())
				b.flushing.Store(false)
			}
		}
	}
}

func (b *Batcher) drain() map[string][]model.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	groups := b.pending
	b.pending = make(map[string][]model.Reading)
	b.size = 0
	return groups
}

func (b *Batcher) send(deviceID string, readings []model.Reading) error {
	parent := b.ctx
	if parent == nil || parent.Err() != nil {
		// Stop still flushes after the loop context is cancelled.
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, b.config.SendTimeout)
	defer cancel()

	if err := b.sender.SendBatch(ctx, deviceID, readings); err != nil {
		b.failed.Add(int64(len(readings)))
		return err
	}
	b.sent.Add(int64(len(readings)))
	return nil
}

func (b *Batcher) logFlush(err error) {
	if err != nil {
		logging.Warnw("Batch flush failed", "error", err)
	}
}
