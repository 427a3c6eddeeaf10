package sdk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/sdk/batch"
	"github.com/nicktill/facilityobs/pkg/sdk/transport"
)

// Device is one simulated sensor node.
type Device struct {
	ID      string
	Type    model.DeviceType
	Sensors []model.SensorDefinition
}

// DeviceFromID builds a simulated device from a provisioned id such as
// "RST12345678". The type prefix selects the sensor template.
func DeviceFromID(id string) (Device, error) {
	id = strings.TrimSpace(id)
	if len(id) < 3 {
		return Device{}, fmt.Errorf("device id %q is too short", id)
	}
	t := model.DeviceType(strings.ToUpper(id[:3]))
	if !t.Valid() {
		return Device{}, fmt.Errorf("device id %q has unknown type prefix %q", id, t)
	}
	return Device{ID: id, Type: t, Sensors: model.SensorTemplate(t)}, nil
}

// ClientConfig holds configuration for the simulator client
type ClientConfig struct {
	// Endpoint is the server base URL.
	Endpoint string

	// Token authenticates admin calls (backfill import).
	Token string

	Devices []Device

	// Interval between live pushes.
	Interval time.Duration

	// DeviceClock sends timestamps as unzoned wall time in this location.
	DeviceClock *time.Location

	// AlertRate is the share of values pushed outside the sensor limits.
	AlertRate float64

	Seed uint64
}

// Stats counts what the client has pushed.
type Stats struct {
	Sent   int64
	Failed int64
	Resets int64
}

// BackfillResult summarizes a history backfill.
type BackfillResult struct {
	Readings int64
	Failed   int64
	From     time.Time
	To       time.Time
}

// Client pushes synthetic readings for a set of devices.
type Client struct {
	config    ClientConfig
	transport *transport.HTTPTransport

	rng   *rand.Rand
	rngMu sync.Mutex
	now   func() time.Time

	sent   atomic.Int64
	failed atomic.Int64
	resets atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new simulator client
func New(cfg ClientConfig) (*Client, error) {
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:8080"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.AlertRate < 0 || cfg.AlertRate > 1 {
		return nil, fmt.Errorf("alert rate must be between 0 and 1, got %v", cfg.AlertRate)
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	trans, err := transport.NewHTTP(cfg.Endpoint, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if cfg.DeviceClock != nil {
		trans.SetDeviceClock(cfg.DeviceClock)
	}

	return &Client{
		config:    cfg,
		transport: trans,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now:       time.Now,
	}, nil
}

// Transport exposes the underlying HTTP transport (login, reset status).
func (c *Client) Transport() *transport.HTTPTransport {
	return c.transport
}

// Reading generates one synthetic reading for d at ts.
func (c *Client) Reading(d Device, ts time.Time) model.Reading {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	values := make(map[string]float64, len(d.Sensors))
	for _, s := range d.Sensors {
		values[s.Field] = c.value(s)
	}
	return model.Reading{DeviceID: d.ID, Timestamp: ts, Values: values}
}

// value draws within [min, max], occasionally overshooting by up to a fifth
// of the span. Caller holds rngMu.
func (c *Client) value(s model.SensorDefinition) float64 {
	lo, hi := 0.0, 100.0
	if s.Min != nil {
		lo = *s.Min
	}
	if s.Max != nil {
		hi = *s.Max
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo

	v := lo + c.rng.Float64()*span
	if c.config.AlertRate > 0 && c.rng.Float64() < c.config.AlertRate {
		excess := (0.01 + c.rng.Float64()*0.2) * math.Max(span, 1)
		if c.rng.IntN(2) == 0 {
			v = lo - excess
		} else {
			v = hi + excess
		}
	}
	return math.Round(v*100) / 100
}

// PushOnce sends one reading per device and services pending reset requests.
func (c *Client) PushOnce(ctx context.Context) error {
	ts := c.now()
	var errs []error
	for _, d := range c.config.Devices {
		if err := c.transport.Send(ctx, c.Reading(d, ts)); err != nil {
			c.failed.Add(1)
			errs = append(errs, fmt.Errorf("%s: %w", d.ID, err))
			continue
		}
		c.sent.Add(1)

		reset, err := c.transport.ResetRequested(ctx, d.ID)
		if err != nil {
			logging.Debugw("Reset status check failed", "device", d.ID, "error", err)
			continue
		}
		if reset {
			logging.Infow("Device reset requested", "device", d.ID)
			if err := c.transport.ClearReset(ctx, d.ID); err != nil {
				errs = append(errs, fmt.Errorf("%s: clear reset: %w", d.ID, err))
				continue
			}
			c.resets.Add(1)
		}
	}
	return errors.Join(errs...)
}

// Start pushes immediately and then every Interval until Stop or ctx ends.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("client already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.started = true

	go c.pushLoop(ctx, c.done)
	return nil
}

// Stop ends the push loop and waits for it to exit.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}

	c.cancel()
	<-c.done
	c.started = false
	return nil
}

// Stats returns push counters.
func (c *Client) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Failed: c.failed.Load(), Resets: c.resets.Load()}
}

func (c *Client) pushLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		if err := c.PushOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Warnw("Push failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Backfill imports points historical readings per device, step apart and
// ending now, through the admin import endpoint. The client needs a token.
func (c *Client) Backfill(ctx context.Context, points int, step time.Duration) (BackfillResult, error) {
	if points <= 0 {
		return BackfillResult{}, fmt.Errorf("points must be positive, got %d", points)
	}
	if step <= 0 {
		return BackfillResult{}, fmt.Errorf("step must be positive, got %v", step)
	}

	batcher := batch.New(batch.SenderFunc(c.importBatch), batch.Config{
		MaxBatchSize: 1000,
		FlushEvery:   time.Hour,
		SendTimeout:  time.Minute,
	})
	if err := batcher.Start(ctx); err != nil {
		return BackfillResult{}, fmt.Errorf("failed to start batcher: %w", err)
	}

	end := c.now().Truncate(time.Second)
	start := end.Add(-time.Duration(points-1) * step)
	for _, d := range c.config.Devices {
		for i := 0; i < points; i++ {
			if ctx.Err() != nil {
				break
			}
			batcher.Add(c.Reading(d, start.Add(time.Duration(i)*step)))
		}
	}

	err := batcher.Stop()
	result := BackfillResult{
		Readings: batcher.Sent(),
		Failed:   batcher.Failed(),
		From:     start,
		To:       end,
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, err
}

func (c *Client) importBatch(ctx context.Context, deviceID string, readings []model.Reading) error {
	summary, err := c.transport.Import(ctx, deviceID, readings)
	if err != nil {
		return fmt.Errorf("import %s: %w", deviceID, err)
	}
	if len(summary.Errors) > 0 {
		return fmt.Errorf("import %s: %d entries rejected, first: %s", deviceID, len(summary.Errors), summary.Errors[0])
	}
	return nil
}
