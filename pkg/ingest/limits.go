package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
)

var (
	// ErrDeviceCodeRequired is returned when a request omits device_code
	ErrDeviceCodeRequired = fmt.Errorf("device_code is required")

	// ErrInvalidValue is returned when a field value is not a number
	ErrInvalidValue = fmt.Errorf("invalid field value")

	// ErrTooManyFields is returned when a reading carries too many fields
	ErrTooManyFields = fmt.Errorf("too many fields in reading (max %d)", config.MaxFieldsPerReading)

	// ErrRateLimited is returned when a device exceeds its ingest rate
	ErrRateLimited = fmt.Errorf("rate limit exceeded")
)

// ExtractValues pulls fieldN parameters out of a query, keeping only fields
// the device declares. Devices without sensor definitions accept every field.
// The names of dropped fields are returned for logging.
func ExtractValues(params map[string][]string, device model.Device) (map[string]float64, []string, error) {
	values := make(map[string]float64)
	var dropped []string

	for key, raw := range params {
		if !strings.HasPrefix(key, "field") || len(raw) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw[0]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw[0])
		}
		if len(device.Sensors) > 0 && !device.HasField(key) {
			dropped = append(dropped, key)
			continue
		}
		values[key] = v
	}

	if len(values) > config.MaxFieldsPerReading {
		return nil, nil, fmt.Errorf("%w: got %d", ErrTooManyFields, len(values))
	}
	return values, dropped, nil
}

// DeviceLimiter applies a token bucket per device code.
type DeviceLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewDeviceLimiter creates a limiter allowing perSecond readings per device
// with the given burst. A non-positive rate disables limiting.
func NewDeviceLimiter(perSecond float64, burst int) *DeviceLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &DeviceLimiter{
		limit:    limit,
		burst:    burst,
		idleTTL:  config.IngestLimiterIdleTTL,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether device may submit a reading at now.
func (l *DeviceLimiter) Allow(device string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for id, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[device]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[device] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Tracked returns how many devices currently hold a limiter.
func (l *DeviceLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
