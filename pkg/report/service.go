package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

var (
	// ErrDeviceNotFound is returned when the report's device does not exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrForbidden is returned when the requester may not see the device.
	ErrForbidden = errors.New("access to device denied")
)

// DeviceSource looks up device metadata.
type DeviceSource interface {
	GetDevice(ctx context.Context, id string) (model.Device, error)
}

// HistorySource reads a device's readings within a time range.
type HistorySource interface {
	Between(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.Reading, error)
}

// Request carries the report parameters as received from the client.
type Request struct {
	Period      string
	CustomStart string // yyyy-mm-dd in the report zone
	CustomEnd   string
	Interval    string // bucket label, e.g. "15m"

	// Authorize, when set, must approve the device before data is returned.
	Authorize func(model.Device) bool
}

// Service computes reports.
type Service struct {
	devices DeviceSource
	history HistorySource
	loc     *time.Location
	now     func() time.Time
}

// NewService creates a report service rendering days in loc.
func NewService(devices DeviceSource, history HistorySource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{devices: devices, history: history, loc: loc, now: time.Now}
}

// Location returns the zone reports are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ResolveWindow parses the request's period and dates into a window.
func (s *Service) ResolveWindow(req Request) (Window, error) {
	period, err := ParsePeriod(req.Period)
	if err != nil {
		return Window{}, err
	}

	var start, end time.Time
	if period == PeriodCustom {
		if start, err = s.parseDate(req.CustomStart); err != nil {
			return Window{}, err
		}
		if end, err = s.parseDate(req.CustomEnd); err != nil {
			return Window{}, err
		}
	}
	return SelectWindow(period, s.now().In(s.loc), start, end)
}

func (s *Service) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}, &InvalidRangeError{Reason: fmt.Sprintf("bad date %q, want yyyy-mm-dd", v)}
	}
	return t, nil
}

// ComputeReport selects the window, fetches the device and its history
// concurrently, then aggregates and assembles the report.
func (s *Service) ComputeReport(ctx context.Context, deviceID string, req Request) (*Report, error) {
	w, err := s.ResolveWindow(req)
	if err != nil {
		return nil, err
	}
	width := ParseBucketWidth(req.Interval)

	var (
		device   model.Device
		readings []model.Reading
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.devices.GetDevice(gctx, deviceID)
		if errors.Is(err, registry.ErrDeviceNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		if err != nil {
			return fmt.Errorf("failed to load device %s: %w", deviceID, err)
		}
		device = d
		return nil
	})
	g.Go(func() error {
		rs, err := s.history.Between(gctx, deviceID, w.Start, w.End, config.MaxReportReadings)
		if err != nil {
			return err
		}
		readings = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if req.Authorize != nil && !req.Authorize(device) {
		return nil, ErrForbidden
	}

	rep := Assemble(device, Aggregate(readings, w, width), w, s.now().In(s.loc))
	rep.Interval = BucketLabel(width)
	return rep, nil
}
