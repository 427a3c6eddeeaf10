package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period names a report date range.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	Period7Days     Period = "7days"
	Period14Days    Period = "14days"
	Period30Days    Period = "30days"
	PeriodCustom    Period = "custom"
)

// periodDays maps the last-N-days periods to N.
var periodDays = map[Period]int{
	Period7Days:  7,
	Period14Days: 14,
	Period30Days: 30,
}

// ErrUnknownPeriod is returned for an unrecognised period keyword.
var ErrUnknownPeriod = errors.New("unknown report period")

// InvalidRangeError reports a custom range that cannot be satisfied.
type InvalidRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	if e.Reason != "" {
		return "invalid date range: " + e.Reason
	}
	return fmt.Sprintf("invalid date range: end %s precedes start %s",
		e.End.Format("2006-01-02"), e.Start.Format("2006-01-02"))
}

// ParsePeriod normalises a period keyword. Empty means today; the
// "last-7-days" spelling is accepted for each last-N-days period.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PeriodToday, nil
	}
	if strings.HasPrefix(s, "last-") && strings.HasSuffix(s, "-days") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "last-"), "-days") + "days"
	}

	p := Period(s)
	switch p {
	case PeriodToday, PeriodYesterday, PeriodCustom:
		return p, nil
	}
	if _, ok := periodDays[p]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether start <= t <= end.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// StartOfDay returns 00:00:00.000 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// SelectWindow computes the report window for period. Custom bounds are
// only consulted for PeriodCustom; their time of day is ignored.
func SelectWindow(period Period, now, customStart, customEnd time.Time) (Window, error) {
	switch period {
	case PeriodToday:
		return Window{Start: StartOfDay(now), End: EndOfDay(now)}, nil

	case PeriodYesterday:
		y := now.AddDate(0, 0, -1)
		return Window{Start: StartOfDay(y), End: EndOfDay(y)}, nil

	case PeriodCustom:
		if customStart.IsZero() || customEnd.IsZero() {
			return Window{}, &InvalidRangeError{Start: customStart, End: customEnd, Reason: "custom range requires start and end dates"}
		}
		start, end := StartOfDay(customStart), EndOfDay(customEnd)
		if end.Before(start) {
			return Window{}, &InvalidRangeError{Start: customStart, End: customEnd}
		}
		return Window{Start: start, End: end}, nil
	}

	if n, ok := periodDays[period]; ok {
		return Window{Start: StartOfDay(now.AddDate(0, 0, -n)), End: EndOfDay(now)}, nil
	}
	return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
}
