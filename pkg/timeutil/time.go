package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format accepted by the cron endpoints
const DateLayout = "2006-01-02"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// LoadLocation resolves a settlement time zone name, defaulting to UTC when empty
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDay parses a YYYY-MM-DD date as midnight in loc
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// StartOfDay returns midnight of t's calendar day in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999 of t's calendar day in loc.
// Settlement periods are stored with millisecond precision, so the last millisecond closes the day.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), loc)
}

// PeriodLimit returns the exclusive upper bound matching an inclusive millisecond period end.
// Event timestamps carry finer precision, so queries filter with occurred_at < PeriodLimit(end)
// instead of occurred_at <= end and nothing after the last millisecond falls between two days.
func PeriodLimit(end time.Time) time.Time {
	return end.Truncate(time.Millisecond).Add(time.Millisecond)
}

// DayBounds returns the inclusive start and end of t's calendar day in loc
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	return StartOfDay(t, loc), EndOfDay(t, loc)
}

// Yesterday returns midnight of the day before now in loc
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -1)
}
