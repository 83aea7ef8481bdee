// Package recurrence implements the pure next-occurrence calculation
// for recurring tasks. It performs no I/O and is fully deterministic:
// the same (date, pattern, interval) input always yields the same
// output.
package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Pattern identifies how a recurrence repeats.
type Pattern string

// Supported recurrence patterns
const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
)

// Interval bounds per pattern
const (
	minInterval        = 1
	maxDailyInterval   = 365
	maxWeeklyInterval  = 52
	maxMonthlyInterval = 12
)

// Validation errors
var (
	// ErrInvalidPattern is returned when the pattern is not one of
	// daily, weekly, or monthly.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")

	// ErrIntervalOutOfRange is returned when the interval falls outside
	// the bounds for its pattern. The wrapped message names the bounds.
	ErrIntervalOutOfRange = errors.New("recurrence interval out of range")
)

// Validate checks a pattern/interval pair against the allowed bounds:
// daily 1-365, weekly 1-52, monthly 1-12. The returned error names the
// violated bounds so callers can surface it directly to users.
func Validate(pattern Pattern, interval int) error {
	var max int

	switch pattern {
	case PatternDaily:
		max = maxDailyInterval
	case PatternWeekly:
		max = maxWeeklyInterval
	case PatternMonthly:
		max = maxMonthlyInterval
	default:
		return fmt.Errorf("%w: %q (must be one of: daily, weekly, monthly)",
			ErrInvalidPattern, pattern)
	}

	if interval < minInterval || interval > max {
		return fmt.Errorf("%w: %s interval must be %d-%d, got %d",
			ErrIntervalOutOfRange, pattern, minInterval, max, interval)
	}

	return nil
}

// Next computes the next occurrence after current for the given
// pattern and interval. Daily adds interval days, weekly adds
// interval*7 days, monthly adds interval calendar months, clamping to
// the last valid day of the target month (Jan 31 + 1 month = Feb 28
// or 29) while preserving the time of day exactly. Metadata is carried
// for pattern-specific context (weekday, day_of_month) but does not
// affect the calculation.
// Returns an error if the pattern/interval pair fails Validate.
func Next(
	current time.Time,
	pattern Pattern,
	interval int,
	metadata map[string]interface{},
) (time.Time, error) {
	if err := Validate(pattern, interval); err != nil {
		return time.Time{}, err
	}

	switch pattern {
	case PatternDaily:
		return current.AddDate(0, 0, interval), nil
	case PatternWeekly:
		return current.AddDate(0, 0, interval*7), nil
	default:
		return addMonths(current, interval), nil
	}
}

// addMonths advances t by the given number of calendar months.
// time.AddDate normalizes overflowing days (Jan 31 + 1 month becomes
// Mar 3), so the day component is clamped by hand instead.
func addMonths(t time.Time, months int) time.Time {
	firstOfMonth := time.Date(
		t.Year(), t.Month(), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		t.Location(),
	)
	target := firstOfMonth.AddDate(0, months, 0)

	day := t.Day()
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(
		target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		t.Location(),
	)
}

// daysInMonth returns the number of days in the given month. Day zero
// of the following month is the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
