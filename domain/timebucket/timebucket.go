// Package timebucket derives canonical UTC time-bucket identifiers from
// arbitrary instants.
package timebucket

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity of a histogram bucket.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Layout is the canonical UTC ISO-8601 instant used for bucket identifiers
// and persisted timestamps.
const Layout = "2006-01-02T15:04:05.000Z"

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("invalid period %q (want hour, day, week or month)", s)
}

// Parse reads an ISO-8601 instant, honoring any timezone offset, and returns
// the instant normalized to UTC. Fractional seconds are accepted.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Format renders an instant in the canonical UTC millisecond form.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// HourFloor zeroes minutes, seconds and sub-seconds in UTC.
func HourFloor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// HourCeil returns the containing hour's last representable millisecond,
// used as the inclusive upper bound of range reads.
func HourCeil(t time.Time) time.Time {
	return HourFloor(t).Add(time.Hour - time.Millisecond)
}

// PeriodFloor rewinds an instant to the start of its containing period.
// Weeks start on Sunday.
func PeriodFloor(t time.Time, p Period) time.Time {
	u := t.UTC()
	switch p {
	case PeriodDay:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -int(day.Weekday()))
	case PeriodMonth:
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return u.Truncate(time.Hour)
	}
}

// Next advances a bucket start to the following bucket start. Inputs are
// expected to be period floors, so calendar arithmetic cannot overflow.
func Next(t time.Time, p Period) time.Time {
	switch p {
	case PeriodDay:
		return t.AddDate(0, 0, 1)
	case PeriodWeek:
		return t.AddDate(0, 0, 7)
	case PeriodMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.Add(time.Hour)
	}
}
