package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on the command line and in
// artifact names.
const DateLayout = "2006-01-02"

// TimestampLayout renders row timestamps in artifacts.
const TimestampLayout = "2006-01-02 15:04:05"

// TimeRange covers the UTC instants [Start, End). Both bounds sit on
// midnight of the dates they were parsed from.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeRange parses two YYYY-MM-DD dates. An end before start is
// rejected; equal dates give an empty range.
func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := time.ParseInLocation(DateLayout, start, time.UTC)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: start date %q: expected YYYY-MM-DD", ErrInvalidInput, start)
	}
	e, err := time.ParseInLocation(DateLayout, end, time.UTC)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: end date %q: expected YYYY-MM-DD", ErrInvalidInput, end)
	}
	if e.Before(s) {
		return TimeRange{}, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidInput, end, start)
	}
	return TimeRange{Start: s, End: e}, nil
}

// LastDays returns the days-long range ending at the start of the UTC day
// containing now. Today itself is excluded.
func LastDays(now time.Time, days int) TimeRange {
	end := now.UTC().Truncate(24 * time.Hour)
	return TimeRange{Start: end.AddDate(0, 0, -days), End: end}
}

func (r TimeRange) Empty() bool { return !r.End.After(r.Start) }

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether o lies entirely inside r.
func (r TimeRange) Covers(o TimeRange) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

// Overlaps reports whether the two ranges share at least one instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

func (r TimeRange) StartDate() string { return r.Start.UTC().Format(DateLayout) }
func (r TimeRange) EndDate() string   { return r.End.UTC().Format(DateLayout) }

func (r TimeRange) String() string {
	return r.StartDate() + " to " + r.EndDate()
}
