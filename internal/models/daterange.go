package models

import (
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout used across the corpus.
const DateLayout = "2006-01-02"

// DateRange is a half-open interval of calendar dates: Start inclusive, End exclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange returns the range [start, end). Both are truncated to UTC calendar dates.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Contains reports whether d falls in [Start, End).
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// Empty reports whether no date can fall inside the range.
func (r DateRange) Empty() bool {
	return !r.End.After(r.Start)
}

// String formats the range as "[start, end)".
func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
