package periods

import (
	"fmt"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// ErrPeriodOverlap indicates a close range intersecting an existing close of
// the same chart.
var ErrPeriodOverlap = fmt.Errorf("%w: period overlaps an existing close", shared.ErrValidation)

// Close records that a chart's [Start, End] range is closed. EntryID is nil
// when the range had no revenue or expense activity to sweep.
type Close struct {
	ID        int64
	ChartID   int64
	Start     time.Time
	End       time.Time
	EntryID   *int64
	ClosedBy  int64
	CreatedAt time.Time
}

// Covers reports whether day falls inside the closed range.
func (c Close) Covers(day time.Time) bool {
	day = Day(day)
	return !day.Before(c.Start) && !day.After(c.End)
}

// Overlaps reports whether [start, end] intersects the closed range.
func (c Close) Overlaps(start, end time.Time) bool {
	return !Day(start).After(c.End) && !Day(end).Before(c.Start)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last microsecond of day, the precision postgres keeps.
func EndOfDay(day time.Time) time.Time {
	return Day(day).AddDate(0, 0, 1).Add(-time.Microsecond)
}
