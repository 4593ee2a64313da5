package metering

import (
	"errors"
	"fmt"
	"time"
)

// Period kinds accepted by the reporting surface. The string values are part
// of the JSON contract with existing consumers.
const (
	PeriodLast30Days = "30days"
	PeriodAllTime    = "all"
	periodRange      = "range"
)

// ErrInvalidRange is returned when an explicit period has start > end. It is
// rejected before any storage is touched.
var ErrInvalidRange = errors.New("invalid period range: start date after end date")

// Selector names a logical reporting period. Construct one with Last30Days,
// AllTime, or Range; the zero value is not valid.
type Selector struct {
	Kind  string
	Start time.Time
	End   time.Time
}

// Last30Days selects the 30 calendar days ending today (inclusive).
func Last30Days() Selector {
	return Selector{Kind: PeriodLast30Days}
}

// AllTime selects every recorded day with no boundary filtering.
func AllTime() Selector {
	return Selector{Kind: PeriodAllTime}
}

// Range selects an explicit inclusive day range.
func Range(start, end time.Time) Selector {
	return Selector{Kind: periodRange, Start: start, End: end}
}

// String returns the wire name of the period ("30days", "all", or the
// explicit range in YYYY-MM-DD..YYYY-MM-DD form).
func (s Selector) String() string {
	if s.Kind == periodRange {
		return fmt.Sprintf("%s..%s", s.Start.Format(dateLayout), s.End.Format(dateLayout))
	}
	return s.Kind
}

const dateLayout = "2006-01-02"

// Bounds is a resolved inclusive day range. When Unbounded is set, Start and
// End are zero and no date predicate applies; the unbounded path is a real
// query mode, not a sentinel min/max range.
type Bounds struct {
	Start     time.Time
	End       time.Time
	Unbounded bool
}

// Resolve translates a selector into concrete UTC day boundaries. The caller
// supplies now; nothing in this package reads the wall clock, which keeps
// every aggregation deterministic under test.
func Resolve(sel Selector, now time.Time) (Bounds, error) {
	switch sel.Kind {
	case PeriodLast30Days:
		end := DayOf(now)
		return Bounds{Start: end.AddDate(0, 0, -29), End: end}, nil
	case PeriodAllTime:
		return Bounds{Unbounded: true}, nil
	case periodRange:
		start, end := DayOf(sel.Start), DayOf(sel.End)
		if start.After(end) {
			return Bounds{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
				start.Format(dateLayout), end.Format(dateLayout))
		}
		return Bounds{Start: start, End: end}, nil
	default:
		return Bounds{}, fmt.Errorf("unknown period %q", sel.Kind)
	}
}

// MonthToDate returns the bounds from the first day of the current UTC month
// through today. Budget evaluation always runs over this window regardless of
// the requested report period.
func MonthToDate(now time.Time) Bounds {
	day := DayOf(now)
	return Bounds{
		Start: time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC),
		End:   day,
	}
}

// DayOf truncates t to its UTC calendar day. All date math in the metering
// core happens on UTC day boundaries, matching the storage convention.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
