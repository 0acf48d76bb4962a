package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Window represents a half-open time interval [Start, End).
// It is used both for proposed meeting slots and for busy calendar periods.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow creates a Window and validates that start precedes end.
func NewWindow(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, fmt.Errorf("invalid window: start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two windows share any time.
// Windows that merely touch (one ends where the other starts) do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Equal reports whether both windows cover the same interval.
func (w Window) Equal(other Window) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

// IsZero reports whether the window is the zero value.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// String formats the window for logs and human-readable email bodies.
func (w Window) String() string {
	return fmt.Sprintf("%s – %s",
		w.Start.Format("Mon, Jan 2 2006 15:04"),
		w.End.Format("15:04 MST"))
}

// SortWindows sorts windows ascending by start time, then by end time.
func SortWindows(windows []Window) {
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Start.Equal(windows[j].Start) {
			return windows[i].End.Before(windows[j].End)
		}
		return windows[i].Start.Before(windows[j].Start)
	})
}

// OverlapsAny reports whether w overlaps any window in the given set.
func (w Window) OverlapsAny(busy []Window) bool {
	for _, b := range busy {
		if w.Overlaps(b) {
			return true
		}
	}
	return false
}

// ClockTime is a time-of-day boundary (hour and minute) used for
// daily scheduling preferences.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes returns the clock time as minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseClockTime parses a "HH:MM" string into a ClockTime.
func ParseClockTime(s string) (ClockTime, error) {
	var c ClockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// String formats the clock time as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Preferences holds a participant's scheduling boundaries. They are
// read-only inputs to the resolver and are never mutated during a
// negotiation.
type Preferences struct {
	// EarliestStart is the earliest allowed start-of-day for a meeting.
	EarliestStart ClockTime

	// LatestEnd is the latest allowed end-of-day for a meeting.
	LatestEnd ClockTime

	// SkipWeekends excludes Saturday and Sunday from candidate slots.
	SkipWeekends bool

	// RequireKnownContacts requires the counterpart to be a known
	// contact before a negotiation is entered.
	RequireKnownContacts bool
}

// DefaultPreferences returns the standard working-day boundaries.
func DefaultPreferences() Preferences {
	return Preferences{
		EarliestStart: ClockTime{Hour: 9},
		LatestEnd:     ClockTime{Hour: 17},
		SkipWeekends:  true,
	}
}

// withinBoundary reports whether the window lies entirely inside the
// participant's daily boundaries on a single day.
func (p Preferences) withinBoundary(w Window) bool {
	if w.Start.YearDay() != w.End.YearDay() && !w.End.Equal(dayStart(w.End)) {
		// Meetings never span midnight.
		return false
	}
	startMin := w.Start.Hour()*60 + w.Start.Minute()
	endMin := w.End.Hour()*60 + w.End.Minute()
	if endMin == 0 {
		endMin = 24 * 60
	}
	return startMin >= p.EarliestStart.Minutes() && endMin <= p.LatestEnd.Minutes()
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
