package schedule

import (
	"sort"
	"time"
)

const (
	// Granularity is the step size used when scanning for candidate slots.
	Granularity = 15 * time.Minute

	// DefaultHorizon is the default search horizon for candidate slots.
	DefaultHorizon = 7 * 24 * time.Hour

	// MaxCandidates bounds how many windows a proposal may carry.
	MaxCandidates = 3
)

// Resolver computes ranked candidate meeting slots from a busy-window
// snapshot and a participant's preferences.
//
// Now is injected so that resolution is deterministic under test; when
// nil, time.Now is used.
type Resolver struct {
	Now func() time.Time
}

// NewResolver returns a resolver anchored at the real clock.
func NewResolver() *Resolver {
	return &Resolver{Now: time.Now}
}

// Resolve returns up to MaxCandidates mutually non-overlapping windows of
// the requested duration within the search horizon, sorted ascending by
// start. Candidates overlapping a busy window or crossing the daily
// boundary preferences are rejected. An empty result means no
// availability; it is never an error.
func (r *Resolver) Resolve(duration time.Duration, busy []Window, prefs Preferences, horizon time.Duration) []Window {
	if duration <= 0 {
		return nil
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	// Anchor the scan at the next granularity boundary so candidates
	// land on clean quarter-hour starts.
	start := now.Truncate(Granularity)
	if start.Before(now) {
		start = start.Add(Granularity)
	}
	end := now.Add(horizon)

	type candidate struct {
		window   Window
		boundary bool // adjacent to the earliest-start or latest-end boundary
	}

	var candidates []candidate
	for cur := start; !cur.Add(duration).After(end); cur = cur.Add(Granularity) {
		w := Window{Start: cur, End: cur.Add(duration)}

		if prefs.SkipWeekends && (cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday) {
			continue
		}
		if !prefs.withinBoundary(w) {
			continue
		}
		if w.OverlapsAny(busy) {
			continue
		}

		startMin := cur.Hour()*60 + cur.Minute()
		endMin := startMin + int(duration.Minutes())
		boundary := startMin == prefs.EarliestStart.Minutes() || endMin == prefs.LatestEnd.Minutes()
		candidates = append(candidates, candidate{window: w, boundary: boundary})
	}

	// Earlier slots win; at equal start, interior slots beat
	// boundary-adjacent ones.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].window.Start.Equal(candidates[j].window.Start) {
			return !candidates[i].boundary && candidates[j].boundary
		}
		return candidates[i].window.Start.Before(candidates[j].window.Start)
	})

	var result []Window
	for _, c := range candidates {
		if len(result) == MaxCandidates {
			break
		}
		if c.window.OverlapsAny(result) {
			continue
		}
		result = append(result, c.window)
	}
	return result
}

// FirstMutuallyFree returns the earliest of the proposed windows that
// does not overlap any busy window and lies within the preferences.
// The boolean reports whether such a window exists. Proposals are
// evaluated in ascending start order regardless of input order.
func FirstMutuallyFree(proposed []Window, busy []Window, prefs Preferences) (Window, bool) {
	ordered := make([]Window, len(proposed))
	copy(ordered, proposed)
	SortWindows(ordered)

	for _, w := range ordered {
		if !prefs.withinBoundary(w) {
			continue
		}
		if w.OverlapsAny(busy) {
			continue
		}
		return w, true
	}
	return Window{}, false
}
