// Package schedule provides the time window model and the availability
// resolver used during meeting negotiation.
//
// A Window is a half-open interval of wall-clock time. Busy calendar
// periods and proposed meeting slots share the same representation.
// The Resolver scans a search horizon in fixed 15-minute steps and
// returns up to three ranked candidate windows that fit a requested
// duration, avoid all busy windows, and respect the participant's
// daily boundary preferences.
//
// The resolver is deterministic: given the same reference time, busy
// snapshot and preferences it always produces the same candidates,
// which keeps negotiations reproducible under test.
package schedule
