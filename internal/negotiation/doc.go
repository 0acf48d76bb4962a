// Package negotiation implements the bilateral meeting negotiation
// protocol: the per-thread state machine that drives proposal,
// counter-proposal and confirmation rounds, the process-wide session
// store, and the committer that turns a confirmed slot into a calendar
// event.
//
// The protocol is driven one inbound event at a time. Applying an event
// to a session performs at most one state transition and emits at most
// one outbound event, which makes the machine safe to re-invoke with
// the same message under at-least-once email delivery: replayed rounds
// are acknowledged without producing new output.
//
// Sessions always terminate. A negotiation ends Confirmed, Rejected,
// Expired (inactivity) or Failed (calendar write failed after
// confirmation) within MaxRounds+1 protocol turns.
package negotiation
