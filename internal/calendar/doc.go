// Package calendar provides Google Calendar access for the scheduling
// agent: free/busy lookups over the primary calendar, booking the
// agreed slot, and probing for already-booked duplicates. The Backend
// type adapts the client to the agent's calendar interface.
//
// Only the authenticated account's own calendar is ever read or
// written; the counterpart's availability is never queried.
package calendar
