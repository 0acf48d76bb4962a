package negotiation

import (
	"time"

	"github.com/teemow/meetbroker/internal/schedule"
)

// MaxRounds bounds the number of proposal/counter-proposal exchanges
// before a negotiation is forcibly terminated.
const MaxRounds = 4

// Status is the lifecycle state of a negotiation session.
type Status string

const (
	StatusRequested       Status = "requested"
	StatusProposed        Status = "proposed"
	StatusCounterProposed Status = "counter_proposed"
	StatusConfirmed       Status = "confirmed"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further protocol messages are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Participant identifies one side of a negotiation.
type Participant struct {
	Email string
	Name  string
}

// Proposal records one side's candidate windows for a given round.
type Proposal struct {
	Round   int
	From    string
	Windows []schedule.Window
}

// Session is the protocol state for one meeting negotiation, keyed by
// the email thread it lives on. All mutation goes through the state
// machine while the store's per-session lock is held.
type Session struct {
	// ThreadID is the email thread identity.
	ThreadID string

	// Initiator sent the original schedule request; Responder received it.
	Initiator Participant
	Responder Participant

	Subject  string
	Duration time.Duration

	// Round is the round number of the last processed or emitted
	// proposal. It only ever increases.
	Round int

	// History is the append-only record of proposals exchanged.
	History []Proposal

	Status Status

	// ConfirmedSlot is set only when Status is StatusConfirmed or later.
	ConfirmedSlot schedule.Window

	// Version increments on every mutation; the store uses it to
	// reject stale writes from concurrent pollers.
	Version int

	// LastActivity drives inactivity expiry.
	LastActivity time.Time
}

// NewSession creates a session in the requested state for a thread.
func NewSession(threadID string, initiator, responder Participant, subject string, duration time.Duration, now time.Time) *Session {
	return &Session{
		ThreadID:     threadID,
		Initiator:    initiator,
		Responder:    responder,
		Subject:      subject,
		Duration:     duration,
		Status:       StatusRequested,
		LastActivity: now,
	}
}

// Counterpart returns the other participant from the given address.
func (s *Session) Counterpart(email string) Participant {
	if s.Initiator.Email == email {
		return s.Responder
	}
	return s.Initiator
}

// Attendees returns both participants' addresses for calendar events.
func (s *Session) Attendees() []string {
	return []string{s.Initiator.Email, s.Responder.Email}
}

// recordProposal appends a proposal to the history and advances the
// round counter.
func (s *Session) recordProposal(round int, from string, windows []schedule.Window) {
	s.History = append(s.History, Proposal{Round: round, From: from, Windows: windows})
	if round > s.Round {
		s.Round = round
	}
}

// touch bumps the version and activity timestamp after a mutation.
func (s *Session) touch(now time.Time) {
	s.Version++
	s.LastActivity = now
}
