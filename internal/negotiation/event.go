package negotiation

import (
	"time"

	"github.com/google/uuid"

	"github.com/teemow/meetbroker/internal/schedule"
)

// EventKind identifies the protocol message types exchanged between
// two scheduling agents.
type EventKind string

const (
	KindRequest         EventKind = "schedule_request"
	KindProposal        EventKind = "schedule_proposal"
	KindCounterProposal EventKind = "schedule_counter_proposal"
	KindConfirmation    EventKind = "schedule_confirmation"
	KindRejection       EventKind = "schedule_rejection"

	// KindClarification is outbound-only: it asks the counterpart to
	// resend after an unparseable or out-of-order message. It never
	// advances the session.
	KindClarification EventKind = "clarification"

	// KindFailureNotice is outbound-only: it replaces the confirmation
	// reply when the local calendar write failed.
	KindFailureNotice EventKind = "failure_notice"
)

// Event is a structured negotiation message, either decoded from an
// inbound email or produced by the state machine for encoding into an
// outbound reply.
type Event struct {
	// ID uniquely identifies the message.
	ID string

	Kind EventKind

	// ThreadID is the email thread the negotiation lives on.
	ThreadID string

	// From is the sender's email address (inbound events only).
	From string

	// Round is the negotiation round this message belongs to.
	// Requests carry round 0; the first proposal carries round 1.
	Round int

	// Subject is the meeting subject.
	Subject string

	// Duration is the requested meeting length (requests only).
	Duration time.Duration

	// Windows are the candidate slots (proposals and counter-proposals).
	Windows []schedule.Window

	// Chosen is the agreed slot (confirmations only).
	Chosen schedule.Window

	// Reason carries human-readable context for rejections,
	// clarifications and failure notices.
	Reason string

	// EventLink is the calendar event URL, filled in by the committer
	// for confirmation replies when available.
	EventLink string
}

// newOutbound creates an outbound event on the same thread.
func newOutbound(kind EventKind, threadID, subject string, round int) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Kind:     kind,
		ThreadID: threadID,
		Subject:  subject,
		Round:    round,
	}
}
