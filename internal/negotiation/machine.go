package negotiation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/schedule"
)

// Machine applies negotiation events to sessions. It holds the local
// participant's identity and scheduling preferences; the counterpart's
// calendar is never consulted, only the busy snapshot of our own.
type Machine struct {
	// Self is the participant this agent negotiates for.
	Self Participant

	// Resolver computes candidate slots from our busy windows.
	Resolver *schedule.Resolver

	// Prefs are our own daily boundaries, read-only to the protocol.
	Prefs schedule.Preferences

	// Horizon is the candidate search horizon (DefaultHorizon if zero).
	Horizon time.Duration

	// Now is injected for deterministic tests; time.Now if nil.
	Now func() time.Time

	Logger *slog.Logger
}

// NewMachine creates a state machine for the given participant.
func NewMachine(self Participant, resolver *schedule.Resolver, prefs schedule.Preferences, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		Self:     self,
		Resolver: resolver,
		Prefs:    prefs,
		Logger:   logger,
	}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Apply runs one protocol turn: it applies the inbound event to the
// session and returns at most one outbound event to send in reply.
//
// Replayed messages (round number at or below the session's recorded
// round, or any message on a terminal session) return ErrStaleRound
// with no transition and no output. A message more than one round
// ahead returns a clarification reply without advancing the session.
// The caller must hold the store's per-session lock.
func (m *Machine) Apply(sess *Session, ev Event, busy []schedule.Window) (*Event, error) {
	log := m.Logger.With(
		logging.Thread(sess.ThreadID),
		logging.Round(sess.Round),
		slog.String("event", string(ev.Kind)),
	)

	if ev.Kind == KindFailureNotice {
		// The counterpart could not book the slot it had agreed to.
		// This arrives after we considered the session settled, so it
		// bypasses the terminal guard; mirror the failure so neither
		// side believes the meeting stands.
		if sess.Status == StatusFailed {
			return nil, ErrStaleRound
		}
		sess.Status = StatusFailed
		sess.touch(m.now())
		log.Warn("counterpart reported booking failure", slog.String("reason", ev.Reason))
		return nil, nil
	}

	if sess.Status.Terminal() {
		return nil, ErrStaleRound
	}

	switch ev.Kind {
	case KindRequest:
		return m.applyRequest(sess, busy, log)
	case KindProposal, KindCounterProposal:
		return m.applyProposal(sess, ev, busy, log)
	case KindConfirmation:
		return m.applyConfirmation(sess, ev, log)
	case KindRejection:
		return m.applyRejection(sess, ev, log)
	default:
		return nil, fmt.Errorf("unexpected inbound event kind %q", ev.Kind)
	}
}

// applyRequest answers a fresh schedule request with our first proposal.
func (m *Machine) applyRequest(sess *Session, busy []schedule.Window, log *slog.Logger) (*Event, error) {
	if sess.Status != StatusRequested || sess.Round > 0 {
		// The request was already answered; the email was redelivered.
		return nil, ErrStaleRound
	}

	candidates := m.Resolver.Resolve(sess.Duration, busy, m.Prefs, m.Horizon)
	if len(candidates) == 0 {
		sess.Status = StatusRejected
		sess.touch(m.now())
		log.Info("no availability for request, rejecting")
		out := newOutbound(KindRejection, sess.ThreadID, sess.Subject, sess.Round)
		out.Reason = "no free slots within the next week"
		return out, nil
	}

	sess.recordProposal(1, m.Self.Email, candidates)
	sess.Status = StatusProposed
	sess.touch(m.now())
	log.Info("proposing candidate slots", slog.Int("candidates", len(candidates)))

	out := newOutbound(KindProposal, sess.ThreadID, sess.Subject, 1)
	out.Windows = candidates
	return out, nil
}

// applyProposal handles an inbound proposal or counter-proposal: accept
// the earliest mutually free window, counter with fresh candidates, or
// reject once the round limit is reached.
func (m *Machine) applyProposal(sess *Session, ev Event, busy []schedule.Window, log *slog.Logger) (*Event, error) {
	if ev.Round <= sess.Round {
		return nil, ErrStaleRound
	}
	if ev.Round > sess.Round+1 {
		// A round went missing in transit; ask for a resend instead of
		// applying a message we cannot order.
		log.Warn("out-of-order proposal", slog.Int("event_round", ev.Round))
		out := newOutbound(KindClarification, sess.ThreadID, sess.Subject, sess.Round)
		out.Reason = fmt.Sprintf("received round %d but last seen round was %d; please resend the missing proposal", ev.Round, sess.Round)
		return out, nil
	}

	sess.recordProposal(ev.Round, ev.From, ev.Windows)

	if chosen, ok := schedule.FirstMutuallyFree(ev.Windows, busy, m.Prefs); ok {
		sess.Status = StatusConfirmed
		sess.ConfirmedSlot = chosen
		sess.touch(m.now())
		log.Info("accepting proposed slot", slog.String("slot", chosen.String()))

		out := newOutbound(KindConfirmation, sess.ThreadID, sess.Subject, ev.Round)
		out.Chosen = chosen
		return out, nil
	}

	if ev.Round >= MaxRounds {
		sess.Status = StatusRejected
		sess.touch(m.now())
		log.Info("round limit reached without agreement, rejecting")
		out := newOutbound(KindRejection, sess.ThreadID, sess.Subject, ev.Round)
		out.Reason = fmt.Sprintf("no mutually free slot after %d rounds", ev.Round)
		return out, nil
	}

	candidates := m.Resolver.Resolve(sess.Duration, busy, m.Prefs, m.Horizon)
	if len(candidates) == 0 {
		sess.Status = StatusRejected
		sess.touch(m.now())
		log.Info("no counter-candidates available, rejecting")
		out := newOutbound(KindRejection, sess.ThreadID, sess.Subject, ev.Round)
		out.Reason = "no free slots left to counter with"
		return out, nil
	}

	next := ev.Round + 1
	sess.recordProposal(next, m.Self.Email, candidates)
	sess.Status = StatusCounterProposed
	sess.touch(m.now())
	log.Info("countering with fresh candidates", slog.Int("next_round", next))

	out := newOutbound(KindCounterProposal, sess.ThreadID, sess.Subject, next)
	out.Windows = candidates
	return out, nil
}

// applyConfirmation records the agreed slot. The caller hands the
// session to the committer; each side writes only its own calendar, so
// no reply is needed.
func (m *Machine) applyConfirmation(sess *Session, ev Event, log *slog.Logger) (*Event, error) {
	if ev.Chosen.IsZero() {
		return nil, fmt.Errorf("confirmation without a chosen window")
	}
	sess.Status = StatusConfirmed
	sess.ConfirmedSlot = ev.Chosen
	if ev.Round > sess.Round {
		sess.Round = ev.Round
	}
	sess.touch(m.now())
	log.Info("counterpart confirmed slot", slog.String("slot", ev.Chosen.String()))
	return nil, nil
}

// applyRejection terminates the session; no further messages are sent.
func (m *Machine) applyRejection(sess *Session, ev Event, log *slog.Logger) (*Event, error) {
	sess.Status = StatusRejected
	if ev.Round > sess.Round {
		sess.Round = ev.Round
	}
	sess.touch(m.now())
	log.Info("counterpart rejected negotiation", slog.String("reason", ev.Reason))
	return nil, nil
}

// MarkFailed moves a confirmed session to the failed state after a
// calendar write error and produces the failure notice that replaces
// the confirmation reply.
func (m *Machine) MarkFailed(sess *Session, cause error) *Event {
	sess.Status = StatusFailed
	sess.touch(m.now())
	m.Logger.Error("negotiation failed after confirmation",
		logging.Thread(sess.ThreadID),
		logging.Err(cause),
	)
	out := newOutbound(KindFailureNotice, sess.ThreadID, sess.Subject, sess.Round)
	out.Reason = "the meeting could not be written to the calendar; please restart the negotiation"
	return out
}
