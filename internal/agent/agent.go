package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/meetbroker/internal/codec"
	"github.com/teemow/meetbroker/internal/instrumentation"
	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// DefaultPollInterval is how often the mailbox is polled for new
// coordination messages.
const DefaultPollInterval = 60 * time.Second

// Config assembles an Agent.
type Config struct {
	// Self is the participant this agent negotiates for.
	Self negotiation.Participant

	Mail     MailChannel
	Calendar CalendarBackend

	// Prefs are the local scheduling boundaries.
	Prefs schedule.Preferences

	// Contacts gates which senders the agent negotiates with. Nil
	// means everyone.
	Contacts ContactPolicy

	// Horizon bounds how far ahead candidate slots are searched.
	// Defaults to schedule.DefaultHorizon.
	Horizon time.Duration

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// SessionTimeout defaults to negotiation.DefaultSessionTimeout.
	SessionTimeout time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// Audit receives one record per handled coordination message. Nil
	// disables audit logging.
	Audit *instrumentation.AuditLogger

	// Now is injected for deterministic tests; time.Now if nil.
	Now func() time.Time
}

// Agent polls one mailbox and drives its negotiations.
type Agent struct {
	self     negotiation.Participant
	mail     MailChannel
	calendar CalendarBackend
	contacts ContactPolicy

	store     *negotiation.Store
	machine   *negotiation.Machine
	committer *negotiation.Committer

	horizon      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	nowFn        func() time.Time
}

// New validates the configuration and assembles an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Self.Email == "" {
		return nil, fmt.Errorf("agent requires a participant email")
	}
	if cfg.Mail == nil {
		return nil, fmt.Errorf("agent requires a mail channel")
	}
	if cfg.Calendar == nil {
		return nil, fmt.Errorf("agent requires a calendar backend")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Contacts == nil {
		cfg.Contacts = AllowAll{}
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = schedule.DefaultHorizon
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = negotiation.DefaultSessionTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.With(logging.Account(cfg.Self.Email))

	resolver := &schedule.Resolver{Now: cfg.Now}
	machine := negotiation.NewMachine(cfg.Self, resolver, cfg.Prefs, logger)
	machine.Horizon = cfg.Horizon
	machine.Now = cfg.Now

	return &Agent{
		self:         cfg.Self,
		mail:         cfg.Mail,
		calendar:     cfg.Calendar,
		contacts:     cfg.Contacts,
		store:        negotiation.NewStoreWithTimeout(cfg.SessionTimeout, logger),
		machine:      machine,
		committer:    negotiation.NewCommitter(cfg.Calendar, cfg.Mail, logger),
		horizon:      cfg.Horizon,
		pollInterval: cfg.PollInterval,
		logger:       logger,
		metrics:      cfg.Metrics,
		audit:        cfg.Audit,
		nowFn:        cfg.Now,
	}, nil
}

// Run polls the mailbox until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	defer a.store.Stop()

	a.logger.Info("agent started",
		slog.Duration("poll_interval", a.pollInterval),
		slog.Duration("horizon", a.horizon),
	)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		if err := a.RunCycle(ctx); err != nil {
			a.logger.Error("poll cycle failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one poll: list unread coordination messages and
// process each in arrival order. Per-message failures are logged and
// leave the message unread so the next cycle retries it; only a listing
// failure fails the cycle.
func (a *Agent) RunCycle(ctx context.Context) error {
	start := a.nowFn()

	msgs, err := a.mail.ListUnread(ctx)
	if err != nil {
		a.recordCycle(ctx, "error", start)
		return fmt.Errorf("listing unread messages: %w", err)
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		a.handle(ctx, msg)
	}

	a.recordCycle(ctx, "success", start)
	return nil
}

func (a *Agent) recordCycle(ctx context.Context, result string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordPollCycle(ctx, result, a.nowFn().Sub(start))
	}
}

func (a *Agent) recordMessage(ctx context.Context, kind negotiation.EventKind, result string) {
	if a.metrics != nil {
		a.metrics.RecordMessageWithAccount(ctx, string(kind), result, a.self.Email)
	}
}

// handle processes one inbound message end to end: decode, apply,
// commit when confirmed, reply, acknowledge.
func (a *Agent) handle(ctx context.Context, msg Message) {
	log := a.logger.With(
		logging.Thread(msg.ThreadID),
		logging.Participant(msg.From),
	)

	if !codec.IsCoordinationSubject(msg.Subject) || msg.From == a.self.Email {
		// Self-addressed copies and stray inbox noise matched by the
		// mailbox query.
		a.recordMessage(ctx, "", "skipped")
		a.markRead(ctx, msg, log)
		return
	}

	if !a.contacts.Allows(msg.From) {
		log.Info("declining request from unknown contact")
		a.decline(ctx, msg, "I only schedule meetings with known contacts.", log)
		a.recordMessage(ctx, "", "declined")
		a.markRead(ctx, msg, log)
		return
	}

	// The last recorded round anchors the plain-text fallback parse.
	snap, _ := a.store.Get(msg.ThreadID)
	wasTerminal := snap.Status.Terminal()

	ev, err := codec.Decode(msg.Body, codec.ThreadContext{
		ThreadID:     msg.ThreadID,
		From:         msg.From,
		CurrentRound: snap.Round,
	})
	if err != nil {
		var df *codec.DecodeFailure
		if errors.As(err, &df) {
			log.Warn("undecodable message, asking for clarification", logging.Err(df))
			a.clarify(ctx, msg, snap.Subject, df.Reason, log)
			a.recordMessage(ctx, "", "clarified")
			a.markRead(ctx, msg, log)
			return
		}
		log.Error("decoding message", logging.Err(err))
		return
	}

	if ev.Kind == negotiation.KindClarification {
		// The counterpart could not read us. Humans untangle this; the
		// agent only acknowledges so it does not loop.
		log.Warn("counterpart asked for clarification", slog.String("reason", ev.Reason))
		a.recordMessage(ctx, ev.Kind, "handled")
		a.markRead(ctx, msg, log)
		return
	}

	a.handleEvent(ctx, msg, ev, snap, wasTerminal, log)
}

// handleEvent applies one decoded coordination event to its session,
// under a span and with an audit record.
func (a *Agent) handleEvent(ctx context.Context, msg Message, ev negotiation.Event, snap negotiation.Session, wasTerminal bool, log *slog.Logger) {
	ctx, span := instrumentation.StartNegotiationSpan(ctx, string(ev.Kind),
		instrumentation.NewSpanAttributeBuilder().
			WithThread(msg.ThreadID).
			WithRound(ev.Round).
			Build()...)
	defer span.End()

	var procErr error
	rec := instrumentation.NewMessageHandling(string(ev.Kind)).
		WithSender(msg.From).
		WithThread(msg.ThreadID, ev.Round).
		WithSpanContext(ctx)
	defer func() {
		if procErr != nil {
			instrumentation.SetSpanError(span, procErr)
			rec.CompleteWithError(procErr)
		} else {
			instrumentation.SetSpanSuccess(span)
			rec.CompleteSuccess()
		}
		if a.audit != nil {
			a.audit.LogMessageHandling(rec)
		}
	}()

	subject := ev.Subject
	if subject == "" {
		subject = snap.Subject
	}

	var create func() *negotiation.Session
	if ev.Kind == negotiation.KindRequest {
		create = func() *negotiation.Session {
			if a.metrics != nil {
				a.metrics.IncrementActiveSessions(ctx)
			}
			return negotiation.NewSession(msg.ThreadID,
				negotiation.Participant{Email: ev.From},
				a.self, subject, ev.Duration, a.nowFn())
		}
	}

	var out *negotiation.Event
	err := a.store.With(msg.ThreadID, create, func(sess *negotiation.Session) error {
		busy, err := a.listBusy(ctx)
		if err != nil {
			return fmt.Errorf("listing busy windows: %w", err)
		}

		out, err = a.machine.Apply(sess, ev, busy)
		if err != nil {
			return err
		}

		if sess.Status == negotiation.StatusConfirmed {
			out = a.commit(ctx, sess, out, log)
		}
		if ev.Kind == negotiation.KindFailureNotice && snap.Status == negotiation.StatusConfirmed {
			// We already booked the slot; take it off the calendar again.
			a.rollback(ctx, sess, log)
		}
		return nil
	})

	switch {
	case errors.Is(err, negotiation.ErrStaleRound):
		log.Info("ignoring replayed message", logging.Round(ev.Round))
		a.recordMessage(ctx, ev.Kind, "stale")
		a.markRead(ctx, msg, log)
		return
	case errors.Is(err, negotiation.ErrNoSession):
		if ev.Kind == negotiation.KindProposal || ev.Kind == negotiation.KindCounterProposal {
			a.clarify(ctx, msg, subject, "I have no active negotiation on this thread; could you restart with a fresh request?", log)
			a.recordMessage(ctx, ev.Kind, "clarified")
		} else {
			a.recordMessage(ctx, ev.Kind, "skipped")
		}
		a.markRead(ctx, msg, log)
		return
	case err != nil:
		// Leave the message unread; the next cycle retries and the
		// round check makes the retry safe.
		log.Error("processing message", logging.Err(err))
		a.recordMessage(ctx, ev.Kind, "error")
		procErr = err
		return
	}

	if out != nil {
		body := codec.Encode(out)
		if err := a.mail.Reply(ctx, msg.ThreadID, msg.From, codec.Subject(subject), body); err != nil {
			log.Error("sending reply", logging.Err(err))
			a.recordMessage(ctx, ev.Kind, "error")
			procErr = err
			return
		}
		log.Info("reply sent", slog.String("kind", string(out.Kind)), logging.Round(out.Round))
	}

	a.recordMessage(ctx, ev.Kind, "handled")
	a.markRead(ctx, msg, log)
	a.finishIfTerminal(ctx, msg.ThreadID, wasTerminal, log)
}

// commit books the confirmed slot on the local calendar. On failure the
// session flips to failed and the reply becomes a failure notice.
func (a *Agent) commit(ctx context.Context, sess *negotiation.Session, out *negotiation.Event, log *slog.Logger) *negotiation.Event {
	res, err := a.committer.Commit(ctx, sess)
	if err != nil {
		log.Error("committing confirmed slot", logging.Err(err))
		if a.metrics != nil {
			a.metrics.RecordCommit(ctx, "error")
		}
		return a.machine.MarkFailed(sess, err)
	}

	if a.metrics != nil {
		a.metrics.RecordCommit(ctx, "created")
	}
	if out != nil && out.Kind == negotiation.KindConfirmation {
		out.EventLink = res.Event.Link
	}
	return out
}

// rollback removes the local booking after the counterpart reported it
// could not commit its side. Best effort: a leftover event is found
// again by the duplicate check should the notice be redelivered.
func (a *Agent) rollback(ctx context.Context, sess *negotiation.Session, log *slog.Logger) {
	if err := a.committer.Rollback(ctx, sess); err != nil {
		log.Warn("rolling back booked event", logging.Err(err))
		if a.metrics != nil {
			a.metrics.RecordCommit(ctx, "rollback_error")
		}
		return
	}
	if a.metrics != nil {
		a.metrics.RecordCommit(ctx, "rolled_back")
	}
}

// finishIfTerminal records the outcome once a negotiation reaches a
// terminal state. Rejected and failed sessions are evicted right away;
// confirmed sessions stay tracked so a late failure notice from the
// counterpart still finds them, and the expiry sweep reaps them later.
func (a *Agent) finishIfTerminal(ctx context.Context, threadID string, wasTerminal bool, log *slog.Logger) {
	sess, ok := a.store.Get(threadID)
	if !ok || !sess.Status.Terminal() {
		return
	}

	if !wasTerminal {
		log.Info("negotiation finished",
			logging.Status(string(sess.Status)),
			logging.Round(sess.Round),
		)
		if a.metrics != nil {
			a.metrics.RecordNegotiationOutcome(ctx, string(sess.Status), sess.Round)
			a.metrics.DecrementActiveSessions(ctx)
		}
	}
	if sess.Status != negotiation.StatusConfirmed {
		a.store.Evict(threadID)
	}
}

func (a *Agent) listBusy(ctx context.Context) ([]schedule.Window, error) {
	now := a.nowFn()
	window, err := schedule.NewWindow(now, now.Add(a.horizon))
	if err != nil {
		return nil, err
	}
	return a.calendar.ListBusy(ctx, window)
}

// clarify answers an unusable message with a resend request.
func (a *Agent) clarify(ctx context.Context, msg Message, subject, reason string, log *slog.Logger) {
	ev := &negotiation.Event{
		ID:       uuid.New().String(),
		Kind:     negotiation.KindClarification,
		ThreadID: msg.ThreadID,
		Subject:  subject,
		Reason:   reason,
	}
	if err := a.mail.Reply(ctx, msg.ThreadID, msg.From, codec.Subject(subject), codec.Encode(ev)); err != nil {
		log.Error("sending clarification", logging.Err(err))
	}
}

// decline politely turns down a sender without opening a session.
func (a *Agent) decline(ctx context.Context, msg Message, reason string, log *slog.Logger) {
	ev := &negotiation.Event{
		ID:       uuid.New().String(),
		Kind:     negotiation.KindRejection,
		ThreadID: msg.ThreadID,
		Reason:   reason,
	}
	if err := a.mail.Reply(ctx, msg.ThreadID, msg.From, msg.Subject, codec.Encode(ev)); err != nil {
		log.Error("sending decline", logging.Err(err))
	}
}

func (a *Agent) markRead(ctx context.Context, msg Message, log *slog.Logger) {
	if err := a.mail.MarkRead(ctx, msg.ID); err != nil {
		log.Warn("marking message read", logging.Err(err))
	}
}

// Sessions reports how many negotiations are currently tracked.
func (a *Agent) Sessions() int {
	return a.store.Len()
}

// Session returns a snapshot of the negotiation tracked on the given
// thread, if any.
func (a *Agent) Session(threadID string) (negotiation.Session, bool) {
	return a.store.Get(threadID)
}
