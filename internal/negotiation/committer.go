package negotiation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/schedule"
)

// EventRef identifies a created calendar event.
type EventRef struct {
	ID   string
	Link string
}

// CalendarWriter is the narrow calendar capability the committer
// consumes. Implementations write only to the owning participant's
// calendar; the counterpart commits its own side.
type CalendarWriter interface {
	// FindEvent looks for an existing event with the given title
	// overlapping the window, so that redelivered confirmations do not
	// double-book.
	FindEvent(ctx context.Context, window schedule.Window, title string) (EventRef, bool, error)

	// CreateEvent writes the event with both participants as attendees.
	CreateEvent(ctx context.Context, window schedule.Window, title string, attendees []string) (EventRef, error)

	// DeleteEvent removes a previously created event.
	DeleteEvent(ctx context.Context, ref EventRef) error
}

// ThreadArchiver archives the email thread once the meeting is booked.
type ThreadArchiver interface {
	ArchiveThread(ctx context.Context, threadID string) error
}

// CommitResult reports what the committer managed to persist.
type CommitResult struct {
	Event          EventRef
	LocalCreated   bool
	ThreadArchived bool
}

// Committer turns a confirmed session into a calendar event on the
// local participant's calendar.
type Committer struct {
	calendar CalendarWriter
	archiver ThreadArchiver
	logger   *slog.Logger
}

// NewCommitter creates a committer. archiver may be nil when the mail
// channel does not support archiving.
func NewCommitter(calendar CalendarWriter, archiver ThreadArchiver, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{calendar: calendar, archiver: archiver, logger: logger}
}

// Commit persists the confirmed slot. An already-existing event for
// the same title and window counts as committed, which makes commit
// idempotent under redelivered confirmations. A calendar write failure
// returns a *CommitError; the caller moves the session to StatusFailed
// and sends the failure notice instead of a confirmation.
func (c *Committer) Commit(ctx context.Context, sess *Session) (CommitResult, error) {
	if sess.Status != StatusConfirmed {
		return CommitResult{}, fmt.Errorf("cannot commit session in status %q", sess.Status)
	}
	if sess.ConfirmedSlot.IsZero() {
		return CommitResult{}, fmt.Errorf("confirmed session has no slot")
	}

	log := c.logger.With(logging.Thread(sess.ThreadID))

	var result CommitResult
	if ref, exists, err := c.calendar.FindEvent(ctx, sess.ConfirmedSlot, sess.Subject); err != nil {
		log.Warn("could not check for existing event", logging.Err(err))
	} else if exists {
		log.Info("event already on calendar, skipping create",
			slog.String("event_id", ref.ID))
		result.Event = ref
		result.LocalCreated = true
	}

	if !result.LocalCreated {
		ref, err := c.calendar.CreateEvent(ctx, sess.ConfirmedSlot, sess.Subject, sess.Attendees())
		if err != nil {
			return CommitResult{}, &CommitError{ThreadID: sess.ThreadID, Err: err}
		}
		result.Event = ref
		result.LocalCreated = true
		log.Info("calendar event created",
			slog.String("event_id", ref.ID),
			slog.String("slot", sess.ConfirmedSlot.String()),
		)
	}

	// Archiving is a best-effort terminal side effect; the meeting is
	// booked either way.
	if c.archiver != nil {
		if err := c.archiver.ArchiveThread(ctx, sess.ThreadID); err != nil {
			log.Warn("failed to archive thread", logging.Err(err))
		} else {
			result.ThreadArchived = true
		}
	}

	return result, nil
}

// Rollback removes the event booked for sess. It is the compensation
// for a counterpart that reports it could not commit its side after
// the local calendar was already written. The event is located the
// same way Commit's duplicate check finds it; an absent event is a
// no-op, which keeps rollback idempotent under redelivered failure
// notices.
func (c *Committer) Rollback(ctx context.Context, sess *Session) error {
	if sess.ConfirmedSlot.IsZero() {
		return nil
	}

	log := c.logger.With(logging.Thread(sess.ThreadID))

	ref, exists, err := c.calendar.FindEvent(ctx, sess.ConfirmedSlot, sess.Subject)
	if err != nil {
		return fmt.Errorf("locating event to roll back: %w", err)
	}
	if !exists {
		log.Info("no booked event to roll back")
		return nil
	}

	if err := c.calendar.DeleteEvent(ctx, ref); err != nil {
		return fmt.Errorf("deleting event %s: %w", ref.ID, err)
	}
	log.Info("calendar event rolled back",
		slog.String("event_id", ref.ID),
		slog.String("slot", sess.ConfirmedSlot.String()),
	)
	return nil
}
