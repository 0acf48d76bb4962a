package agent

import (
	"context"

	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// Message is one inbound coordination email, reduced to what the
// dispatcher needs.
type Message struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Body     string
}

// MailChannel is the mailbox capability the agent consumes. The Gmail
// implementation lives in internal/gmail; tests use an in-memory fake.
type MailChannel interface {
	// ListUnread returns unread coordination messages, oldest first.
	ListUnread(ctx context.Context) ([]Message, error)

	// Send starts a new thread and returns its thread ID.
	Send(ctx context.Context, to, subject, body string) (threadID string, err error)

	// Reply sends a message on an existing thread.
	Reply(ctx context.Context, threadID, to, subject, body string) error

	// MarkRead acknowledges a processed message.
	MarkRead(ctx context.Context, messageID string) error

	// ArchiveThread removes a finished thread from the inbox.
	ArchiveThread(ctx context.Context, threadID string) error
}

// CalendarBackend is the calendar capability the agent consumes: the
// committer's write surface plus the busy lookup the resolver feeds on.
type CalendarBackend interface {
	negotiation.CalendarWriter

	// ListBusy returns the busy windows on the agent's own calendar
	// inside the given range.
	ListBusy(ctx context.Context, window schedule.Window) ([]schedule.Window, error)
}

// ContactPolicy decides whether the agent negotiates with a sender.
type ContactPolicy interface {
	Allows(email string) bool
}

// AllowAll is the open contact policy.
type AllowAll struct{}

func (AllowAll) Allows(string) bool { return true }
