package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/meetbroker/internal/agent"
	"github.com/teemow/meetbroker/internal/codec"
	"github.com/teemow/meetbroker/internal/instrumentation"
	"github.com/teemow/meetbroker/internal/logging"
)

// maxUnreadPerCycle bounds how many coordination messages one poll
// cycle pulls from the mailbox.
const maxUnreadPerCycle = 50

// coordinationQuery is the Gmail search that selects unread
// coordination messages.
func coordinationQuery() string {
	return fmt.Sprintf("in:inbox is:unread subject:%q", codec.SubjectPrefix)
}

// Channel adapts the Gmail client to the agent's mail interface.
type Channel struct {
	client  *Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewChannel wraps a Gmail client for the agent. metrics may be nil.
func NewChannel(client *Client, logger *slog.Logger, metrics *instrumentation.Metrics) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.Account(client.Account()))
	return &Channel{client: client, logger: logger, metrics: metrics}
}

func (ch *Channel) record(ctx context.Context, operation string, start time.Time, err error) {
	if ch.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	ch.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
}

// ListUnread fetches unread coordination messages, oldest first.
func (ch *Channel) ListUnread(ctx context.Context) ([]agent.Message, error) {
	start := time.Now()
	stubs, err := ch.client.ListMessages(coordinationQuery(), maxUnreadPerCycle)
	ch.record(ctx, instrumentation.OperationList, start, err)
	if err != nil {
		return nil, fmt.Errorf("listing coordination messages: %w", err)
	}

	var out []agent.Message
	for _, stub := range stubs {
		msg, err := ch.client.GetMessage(stub.Id)
		if err != nil {
			// Skip what we cannot fetch; it stays unread for the next
			// cycle.
			ch.logger.Warn("fetching message failed", slog.String("message_id", stub.Id), logging.Err(err))
			continue
		}

		body, err := MessageBody(msg)
		if err != nil {
			ch.logger.Warn("extracting message body failed", slog.String("message_id", stub.Id), logging.Err(err))
			body = ""
		}

		out = append(out, agent.Message{
			ID:       msg.Id,
			ThreadID: msg.ThreadId,
			From:     SenderAddress(msg),
			Subject:  HeaderValue(msg, "Subject"),
			Body:     body,
		})
	}

	// Gmail lists newest first; the dispatcher wants arrival order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Send starts a new coordination thread.
func (ch *Channel) Send(ctx context.Context, to, subject, body string) (string, error) {
	start := time.Now()
	_, threadID, err := ch.client.SendEmail(&EmailMessage{
		To:      []string{to},
		Subject: subject,
		Body:    body,
	})
	ch.record(ctx, instrumentation.OperationSend, start, err)
	return threadID, err
}

// Reply answers on an existing thread.
func (ch *Channel) Reply(ctx context.Context, threadID, to, subject, body string) error {
	start := time.Now()
	_, err := ch.client.ReplyToThread(threadID, to, subject, body)
	ch.record(ctx, instrumentation.OperationSend, start, err)
	return err
}

// MarkRead acknowledges a processed message.
func (ch *Channel) MarkRead(ctx context.Context, messageID string) error {
	start := time.Now()
	err := ch.client.MarkMessageRead(messageID)
	ch.record(ctx, instrumentation.OperationModify, start, err)
	return err
}

// ArchiveThread removes a finished negotiation thread from the inbox.
func (ch *Channel) ArchiveThread(ctx context.Context, threadID string) error {
	start := time.Now()
	err := ch.client.ArchiveThread(threadID)
	ch.record(ctx, instrumentation.OperationArchive, start, err)
	return err
}
