package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/meetbroker/internal/codec"
	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/negotiation"
)

// Initiate opens a new negotiation: it emails a schedule request to the
// counterpart and tracks the session under the new thread. The reply
// with the counterpart's first proposal is picked up by the poll loop.
func (a *Agent) Initiate(ctx context.Context, to, toName, subject string, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("meeting duration must be positive")
	}
	if to == a.self.Email {
		return "", fmt.Errorf("cannot negotiate with own mailbox %s", to)
	}

	ev := &negotiation.Event{
		ID:       uuid.New().String(),
		Kind:     negotiation.KindRequest,
		Subject:  subject,
		Duration: duration,
	}

	threadID, err := a.mail.Send(ctx, to, codec.Subject(subject), codec.Encode(ev))
	if err != nil {
		return "", fmt.Errorf("sending schedule request: %w", err)
	}

	counterpart := negotiation.Participant{Email: to, Name: toName}
	err = a.store.With(threadID, func() *negotiation.Session {
		return negotiation.NewSession(threadID, a.self, counterpart, subject, duration, a.nowFn())
	}, func(*negotiation.Session) error { return nil })
	if err != nil {
		return "", fmt.Errorf("tracking session: %w", err)
	}

	if a.metrics != nil {
		a.metrics.IncrementActiveSessions(ctx)
	}
	a.logger.Info("schedule request sent",
		logging.Thread(threadID),
		logging.Participant(to),
		slog.Duration("duration", duration),
	)
	return threadID, nil
}
