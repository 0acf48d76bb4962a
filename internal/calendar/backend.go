package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/meetbroker/internal/instrumentation"
	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// primaryCalendar is the calendar the agent reads and writes. Only the
// mailbox owner's own calendar is ever touched.
const primaryCalendar = "primary"

// Backend adapts the Calendar client to the agent's calendar interface.
type Backend struct {
	client  *Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	// addMeetLink controls whether created events get a Google Meet
	// conference attached.
	addMeetLink bool
}

// NewBackend wraps a Calendar client for the agent. metrics may be nil.
func NewBackend(client *Client, addMeetLink bool, logger *slog.Logger, metrics *instrumentation.Metrics) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.Account(client.Account()))
	return &Backend{client: client, addMeetLink: addMeetLink, logger: logger, metrics: metrics}
}

func (b *Backend) record(ctx context.Context, operation string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
}

// ListBusy returns the busy windows on the primary calendar inside the
// given range, via the FreeBusy API.
func (b *Backend) ListBusy(ctx context.Context, window schedule.Window) ([]schedule.Window, error) {
	start := time.Now()
	infos, err := b.client.QueryFreeBusy(window.Start, window.End, []string{primaryCalendar})
	b.record(ctx, instrumentation.OperationFreeBusy, start, err)
	if err != nil {
		return nil, err
	}

	var busy []schedule.Window
	for _, info := range infos {
		for _, reason := range info.Errors {
			b.logger.Warn("freebusy lookup reported a problem",
				slog.String("calendar", info.Calendar),
				slog.String("reason", reason),
			)
		}
		for _, r := range info.Busy {
			w, err := schedule.NewWindow(r.Start, r.End)
			if err != nil {
				continue
			}
			busy = append(busy, w)
		}
	}

	schedule.SortWindows(busy)
	return busy, nil
}

// FindEvent looks for an existing event with the given title
// overlapping the window, so redelivered confirmations do not create a
// second event.
func (b *Backend) FindEvent(ctx context.Context, window schedule.Window, title string) (negotiation.EventRef, bool, error) {
	start := time.Now()
	events, err := b.client.ListEvents(primaryCalendar, window.Start.Add(-time.Minute), window.End.Add(time.Minute), title)
	b.record(ctx, instrumentation.OperationList, start, err)
	if err != nil {
		return negotiation.EventRef{}, false, err
	}

	for _, ev := range events {
		if ev.Status == "cancelled" || ev.Summary != title {
			continue
		}
		existing, err := schedule.NewWindow(ev.Start, ev.End)
		if err != nil {
			continue
		}
		if existing.Overlaps(window) {
			return negotiation.EventRef{ID: ev.ID, Link: ev.HTMLLink}, true, nil
		}
	}
	return negotiation.EventRef{}, false, nil
}

// CreateEvent books the agreed slot on the primary calendar with both
// participants as attendees.
func (b *Backend) CreateEvent(ctx context.Context, window schedule.Window, title string, attendees []string) (negotiation.EventRef, error) {
	start := time.Now()
	created, err := b.client.CreateEvent(primaryCalendar, EventInput{
		Summary:                  title,
		Description:              "Scheduled automatically by meetbroker.",
		Start:                    window.Start,
		End:                      window.End,
		Attendees:                attendees,
		UseDefaultConferenceData: b.addMeetLink,
	})
	b.record(ctx, instrumentation.OperationCreate, start, err)
	if err != nil {
		return negotiation.EventRef{}, fmt.Errorf("creating calendar event: %w", err)
	}

	link := created.HTMLLink
	if created.MeetLink != "" {
		link = created.MeetLink
	}
	b.logger.Info("calendar event booked",
		slog.String("event_id", created.ID),
		logging.Operation("create"),
	)
	return negotiation.EventRef{ID: created.ID, Link: link}, nil
}

// DeleteEvent removes a booked event again, when the counterpart could
// not commit its side of a confirmed meeting.
func (b *Backend) DeleteEvent(ctx context.Context, ref negotiation.EventRef) error {
	start := time.Now()
	err := b.client.DeleteEvent(primaryCalendar, ref.ID)
	b.record(ctx, instrumentation.OperationDelete, start, err)
	if err != nil {
		return fmt.Errorf("deleting calendar event: %w", err)
	}

	b.logger.Info("calendar event removed",
		slog.String("event_id", ref.ID),
		logging.Operation("delete"),
	)
	return nil
}
