package codec

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// renderHuman produces the recipient-facing part of the email body.
func renderHuman(ev *negotiation.Event) string {
	var b strings.Builder

	switch ev.Kind {
	case negotiation.KindRequest:
		fmt.Fprintf(&b, "Hello,\n\nI'd like to schedule %q (%d minutes). ",
			ev.Subject, int(ev.Duration.Minutes()))
		b.WriteString("Could you send me a few times that work for you?")

	case negotiation.KindProposal, negotiation.KindCounterProposal:
		if ev.Kind == negotiation.KindCounterProposal {
			fmt.Fprintf(&b, "None of the suggested times work on my side. Here are alternatives for %q:\n\n", ev.Subject)
		} else {
			fmt.Fprintf(&b, "Here are times that work for me for %q:\n\n", ev.Subject)
		}
		for i, w := range ev.Windows {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, w)
		}
		b.WriteString("\nPlease reply with the option that works for you.")

	case negotiation.KindConfirmation:
		fmt.Fprintf(&b, "Confirmed: %q on %s.", ev.Subject, ev.Chosen)
		if ev.EventLink != "" {
			fmt.Fprintf(&b, "\n\nCalendar event: %s", ev.EventLink)
		}

	case negotiation.KindRejection:
		fmt.Fprintf(&b, "Unfortunately we could not find a time for %q.", ev.Subject)
		if ev.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s", ev.Reason)
		}

	case negotiation.KindClarification:
		fmt.Fprintf(&b, "I could not process the last message about %q.", ev.Subject)
		if ev.Reason != "" {
			fmt.Fprintf(&b, "\n%s", ev.Reason)
		}
		b.WriteString("\nCould you resend it?")

	case negotiation.KindFailureNotice:
		fmt.Fprintf(&b, "The meeting %q was agreed but could not be booked.", ev.Subject)
		if ev.Reason != "" {
			fmt.Fprintf(&b, "\n%s", ev.Reason)
		}

	default:
		fmt.Fprintf(&b, "Scheduling update for %q.", ev.Subject)
	}

	return b.String()
}

// windowLine matches the human rendering produced by
// schedule.Window.String, e.g. "1. Tue, Sep 1 2026 14:00 – 14:30 UTC",
// with the list number, weekday and zone being optional.
var windowLine = regexp.MustCompile(
	`(?m)^\s*(?:\d+[.)]\s*)?(?:\w{3}, )?(\w{3} \d{1,2} \d{4}) (\d{1,2}:\d{2})\s*[–-]\s*(\d{1,2}:\d{2})`)

var durationPattern = regexp.MustCompile(`(?i)\((\d+)\s*(?:minutes|mins?)\)`)

// decodePlainText is the tolerant fallback for bodies without a
// machine section: enough to survive a counterpart that mangled the
// structured block, but it refuses to guess on ambiguity.
func decodePlainText(body string, tc ThreadContext) (negotiation.Event, error) {
	windows, err := parseWindowLines(body)
	if err != nil {
		return negotiation.Event{}, err
	}

	lower := strings.ToLower(body)
	confirming := strings.Contains(lower, "confirmed") || strings.Contains(lower, "works for me")
	rejecting := strings.Contains(lower, "unfortunately") || strings.Contains(lower, "cannot make") ||
		strings.Contains(lower, "can't make") || strings.Contains(lower, "reject")
	requesting := strings.Contains(lower, "like to schedule") || strings.Contains(lower, "set up a meeting")

	switch {
	case confirming && rejecting:
		return negotiation.Event{}, &DecodeFailure{Reason: "message both confirms and rejects"}

	case confirming:
		if len(windows) != 1 {
			return negotiation.Event{}, &DecodeFailure{
				Reason: fmt.Sprintf("confirmation must name exactly one time, found %d", len(windows))}
		}
		return negotiation.Event{
			Kind:     negotiation.KindConfirmation,
			ThreadID: tc.ThreadID,
			From:     tc.From,
			Round:    tc.CurrentRound,
			Chosen:   windows[0],
		}, nil

	case rejecting:
		return negotiation.Event{
			Kind:     negotiation.KindRejection,
			ThreadID: tc.ThreadID,
			From:     tc.From,
			Round:    tc.CurrentRound,
			Reason:   "declined in plain text",
		}, nil

	case requesting:
		m := durationPattern.FindStringSubmatch(body)
		if m == nil {
			return negotiation.Event{}, &DecodeFailure{Reason: "request does not state a duration"}
		}
		var minutes int
		fmt.Sscanf(m[1], "%d", &minutes)
		if minutes <= 0 {
			return negotiation.Event{}, &DecodeFailure{Reason: "request states a zero duration"}
		}
		return negotiation.Event{
			Kind:     negotiation.KindRequest,
			ThreadID: tc.ThreadID,
			From:     tc.From,
			Duration: time.Duration(minutes) * time.Minute,
		}, nil

	case len(windows) > 0:
		// A bare list of times reads as a proposal for the next round.
		schedule.SortWindows(windows)
		return negotiation.Event{
			Kind:     negotiation.KindProposal,
			ThreadID: tc.ThreadID,
			From:     tc.From,
			Round:    tc.CurrentRound + 1,
			Windows:  windows,
		}, nil
	}

	return negotiation.Event{}, &DecodeFailure{Reason: "no recognizable scheduling content"}
}

func parseWindowLines(body string) ([]schedule.Window, error) {
	var windows []schedule.Window
	for _, m := range windowLine.FindAllStringSubmatch(body, -1) {
		day, err := time.Parse("Jan 2 2006", m[1])
		if err != nil {
			return nil, &DecodeFailure{Reason: fmt.Sprintf("unparseable date %q", m[1])}
		}
		start, err := withClock(day, m[2])
		if err != nil {
			return nil, err
		}
		end, err := withClock(day, m[3])
		if err != nil {
			return nil, err
		}
		w, err := schedule.NewWindow(start, end)
		if err != nil {
			return nil, &DecodeFailure{Reason: err.Error()}
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func withClock(day time.Time, clock string) (time.Time, error) {
	c, err := schedule.ParseClockTime(clock)
	if err != nil {
		return time.Time{}, &DecodeFailure{Reason: err.Error()}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, time.UTC), nil
}
