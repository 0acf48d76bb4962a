package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// Email protocol constants. The subject prefix identifies coordination
// threads; the markers delimit the machine-readable section of a body.
const (
	SubjectPrefix    = "[MEETBROKER]"
	ProtocolVersion  = "meetbroker/1"
	sectionSeparator = "=== MEETBROKER ==="
	dataStartMarker  = "SCHEDULE_DATA_START"
	dataEndMarker    = "SCHEDULE_DATA_END"
)

// ThreadContext carries what the decoder knows about the conversation
// a body arrived on.
type ThreadContext struct {
	ThreadID string
	From     string
	// CurrentRound is the session's last recorded round; the
	// plain-text fallback uses it to place windows it parsed.
	CurrentRound int
}

// DecodeFailure reports an email body that could not be turned into a
// negotiation event. It is recoverable: the dispatcher answers with a
// clarification request instead of failing the session.
type DecodeFailure struct {
	Reason string
}

func (e *DecodeFailure) Error() string {
	return "decode failure: " + e.Reason
}

// wireEvent is the JSON shape embedded in the machine section.
type wireEvent struct {
	Protocol  string       `json:"protocol"`
	MessageID string       `json:"message_id"`
	Kind      string       `json:"kind"`
	Round     int          `json:"round"`
	Subject   string       `json:"subject"`
	DurationM int          `json:"duration_minutes,omitempty"`
	Windows   []wireWindow `json:"windows,omitempty"`
	Chosen    *wireWindow  `json:"chosen,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	EventLink string       `json:"event_link,omitempty"`
}

type wireWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toWireWindow(w schedule.Window) wireWindow {
	return wireWindow{
		Start: w.Start.Format(time.RFC3339),
		End:   w.End.Format(time.RFC3339),
	}
}

func fromWireWindow(w wireWindow) (schedule.Window, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("bad window start %q: %w", w.Start, err)
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("bad window end %q: %w", w.End, err)
	}
	return schedule.NewWindow(start, end)
}

// Decode parses an inbound email body into a negotiation event. The
// machine section is authoritative when present; without one the
// tolerant plain-text parser is tried. Ambiguous or unparseable text
// returns a *DecodeFailure.
func Decode(body string, tc ThreadContext) (negotiation.Event, error) {
	if strings.Contains(body, dataStartMarker) {
		return decodeMachineSection(body, tc)
	}
	return decodePlainText(body, tc)
}

func decodeMachineSection(body string, tc ThreadContext) (negotiation.Event, error) {
	start := strings.Index(body, dataStartMarker)
	end := strings.Index(body, dataEndMarker)
	if start == -1 || end == -1 || end < start {
		return negotiation.Event{}, &DecodeFailure{Reason: "machine section markers are incomplete"}
	}

	encoded := strings.TrimSpace(body[start+len(dataStartMarker) : end])
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return negotiation.Event{}, &DecodeFailure{Reason: fmt.Sprintf("machine section is not valid base64: %v", err)}
	}

	var we wireEvent
	if err := json.Unmarshal(raw, &we); err != nil {
		return negotiation.Event{}, &DecodeFailure{Reason: fmt.Sprintf("machine section is not valid JSON: %v", err)}
	}

	kind := negotiation.EventKind(we.Kind)
	switch kind {
	case negotiation.KindRequest, negotiation.KindProposal, negotiation.KindCounterProposal,
		negotiation.KindConfirmation, negotiation.KindRejection,
		negotiation.KindClarification, negotiation.KindFailureNotice:
	default:
		return negotiation.Event{}, &DecodeFailure{Reason: fmt.Sprintf("unknown event kind %q", we.Kind)}
	}

	ev := negotiation.Event{
		ID:        we.MessageID,
		Kind:      kind,
		ThreadID:  tc.ThreadID,
		From:      tc.From,
		Round:     we.Round,
		Subject:   we.Subject,
		Duration:  time.Duration(we.DurationM) * time.Minute,
		Reason:    we.Reason,
		EventLink: we.EventLink,
	}

	for _, ww := range we.Windows {
		w, err := fromWireWindow(ww)
		if err != nil {
			return negotiation.Event{}, &DecodeFailure{Reason: err.Error()}
		}
		ev.Windows = append(ev.Windows, w)
	}
	schedule.SortWindows(ev.Windows)

	if we.Chosen != nil {
		w, err := fromWireWindow(*we.Chosen)
		if err != nil {
			return negotiation.Event{}, &DecodeFailure{Reason: err.Error()}
		}
		ev.Chosen = w
	}

	switch kind {
	case negotiation.KindProposal, negotiation.KindCounterProposal:
		if len(ev.Windows) == 0 {
			return negotiation.Event{}, &DecodeFailure{Reason: "proposal carries no candidate windows"}
		}
	case negotiation.KindConfirmation:
		if ev.Chosen.IsZero() {
			return negotiation.Event{}, &DecodeFailure{Reason: "confirmation carries no chosen window"}
		}
	case negotiation.KindRequest:
		if ev.Duration <= 0 {
			return negotiation.Event{}, &DecodeFailure{Reason: "request carries no duration"}
		}
	}

	return ev, nil
}

// Encode renders an outbound event as an email body: a human-readable
// summary, then the machine section. Any marshalling problem degrades
// to the plain-text summary alone; encoding never blocks the state
// transition that produced the event.
func Encode(ev *negotiation.Event) string {
	human := renderHuman(ev)

	we := wireEvent{
		Protocol:  ProtocolVersion,
		MessageID: ev.ID,
		Kind:      string(ev.Kind),
		Round:     ev.Round,
		Subject:   ev.Subject,
		DurationM: int(ev.Duration.Minutes()),
		Reason:    ev.Reason,
		EventLink: ev.EventLink,
	}
	for _, w := range ev.Windows {
		we.Windows = append(we.Windows, toWireWindow(w))
	}
	if !ev.Chosen.IsZero() {
		chosen := toWireWindow(ev.Chosen)
		we.Chosen = &chosen
	}

	raw, err := json.Marshal(we)
	if err != nil {
		return human
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var b strings.Builder
	b.WriteString(human)
	b.WriteString("\n\n")
	b.WriteString(sectionSeparator)
	b.WriteString("\n")
	b.WriteString(dataStartMarker)
	b.WriteString("\n")
	b.WriteString(encoded)
	b.WriteString("\n")
	b.WriteString(dataEndMarker)
	b.WriteString("\n")
	b.WriteString(sectionSeparator)
	b.WriteString("\n\nThis is an automated coordination message between scheduling agents (")
	b.WriteString(ProtocolVersion)
	b.WriteString(").")
	return b.String()
}

// Subject builds the coordination thread subject for a meeting.
func Subject(meetingSubject string) string {
	return SubjectPrefix + " " + meetingSubject
}

// IsCoordinationSubject reports whether an email subject belongs to
// the coordination protocol, tolerating reply prefixes.
func IsCoordinationSubject(subject string) bool {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "fwd:") {
			s = strings.TrimSpace(s[strings.Index(s, ":")+1:])
			continue
		}
		break
	}
	return strings.HasPrefix(s, SubjectPrefix)
}
