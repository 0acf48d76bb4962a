package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/schedule"
)

// testRef is a Tuesday morning; all agent tests are anchored here.
var testRef = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

// network delivers mail between in-memory mailboxes.
type network struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
	seq   int
}

func newNetwork() *network {
	return &network{boxes: make(map[string]*mailbox)}
}

func (n *network) mailboxFor(owner string) *mailbox {
	n.mu.Lock()
	defer n.mu.Unlock()
	if mb, ok := n.boxes[owner]; ok {
		return mb
	}
	mb := &mailbox{net: n, owner: owner}
	n.boxes[owner] = mb
	return mb
}

func (n *network) deliver(from, to, threadID, subject, body string) string {
	n.mu.Lock()
	n.seq++
	id := fmt.Sprintf("msg-%d", n.seq)
	if threadID == "" {
		threadID = fmt.Sprintf("thread-%d", n.seq)
	}
	mb, ok := n.boxes[to]
	n.mu.Unlock()
	if ok {
		mb.mu.Lock()
		mb.inbox = append(mb.inbox, &storedMessage{
			Message: Message{ID: id, ThreadID: threadID, From: from, Subject: subject, Body: body},
		})
		mb.mu.Unlock()
	}
	return threadID
}

type storedMessage struct {
	Message
	read bool
}

type mailbox struct {
	net      *network
	owner    string
	mu       sync.Mutex
	inbox    []*storedMessage
	archived []string
	sendErr  error
}

func (m *mailbox) ListUnread(context.Context) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, sm := range m.inbox {
		if !sm.read {
			out = append(out, sm.Message)
		}
	}
	return out, nil
}

func (m *mailbox) Send(_ context.Context, to, subject, body string) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	return m.net.deliver(m.owner, to, "", subject, body), nil
}

func (m *mailbox) Reply(_ context.Context, threadID, to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.net.deliver(m.owner, to, threadID, subject, body)
	return nil
}

func (m *mailbox) MarkRead(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sm := range m.inbox {
		if sm.ID == messageID {
			sm.read = true
			return nil
		}
	}
	return fmt.Errorf("message %s not found", messageID)
}

func (m *mailbox) ArchiveThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived = append(m.archived, threadID)
	return nil
}

func (m *mailbox) unreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sm := range m.inbox {
		if !sm.read {
			n++
		}
	}
	return n
}

func (m *mailbox) lastBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inbox) == 0 {
		return ""
	}
	return m.inbox[len(m.inbox)-1].Body
}

type bookedEvent struct {
	id     string
	window schedule.Window
	title  string
}

type fakeBackend struct {
	mu        sync.Mutex
	busy      []schedule.Window
	events    []bookedEvent
	nextID    int
	createErr error
}

func (f *fakeBackend) ListBusy(_ context.Context, window schedule.Window) ([]schedule.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schedule.Window
	for _, b := range f.busy {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	for _, e := range f.events {
		if e.window.Overlaps(window) {
			out = append(out, e.window)
		}
	}
	return out, nil
}

func (f *fakeBackend) FindEvent(_ context.Context, window schedule.Window, title string) (negotiation.EventRef, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.title == title && e.window.Overlaps(window) {
			return negotiation.EventRef{ID: e.id}, true, nil
		}
	}
	return negotiation.EventRef{}, false, nil
}

func (f *fakeBackend) CreateEvent(_ context.Context, window schedule.Window, title string, _ []string) (negotiation.EventRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return negotiation.EventRef{}, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("evt-%d", f.nextID)
	f.events = append(f.events, bookedEvent{id: id, window: window, title: title})
	return negotiation.EventRef{ID: id, Link: "https://calendar.example/" + title}, nil
}

func (f *fakeBackend) DeleteEvent(_ context.Context, ref negotiation.EventRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e.id == ref.ID {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("event %s not found", ref.ID)
}

type allowList map[string]bool

func (a allowList) Allows(email string) bool { return a[email] }

type testParty struct {
	agent *Agent
	mail  *mailbox
	cal   *fakeBackend
}

func newParty(t *testing.T, net *network, email string, prefs schedule.Preferences, cal *fakeBackend) *testParty {
	t.Helper()
	mb := net.mailboxFor(email)
	a, err := New(Config{
		Self:     negotiation.Participant{Email: email},
		Mail:     mb,
		Calendar: cal,
		Prefs:    prefs,
		Now:      func() time.Time { return testRef },
	})
	require.NoError(t, err)
	return &testParty{agent: a, mail: mb, cal: cal}
}

// pump alternates poll cycles until every mailbox is drained.
func pump(t *testing.T, parties ...*testParty) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		pending := 0
		for _, p := range parties {
			require.NoError(t, p.agent.RunCycle(ctx))
			pending += p.mail.unreadCount()
		}
		if pending == 0 {
			return
		}
	}
	t.Fatal("mail kept flowing after 20 cycles")
}

func TestNewValidatesConfig(t *testing.T) {
	net := newNetwork()
	mb := net.mailboxFor("a@example.com")
	cal := &fakeBackend{}

	_, err := New(Config{Mail: mb, Calendar: cal})
	assert.ErrorContains(t, err, "participant email")

	_, err = New(Config{Self: negotiation.Participant{Email: "a@example.com"}, Calendar: cal})
	assert.ErrorContains(t, err, "mail channel")

	_, err = New(Config{Self: negotiation.Participant{Email: "a@example.com"}, Mail: mb})
	assert.ErrorContains(t, err, "calendar backend")
}

func TestNegotiationEndsConfirmedOnBothCalendars(t *testing.T) {
	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{
		// Alice's first two morning slots are taken.
		busy: []schedule.Window{mustWindow(t, "2026-09-01T09:00:00Z", "2026-09-01T10:00:00Z")},
	})
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{})

	threadID, err := alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 30*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, threadID)

	pump(t, alice, bob)

	require.Len(t, alice.cal.events, 1)
	require.Len(t, bob.cal.events, 1)
	assert.True(t, alice.cal.events[0].window.Equal(bob.cal.events[0].window),
		"both sides must book the same slot")
	assert.Equal(t, "Planning", alice.cal.events[0].title)

	// The agreed slot avoids Alice's busy block.
	assert.False(t, alice.cal.events[0].window.Overlaps(mustWindow(t, "2026-09-01T09:00:00Z", "2026-09-01T10:00:00Z")))
}

func TestDisjointPreferencesEndRejectedWithoutBooking(t *testing.T) {
	prefsA := schedule.Preferences{EarliestStart: schedule.ClockTime{Hour: 9}, LatestEnd: schedule.ClockTime{Hour: 10}, SkipWeekends: true}
	prefsB := schedule.Preferences{EarliestStart: schedule.ClockTime{Hour: 15}, LatestEnd: schedule.ClockTime{Hour: 16}, SkipWeekends: true}

	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", prefsA, &fakeBackend{})
	bob := newParty(t, net, "bob@example.com", prefsB, &fakeBackend{})

	_, err := alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 30*time.Minute)
	require.NoError(t, err)

	pump(t, alice, bob)

	assert.Empty(t, alice.cal.events)
	assert.Empty(t, bob.cal.events)
	assert.Equal(t, 0, alice.agent.Sessions(), "rejected sessions are evicted")
	assert.Equal(t, 0, bob.agent.Sessions())
}

func TestCommitFailurePropagatesFailureNotice(t *testing.T) {
	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{})
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{
		createErr: errors.New("calendar quota exceeded"),
	})

	// Bob initiates, Alice proposes, and Bob is the accepting side: his
	// booking fails right away and the reply must be a failure notice.
	_, err := bob.agent.Initiate(context.Background(), "alice@example.com", "Alice", "Planning", 30*time.Minute)
	require.NoError(t, err)

	pump(t, alice, bob)

	assert.Empty(t, bob.cal.events, "failed commit must not leave an event")
	assert.Equal(t, 0, bob.agent.Sessions(), "failed sessions are evicted")
	assert.Equal(t, 0, alice.agent.Sessions(), "the failure notice fails the counterpart session too")
}

func TestCounterpartFailureRollsBackBookedEvent(t *testing.T) {
	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{})
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{
		createErr: errors.New("calendar quota exceeded"),
	})

	// Alice initiates, Bob proposes, and Alice is the accepting side:
	// she books the slot and sends the confirmation. Bob's commit then
	// fails, so his failure notice must undo Alice's booking.
	_, err := alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 30*time.Minute)
	require.NoError(t, err)

	pump(t, alice, bob)

	assert.Empty(t, alice.cal.events, "the failure notice must remove the already-booked event")
	assert.Empty(t, bob.cal.events)
	assert.Equal(t, 0, alice.agent.Sessions(), "failed sessions are evicted")
	assert.Equal(t, 0, bob.agent.Sessions())
}

func TestUnknownContactIsDeclinedWithoutSession(t *testing.T) {
	net := newNetwork()
	prefs := schedule.DefaultPreferences()
	prefs.RequireKnownContacts = true

	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{})

	bobMail := net.mailboxFor("bob@example.com")
	bobAgent, err := New(Config{
		Self:     negotiation.Participant{Email: "bob@example.com"},
		Mail:     bobMail,
		Calendar: &fakeBackend{},
		Prefs:    prefs,
		Contacts: allowList{"carol@example.com": true},
		Now:      func() time.Time { return testRef },
	})
	require.NoError(t, err)
	bob := &testParty{agent: bobAgent, mail: bobMail, cal: &fakeBackend{}}

	_, err = alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 30*time.Minute)
	require.NoError(t, err)

	require.NoError(t, bob.agent.RunCycle(context.Background()))
	assert.Equal(t, 0, bob.agent.Sessions(), "strangers never open a session")
	assert.Contains(t, alice.mail.lastBody(), "known contacts")
}

func TestUndecodableMessageGetsClarification(t *testing.T) {
	net := newNetwork()
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{})
	aliceMail := net.mailboxFor("alice@example.com")

	net.deliver("alice@example.com", "bob@example.com", "", "[MEETBROKER] Planning",
		"Thanks for your email. Best regards.")

	require.NoError(t, bob.agent.RunCycle(context.Background()))

	assert.Equal(t, 0, bob.agent.Sessions())
	assert.Equal(t, 0, bob.mail.unreadCount(), "the message is acknowledged")
	body := aliceMail.lastBody()
	assert.Contains(t, strings.ToLower(body), "could not process")
}

func TestNonCoordinationMailIsLeftAlone(t *testing.T) {
	net := newNetwork()
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{})
	aliceMail := net.mailboxFor("alice@example.com")

	net.deliver("alice@example.com", "bob@example.com", "", "Lunch?", "How about lunch tomorrow?")

	require.NoError(t, bob.agent.RunCycle(context.Background()))

	assert.Equal(t, 0, bob.agent.Sessions())
	assert.Empty(t, aliceMail.inbox, "no reply is sent to ordinary mail")
}

func TestRedeliveredConfirmationDoesNotDoubleBook(t *testing.T) {
	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{})
	bob := newParty(t, net, "bob@example.com", schedule.DefaultPreferences(), &fakeBackend{})

	_, err := alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 30*time.Minute)
	require.NoError(t, err)

	pump(t, alice, bob)
	require.Len(t, bob.cal.events, 1)

	// Redeliver the confirmation Bob already processed.
	bob.mail.mu.Lock()
	var confirmation *storedMessage
	for _, sm := range bob.mail.inbox {
		if strings.Contains(sm.Body, "Confirmed:") {
			confirmation = sm
		}
	}
	require.NotNil(t, confirmation)
	confirmation.read = false
	bob.mail.mu.Unlock()

	require.NoError(t, bob.agent.RunCycle(context.Background()))
	assert.Len(t, bob.cal.events, 1, "replayed confirmation must not book again")
}

func TestInitiateValidatesInput(t *testing.T) {
	net := newNetwork()
	alice := newParty(t, net, "alice@example.com", schedule.DefaultPreferences(), &fakeBackend{})

	_, err := alice.agent.Initiate(context.Background(), "bob@example.com", "Bob", "Planning", 0)
	assert.ErrorContains(t, err, "duration")

	_, err = alice.agent.Initiate(context.Background(), "alice@example.com", "Me", "Planning", 30*time.Minute)
	assert.ErrorContains(t, err, "own mailbox")
}

func mustWindow(t *testing.T, start, end string) schedule.Window {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	require.NoError(t, err)
	w, err := schedule.NewWindow(s, e)
	require.NoError(t, err)
	return w
}
