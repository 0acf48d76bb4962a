package negotiation

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetbroker/internal/schedule"
)

var (
	alice = Participant{Email: "alice@example.com", Name: "Alice"}
	bob   = Participant{Email: "bob@example.com", Name: "Bob"}
)

// testRef is a Tuesday morning; all machine tests are anchored here.
var testRef = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func testMachine(t *testing.T, self Participant, prefs schedule.Preferences) *Machine {
	t.Helper()
	m := NewMachine(self, &schedule.Resolver{Now: func() time.Time { return testRef }}, prefs, slog.Default())
	m.Now = func() time.Time { return testRef }
	m.Horizon = 5 * 24 * time.Hour
	return m
}

func window(t *testing.T, start, end string) schedule.Window {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	require.NoError(t, err)
	w, err := schedule.NewWindow(s, e)
	require.NoError(t, err)
	return w
}

func newRequestedSession(subject string, duration time.Duration) *Session {
	return NewSession("thread-1", alice, bob, subject, duration, testRef)
}

func TestRequestProducesFirstProposal(t *testing.T) {
	m := testMachine(t, bob, schedule.DefaultPreferences())
	sess := newRequestedSession("Planning", 30*time.Minute)

	out, err := m.Apply(sess, Event{Kind: KindRequest, ThreadID: sess.ThreadID, From: alice.Email}, nil)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, KindProposal, out.Kind)
	assert.Equal(t, 1, out.Round)
	assert.Equal(t, StatusProposed, sess.Status)
	assert.Equal(t, 1, sess.Round)
	require.Len(t, sess.History, 1)

	// Proposal invariants: pairwise non-overlapping, sorted, within
	// the proposer's boundaries.
	require.NotEmpty(t, out.Windows)
	assert.LessOrEqual(t, len(out.Windows), schedule.MaxCandidates)
	for i, w := range out.Windows {
		assert.GreaterOrEqual(t, w.Start.Hour(), 9)
		if i > 0 {
			assert.True(t, out.Windows[i-1].Start.Before(w.Start))
			assert.False(t, out.Windows[i-1].Overlaps(w))
		}
	}
}

func TestRequestWithoutAvailabilityRejects(t *testing.T) {
	m := testMachine(t, bob, schedule.DefaultPreferences())
	sess := newRequestedSession("Planning", 30*time.Minute)

	busy := []schedule.Window{window(t, "2026-08-31T00:00:00Z", "2026-09-30T00:00:00Z")}

	out, err := m.Apply(sess, Event{Kind: KindRequest, From: alice.Email}, busy)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, KindRejection, out.Kind)
	assert.Equal(t, StatusRejected, sess.Status)
}

// Scenario: B proposed three afternoon slots; A has a conflict in the
// first only, so A confirms the earliest mutually free one.
func TestProposalConfirmsEarliestMutuallyFreeSlot(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)

	proposal := Event{
		Kind:  KindProposal,
		From:  bob.Email,
		Round: 1,
		Windows: []schedule.Window{
			window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z"),
			window(t, "2026-09-01T14:30:00Z", "2026-09-01T15:00:00Z"),
			window(t, "2026-09-01T15:00:00Z", "2026-09-01T15:30:00Z"),
		},
	}
	busy := []schedule.Window{window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")}

	out, err := m.Apply(sess, proposal, busy)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, KindConfirmation, out.Kind)
	assert.Equal(t, "2026-09-01T14:30:00Z", out.Chosen.Start.Format(time.RFC3339))
	assert.Equal(t, StatusConfirmed, sess.Status)
	assert.True(t, sess.ConfirmedSlot.Equal(out.Chosen))
}

// Scenario: fully disjoint preference windows; the negotiation bounces
// back and forth and ends rejected at the round limit.
func TestDisjointPreferencesTerminateRejected(t *testing.T) {
	prefsA := schedule.Preferences{EarliestStart: schedule.ClockTime{Hour: 9}, LatestEnd: schedule.ClockTime{Hour: 10}, SkipWeekends: true}
	prefsB := schedule.Preferences{EarliestStart: schedule.ClockTime{Hour: 15}, LatestEnd: schedule.ClockTime{Hour: 16}, SkipWeekends: true}

	machineA := testMachine(t, alice, prefsA)
	machineB := testMachine(t, bob, prefsB)

	sessA := NewSession("thread-1", alice, bob, "Sync", 30*time.Minute, testRef)
	sessB := NewSession("thread-1", alice, bob, "Sync", 30*time.Minute, testRef)

	// B answers the request with its first proposal.
	out, err := machineB.Apply(sessB, Event{Kind: KindRequest, From: alice.Email}, nil)
	require.NoError(t, err)
	require.Equal(t, KindProposal, out.Kind)

	// Alternate sides until someone terminates.
	turns := 0
	for out != nil && (out.Kind == KindProposal || out.Kind == KindCounterProposal) {
		turns++
		require.LessOrEqual(t, turns, MaxRounds+1, "negotiation must terminate")

		receiver, receiverSess, sender := machineA, sessA, bob
		if turns%2 == 0 {
			receiver, receiverSess, sender = machineB, sessB, alice
		}
		inbound := *out
		inbound.From = sender.Email
		out, err = receiver.Apply(receiverSess, inbound, nil)
		require.NoError(t, err)
	}

	require.NotNil(t, out)
	assert.Equal(t, KindRejection, out.Kind)
	assert.Equal(t, MaxRounds, out.Round)
	terminal := sessA.Status.Terminal() || sessB.Status.Terminal()
	assert.True(t, terminal)
}

// Scenario: a duplicate proposal for an already-processed round is
// acknowledged without a second transition or outbound message.
func TestDuplicateProposalIsStale(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)

	proposal := Event{
		Kind:  KindProposal,
		From:  bob.Email,
		Round: 1,
		Windows: []schedule.Window{
			window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z"),
		},
	}

	first, err := m.Apply(sess, proposal, nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	roundAfterFirst := sess.Round
	versionAfterFirst := sess.Version

	second, err := m.Apply(sess, proposal, nil)
	assert.ErrorIs(t, err, ErrStaleRound)
	assert.Nil(t, second)
	assert.Equal(t, roundAfterFirst, sess.Round)
	assert.Equal(t, versionAfterFirst, sess.Version, "replay must not mutate the session")
}

func TestOutOfOrderProposalAsksForClarification(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)

	// Round 2 arrives while we have seen nothing past round 0.
	proposal := Event{
		Kind:  KindCounterProposal,
		From:  bob.Email,
		Round: 2,
		Windows: []schedule.Window{
			window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z"),
		},
	}

	out, err := m.Apply(sess, proposal, nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, KindClarification, out.Kind)
	assert.Equal(t, 0, sess.Round)
	assert.Equal(t, StatusRequested, sess.Status)
	assert.Empty(t, sess.History)
}

func TestCounterProposalIncrementsRound(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)

	// The only proposed slot collides with our busy time.
	proposal := Event{
		Kind:  KindProposal,
		From:  bob.Email,
		Round: 1,
		Windows: []schedule.Window{
			window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z"),
		},
	}
	busy := []schedule.Window{window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")}

	out, err := m.Apply(sess, proposal, busy)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, KindCounterProposal, out.Kind)
	assert.Equal(t, 2, out.Round)
	assert.Equal(t, 2, sess.Round)
	assert.Equal(t, StatusCounterProposed, sess.Status)
	require.Len(t, sess.History, 2)
	assert.Equal(t, bob.Email, sess.History[0].From)
	assert.Equal(t, alice.Email, sess.History[1].From)
}

func TestConfirmationRecordsSlotWithoutReply(t *testing.T) {
	m := testMachine(t, bob, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)
	sess.Status = StatusProposed
	sess.Round = 1

	chosen := window(t, "2026-09-01T14:30:00Z", "2026-09-01T15:00:00Z")
	out, err := m.Apply(sess, Event{Kind: KindConfirmation, From: alice.Email, Round: 1, Chosen: chosen}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, StatusConfirmed, sess.Status)
	assert.True(t, sess.ConfirmedSlot.Equal(chosen))
}

func TestRejectionIsTerminal(t *testing.T) {
	m := testMachine(t, bob, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)
	sess.Status = StatusProposed
	sess.Round = 1

	out, err := m.Apply(sess, Event{Kind: KindRejection, From: alice.Email, Round: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, StatusRejected, sess.Status)

	// Nothing further is processed on a terminal session.
	_, err = m.Apply(sess, Event{Kind: KindConfirmation, From: alice.Email, Round: 1, Chosen: window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")}, nil)
	assert.ErrorIs(t, err, ErrStaleRound)
}

func TestMarkFailedProducesFailureNotice(t *testing.T) {
	m := testMachine(t, bob, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)
	sess.Status = StatusConfirmed
	sess.ConfirmedSlot = window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")

	out := m.MarkFailed(sess, assert.AnError)
	require.NotNil(t, out)
	assert.Equal(t, KindFailureNotice, out.Kind)
	assert.NotEmpty(t, out.Reason)
	assert.Equal(t, StatusFailed, sess.Status)
}

func TestFailureNoticeMirrorsFailure(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)
	sess.Status = StatusConfirmed
	sess.ConfirmedSlot = window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")

	out, err := m.Apply(sess, Event{Kind: KindFailureNotice, From: bob.Email, Reason: "calendar write failed"}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, StatusFailed, sess.Status)
}

func TestRoundNeverExceedsBound(t *testing.T) {
	m := testMachine(t, alice, schedule.DefaultPreferences())
	sess := newRequestedSession("Sync", 30*time.Minute)

	busy := []schedule.Window{window(t, "2026-08-31T00:00:00Z", "2026-09-30T00:00:00Z")}

	// Feed alternating counter-proposals that never fit.
	for round := 1; round <= MaxRounds; round++ {
		ev := Event{
			Kind:    KindCounterProposal,
			From:    bob.Email,
			Round:   round,
			Windows: []schedule.Window{window(t, "2026-09-01T14:00:00Z", "2026-09-01T14:30:00Z")},
		}
		_, err := m.Apply(sess, ev, busy)
		if sess.Status.Terminal() {
			break
		}
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, sess.Round, MaxRounds+1)
	assert.True(t, sess.Status.Terminal())
}
