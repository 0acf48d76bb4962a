package negotiation

import (
	"errors"
	"fmt"
)

// ErrStaleRound marks a duplicate or already-processed message. The
// dispatcher acknowledges it without replying; it is not a protocol
// error.
var ErrStaleRound = errors.New("stale negotiation round")

// ErrNoSession is returned when a non-request message arrives for a
// thread with no tracked session.
var ErrNoSession = errors.New("no session for thread")

// ErrStaleSession is returned by the store when a write carries an
// older version than the stored session, which happens when two
// pollers race on the same thread.
var ErrStaleSession = errors.New("stale session write")

// CommitError wraps a calendar write failure after a confirmation was
// reached. It is surfaced to both parties as a failure notice; the
// session moves to StatusFailed and is never left ambiguously
// confirmed.
type CommitError struct {
	ThreadID string
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed for thread %s: %v", e.ThreadID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
