package negotiation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/meetbroker/internal/logging"
)

// DefaultSessionTimeout is how long an inactive negotiation survives
// before it expires.
const DefaultSessionTimeout = 48 * time.Hour

// Store tracks negotiation sessions by thread ID for the lifetime of
// the process. All access to a session goes through With, which holds
// a per-session lock so that concurrent pollers serialize their
// transitions; a version check rejects writes that lost the race.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storeEntry

	timeout       time.Duration
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	logger        *slog.Logger
	now           func() time.Time
}

type storeEntry struct {
	mu   sync.Mutex
	sess *Session
}

// NewStore creates a session store with the default inactivity timeout.
func NewStore(logger *slog.Logger) *Store {
	return NewStoreWithTimeout(DefaultSessionTimeout, logger)
}

// NewStoreWithTimeout creates a session store with a custom inactivity
// timeout and starts the background expiry sweep.
func NewStoreWithTimeout(timeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessions:      make(map[string]*storeEntry),
		timeout:       timeout,
		cleanupTicker: time.NewTicker(10 * time.Minute),
		cleanupDone:   make(chan struct{}),
		logger:        logger,
		now:           time.Now,
	}
	go s.sweepExpired()
	return s
}

// With runs fn against the session for threadID while holding its
// lock. When create is non-nil and no session exists, create is called
// to construct one; otherwise a missing session yields ErrNoSession.
// A write that leaves the session with a lower version than it started
// with is rejected with ErrStaleSession.
func (s *Store) With(threadID string, create func() *Session, fn func(*Session) error) error {
	s.mu.Lock()
	entry, ok := s.sessions[threadID]
	if !ok {
		if create == nil {
			s.mu.Unlock()
			return ErrNoSession
		}
		entry = &storeEntry{sess: create()}
		s.sessions[threadID] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	before := entry.sess.Version
	if err := fn(entry.sess); err != nil {
		return err
	}
	if entry.sess.Version < before {
		return ErrStaleSession
	}
	return nil
}

// Get returns a snapshot copy of the session for threadID.
func (s *Store) Get(threadID string) (Session, bool) {
	s.mu.RLock()
	entry, ok := s.sessions[threadID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return *entry.sess, true
}

// Evict removes a session from the store. Called once a terminal
// session has been fully handled (committed, or its terminal reply
// sent).
func (s *Store) Evict(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, threadID)
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle transitions sessions idle longer than the timeout to the
// expired state and evicts them, returning how many were expired.
// Terminal sessions left behind by a crashed cycle are evicted too.
func (s *Store) ExpireIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for threadID, entry := range s.sessions {
		entry.mu.Lock()
		if entry.sess.Status.Terminal() {
			delete(s.sessions, threadID)
		} else if now.Sub(entry.sess.LastActivity) > s.timeout {
			entry.sess.Status = StatusExpired
			entry.sess.touch(now)
			delete(s.sessions, threadID)
			expired++
			s.logger.Info("negotiation expired after inactivity",
				logging.Thread(threadID),
			)
		}
		entry.mu.Unlock()
	}
	return expired
}

// sweepExpired periodically expires idle sessions until Stop is called.
func (s *Store) sweepExpired() {
	for {
		select {
		case <-s.cleanupTicker.C:
			if n := s.ExpireIdle(); n > 0 {
				s.logger.Info("expired idle sessions", slog.Int("count", n))
			}
		case <-s.cleanupDone:
			return
		}
	}
}

// Stop halts the background expiry sweep.
func (s *Store) Stop() {
	s.cleanupTicker.Stop()
	close(s.cleanupDone)
}
