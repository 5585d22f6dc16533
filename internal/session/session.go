package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mathasilv/AgroSat-IoT-sub000/internal/radio"
)

// Session tracks one mission: start/stop bookkeeping plus end-of-session
// link statistics. Duration is always derived from the monotonic start time,
// never stored, so it cannot drift.
type Session struct {
	mu       sync.Mutex
	active   bool
	id       string
	start    time.Time // monotonic
	startUTC time.Time // from the external clock collaborator
}

// Summary is the end-of-session report handed to external logging.
type Summary struct {
	ID       string
	StartUTC time.Time
	Duration time.Duration
	Link     radio.Stats
}

// Start opens a session. now is the monotonic clock, wall the externally
// synchronized UTC time. Returns the session id; starting an active session
// is a no-op returning the existing id.
func (s *Session) Start(now, wall time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return s.id
	}
	s.active = true
	s.id = uuid.NewString()
	s.start = now
	s.startUTC = wall
	return s.id
}

// Stop closes the session and returns its summary. ok is false when no
// session was active.
func (s *Session) Stop(now time.Time, link radio.Stats) (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return Summary{}, false
	}
	sum := Summary{
		ID:       s.id,
		StartUTC: s.startUTC,
		Duration: now.Sub(s.start),
		Link:     link,
	}
	s.active = false
	s.id = ""
	s.start = time.Time{}
	s.startUTC = time.Time{}
	return sum, true
}

// Active reports whether a session is open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ID returns the current session id, empty when inactive.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Duration reports how long the session has been running.
func (s *Session) Duration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0
	}
	return now.Sub(s.start)
}
