package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one browser's state plus its running stream, if any.
type Session struct {
	ID string

	mu     sync.Mutex
	state  State
	source CountSource
	cancel context.CancelFunc
	done   chan struct{}
	seen   time.Time
}

// State returns a snapshot of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streaming reports whether a poll loop is attached.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Source returns the count source of the running loop, or nil.
func (s *Session) Source() CountSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// tick applies Tick under the session lock.
func (s *Session) tick(count int, ok bool) Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	var u Update
	s.state, u = Tick(s.state, count, ok)
	return u
}

func (s *Session) touch() {
	s.mu.Lock()
	s.seen = time.Now()
	s.mu.Unlock()
}

// idleSince reports whether the session is idle, has no loop and was last
// requested before cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.CameraActive && s.cancel == nil && s.seen.Before(cutoff)
}

// detach cancels the running loop and returns its done channel.
func (s *Session) detach() <-chan struct{} {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.source = nil
	done := s.done
	s.done = nil
	return done
}

// release clears the loop fields if they still belong to the loop that
// owns done.
func (s *Session) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel = nil
	s.source = nil
	s.done = nil
}

// Manager tracks sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating one with a fresh ID when
// id is unknown or not a UUID.
func (m *Manager) GetOrCreate(id string) *Session {
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := m.Get(id); ok {
			s.touch()
			return s
		}
	} else {
		id = uuid.New().String()
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id}
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.touch()
	return s
}

// Len returns the number of known sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Active returns the sessions whose camera is on.
func (m *Manager) Active() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []*Session
	for _, s := range m.sessions {
		if s.State().CameraActive {
			active = append(active, s)
		}
	}
	return active
}

// Remove stops and forgets the session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		done := s.detach()
		s.mu.Unlock()
		if done != nil {
			<-done
		}
	}
}

// Prune removes sessions that are idle and were last requested before
// cutoff, unless keep reports otherwise. It returns the removed IDs.
func (m *Manager) Prune(cutoff time.Time, keep func(*Session) bool) []string {
	m.mu.RLock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.idleSince(cutoff) && (keep == nil || !keep(s)) {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		m.Remove(s.ID)
		ids = append(ids, s.ID)
	}
	return ids
}
