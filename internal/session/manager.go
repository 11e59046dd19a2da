package session

import (
	"sync"

	"github.com/playsketch/sketchparty/internal/errors"
)

// AttachFunc observes a freshly created session, typically to subscribe an
// external mirror to its bus before the session is handed out.
type AttachFunc func(*Session)

// Manager is the id-keyed session registry. Unlike the sessions themselves,
// the registry is safe for concurrent use.
type Manager struct {
	cfg    Config
	attach []AttachFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a registry whose sessions share the given game
// parameters. Attach hooks run once per created session.
func NewManager(cfg Config, attach ...AttachFunc) *Manager {
	return &Manager{
		cfg:      cfg,
		attach:   attach,
		sessions: make(map[string]*Session),
	}
}

// Create builds, registers and returns a new session.
func (m *Manager) Create() *Session {
	s := NewSession(m.cfg)
	for _, fn := range m.attach {
		fn(s)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	return s
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", id))
	}
	return s, nil
}

// Remove drops a session from the registry. Returns false when the id is
// unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// List snapshots the registered sessions in no particular order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Len counts the registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}
