package client

import "sync"

// Session is the authenticated identity the chat core operates as.
type Session struct {
	Token  string
	UserID string
}

// SessionManager holds the current session and fans out auth state changes.
// It is the in-process face of the identity collaborator.
type SessionManager struct {
	mu        sync.Mutex
	current   *Session
	nextID    int
	listeners map[int]func(*Session)
}

// NewSessionManager starts with no session.
func NewSessionManager() *SessionManager {
	return &SessionManager{listeners: make(map[int]func(*Session))}
}

// Session returns the current session, or nil when signed out.
func (m *SessionManager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// User returns the current user id, or "" when signed out.
func (m *SessionManager) User() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.UserID
}

// SetSession replaces the session (nil signs out) and notifies listeners.
func (m *SessionManager) SetSession(s *Session) {
	m.mu.Lock()
	m.current = s
	listeners := make([]func(*Session), 0, len(m.listeners))
	for _, cb := range m.listeners {
		listeners = append(listeners, cb)
	}
	m.mu.Unlock()

	for _, cb := range listeners {
		cb(s)
	}
}

// OnAuthStateChange registers a callback for session changes and returns an
// unsubscribe func.
func (m *SessionManager) OnAuthStateChange(cb func(*Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}
