// Package session holds admin login sessions in memory.
package session

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session token.
const CookieName = "session_token"

// Manager issues tokens for the admin password and tracks their last use.
// Sessions slide: every successful Touch extends the lifetime.
type Manager struct {
	mu       sync.Mutex
	password string
	timeout  time.Duration
	sessions map[string]time.Time
	now      func() time.Time
}

// NewManager returns a manager checking logins against password.
func NewManager(password string, timeout time.Duration) *Manager {
	return &Manager{
		password: password,
		timeout:  timeout,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Login returns a fresh token when password matches.
func (m *Manager) Login(password string) (string, bool) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) != 1 {
		return "", false
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = m.now()
	return token, true
}

// Touch reports whether token is a live session and refreshes it.
// Expired sessions are removed.
func (m *Manager) Touch(token string) bool {
	if token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.sessions[token]
	if !ok {
		return false
	}
	now := m.now()
	if now.Sub(last) > m.timeout {
		delete(m.sessions, token)
		return false
	}
	m.sessions[token] = now
	return true
}

// Logout forgets token.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}
