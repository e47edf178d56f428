package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
)

// generateToken returns 32 random bytes, hex encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type sessionEntry struct {
	user    models.UserID
	expires time.Time
}

// Grant is an issued bearer token.
type Grant struct {
	Token     string
	User      models.UserID
	ExpiresAt time.Time
}

// SessionStore maps opaque bearer tokens to user IDs. Sessions expire after a
// fixed TTL from creation or rotation.
//
// Only the user ID is kept: the profile (and with it the role) is re-read on
// every resolve so that role changes take effect on the next request.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]sessionEntry
}

func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		ttl:      ttl,
		now:      now,
		sessions: make(map[string]sessionEntry),
	}
}

// Create starts a session for id.
func (s *SessionStore) Create(id models.UserID) (Grant, error) {
	token, err := generateToken()
	if err != nil {
		return Grant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.now().Add(s.ttl)
	s.sessions[token] = sessionEntry{user: id, expires: expires}
	return Grant{Token: token, User: id, ExpiresAt: expires}, nil
}

// Get returns the user of token. Expired sessions are removed and reported as missing.
func (s *SessionStore) Get(token string) (models.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	if !ok {
		return models.UserID{}, false
	}
	if !s.now().Before(e.expires) {
		delete(s.sessions, token)
		return models.UserID{}, false
	}
	return e.user, true
}

// Delete ends the session and returns the user it belonged to.
func (s *SessionStore) Delete(token string) (models.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	delete(s.sessions, token)
	return e.user, ok
}

// DeleteUser ends every session of id.
func (s *SessionStore) DeleteUser(id models.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, e := range s.sessions {
		if e.user == id {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Rotate replaces old with a fresh token carrying a fresh expiry. It reports
// false when old is unknown or expired.
func (s *SessionStore) Rotate(old string) (Grant, bool, error) {
	token, err := generateToken()
	if err != nil {
		return Grant{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[old]
	delete(s.sessions, old)
	if !ok || !s.now().Before(e.expires) {
		return Grant{}, false, nil
	}
	e.expires = s.now().Add(s.ttl)
	s.sessions[token] = e
	return Grant{Token: token, User: e.user, ExpiresAt: e.expires}, true, nil
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, e := range s.sessions {
		if !now.Before(e.expires) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
