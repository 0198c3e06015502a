package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// Session is an issued bearer token bound to a user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Wallet    string    `json:"wallet_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore issues, resolves and revokes session tokens.
type SessionStore interface {
	Issue(ctx context.Context, userID, wallet string) (Session, error)
	Lookup(ctx context.Context, token string) (Session, error)
	Revoke(ctx context.Context, token string) error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

// NewMemorySessionStore constructs an empty store whose tokens live for ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, sessions: make(map[string]Session)}
}

// WithClock replaces the store's time source.
func (s *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	s.now = now
	return s
}

// Issue creates and stores a new 256-bit token.
func (s *MemorySessionStore) Issue(_ context.Context, userID, wallet string) (Session, error) {
	token, err := randomHex(32)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := Session{Token: token, UserID: userID, Wallet: wallet, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Lookup returns the live session for token.
func (s *MemorySessionStore) Lookup(_ context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Revoke deletes token. Unknown tokens are ignored.
func (s *MemorySessionStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, strings.TrimSpace(token))
	s.mu.Unlock()
	return nil
}
