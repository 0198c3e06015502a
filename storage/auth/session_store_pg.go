package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Only the sha256 of a token is stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PGSessionStore persists sessions in Postgres.
type PGSessionStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPGSessionStore initializes the sessions table on an existing pool.
func NewPGSessionStore(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration) (*PGSessionStore, error) {
	s := &PGSessionStore{pool: pool, ttl: ttl}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGSessionStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS coai_sessions (
  token_hash TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  wallet_address TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coai_sessions_expires ON coai_sessions(expires_at);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init session schema: %w", err)
	}
	return nil
}

// Issue implements SessionStore.
func (s *PGSessionStore) Issue(ctx context.Context, userID, wallet string) (Session, error) {
	token, err := randomHex(32)
	if err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	sess := Session{Token: token, UserID: userID, Wallet: wallet, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO coai_sessions (token_hash, user_id, wallet_address, created_at, expires_at) VALUES ($1,$2,$3,$4,$5)",
		hashToken(token), sess.UserID, sess.Wallet, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Lookup implements SessionStore.
func (s *PGSessionStore) Lookup(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	sess := Session{Token: token}
	err := s.pool.QueryRow(ctx,
		"SELECT user_id, wallet_address, created_at, expires_at FROM coai_sessions WHERE token_hash=$1 AND expires_at > now()",
		hashToken(token),
	).Scan(&sess.UserID, &sess.Wallet, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return sess, nil
}

// Revoke implements SessionStore.
func (s *PGSessionStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM coai_sessions WHERE token_hash=$1", hashToken(strings.TrimSpace(token))); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Purge removes expired rows.
func (s *PGSessionStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM coai_sessions WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
