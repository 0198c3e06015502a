package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// MessagePrefix is prepended to every nonce handed to a wallet for signing.
const MessagePrefix = "Sign this message to authenticate with CoAI: "

const defaultMaxAttempts = 5

var (
	ErrNoChallenge       = errors.New("no outstanding challenge for wallet")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrTooManyAttempts   = errors.New("too many verification attempts")
	ErrChallengeMismatch = errors.New("message does not match challenge")
)

// Challenge represents a pending wallet verification.
type Challenge struct {
	Nonce       string    `json:"nonce"`
	Message     string    `json:"message"`
	Wallet      string    `json:"wallet_address"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"-"`
	MaxAttempts int       `json:"-"`
}

// ChallengeStore keeps in-memory challenges keyed by wallet. Issuing a new
// challenge replaces the previous one.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	challenges map[string]Challenge
}

// NewChallengeStore builds a new in-memory challenge store.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		ttl:        ttl,
		now:        time.Now,
		challenges: make(map[string]Challenge),
	}
}

// WithClock replaces the store's time source.
func (s *ChallengeStore) WithClock(now func() time.Time) *ChallengeStore {
	s.now = now
	return s
}

// Issue creates or refreshes a challenge for a wallet.
func (s *ChallengeStore) Issue(wallet string) (Challenge, error) {
	if _, err := DecodeWallet(wallet); err != nil {
		return Challenge{}, err
	}
	nonce, err := randomHex(16)
	if err != nil {
		return Challenge{}, err
	}
	now := s.now()
	ch := Challenge{
		Nonce:       nonce,
		Message:     MessagePrefix + nonce,
		Wallet:      wallet,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		MaxAttempts: defaultMaxAttempts,
	}
	s.mu.Lock()
	s.challenges[wallet] = ch
	s.mu.Unlock()
	return ch, nil
}

// Verify checks a signed message against the outstanding challenge. A
// successful verification consumes the challenge.
func (s *ChallengeStore) Verify(wallet, message, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[wallet]
	if !ok {
		return ErrNoChallenge
	}
	if s.now().After(ch.ExpiresAt) {
		delete(s.challenges, wallet)
		return ErrChallengeExpired
	}
	ch.Attempts++
	if ch.Attempts > ch.MaxAttempts {
		delete(s.challenges, wallet)
		return ErrTooManyAttempts
	}
	s.challenges[wallet] = ch
	if message != ch.Message {
		return ErrChallengeMismatch
	}
	if err := VerifyWalletSignature(wallet, message, signature); err != nil {
		return err
	}
	delete(s.challenges, wallet)
	return nil
}

// Sweep drops expired challenges and returns how many were removed.
func (s *ChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for wallet, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, wallet)
			n++
		}
	}
	return n
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
