package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"
)

type keypair struct {
	wallet string
	priv   ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return keypair{wallet: EncodeWallet(pub), priv: priv}
}

func (k keypair) sign(msg string) string {
	return EncodeSignature(ed25519.Sign(k.priv, []byte(msg)))
}

func TestVerifyWalletSignature(t *testing.T) {
	k := newKeypair(t)
	if err := VerifyWalletSignature(k.wallet, "hello", k.sign("hello")); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyWalletSignature(k.wallet, "hello!", k.sign("hello")); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered message: %v", err)
	}
	if err := VerifyWalletSignature(k.wallet, "hello", "abc"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("short signature: %v", err)
	}
	other := newKeypair(t)
	if err := VerifyWalletSignature(other.wallet, "hello", k.sign("hello")); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key: %v", err)
	}
	if _, err := DecodeWallet("not-base58-0OIl"); !errors.Is(err, ErrInvalidWallet) {
		t.Errorf("bad wallet: %v", err)
	}
}

func TestChallengeStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewChallengeStore(5 * time.Minute).WithClock(func() time.Time { return now })
	k := newKeypair(t)

	ch, err := store.Issue(k.wallet)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ch.Message != MessagePrefix+ch.Nonce || len(ch.Nonce) != 32 {
		t.Fatalf("challenge = %+v", ch)
	}

	if err := store.Verify(k.wallet, "Sign this message to authenticate with CoAI: other", k.sign("x")); !errors.Is(err, ErrChallengeMismatch) {
		t.Errorf("mismatched message: %v", err)
	}
	if err := store.Verify(k.wallet, ch.Message, k.sign("not the message")); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("bad signature: %v", err)
	}
	if err := store.Verify(k.wallet, ch.Message, k.sign(ch.Message)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := store.Verify(k.wallet, ch.Message, k.sign(ch.Message)); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("replayed challenge: %v", err)
	}

	t.Run("expiry", func(t *testing.T) {
		ch, _ := store.Issue(k.wallet)
		now = now.Add(6 * time.Minute)
		if err := store.Verify(k.wallet, ch.Message, k.sign(ch.Message)); !errors.Is(err, ErrChallengeExpired) {
			t.Errorf("expired: %v", err)
		}
	})

	t.Run("attempt limit", func(t *testing.T) {
		ch, _ := store.Issue(k.wallet)
		for i := 0; i < defaultMaxAttempts; i++ {
			_ = store.Verify(k.wallet, ch.Message, "bad")
		}
		if err := store.Verify(k.wallet, ch.Message, k.sign(ch.Message)); !errors.Is(err, ErrTooManyAttempts) {
			t.Errorf("after limit: %v", err)
		}
	})

	t.Run("sweep", func(t *testing.T) {
		if _, err := store.Issue(k.wallet); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Hour)
		if n := store.Sweep(); n != 1 {
			t.Errorf("swept %d, want 1", n)
		}
	})

	if _, err := store.Issue("short"); !errors.Is(err, ErrInvalidWallet) {
		t.Errorf("invalid wallet issued: %v", err)
	}
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(time.Hour).WithClock(func() time.Time { return now })

	sess, err := store.Issue(ctx, "user-1", "wallet-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(sess.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	got, err := store.Lookup(ctx, sess.Token)
	if err != nil || got.UserID != "user-1" {
		t.Fatalf("Lookup = %+v, %v", got, err)
	}
	if err := store.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.Lookup(ctx, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("revoked token: %v", err)
	}

	sess, _ = store.Issue(ctx, "user-1", "wallet-1")
	now = now.Add(2 * time.Hour)
	if _, err := store.Lookup(ctx, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired token: %v", err)
	}
}
