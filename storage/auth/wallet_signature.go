package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

var (
	ErrInvalidWallet    = errors.New("invalid wallet address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// DecodeWallet decodes a base58 Solana address into its ed25519 public key.
func DecodeWallet(address string) (ed25519.PublicKey, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidWallet
	}
	raw := base58.Decode(address)
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: decoded %d bytes", ErrInvalidWallet, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// VerifyWalletSignature checks a base58 detached ed25519 signature of message
// made by the wallet's key.
func VerifyWalletSignature(wallet, message, signature string) error {
	pub, err := DecodeWallet(wallet)
	if err != nil {
		return err
	}
	sig := base58.Decode(strings.TrimSpace(signature))
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(pub, []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// EncodeWallet renders a public key the way wallets display it.
func EncodeWallet(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// EncodeSignature renders a detached signature in base58.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}
