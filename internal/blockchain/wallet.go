package blockchain

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Wallet holds the follower keypair used to sign mirrored trades. It is
// created once at startup and shared read-only across tasks.
type Wallet struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewWallet parses a private key given either as base58 or as a JSON byte
// array (the two formats wallet exports use). Accepts a 64-byte expanded key
// or a 32-byte seed.
func NewWallet(privateKey string) (*Wallet, error) {
	raw, err := decodePrivateKey(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, err
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case 64:
		key = ed25519.PrivateKey(raw)
	case 32:
		key = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid private key length: %d (expected 32 or 64)", len(raw))
	}

	pub := key.Public().(ed25519.PublicKey)
	w := &Wallet{
		privateKey: key,
		publicKey:  pub,
		address:    base58.Encode(pub),
	}

	log.Info().Str("address", w.address).Msg("wallet loaded")
	return w, nil
}

func decodePrivateKey(s string) ([]byte, error) {
	if strings.HasPrefix(s, "[") {
		var bytes []byte
		if err := json.Unmarshal([]byte(s), &bytes); err != nil {
			return nil, fmt.Errorf("parse JSON key array: %w", err)
		}
		return bytes, nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 private key: %w", err)
	}
	return raw, nil
}

// Address returns the wallet public key as a base58 string.
func (w *Wallet) Address() string {
	return w.address
}

// PublicKey returns the raw public key bytes.
func (w *Wallet) PublicKey() []byte {
	return w.publicKey
}

// Sign signs a message with the wallet's private key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}
