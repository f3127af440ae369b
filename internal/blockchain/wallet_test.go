package blockchain

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
)

func testKeypair(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

func TestNewWalletBase58(t *testing.T) {
	priv := testKeypair(t)

	w, err := NewWallet(base58.Encode(priv))
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}

	wantAddr := base58.Encode(priv.Public().(ed25519.PublicKey))
	if w.Address() != wantAddr {
		t.Errorf("address = %s, want %s", w.Address(), wantAddr)
	}
}

func TestNewWalletJSONArray(t *testing.T) {
	priv := testKeypair(t)

	// json.Marshal renders []byte as base64; build a number array instead.
	ints := make([]int, len(priv))
	for i, b := range priv {
		ints[i] = int(b)
	}
	arr, err := json.Marshal(ints)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWallet(string(arr))
	if err != nil {
		t.Fatalf("NewWallet from JSON array: %v", err)
	}
	if !bytes.Equal(w.PublicKey(), priv.Public().(ed25519.PublicKey)) {
		t.Error("public key mismatch")
	}
}

func TestNewWalletSeed(t *testing.T) {
	priv := testKeypair(t)
	seed := priv.Seed()

	w, err := NewWallet(base58.Encode(seed))
	if err != nil {
		t.Fatalf("NewWallet from seed: %v", err)
	}
	if !bytes.Equal(w.PublicKey(), priv.Public().(ed25519.PublicKey)) {
		t.Error("public key derived from seed mismatch")
	}
}

func TestNewWalletInvalid(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"bad base58", "0OIl"},
		{"wrong length", base58.Encode([]byte{1, 2, 3})},
		{"bad json", "[1,2,"},
		{"json wrong length", "[1,2,3]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewWallet(tc.key); err == nil {
				t.Errorf("expected error for %q", tc.key)
			}
		})
	}
}

func TestSignVerifies(t *testing.T) {
	priv := testKeypair(t)
	w, err := NewWallet(base58.Encode(priv))
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("message bytes")
	sig := w.Sign(msg)
	if !ed25519.Verify(priv.Public().(ed25519.PublicKey), msg, sig) {
		t.Error("signature does not verify")
	}
}
