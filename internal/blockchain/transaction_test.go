package blockchain

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

func testWallet(t *testing.T) (*Wallet, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWallet(base58.Encode(priv))
	if err != nil {
		t.Fatal(err)
	}
	return w, pub
}

func TestSignTransactionInstallsSignature(t *testing.T) {
	w, pub := testWallet(t)

	message := []byte{0x80, 0x01, 0x02, 0x03, 0x04}
	tx := make([]byte, 1+64+len(message))
	tx[0] = 1 // one empty signature slot
	copy(tx[65:], message)

	signed, err := SignTransaction(w, tx)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		t.Fatalf("decode signed tx: %v", err)
	}

	if raw[0] != 1 {
		t.Errorf("signature count = %d, want 1", raw[0])
	}
	if !bytes.Equal(raw[65:], message) {
		t.Error("message bytes were modified")
	}
	if !ed25519.Verify(pub, message, raw[1:65]) {
		t.Error("installed signature does not verify against message")
	}
}

func TestSignTransactionMultipleSlots(t *testing.T) {
	w, pub := testWallet(t)

	message := []byte{0xaa, 0xbb}
	tx := make([]byte, 1+2*64+len(message))
	tx[0] = 2
	// Slot 1 holds someone else's placeholder signature.
	for i := 65; i < 129; i++ {
		tx[i] = 0xff
	}
	copy(tx[129:], message)

	signed, err := SignTransaction(w, tx)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(signed)
	if !ed25519.Verify(pub, message, raw[1:65]) {
		t.Error("slot 0 signature does not verify")
	}
	if raw[65] != 0xff {
		t.Error("slot 1 signature was clobbered")
	}
}

func TestSignTransactionZeroSlots(t *testing.T) {
	w, pub := testWallet(t)

	message := []byte{0x01, 0x02}
	tx := append([]byte{0}, message...)

	signed, err := SignTransaction(w, tx)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(signed)
	if raw[0] != 1 {
		t.Errorf("signature count = %d, want 1", raw[0])
	}
	if !ed25519.Verify(pub, message, raw[1:65]) {
		t.Error("prepended signature does not verify")
	}
}

func TestSignTransactionMalformed(t *testing.T) {
	w, _ := testWallet(t)

	if _, err := SignTransaction(w, []byte{}); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := SignTransaction(w, []byte{5, 0, 0}); err == nil {
		t.Error("expected error when payload shorter than signature slots")
	}
}

func TestSignBase64Transaction(t *testing.T) {
	w, pub := testWallet(t)

	message := []byte{0x10, 0x20, 0x30}
	tx := make([]byte, 1+64+len(message))
	tx[0] = 1
	copy(tx[65:], message)

	signed, err := SignBase64Transaction(w, base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		t.Fatalf("SignBase64Transaction: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(signed)
	if !ed25519.Verify(pub, message, raw[1:65]) {
		t.Error("signature does not verify")
	}

	if _, err := SignBase64Transaction(w, "!!!not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
