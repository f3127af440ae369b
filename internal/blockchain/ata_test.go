package blockchain

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
)

func randomAccountID(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return base58.Encode(pub)
}

func TestDeriveAssociatedTokenAccountDeterministic(t *testing.T) {
	owner := randomAccountID(t)
	mint := randomAccountID(t)

	first, err := DeriveAssociatedTokenAccount(owner, mint, TokenProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := DeriveAssociatedTokenAccount(owner, mint, TokenProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first != second {
		t.Errorf("derivation not deterministic: %s vs %s", first, second)
	}

	raw, err := base58.Decode(first)
	if err != nil || len(raw) != 32 {
		t.Errorf("derived address %q is not a 32-byte account id", first)
	}
}

func TestDeriveDiffersByProgram(t *testing.T) {
	owner := randomAccountID(t)
	mint := randomAccountID(t)

	legacy, err := DeriveAssociatedTokenAccount(owner, mint, TokenProgramID)
	if err != nil {
		t.Fatal(err)
	}
	t2022, err := DeriveAssociatedTokenAccount(owner, mint, Token2022ProgramID)
	if err != nil {
		t.Fatal(err)
	}
	if legacy == t2022 {
		t.Error("ATA must differ between token program variants")
	}
}

func TestDeriveOffCurve(t *testing.T) {
	owner := randomAccountID(t)
	mint := randomAccountID(t)

	addr, err := DeriveAssociatedTokenAccount(owner, mint, TokenProgramID)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base58.Decode(addr)
	if isOnCurve(raw) {
		t.Error("derived address must be off the ed25519 curve")
	}
}

func TestDeriveRejectsBadInputs(t *testing.T) {
	good := randomAccountID(t)

	if _, err := DeriveAssociatedTokenAccount("not-base58-0OIl", good, TokenProgramID); err == nil {
		t.Error("expected error for invalid owner")
	}
	if _, err := DeriveAssociatedTokenAccount(good, "abc", TokenProgramID); err == nil {
		t.Error("expected error for short mint")
	}
}
