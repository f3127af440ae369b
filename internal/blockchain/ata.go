package blockchain

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AssociatedTokenProgramID is the SPL associated-token-account program.
const AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

const pdaMarker = "ProgramDerivedAddress"

// DeriveAssociatedTokenAccount derives the canonical associated token
// account for (owner, mint) under the given token program. Used as the
// fallback when getTokenAccountsByOwner is unavailable.
func DeriveAssociatedTokenAccount(owner, mint, tokenProgramID string) (string, error) {
	ownerKey, err := decodeAccountID(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := decodeAccountID(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, err := decodeAccountID(tokenProgramID)
	if err != nil {
		return "", fmt.Errorf("token program: %w", err)
	}
	ataProgram, err := decodeAccountID(AssociatedTokenProgramID)
	if err != nil {
		return "", fmt.Errorf("ata program: %w", err)
	}

	return findProgramAddress([][]byte{ownerKey, tokenProgram, mintKey}, ataProgram)
}

// findProgramAddress walks bump seeds from 255 downward until the derived
// hash falls off the ed25519 curve, per the PDA derivation scheme.
func findProgramAddress(seeds [][]byte, programID []byte) (string, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID)
		h.Write([]byte(pdaMarker))

		candidate := h.Sum(nil)
		if !isOnCurve(candidate) {
			return base58.Encode(candidate), nil
		}
	}
	return "", fmt.Errorf("no viable program address bump found")
}

// isOnCurve reports whether the 32 bytes decompress to a valid ed25519
// point. Program-derived addresses must not have a private key, so only
// off-curve candidates are usable.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func decodeAccountID(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("account id %q is %d bytes, want 32", s, len(raw))
	}
	return raw, nil
}
