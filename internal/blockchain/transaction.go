package blockchain

import (
	"encoding/base64"
	"fmt"
)

// SignTransaction signs an opaque serialized versioned transaction and
// installs the signature in slot 0, returning the base64 form ready for
// sendTransaction.
//
// Wire layout: [compact-u16 signature count][signatures...][message]. Swap
// venues never need more than one signer for these transactions, so the
// count always fits in a single byte. The message bytes are left untouched.
func SignTransaction(wallet *Wallet, txBytes []byte) (string, error) {
	if len(txBytes) < 2 {
		return "", fmt.Errorf("transaction payload too short: %d bytes", len(txBytes))
	}

	sigCount := int(txBytes[0])
	if sigCount == 0 {
		// No signature slots: prepend one.
		message := txBytes[1:]
		signature := wallet.Sign(message)

		signed := make([]byte, 1+64+len(message))
		signed[0] = 1
		copy(signed[1:65], signature)
		copy(signed[65:], message)
		return base64.StdEncoding.EncodeToString(signed), nil
	}

	messageOffset := 1 + sigCount*64
	if len(txBytes) <= messageOffset {
		return "", fmt.Errorf("malformed transaction: %d signature slots in %d bytes", sigCount, len(txBytes))
	}

	message := txBytes[messageOffset:]
	signature := wallet.Sign(message)

	signed := make([]byte, len(txBytes))
	copy(signed, txBytes)
	copy(signed[1:65], signature)
	return base64.StdEncoding.EncodeToString(signed), nil
}

// SignBase64Transaction decodes a base64-encoded serialized transaction (the
// aggregator's response format) and signs it.
func SignBase64Transaction(wallet *Wallet, txBase64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	return SignTransaction(wallet, txBytes)
}
