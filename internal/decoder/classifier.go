// Package decoder classifies leader wallet activity from transaction logs.
//
// Classification works on the log lines alone: fetching the full decoded
// transaction would add 50-150ms on the reactive path, and a missed
// extraction only costs one trade.
package decoder

import (
	"strings"

	"github.com/mr-tron/base58"
)

// PumpFunProgram is the pump.fun program ID.
const PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// WSOLMint is the wrapped SOL mint.
const WSOLMint = "So11111111111111111111111111111111111111112"

const programLogPrefix = "Program log:"

// LogEvent is one logs-subscription notification for the leader wallet.
type LogEvent struct {
	Signature string
	Slot      uint64
	Failed    bool
	Logs      []string
}

// ActionKind tags the detected trade direction.
type ActionKind int

const (
	ActionIgnored ActionKind = iota
	ActionBuy
	ActionSell
)

func (k ActionKind) String() string {
	switch k {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "ignored"
	}
}

// Action is the classification result. Mint is empty when extraction failed;
// the caller abandons the event in that case.
type Action struct {
	Kind ActionKind
	Mint string
}

// Classifier detects leader buys and sells on the pump.fun market.
type Classifier struct {
	leaderWallet string
}

// NewClassifier creates a classifier for one leader wallet.
func NewClassifier(leaderWallet string) *Classifier {
	return &Classifier{leaderWallet: leaderWallet}
}

// Classify maps a log event to a Buy/Sell/Ignored action. For Buy and Sell
// it additionally attempts to extract the token mint from the logs.
func (c *Classifier) Classify(ev LogEvent) Action {
	haystack := strings.Join(ev.Logs, " ")

	switch {
	case strings.Contains(haystack, "Instruction: Buy") && strings.Contains(haystack, PumpFunProgram):
		return Action{Kind: ActionBuy, Mint: c.extractMint(ev.Logs)}
	case strings.Contains(haystack, "Instruction: Sell") && strings.Contains(haystack, PumpFunProgram):
		return Action{Kind: ActionSell, Mint: c.extractMint(ev.Logs)}
	default:
		return Action{Kind: ActionIgnored}
	}
}

// extractMint scans program-log lines for the first whitespace-separated
// fragment that is a valid 32-byte base58 account id and is not one of the
// sentinel accounts (market program, wrapped SOL, the leader wallet, or any
// system-program-family id).
func (c *Classifier) extractMint(logs []string) string {
	for _, line := range logs {
		if !strings.HasPrefix(line, programLogPrefix) {
			continue
		}
		for _, part := range strings.Fields(line) {
			if len(part) < 32 || len(part) > 44 {
				continue
			}
			if !isAccountID(part) {
				continue
			}
			if part == PumpFunProgram || part == WSOLMint || part == c.leaderWallet {
				continue
			}
			if strings.HasPrefix(part, "1111") {
				continue
			}
			return part
		}
	}
	return ""
}

// isAccountID reports whether s decodes to exactly 32 bytes of base58.
func isAccountID(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}
