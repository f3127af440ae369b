package decoder

import (
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
)

const leaderWallet = "GThUX1Atko4tqhN2NaiTazWSeFWMuiUvfFnyJyUghFMJ"

func randomMint(t *testing.T) string {
	t.Helper()
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		t.Fatal(err)
	}
	return base58.Encode(raw[:])
}

func buyLogs(mint string) []string {
	return []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Buy",
		"Program log: " + mint,
		"Program " + PumpFunProgram + " success",
	}
}

func TestClassifyBuy(t *testing.T) {
	mint := randomMint(t)
	c := NewClassifier(leaderWallet)

	action := c.Classify(LogEvent{Signature: "sig", Slot: 100, Logs: buyLogs(mint)})
	if action.Kind != ActionBuy {
		t.Fatalf("kind = %v, want buy", action.Kind)
	}
	if action.Mint != mint {
		t.Errorf("mint = %q, want %q", action.Mint, mint)
	}
}

func TestClassifySell(t *testing.T) {
	mint := randomMint(t)
	logs := []string{
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Sell",
		"Program log: " + mint,
	}

	action := NewClassifier(leaderWallet).Classify(LogEvent{Logs: logs})
	if action.Kind != ActionSell {
		t.Fatalf("kind = %v, want sell", action.Kind)
	}
	if action.Mint != mint {
		t.Errorf("mint = %q, want %q", action.Mint, mint)
	}
}

func TestClassifyIgnored(t *testing.T) {
	cases := []struct {
		name string
		logs []string
	}{
		{"empty", nil},
		{"buy without program", []string{"Program log: Instruction: Buy"}},
		{"program without instruction", []string{"Program " + PumpFunProgram + " invoke [1]"}},
		{"unrelated transfer", []string{"Program 11111111111111111111111111111111 invoke [1]", "Program log: Transfer"}},
	}

	c := NewClassifier(leaderWallet)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(LogEvent{Logs: tc.logs}); got.Kind != ActionIgnored {
				t.Errorf("kind = %v, want ignored", got.Kind)
			}
		})
	}
}

func TestExtractionSkipsSentinels(t *testing.T) {
	mint := randomMint(t)
	logs := []string{
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Buy",
		// Sentinels first: all must be skipped even though they are valid ids.
		"Program log: " + PumpFunProgram,
		"Program log: " + WSOLMint,
		"Program log: " + leaderWallet,
		"Program log: 11111111111111111111111111111111",
		"Program log: " + mint,
	}

	action := NewClassifier(leaderWallet).Classify(LogEvent{Logs: logs})
	if action.Mint != mint {
		t.Errorf("mint = %q, want %q", action.Mint, mint)
	}
}

func TestExtractionMiss(t *testing.T) {
	logs := []string{
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Buy",
		"Program log: not-a-pubkey",
	}

	action := NewClassifier(leaderWallet).Classify(LogEvent{Logs: logs})
	if action.Kind != ActionBuy {
		t.Fatalf("kind = %v, want buy", action.Kind)
	}
	if action.Mint != "" {
		t.Errorf("mint = %q, want empty on extraction miss", action.Mint)
	}
}

func TestExtractionIgnoresNonProgramLogLines(t *testing.T) {
	mint := randomMint(t)
	logs := []string{
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Buy",
		// Valid id, but not on a program-log line.
		mint,
	}

	action := NewClassifier(leaderWallet).Classify(LogEvent{Logs: logs})
	if action.Mint != "" {
		t.Errorf("mint = %q, want empty", action.Mint)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	mint := randomMint(t)
	ev := LogEvent{Signature: "sig", Slot: 42, Logs: buyLogs(mint)}
	c := NewClassifier(leaderWallet)

	first := c.Classify(ev)
	for i := 0; i < 10; i++ {
		if got := c.Classify(ev); got != first {
			t.Fatalf("classification not deterministic: %+v vs %+v", got, first)
		}
	}
}
