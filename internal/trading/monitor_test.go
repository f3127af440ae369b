package trading

import (
	"context"
	"fmt"
	"testing"

	"solana-copy-bot/internal/state"
)

func defaultTiers() []Tier {
	return []Tier{
		{Multiplier: 2, SellPercent: 20},
		{Multiplier: 3, SellPercent: 30},
		{Multiplier: 5, SellPercent: 50},
	}
}

func TestSelectTierHighestSatisfied(t *testing.T) {
	tiers := defaultTiers()

	cases := []struct {
		name        string
		ratio       float64
		soldPercent float64
		wantIdx     int
		wantOK      bool
	}{
		{"below all tiers", 1.5, 0, 0, false},
		{"first tier", 2.5, 0, 0, true},
		{"skip to highest", 5.5, 0, 2, true},
		{"skip middle after partial", 5.5, 20, 2, true},
		{"already fully realized for tier", 2.5, 20, 0, false},
		{"middle tier after first", 3.2, 20, 1, true},
		{"nothing above sold percent", 10, 50, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, idx, ok := SelectTier(tiers, tc.ratio, tc.soldPercent)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && idx != tc.wantIdx {
				t.Errorf("idx = %d, want %d", idx, tc.wantIdx)
			}
		})
	}
}

// Tier selection is monotone: the chosen tier's sell percent is the maximum
// over satisfied tiers above the current sold percent.
func TestSelectTierMonotone(t *testing.T) {
	tiers := defaultTiers()
	for _, sold := range []float64{0, 10, 20, 30, 49} {
		for _, ratio := range []float64{1, 2, 2.9, 3, 4.9, 5, 100} {
			tier, _, ok := SelectTier(tiers, ratio, sold)
			if !ok {
				continue
			}
			for _, other := range tiers {
				if ratio >= other.Multiplier && other.SellPercent > sold && other.SellPercent > tier.SellPercent {
					t.Errorf("sold=%v ratio=%v: chose %v but %v is higher", sold, ratio, tier.SellPercent, other.SellPercent)
				}
			}
		}
	}
}

func TestSellQuantity(t *testing.T) {
	cases := []struct {
		balance uint64
		sold    float64
		target  float64
		want    uint64
	}{
		{1_000_000, 0, 20, 200_000},
		{800_000, 20, 50, 300_000},  // original inferred as 1_000_000
		{500_000, 50, 100, 500_000}, // full remaining balance
		{1_000_000, 0, 100, 1_000_000},
		{1_000_000, 20, 20, 0}, // target already reached
		{1_000_000, 100, 110, 0},
		{0, 0, 50, 0},
	}

	for _, tc := range cases {
		if got := SellQuantity(tc.balance, tc.sold, tc.target); got != tc.want {
			t.Errorf("SellQuantity(%d, %v, %v) = %d, want %d", tc.balance, tc.sold, tc.target, got, tc.want)
		}
	}
}

func TestSortTiers(t *testing.T) {
	tiers := SortTiers([]Tier{{5, 50}, {2, 20}, {3, 30}})
	for i, want := range []float64{2, 3, 5} {
		if tiers[i].Multiplier != want {
			t.Errorf("tier %d multiplier = %v, want %v", i, tiers[i].Multiplier, want)
		}
	}
}

// fakeSeller implements TPSeller with scripted balances and recorded sells.
type fakeSeller struct {
	balance  uint64
	decimals uint8
	balErr   error
	sellErr  error
	sells    []uint64
}

func (f *fakeSeller) ExecuteTPSell(_ context.Context, mint string, amountRaw uint64, decimals uint8) (string, error) {
	if f.sellErr != nil {
		return "", f.sellErr
	}
	f.sells = append(f.sells, amountRaw)
	f.balance -= amountRaw
	return fmt.Sprintf("tp_sig_%d", len(f.sells)), nil
}

func (f *fakeSeller) TokenBalance(context.Context, string) (uint64, uint8, error) {
	return f.balance, f.decimals, f.balErr
}

// fakePrices returns a fixed SOL-per-token price.
type fakePrices struct {
	price float64
	err   error
}

func (f *fakePrices) Price(context.Context, string) (float64, error) {
	return f.price, f.err
}

func newTestMonitor(ledger *state.Ledger, seller *fakeSeller, prices *fakePrices) *Monitor {
	return NewMonitor(ledger, seller, prices, defaultTiers)
}

func TestMonitorStagedTakeProfit(t *testing.T) {
	ledger := state.NewLedger()
	mint := "TPMint11111111111111111111111111111111111111"

	// Entry at 0.1 SOL, actual fill unknown at open time.
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	seller := &fakeSeller{balance: 1_000_000, decimals: 6}
	// Position worth 0.25 SOL: 250 lamports per token -> ratio 2.5.
	prices := &fakePrices{price: 250e-9}
	m := newTestMonitor(ledger, seller, prices)

	m.tick(context.Background())

	if len(seller.sells) != 1 {
		t.Fatalf("sells = %v, want one", seller.sells)
	}
	if seller.sells[0] != 200_000 {
		t.Errorf("first tp sell = %d, want 200000 (20%% of original)", seller.sells[0])
	}
	pos, ok := ledger.GetPosition(mint)
	if !ok {
		t.Fatal("position should remain open")
	}
	if pos.SoldPercent != 20 {
		t.Errorf("sold percent = %v, want 20", pos.SoldPercent)
	}
	if !pos.IsTPTriggered(0) {
		t.Error("tier 0 should be marked triggered")
	}

	// Price jumps so ratio is 5.5: remaining 800k tokens, reduced entry cost
	// 0.08 SOL -> 550 lamports per token.
	prices.price = 550e-9
	m.tick(context.Background())

	if len(seller.sells) != 2 {
		t.Fatalf("sells = %v, want two", seller.sells)
	}
	if seller.sells[1] != 300_000 {
		t.Errorf("second tp sell = %d, want 300000 (cumulative 50%%)", seller.sells[1])
	}
	pos, ok = ledger.GetPosition(mint)
	if !ok {
		t.Fatal("position should remain open at 50%")
	}
	if pos.SoldPercent != 50 {
		t.Errorf("sold percent = %v, want 50", pos.SoldPercent)
	}
}

func TestMonitorZeroBalanceRemoves(t *testing.T) {
	ledger := state.NewLedger()
	mint := "GoneMint111111111111111111111111111111111111"
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	m := newTestMonitor(ledger, &fakeSeller{balance: 0}, &fakePrices{price: 1e-9})
	m.tick(context.Background())

	if _, ok := ledger.GetPosition(mint); ok {
		t.Error("zero-balance position should be removed")
	}
}

func TestMonitorPriceFailureRetries(t *testing.T) {
	ledger := state.NewLedger()
	mint := "ErrMint1111111111111111111111111111111111111"
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	seller := &fakeSeller{balance: 1_000_000, decimals: 6}
	prices := &fakePrices{err: fmt.Errorf("quote timeout")}
	m := newTestMonitor(ledger, seller, prices)

	m.tick(context.Background())
	if len(seller.sells) != 0 {
		t.Error("no sell should happen without a price")
	}
	if _, ok := ledger.GetPosition(mint); !ok {
		t.Fatal("position must be retained on price failure")
	}

	// Price recovers on a later tick; the tier fires then.
	prices.err = nil
	prices.price = 250e-9
	m.tick(context.Background())
	if len(seller.sells) != 1 {
		t.Error("tier should fire once price is available")
	}
}

func TestMonitorSellFailureKeepsSoldPercent(t *testing.T) {
	ledger := state.NewLedger()
	mint := "FailMint111111111111111111111111111111111111"
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	seller := &fakeSeller{balance: 1_000_000, decimals: 6, sellErr: fmt.Errorf("venue 500")}
	m := newTestMonitor(ledger, seller, &fakePrices{price: 250e-9})

	m.tick(context.Background())

	pos, ok := ledger.GetPosition(mint)
	if !ok {
		t.Fatal("position must survive a failed tp sell")
	}
	if pos.SoldPercent != 0 {
		t.Errorf("sold percent = %v, want 0 after failure", pos.SoldPercent)
	}

	// Next tick retries the same tier.
	seller.sellErr = nil
	m.tick(context.Background())
	if len(seller.sells) != 1 {
		t.Error("tier should be retried on the next tick")
	}
}

func TestMonitorNoTokensErrorRemoves(t *testing.T) {
	ledger := state.NewLedger()
	mint := "RacyMint111111111111111111111111111111111111"
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	seller := &fakeSeller{balance: 1_000_000, decimals: 6, sellErr: fmt.Errorf("%w: racy", ErrNoTokens)}
	m := newTestMonitor(ledger, seller, &fakePrices{price: 250e-9})

	m.tick(context.Background())
	if _, ok := ledger.GetPosition(mint); ok {
		t.Error("position should be dropped when the venue reports no tokens")
	}
}

func TestMonitorTerminalTierClosesPosition(t *testing.T) {
	ledger := state.NewLedger()
	mint := "FullMint111111111111111111111111111111111111"
	ledger.OpenPosition(state.NewPosition(mint, 0, 100_000_000, "leader", "ours"))

	tiers := func() []Tier { return []Tier{{Multiplier: 2, SellPercent: 100}} }
	seller := &fakeSeller{balance: 1_000_000, decimals: 6}
	m := NewMonitor(ledger, seller, &fakePrices{price: 250e-9}, tiers)

	m.tick(context.Background())

	if len(seller.sells) != 1 || seller.sells[0] != 1_000_000 {
		t.Fatalf("sells = %v, want full balance", seller.sells)
	}
	if _, ok := ledger.GetPosition(mint); ok {
		t.Error("position should be removed after terminal tier")
	}
}
