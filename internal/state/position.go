package state

import (
	"time"

	"github.com/google/uuid"
)

// Position represents an open copy-trading position for a single token mint.
// The ledger owns all Position values; callers only ever see snapshots.
type Position struct {
	Mint                 string    `json:"mint"`
	Amount               uint64    `json:"amount"` // raw token units
	Decimals             uint8     `json:"decimals"`
	EntryCostLamports    uint64    `json:"entry_cost_lamports"`
	OpenedAt             time.Time `json:"opened_at"`
	CurrentValueLamports uint64    `json:"current_value_lamports"`
	// SoldPercent is the cumulative share of the original position realized
	// through take-profit sells, 0-100. It never decreases.
	SoldPercent        float64 `json:"sold_percent"`
	TriggeredTiers     []int   `json:"triggered_tiers"`
	LeaderBuySignature string  `json:"leader_buy_signature"`
	OurBuySignature    string  `json:"our_buy_signature"`

	triggered map[int]struct{}
}

// NewPosition creates a position for a fresh copy buy.
func NewPosition(mint string, amount, entryCostLamports uint64, leaderSig, ourSig string) Position {
	return Position{
		Mint:                 mint,
		Amount:               amount,
		EntryCostLamports:    entryCostLamports,
		OpenedAt:             time.Now(),
		CurrentValueLamports: entryCostLamports,
		LeaderBuySignature:   leaderSig,
		OurBuySignature:      ourSig,
		triggered:            make(map[int]struct{}),
	}
}

// ProfitMultiplier returns current value relative to entry cost.
func (p *Position) ProfitMultiplier() float64 {
	if p.EntryCostLamports == 0 {
		return 1.0
	}
	return float64(p.CurrentValueLamports) / float64(p.EntryCostLamports)
}

// ProfitLamports returns the unrealized profit in lamports.
func (p *Position) ProfitLamports() int64 {
	return int64(p.CurrentValueLamports) - int64(p.EntryCostLamports)
}

// IsClosed reports whether the position has been fully exited.
func (p *Position) IsClosed() bool {
	return p.Amount == 0 || p.SoldPercent >= 100
}

// IsTPTriggered reports whether a take-profit tier has already fired.
func (p *Position) IsTPTriggered(tier int) bool {
	_, ok := p.triggered[tier]
	return ok
}

func (p *Position) markTPTriggered(tier int) {
	if p.triggered == nil {
		p.triggered = make(map[int]struct{})
	}
	if _, ok := p.triggered[tier]; ok {
		return
	}
	p.triggered[tier] = struct{}{}
	p.TriggeredTiers = append(p.TriggeredTiers, tier)
}

// snapshot returns a deep copy safe to hand out of the ledger.
func (p *Position) snapshot() Position {
	cp := *p
	cp.triggered = make(map[int]struct{}, len(p.triggered))
	for k := range p.triggered {
		cp.triggered[k] = struct{}{}
	}
	cp.TriggeredTiers = append([]int(nil), p.TriggeredTiers...)
	return cp
}

// TradeKind classifies trade history entries.
type TradeKind string

const (
	TradeBuy            TradeKind = "BUY"
	TradeSellTakeProfit TradeKind = "SELL_TAKE_PROFIT"
	TradeSellCopyExit   TradeKind = "SELL_COPY_EXIT"
	TradeSellManual     TradeKind = "SELL_MANUAL"
)

// IsSell reports whether the kind is any of the sell variants.
func (k TradeKind) IsSell() bool {
	return k != TradeBuy
}

// TradeRecord is an append-only trade history entry.
type TradeRecord struct {
	ID        uuid.UUID `json:"id"`
	Mint      string    `json:"mint"`
	Kind      TradeKind `json:"kind"`
	Amount    uint64    `json:"amount"`
	Lamports  uint64    `json:"lamports"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
	// PnL is set for sells only, in lamports.
	PnL *int64 `json:"pnl,omitempty"`
}

func newBuyRecord(mint string, amount, lamports uint64, sig string) TradeRecord {
	return TradeRecord{
		ID:        uuid.New(),
		Mint:      mint,
		Kind:      TradeBuy,
		Amount:    amount,
		Lamports:  lamports,
		Signature: sig,
		Timestamp: time.Now(),
	}
}

func newSellRecord(mint string, kind TradeKind, amount, lamports uint64, sig string, pnl *int64) TradeRecord {
	return TradeRecord{
		ID:        uuid.New(),
		Mint:      mint,
		Kind:      kind,
		Amount:    amount,
		Lamports:  lamports,
		Signature: sig,
		Timestamp: time.Now(),
		PnL:       pnl,
	}
}
