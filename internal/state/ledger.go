package state

import (
	"encoding/json"
	"math/bits"
	"sync"

	"github.com/rs/zerolog/log"
)

// Ledger is the in-memory record of open positions, tokens ever traded and
// the trade history. Both the stream loop and the take-profit monitor mutate
// it concurrently; per-operation locking is the only coordination between
// them.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
	traded    map[string]struct{}
	pending   map[string]string // signature -> mint

	histMu  sync.RWMutex
	history []TradeRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		traded:    make(map[string]struct{}),
		pending:   make(map[string]string),
	}
}

// HasTraded reports whether the token was ever bought during this process
// lifetime.
func (l *Ledger) HasTraded(mint string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.traded[mint]
	return ok
}

// HasPosition reports whether an open position exists for the mint.
func (l *Ledger) HasPosition(mint string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[mint]
	return ok && !p.IsClosed()
}

// CanCopyBuy reports whether a leader buy for this token may be mirrored.
// Each token is entered at most once per process lifetime, regardless of
// later exits.
func (l *Ledger) CanCopyBuy(mint string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.traded[mint]; ok {
		return false
	}
	p, ok := l.positions[mint]
	return !ok || p.IsClosed()
}

// OpenPosition marks the token traded, appends a buy record and stores the
// position. The check-and-insert is atomic: a second open for the same mint
// returns false and changes nothing.
func (l *Ledger) OpenPosition(p Position) bool {
	l.mu.Lock()
	if _, ok := l.traded[p.Mint]; ok {
		l.mu.Unlock()
		return false
	}
	l.traded[p.Mint] = struct{}{}
	if p.triggered == nil {
		p.triggered = make(map[int]struct{})
	}
	l.positions[p.Mint] = &p
	l.mu.Unlock()

	l.appendRecord(newBuyRecord(p.Mint, p.Amount, p.EntryCostLamports, p.OurBuySignature))

	log.Info().Str("mint", p.Mint).Uint64("entryCost", p.EntryCostLamports).Msg("position opened")
	return true
}

// GetPosition returns a snapshot of the position, if present.
func (l *Ledger) GetPosition(mint string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[mint]
	if !ok {
		return Position{}, false
	}
	return p.snapshot(), true
}

// AllPositions returns snapshots of every open position.
func (l *Ledger) AllPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.snapshot())
	}
	return out
}

// OpenPositionCount returns the number of open positions.
func (l *Ledger) OpenPositionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// UpdatePositionValue records the latest observed value of a position.
func (l *Ledger) UpdatePositionValue(mint string, valueLamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[mint]; ok {
		p.CurrentValueLamports = valueLamports
	}
}

// SetAmount overwrites the raw token quantity and decimals of a position,
// used when the actual balance is first observed after a fire-and-forget buy.
func (l *Ledger) SetAmount(mint string, amount uint64, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[mint]; ok {
		p.Amount = amount
		p.Decimals = decimals
	}
}

// SetSoldPercent raises the cumulative sold percent of a position. Values
// below the current percent are ignored; the field never decreases.
func (l *Ledger) SetSoldPercent(mint string, percent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[mint]
	if !ok || percent <= p.SoldPercent {
		return
	}
	p.SoldPercent = percent
	if p.IsClosed() {
		delete(l.positions, mint)
		log.Info().Str("mint", mint).Msg("position fully realized")
	}
}

// MarkTPTriggered idempotently records that a take-profit tier has fired.
func (l *Ledger) MarkTPTriggered(mint string, tier int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[mint]; ok {
		p.markTPTriggered(tier)
	}
}

// ReducePosition reduces the stored quantity by amountSold, reduces the entry
// cost proportionally and appends a sell record whose PnL is
// lamportsReceived - floor(entryCost*amountSold/amountBefore). A position
// reduced to zero is removed. Returns the post-reduction snapshot, or false
// if no position exists.
func (l *Ledger) ReducePosition(mint string, amountSold, lamportsReceived uint64, kind TradeKind, sig string) (Position, bool) {
	l.mu.Lock()
	p, ok := l.positions[mint]
	if !ok {
		l.mu.Unlock()
		return Position{}, false
	}

	before := p.Amount
	if amountSold > before {
		amountSold = before
	}

	var pnl *int64
	if p.EntryCostLamports > 0 && before > 0 {
		portion := mulDiv(p.EntryCostLamports, amountSold, before)
		v := int64(lamportsReceived) - int64(portion)
		pnl = &v
		p.EntryCostLamports -= portion
	}
	p.Amount = before - amountSold

	snap := p.snapshot()
	closed := p.IsClosed()
	if closed {
		delete(l.positions, mint)
	}
	l.mu.Unlock()

	l.appendRecord(newSellRecord(mint, kind, amountSold, lamportsReceived, sig, pnl))

	if closed {
		log.Info().Str("mint", mint).Msg("position closed")
	} else {
		log.Info().Str("mint", mint).Uint64("remaining", snap.Amount).Msg("position reduced")
	}
	return snap, true
}

// ClosePosition reduces the position by its full current quantity.
func (l *Ledger) ClosePosition(mint string, lamportsReceived uint64, kind TradeKind, sig string) (Position, bool) {
	l.mu.RLock()
	p, ok := l.positions[mint]
	var amount uint64
	if ok {
		amount = p.Amount
	}
	l.mu.RUnlock()
	if !ok {
		return Position{}, false
	}
	return l.ReducePosition(mint, amount, lamportsReceived, kind, sig)
}

// Remove drops a position without recording a trade. Used when the tracked
// balance turns out to be zero.
func (l *Ledger) Remove(mint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, mint)
}

// AddPendingTx tracks an in-flight transaction signature for a mint.
func (l *Ledger) AddPendingTx(sig, mint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[sig] = mint
}

// RemovePendingTx drops a pending signature, returning its mint.
func (l *Ledger) RemovePendingTx(sig string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mint, ok := l.pending[sig]
	delete(l.pending, sig)
	return mint, ok
}

// IsTxPending reports whether a signature is still tracked.
func (l *Ledger) IsTxPending(sig string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.pending[sig]
	return ok
}

// TradeHistory returns a copy of the full trade history.
func (l *Ledger) TradeHistory() []TradeRecord {
	l.histMu.RLock()
	defer l.histMu.RUnlock()
	return append([]TradeRecord(nil), l.history...)
}

func (l *Ledger) appendRecord(r TradeRecord) {
	l.histMu.Lock()
	l.history = append(l.history, r)
	l.histMu.Unlock()
}

// Stats summarizes the ledger.
type Stats struct {
	OpenPositions     int   `json:"open_positions"`
	TotalTradedTokens int   `json:"total_traded_tokens"`
	TotalBuys         int   `json:"total_buys"`
	TotalSells        int   `json:"total_sells"`
	TotalPnLLamports  int64 `json:"total_pnl_lamports"`
	WinningTrades     int   `json:"winning_trades"`
	LosingTrades      int   `json:"losing_trades"`
}

// WinRate returns the percentage of winning sells among decided sells.
func (s Stats) WinRate() float64 {
	total := s.WinningTrades + s.LosingTrades
	if total == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(total) * 100
}

// TotalPnLSOL returns the total PnL in SOL.
func (s Stats) TotalPnLSOL() float64 {
	return float64(s.TotalPnLLamports) / 1e9
}

// GetStats derives aggregate statistics from the ledger.
func (l *Ledger) GetStats() Stats {
	l.mu.RLock()
	open := len(l.positions)
	traded := len(l.traded)
	l.mu.RUnlock()

	l.histMu.RLock()
	defer l.histMu.RUnlock()

	st := Stats{OpenPositions: open, TotalTradedTokens: traded}
	for _, r := range l.history {
		if r.Kind == TradeBuy {
			st.TotalBuys++
			continue
		}
		st.TotalSells++
		if r.PnL == nil {
			continue
		}
		st.TotalPnLLamports += *r.PnL
		switch {
		case *r.PnL > 0:
			st.WinningTrades++
		case *r.PnL < 0:
			st.LosingTrades++
		}
	}
	return st
}

// exportDoc is the serialized form of the ledger.
type exportDoc struct {
	Positions    []Position    `json:"positions"`
	TradedTokens []string      `json:"traded_tokens"`
	TradeHistory []TradeRecord `json:"trade_history"`
}

// ExportState serializes positions, traded tokens and history to JSON.
func (l *Ledger) ExportState() ([]byte, error) {
	l.mu.RLock()
	doc := exportDoc{
		Positions:    make([]Position, 0, len(l.positions)),
		TradedTokens: make([]string, 0, len(l.traded)),
	}
	for _, p := range l.positions {
		doc.Positions = append(doc.Positions, p.snapshot())
	}
	for mint := range l.traded {
		doc.TradedTokens = append(doc.TradedTokens, mint)
	}
	l.mu.RUnlock()

	doc.TradeHistory = l.TradeHistory()
	return json.MarshalIndent(doc, "", "  ")
}

// mulDiv computes floor(a*b/div) without intermediate overflow.
func mulDiv(a, b, div uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, div)
	return q
}
