package trading

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/state"
)

// Tier is one rung of the take-profit ladder. SellPercent is a cumulative
// target: after the tier fires, that share of the original position has been
// realized in total.
type Tier struct {
	Multiplier  float64 `json:"multiplier" mapstructure:"multiplier"`
	SellPercent float64 `json:"sell_percent" mapstructure:"sell_percent"`
}

// SortTiers orders tiers by multiplier ascending, stable.
func SortTiers(tiers []Tier) []Tier {
	out := append([]Tier(nil), tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Multiplier < out[j].Multiplier })
	return out
}

// SelectTier picks the highest tier whose multiplier is satisfied by ratio
// and whose cumulative sell percent is still above soldPercent. Picking the
// highest tier means a sharp move jumps straight to the terminal rung
// instead of emitting a cascade of sells.
func SelectTier(tiers []Tier, ratio, soldPercent float64) (Tier, int, bool) {
	best := -1
	for i, t := range tiers {
		if ratio >= t.Multiplier && t.SellPercent > soldPercent {
			best = i
		}
	}
	if best < 0 {
		return Tier{}, 0, false
	}
	return tiers[best], best, true
}

// SellQuantity computes the raw quantity to sell so that the cumulative sold
// percent reaches targetPercent. The original position size is inferred from
// the live balance and what has already been sold.
func SellQuantity(balance uint64, soldPercent, targetPercent float64) uint64 {
	remaining := 100 - soldPercent
	if remaining <= 0 || targetPercent <= soldPercent {
		return 0
	}

	originalEst := float64(balance) * 100 / remaining
	delta := targetPercent - soldPercent
	qty := uint64(originalEst * delta / 100)
	if qty > balance {
		return balance
	}
	return qty
}

// TPSeller is the executor surface the monitor needs.
type TPSeller interface {
	ExecuteTPSell(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error)
	TokenBalance(ctx context.Context, mint string) (uint64, uint8, error)
}

// PriceSource quotes a unit price in SOL per token.
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// Monitor is the periodic take-profit task. It runs independently from the
// stream loop; the ledger's per-operation atomicity is the only
// synchronization between the two sell producers.
type Monitor struct {
	ledger   *state.Ledger
	seller   TPSeller
	prices   PriceSource
	tiers    func() []Tier
	interval time.Duration
}

// NewMonitor creates a take-profit monitor. tiers is re-read every tick so
// the ladder can be hot-reloaded.
func NewMonitor(ledger *state.Ledger, seller TPSeller, prices PriceSource, tiers func() []Tier) *Monitor {
	return &Monitor{
		ledger:   ledger,
		seller:   seller,
		prices:   prices,
		tiers:    tiers,
		interval: 2 * time.Second,
	}
}

// Run ticks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().Dur("interval", m.interval).Msg("take-profit monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("take-profit monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	positions := m.ledger.AllPositions()
	if len(positions) == 0 {
		return
	}
	tiers := m.tiers()

	for _, pos := range positions {
		m.checkPosition(ctx, pos, tiers)
	}
}

func (m *Monitor) checkPosition(ctx context.Context, pos state.Position, tiers []Tier) {
	balance, decimals, err := m.seller.TokenBalance(ctx, pos.Mint)
	if err != nil {
		log.Warn().Err(err).Str("mint", pos.Mint).Msg("tp: balance lookup failed")
		return
	}
	if balance == 0 {
		log.Info().Str("mint", pos.Mint).Msg("tp: zero balance, dropping position")
		m.ledger.Remove(pos.Mint)
		return
	}

	// First observed fill for a fire-and-forget buy: sync the tracked
	// quantity and settle the pending signature.
	m.ledger.SetAmount(pos.Mint, balance, decimals)
	if pos.OurBuySignature != "" && m.ledger.IsTxPending(pos.OurBuySignature) {
		m.ledger.RemovePendingTx(pos.OurBuySignature)
	}

	priceCtx, cancel := context.WithTimeout(ctx, priceTimeout)
	price, err := m.prices.Price(priceCtx, pos.Mint)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("mint", pos.Mint).Msg("tp: price fetch failed")
		return
	}

	valueLamports := uint64(float64(balance) * price * 1e9)
	m.ledger.UpdatePositionValue(pos.Mint, valueLamports)

	if pos.EntryCostLamports == 0 {
		return
	}
	ratio := float64(valueLamports) / float64(pos.EntryCostLamports)

	tier, tierIdx, ok := SelectTier(tiers, ratio, pos.SoldPercent)
	if !ok {
		return
	}

	qty := SellQuantity(balance, pos.SoldPercent, tier.SellPercent)
	if qty == 0 {
		return
	}

	log.Info().
		Str("mint", pos.Mint).
		Float64("ratio", ratio).
		Float64("tierMultiplier", tier.Multiplier).
		Float64("targetPercent", tier.SellPercent).
		Uint64("qty", qty).
		Msg("tp: tier crossed, selling")

	sig, err := m.seller.ExecuteTPSell(ctx, pos.Mint, qty, decimals)
	if err != nil {
		if errors.Is(err, ErrNoTokens) {
			m.ledger.Remove(pos.Mint)
			return
		}
		// Tier left untriggered so it retries next tick.
		log.Error().Err(err).Str("mint", pos.Mint).Msg("tp: sell failed")
		return
	}

	// Receipts are not awaited; estimate proceeds from the quoted price.
	received := uint64(float64(qty) * price * 1e9)
	m.ledger.ReducePosition(pos.Mint, qty, received, state.TradeSellTakeProfit, sig)
	m.ledger.MarkTPTriggered(pos.Mint, tierIdx)
	m.ledger.SetSoldPercent(pos.Mint, tier.SellPercent)

	log.Info().
		Str("mint", pos.Mint).
		Str("sig", sig).
		Float64("soldPercent", tier.SellPercent).
		Msg("tp: sell submitted")
}
