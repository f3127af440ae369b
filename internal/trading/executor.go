// Package trading contains the swap executor and the take-profit monitor.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/blockchain"
	"solana-copy-bot/internal/jupiter"
	"solana-copy-bot/internal/pumpfun"
	"solana-copy-bot/internal/tip"
)

// ErrNoTokens is returned when a sell is requested with zero follower
// balance. Callers treat it as a normal outcome, not a failure.
var ErrNoTokens = errors.New("no tokens to sell")

// Executor turns classified leader actions into signed, submitted swaps.
// Routing: pump-suffixed mints use the pump venue's single-round-trip
// endpoint, everything else goes through the aggregator.
type Executor struct {
	wallet       *blockchain.Wallet
	rpc          *blockchain.RPCClient
	pump         *pumpfun.Client
	aggregator   *jupiter.Client
	tips         func() tip.Config
	buyAmountSOL float64
	metrics      *Metrics
}

// NewExecutor creates a swap executor. tips is read per trade so fee
// amounts can be hot-reloaded.
func NewExecutor(
	wallet *blockchain.Wallet,
	rpc *blockchain.RPCClient,
	pump *pumpfun.Client,
	aggregator *jupiter.Client,
	tips func() tip.Config,
	buyAmountSOL float64,
) *Executor {
	return &Executor{
		wallet:       wallet,
		rpc:          rpc,
		pump:         pump,
		aggregator:   aggregator,
		tips:         tips,
		buyAmountSOL: buyAmountSOL,
		metrics:      NewMetrics(),
	}
}

// Metrics exposes the executor's latency tracker.
func (e *Executor) Metrics() *Metrics {
	return e.metrics
}

// IsPumpToken reports whether a mint routes to the pump venue, by its
// naming convention.
func IsPumpToken(mint string) bool {
	return strings.HasSuffix(mint, "pump")
}

var base58Set = func() [256]bool {
	var set [256]bool
	const base58Chars = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for i := 0; i < len(base58Chars); i++ {
		set[base58Chars[i]] = true
	}
	return set
}()

func validateMint(mint string) error {
	if len(mint) < 32 || len(mint) > 44 {
		return fmt.Errorf("invalid token mint %q: bad length %d", mint, len(mint))
	}
	for i := 0; i < len(mint); i++ {
		if !base58Set[mint[i]] {
			return fmt.Errorf("invalid token mint %q: non-base58 character", mint)
		}
	}
	return nil
}

// ExecuteCopyBuy mirrors a leader buy with the configured fixed SOL amount
// and returns our transaction signature. Confirmation is not awaited.
func (e *Executor) ExecuteCopyBuy(ctx context.Context, mint string) (string, error) {
	if err := validateMint(mint); err != nil {
		return "", err
	}

	timer := NewTradeTimer()

	if IsPumpToken(mint) {
		req := pumpfun.BuyRequest(e.wallet.Address(), mint, e.buyAmountSOL, e.tips().AmountSOL(tip.Normal))
		txBytes, err := e.pump.TradeLocal(ctx, req)
		if err == nil {
			timer.MarkQuoteDone()
			return e.signAndSubmitBytes(ctx, timer, txBytes)
		}
		// Any pump rejection on buy falls through to the aggregator once.
		log.Warn().Err(err).Str("mint", mint).Msg("pump buy failed, falling back to aggregator")
	}

	lamports := uint64(e.buyAmountSOL * 1e9)
	txBase64, err := e.aggregator.GetSwapTransaction(ctx, jupiter.SOLMint, mint, e.wallet.Address(), lamports, e.tips().Amount(tip.Normal))
	if err != nil {
		e.metrics.RecordTrade(false, timer)
		return "", fmt.Errorf("aggregator buy: %w", err)
	}
	timer.MarkQuoteDone()

	return e.signAndSubmitBase64(ctx, timer, txBase64)
}

// ExecuteCopySell exits the full current balance of a token because the
// leader sold it.
func (e *Executor) ExecuteCopySell(ctx context.Context, mint string) (string, error) {
	if err := validateMint(mint); err != nil {
		return "", err
	}

	balance, decimals, err := e.TokenBalance(ctx, mint)
	if err != nil {
		return "", fmt.Errorf("resolve balance: %w", err)
	}
	if balance == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoTokens, mint)
	}

	return e.sell(ctx, mint, balance, decimals, tip.Emergency)
}

// ExecuteTPSell sells an exact raw quantity for a take-profit tier.
func (e *Executor) ExecuteTPSell(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error) {
	if err := validateMint(mint); err != nil {
		return "", err
	}
	if amountRaw == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoTokens, mint)
	}

	return e.sell(ctx, mint, amountRaw, decimals, tip.Normal)
}

func (e *Executor) sell(ctx context.Context, mint string, amountRaw uint64, decimals uint8, level tip.Level) (string, error) {
	timer := NewTradeTimer()

	if IsPumpToken(mint) {
		txBytes, err := e.pumpSell(ctx, mint, amountRaw, decimals, level)
		if err != nil {
			e.metrics.RecordTrade(false, timer)
			return "", err
		}
		timer.MarkQuoteDone()
		return e.signAndSubmitBytes(ctx, timer, txBytes)
	}

	txBase64, err := e.aggregator.GetSwapTransaction(ctx, mint, jupiter.SOLMint, e.wallet.Address(), amountRaw, e.tips().Amount(level))
	if err != nil {
		e.metrics.RecordTrade(false, timer)
		return "", fmt.Errorf("aggregator sell: %w", err)
	}
	timer.MarkQuoteDone()

	return e.signAndSubmitBase64(ctx, timer, txBase64)
}

// pumpSell tries each amount encoding against the pump sell endpoint until
// one is accepted. There is no cross-venue fallback for pump sells; the
// encoding walk is the whole retry policy.
func (e *Executor) pumpSell(ctx context.Context, mint string, amountRaw uint64, decimals uint8, level tip.Level) ([]byte, error) {
	var lastErr error
	for i, amount := range pumpfun.SellAmountEncodings(amountRaw, decimals) {
		req := pumpfun.SellRequest(e.wallet.Address(), mint, amount, e.tips().AmountSOL(level))
		txBytes, err := e.pump.TradeLocal(ctx, req)
		if err == nil {
			if i > 0 {
				log.Debug().Str("mint", mint).Int("encoding", i).Msg("pump sell accepted after encoding retry")
			}
			return txBytes, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("mint", mint).Int("encoding", i).Msg("pump sell encoding rejected")
	}
	return nil, fmt.Errorf("pump sell rejected all amount encodings: %w", lastErr)
}

func (e *Executor) signAndSubmitBytes(ctx context.Context, timer *TradeTimer, txBytes []byte) (string, error) {
	signed, err := blockchain.SignTransaction(e.wallet, txBytes)
	if err != nil {
		e.metrics.RecordTrade(false, timer)
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	timer.MarkSignDone()
	return e.submit(ctx, timer, signed)
}

func (e *Executor) signAndSubmitBase64(ctx context.Context, timer *TradeTimer, txBase64 string) (string, error) {
	signed, err := blockchain.SignBase64Transaction(e.wallet, txBase64)
	if err != nil {
		e.metrics.RecordTrade(false, timer)
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	timer.MarkSignDone()
	return e.submit(ctx, timer, signed)
}

func (e *Executor) submit(ctx context.Context, timer *TradeTimer, signedTxBase64 string) (string, error) {
	sig, err := e.rpc.SendTransaction(ctx, signedTxBase64)
	if err != nil {
		e.metrics.RecordTrade(false, timer)
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	timer.MarkSendDone()
	e.metrics.RecordTrade(true, timer)

	log.Info().
		Str("sig", sig).
		Int64("totalMs", timer.TotalMs()).
		Msg("transaction submitted")
	return sig, nil
}

// TokenBalance sums the follower's holdings of a mint across all token
// accounts under both token programs. When the owner filter call fails, it
// falls back to the derived associated token account of each program
// variant.
func (e *Executor) TokenBalance(ctx context.Context, mint string) (uint64, uint8, error) {
	accounts, err := e.rpc.GetTokenAccountsByOwner(ctx, e.wallet.Address(), mint)
	if err == nil {
		var total uint64
		var decimals uint8
		for _, acc := range accounts {
			total += acc.Amount
			decimals = acc.Decimals
		}
		return total, decimals, nil
	}

	log.Warn().Err(err).Str("mint", mint).Msg("token account filter failed, deriving ATAs")

	var total uint64
	var decimals uint8
	var lastErr error
	found := false
	for _, program := range []string{blockchain.TokenProgramID, blockchain.Token2022ProgramID} {
		ata, derr := blockchain.DeriveAssociatedTokenAccount(e.wallet.Address(), mint, program)
		if derr != nil {
			lastErr = derr
			continue
		}
		amount, dec, berr := e.rpc.GetTokenAccountBalance(ctx, ata)
		if berr != nil {
			lastErr = berr
			continue
		}
		found = true
		total += amount
		if amount > 0 {
			decimals = dec
		}
	}

	if !found {
		return 0, 0, fmt.Errorf("resolve token accounts: %w", lastErr)
	}
	return total, decimals, nil
}

// priceTimeout bounds the price probe on the take-profit path.
const priceTimeout = 3 * time.Second
