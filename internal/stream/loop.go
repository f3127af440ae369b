package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/decoder"
	"solana-copy-bot/internal/state"
	"solana-copy-bot/internal/trading"
)

// Trader is the executor surface the loop drives.
type Trader interface {
	ExecuteCopyBuy(ctx context.Context, mint string) (string, error)
	ExecuteCopySell(ctx context.Context, mint string) (string, error)
}

// Config holds the loop's connection and sizing parameters.
type Config struct {
	WSURL                string
	LeaderWallet         string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	BuyAmountLamports    uint64
}

// Status is a snapshot of the loop's health, served by the stats endpoint.
type Status struct {
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	EventsSeen        uint64 `json:"events_seen"`
	TradesCopied      uint64 `json:"trades_copied"`
	LastError         string `json:"last_error,omitempty"`
}

// Loop owns the subscription lifecycle and processes events sequentially.
// One event at a time keeps at most one outgoing swap in flight and keeps
// ordering intuitive; bursty leader activity queues behind the executor.
type Loop struct {
	cfg        Config
	classifier *decoder.Classifier
	trader     Trader
	ledger     *state.Ledger

	mu     sync.RWMutex
	status Status
}

// NewLoop creates the stream loop.
func NewLoop(cfg Config, classifier *decoder.Classifier, trader Trader, ledger *state.Ledger) *Loop {
	return &Loop{
		cfg:        cfg,
		classifier: classifier,
		trader:     trader,
		ledger:     ledger,
	}
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run maintains the subscription until the context is cancelled or the
// reconnect budget is exhausted. A stream that ends cleanly resets the
// attempt counter; an errored attempt sleeps reconnectDelay*attempts before
// the next try and the loop gives up once attempts exceed the maximum,
// propagating the last error to the process owner.
func (l *Loop) Run(ctx context.Context) error {
	attempts := 0

	for {
		err := l.runStream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			log.Info().Msg("stream ended, reconnecting")
			attempts = 0
			continue
		}

		attempts++
		l.setError(err, attempts)
		log.Error().
			Err(err).
			Int("attempt", attempts).
			Int("max", l.cfg.MaxReconnectAttempts).
			Msg("stream error")

		if attempts > l.cfg.MaxReconnectAttempts {
			return fmt.Errorf("stream reconnect attempts exhausted: %w", err)
		}

		backoff := Backoff(l.cfg.ReconnectDelay, attempts)
		log.Warn().Dur("backoff", backoff).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Backoff returns the linear reconnect delay before the attempt following
// the given number of consecutive errors.
func Backoff(reconnectDelay time.Duration, attempts int) time.Duration {
	return reconnectDelay * time.Duration(attempts)
}

// runStream runs one connection attempt: connect, subscribe, receive until
// the stream terminates.
func (l *Loop) runStream(ctx context.Context) error {
	sess, err := dial(ctx, l.cfg.WSURL, l.cfg.LeaderWallet)
	if err != nil {
		return err
	}
	defer sess.close()

	// Tear the connection down when the context ends so the blocked read
	// returns.
	stop := context.AfterFunc(ctx, sess.close)
	defer stop()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go sess.keepAlive(pingCtx)

	l.setConnected(true)
	defer l.setConnected(false)

	for {
		ev, err := sess.next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", err)
		}
		l.handleEvent(ctx, ev)
	}
}

// handleEvent runs one event through classify -> execute -> ledger.
func (l *Loop) handleEvent(ctx context.Context, ev decoder.LogEvent) {
	l.bumpEvents()

	if ev.Failed {
		log.Debug().Str("sig", ev.Signature).Msg("leader transaction failed, skipping")
		return
	}

	action := l.classifier.Classify(ev)
	switch action.Kind {
	case decoder.ActionBuy:
		l.handleBuy(ctx, ev, action.Mint)
	case decoder.ActionSell:
		l.handleSell(ctx, ev, action.Mint)
	default:
	}
}

func (l *Loop) handleBuy(ctx context.Context, ev decoder.LogEvent, mint string) {
	if mint == "" {
		// Extraction is best-effort: missing a trade beats delaying all
		// trades on a transaction fetch.
		log.Warn().Str("sig", ev.Signature).Uint64("slot", ev.Slot).Msg("buy detected but mint extraction missed, abandoning")
		return
	}

	if !l.ledger.CanCopyBuy(mint) {
		log.Debug().Str("mint", mint).Msg("duplicate buy suppressed")
		return
	}

	log.Info().Str("mint", mint).Str("leaderSig", ev.Signature).Uint64("slot", ev.Slot).Msg("leader buy detected, copying")

	sig, err := l.trader.ExecuteCopyBuy(ctx, mint)
	if err != nil {
		log.Error().Err(err).Str("mint", mint).Msg("copy buy failed")
		return
	}
	l.bumpTrades()

	l.ledger.AddPendingTx(sig, mint)
	// The fill is not awaited: the position starts with zero quantity and
	// the entry cost equals the configured buy amount. The take-profit
	// monitor syncs the real quantity from the first observed balance.
	l.ledger.OpenPosition(state.NewPosition(mint, 0, l.cfg.BuyAmountLamports, ev.Signature, sig))
}

func (l *Loop) handleSell(ctx context.Context, ev decoder.LogEvent, mint string) {
	if mint == "" {
		log.Warn().Str("sig", ev.Signature).Uint64("slot", ev.Slot).Msg("sell detected but mint extraction missed, abandoning")
		return
	}

	log.Info().Str("mint", mint).Str("leaderSig", ev.Signature).Uint64("slot", ev.Slot).Msg("leader sell detected, exiting")

	sig, err := l.trader.ExecuteCopySell(ctx, mint)
	if err != nil {
		if errors.Is(err, trading.ErrNoTokens) {
			// Never bought, or already exited via take-profit.
			log.Info().Str("mint", mint).Msg("nothing to sell, clearing tracked position")
			l.ledger.Remove(mint)
			return
		}
		log.Error().Err(err).Str("mint", mint).Msg("copy sell failed, position retained")
		return
	}
	l.bumpTrades()

	// Receipts are not awaited; the last observed value stands in for the
	// realized amount.
	received := uint64(0)
	if pos, ok := l.ledger.GetPosition(mint); ok {
		received = pos.CurrentValueLamports
	}
	l.ledger.AddPendingTx(sig, mint)
	l.ledger.ClosePosition(mint, received, state.TradeSellCopyExit, sig)
}

func (l *Loop) setConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Connected = connected
	if connected {
		l.status.ReconnectAttempts = 0
	}
}

func (l *Loop) setError(err error, attempts int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.LastError = err.Error()
	l.status.ReconnectAttempts = attempts
}

func (l *Loop) bumpEvents() {
	l.mu.Lock()
	l.status.EventsSeen++
	l.mu.Unlock()
}

func (l *Loop) bumpTrades() {
	l.mu.Lock()
	l.status.TradesCopied++
	l.mu.Unlock()
}
