package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/api"
	"solana-copy-bot/internal/blockchain"
	"solana-copy-bot/internal/config"
	"solana-copy-bot/internal/decoder"
	"solana-copy-bot/internal/jupiter"
	"solana-copy-bot/internal/pumpfun"
	"solana-copy-bot/internal/state"
	"solana-copy-bot/internal/stream"
	"solana-copy-bot/internal/tip"
	"solana-copy-bot/internal/trading"
)

const venueTimeout = 10 * time.Second

func main() {
	godotenv.Load()

	cfgm, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgm.Get()

	setupLogger(cfg)
	log.Info().Msg("starting copy trader")

	wallet, err := blockchain.NewWallet(cfg.PrivateKey)
	if err != nil {
		log.Error().Err(err).Msg("invalid private key")
		os.Exit(1)
	}

	log.Info().
		Str("leader", cfg.TargetWallet).
		Str("follower", wallet.Address()).
		Float64("buyAmountSOL", cfg.BuyAmountSOL).
		Bool("takeProfit", cfg.TakeProfitEnabled).
		Msg("configuration loaded")

	rpc := blockchain.NewRPCClient(cfg.StreamRPCURL(), cfg.SolanaRPCURL)
	pump := pumpfun.NewClient(cfg.PumpAPIURL, venueTimeout)
	aggregator := jupiter.NewClient(cfg.AggregatorAPIURL, venueTimeout)

	ledger := state.NewLedger()
	executor := trading.NewExecutor(
		wallet,
		rpc,
		pump,
		aggregator,
		func() tip.Config { return cfgm.Get().Tips() },
		cfg.BuyAmountSOL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := stream.NewLoop(
		stream.Config{
			WSURL:                cfg.WSURL(),
			LeaderWallet:         cfg.TargetWallet,
			ReconnectDelay:       cfg.ReconnectDelay(),
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			BuyAmountLamports:    cfg.BuyAmountLamports(),
		},
		decoder.NewClassifier(cfg.TargetWallet),
		executor,
		ledger,
	)

	if cfg.TakeProfitEnabled {
		monitor := trading.NewMonitor(ledger, executor, pump, cfgm.Tiers)
		go monitor.Run(ctx)
	} else {
		log.Info().Msg("take-profit monitor disabled")
	}

	var statsServer *api.Server
	if cfg.StatsPort > 0 {
		statsServer = api.NewServer(cfg.StatsPort, ledger, loop.Status, executor.Metrics(), rpc)
		go func() {
			if err := statsServer.Start(); err != nil {
				log.Error().Err(err).Msg("stats server failed")
			}
		}()
	}

	err = loop.Run(ctx)

	if statsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		statsServer.Shutdown(shutdownCtx)
		cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		// In-flight swaps complete or fail against the remote endpoints on
		// their own; nothing to drain.
		log.Error().Err(err).Msg("stream loop terminated")
		os.Exit(1)
	}

	log.Info().Msg("shutdown complete")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
