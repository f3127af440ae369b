// Package config loads the bot configuration from the environment, with an
// optional YAML overlay for the values that are safe to hot-reload.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"solana-copy-bot/internal/tip"
	"solana-copy-bot/internal/trading"
)

const (
	defaultSolanaRPCURL     = "https://api.mainnet-beta.solana.com"
	defaultPumpAPIURL       = "https://pumpportal.fun"
	defaultAggregatorAPIURL = "https://quote-api.jup.ag/v6"
	defaultHeliusHost       = "mainnet.helius-rpc.com"
)

// Config is the full bot configuration. Identity and endpoint values are
// fixed at startup; take-profit tiers and tip amounts may be replaced at
// runtime through the overlay file.
type Config struct {
	PrivateKey   string
	TargetWallet string
	HeliusAPIKey string

	SolanaRPCURL     string
	PumpAPIURL       string
	AggregatorAPIURL string

	BuyAmountSOL    float64
	MaxBuyAmountSOL float64
	SlippageBps     int

	TipNormal    uint64
	TipEmergency uint64
	TipMax       uint64

	TakeProfitEnabled bool
	TakeProfitTiers   []trading.Tier

	ReconnectDelayMs     int
	MaxReconnectAttempts int

	LogJSON   bool
	LogLevel  string
	StatsPort int
}

// ReconnectDelay returns the reconnect delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// BuyAmountLamports returns the configured buy size in lamports.
func (c *Config) BuyAmountLamports() uint64 {
	return uint64(c.BuyAmountSOL * 1e9)
}

// Tips returns the priority-fee table.
func (c *Config) Tips() tip.Config {
	return tip.Config{
		NormalLamports:    c.TipNormal,
		EmergencyLamports: c.TipEmergency,
		MaxLamports:       c.TipMax,
	}
}

// WSURL returns the stream endpoint. HELIUS_API_KEY may be a bare key or a
// full HTTPS URL; a URL is rewritten to the websocket scheme.
func (c *Config) WSURL() string {
	if strings.HasPrefix(c.HeliusAPIKey, "http") {
		url := strings.Replace(c.HeliusAPIKey, "https://", "wss://", 1)
		return strings.Replace(url, "http://", "ws://", 1)
	}
	return fmt.Sprintf("wss://%s/?api-key=%s", defaultHeliusHost, c.HeliusAPIKey)
}

// StreamRPCURL returns the HTTP RPC endpoint paired with the stream
// provider. A full URL is kept verbatim.
func (c *Config) StreamRPCURL() string {
	if strings.HasPrefix(c.HeliusAPIKey, "http") {
		return c.HeliusAPIKey
	}
	return fmt.Sprintf("https://%s/?api-key=%s", defaultHeliusHost, c.HeliusAPIKey)
}

// Manager holds the live configuration and serves hot-reloaded values.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, overlays and watches that YAML file for tier and tip changes.
func Load() (*Manager, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SOLANA_RPC_URL", defaultSolanaRPCURL)
	v.SetDefault("PUMP_API_URL", defaultPumpAPIURL)
	v.SetDefault("AGGREGATOR_API_URL", defaultAggregatorAPIURL)
	v.SetDefault("BUY_AMOUNT_SOL", 0.1)
	v.SetDefault("MAX_BUY_AMOUNT_SOL", 1.0)
	v.SetDefault("SLIPPAGE_BPS", 500)
	v.SetDefault("TIP_AMOUNT_NORMAL", 10_000)
	v.SetDefault("TIP_AMOUNT_EMERGENCY", 100_000)
	v.SetDefault("TIP_AMOUNT_MAX", 500_000)
	v.SetDefault("TAKE_PROFIT_ENABLED", true)
	v.SetDefault("RECONNECT_DELAY_MS", 1000)
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 10)
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STATS_PORT", 0)

	cfg := Config{
		PrivateKey:           v.GetString("PRIVATE_KEY"),
		TargetWallet:         v.GetString("TARGET_WALLET"),
		HeliusAPIKey:         v.GetString("HELIUS_API_KEY"),
		SolanaRPCURL:         v.GetString("SOLANA_RPC_URL"),
		PumpAPIURL:           v.GetString("PUMP_API_URL"),
		AggregatorAPIURL:     v.GetString("AGGREGATOR_API_URL"),
		BuyAmountSOL:         v.GetFloat64("BUY_AMOUNT_SOL"),
		MaxBuyAmountSOL:      v.GetFloat64("MAX_BUY_AMOUNT_SOL"),
		SlippageBps:          v.GetInt("SLIPPAGE_BPS"),
		TipNormal:            v.GetUint64("TIP_AMOUNT_NORMAL"),
		TipEmergency:         v.GetUint64("TIP_AMOUNT_EMERGENCY"),
		TipMax:               v.GetUint64("TIP_AMOUNT_MAX"),
		TakeProfitEnabled:    v.GetBool("TAKE_PROFIT_ENABLED"),
		ReconnectDelayMs:     v.GetInt("RECONNECT_DELAY_MS"),
		MaxReconnectAttempts: v.GetInt("MAX_RECONNECT_ATTEMPTS"),
		LogJSON:              v.GetBool("LOG_JSON"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		StatsPort:            v.GetInt("STATS_PORT"),
	}

	tiers, err := parseTiers(v.GetString("TAKE_PROFIT_TIERS"))
	if err != nil {
		return nil, fmt.Errorf("TAKE_PROFIT_TIERS: %w", err)
	}
	cfg.TakeProfitTiers = tiers

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}

	if overlayPath := v.GetString("CONFIG_FILE"); overlayPath != "" {
		if err := m.watchOverlay(overlayPath); err != nil {
			return nil, fmt.Errorf("config overlay: %w", err)
		}
	}

	return m, nil
}

func validate(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY not set")
	}
	if cfg.TargetWallet == "" {
		return fmt.Errorf("TARGET_WALLET not set")
	}
	if raw, err := base58.Decode(cfg.TargetWallet); err != nil || len(raw) != 32 {
		return fmt.Errorf("TARGET_WALLET is not a valid account id")
	}
	if cfg.HeliusAPIKey == "" {
		return fmt.Errorf("HELIUS_API_KEY not set")
	}
	if cfg.BuyAmountSOL <= 0 {
		return fmt.Errorf("BUY_AMOUNT_SOL must be positive")
	}
	if cfg.BuyAmountSOL > cfg.MaxBuyAmountSOL {
		return fmt.Errorf("BUY_AMOUNT_SOL %v exceeds MAX_BUY_AMOUNT_SOL %v", cfg.BuyAmountSOL, cfg.MaxBuyAmountSOL)
	}
	return nil
}

// parseTiers parses the TAKE_PROFIT_TIERS JSON array, falling back to the
// default 2x/3x/5x ladder when unset. Tiers are kept sorted by multiplier.
func parseTiers(raw string) ([]trading.Tier, error) {
	if raw == "" {
		return []trading.Tier{
			{Multiplier: 2, SellPercent: 20},
			{Multiplier: 3, SellPercent: 30},
			{Multiplier: 5, SellPercent: 50},
		}, nil
	}

	var tiers []trading.Tier
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}
	return trading.SortTiers(tiers), nil
}

func validateTiers(tiers []trading.Tier) error {
	for i, t := range tiers {
		if t.Multiplier <= 1 {
			return fmt.Errorf("tier %d: multiplier %v must be above 1", i, t.Multiplier)
		}
		if t.SellPercent <= 0 || t.SellPercent > 100 {
			return fmt.Errorf("tier %d: sell_percent %v out of range (0,100]", i, t.SellPercent)
		}
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.cfg
	cfg.TakeProfitTiers = append([]trading.Tier(nil), m.cfg.TakeProfitTiers...)
	return cfg
}

// Tiers returns the current take-profit ladder; the monitor calls this
// every tick so overlay changes apply without a restart.
func (m *Manager) Tiers() []trading.Tier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]trading.Tier(nil), m.cfg.TakeProfitTiers...)
}

// overlay is the YAML overlay schema: only hot-reloadable values.
type overlay struct {
	TakeProfitTiers    []trading.Tier `mapstructure:"take_profit_tiers"`
	TipAmountNormal    uint64         `mapstructure:"tip_amount_normal"`
	TipAmountEmergency uint64         `mapstructure:"tip_amount_emergency"`
	TipAmountMax       uint64         `mapstructure:"tip_amount_max"`
}

func (m *Manager) watchOverlay(path string) error {
	ov := viper.New()
	ov.SetConfigFile(path)
	ov.SetConfigType("yaml")

	if err := ov.ReadInConfig(); err != nil {
		return err
	}
	if err := m.applyOverlay(ov); err != nil {
		return err
	}

	ov.WatchConfig()
	ov.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config overlay changed, reloading")
		if err := ov.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("overlay reload failed")
			return
		}
		if err := m.applyOverlay(ov); err != nil {
			log.Error().Err(err).Msg("overlay rejected")
		}
	})

	log.Info().Str("file", path).Msg("config overlay loaded")
	return nil
}

func (m *Manager) applyOverlay(ov *viper.Viper) error {
	var o overlay
	if err := ov.Unmarshal(&o); err != nil {
		return fmt.Errorf("unmarshal overlay: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(o.TakeProfitTiers) > 0 {
		if err := validateTiers(o.TakeProfitTiers); err != nil {
			return err
		}
		m.cfg.TakeProfitTiers = trading.SortTiers(o.TakeProfitTiers)
	}
	if o.TipAmountNormal > 0 {
		m.cfg.TipNormal = o.TipAmountNormal
	}
	if o.TipAmountEmergency > 0 {
		m.cfg.TipEmergency = o.TipAmountEmergency
	}
	if o.TipAmountMax > 0 {
		m.cfg.TipMax = o.TipAmountMax
	}
	return nil
}
