package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fib-retest-bot/internal/alerts"
	"fib-retest-bot/internal/feed"
	"fib-retest-bot/internal/history"
	"fib-retest-bot/internal/retest"
	"fib-retest-bot/internal/trade"
	"fib-retest-bot/internal/venue/hyperliquid"

	"gopkg.in/yaml.v3"
)

const (
	VenueSim         = "sim"
	VenueHyperliquid = "hyperliquid"
)

type Config struct {
	Log      LoggingConfig      `yaml:"log"`
	Venue    VenueConfig        `yaml:"venue"`
	WS       feed.WSConfig      `yaml:"ws"`
	State    StateConfig        `yaml:"state"`
	Trade    TradeConfig        `yaml:"trade"`
	Retest   retest.Config      `yaml:"retest"`
	Engine   EngineConfig       `yaml:"engine"`
	Exec     ExecConfig         `yaml:"exec"`
	History  history.Config     `yaml:"history"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Telegram alerts.Config      `yaml:"telegram"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type VenueConfig struct {
	Mode        string             `yaml:"mode"` // sim or hyperliquid
	Hyperliquid hyperliquid.Config `yaml:"hyperliquid"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// TradeConfig is the operator's description of the one trade this run
// manages.
type TradeConfig struct {
	Symbol     string  `yaml:"symbol"`
	Side       string  `yaml:"side"` // buy or sell
	Quantity   float64 `yaml:"quantity"`
	Entry      float64 `yaml:"entry"`
	FibLow     float64 `yaml:"fib_low"`
	FibHigh    float64 `yaml:"fib_high"`
	StopLoss   float64 `yaml:"stop_loss"`
	TakeProfit float64 `yaml:"take_profit"`
}

// Spec converts the raw trade section into a validated trade spec.
func (t TradeConfig) Spec() (trade.Spec, error) {
	dir, err := trade.ParseSide(t.Side)
	if err != nil {
		return trade.Spec{}, err
	}
	spec := trade.Spec{
		Symbol:     t.Symbol,
		Direction:  dir,
		Quantity:   t.Quantity,
		Entry:      t.Entry,
		FibLow:     t.FibLow,
		FibHigh:    t.FibHigh,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
	}
	return spec, spec.Validate()
}

type EngineConfig struct {
	FeedTimeout    time.Duration `yaml:"feed_timeout"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

type ExecConfig struct {
	EntryAttempts int           `yaml:"entry_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Venue.Mode == "" {
		cfg.Venue.Mode = VenueSim
	}
	if cfg.Venue.Hyperliquid.BaseURL == "" {
		cfg.Venue.Hyperliquid.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.Venue.Hyperliquid.Timeout == 0 {
		cfg.Venue.Hyperliquid.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.Symbol == "" {
		cfg.WS.Symbol = cfg.Trade.Symbol
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/fib-retest-bot.db"
	}
	if cfg.Engine.FeedTimeout == 0 {
		cfg.Engine.FeedTimeout = 90 * time.Second
	}
	if cfg.Engine.StatusInterval == 0 {
		cfg.Engine.StatusInterval = 30 * time.Second
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9091"
	}
}

// applyEnv overlays secrets so they can stay out of the config file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FIB_PRIVATE_KEY")); v != "" {
		cfg.Venue.Hyperliquid.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("FIB_HISTORY_DSN")); v != "" {
		cfg.History.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("FIB_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("FIB_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func validate(cfg *Config) error {
	if _, err := cfg.Trade.Spec(); err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	switch cfg.Venue.Mode {
	case VenueSim:
	case VenueHyperliquid:
		if strings.TrimSpace(cfg.Venue.Hyperliquid.PrivateKey) == "" {
			return errors.New("venue.hyperliquid.private_key is required (or FIB_PRIVATE_KEY)")
		}
	default:
		return fmt.Errorf("venue.mode %q is not supported", cfg.Venue.Mode)
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when enabled")
	}
	return nil
}
