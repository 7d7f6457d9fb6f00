// Package config loads run configuration from the environment, layered
// over each subsystem's documented defaults.
package config

import (
	"fmt"

	"backtestengine/internal/broker"
	"backtestengine/internal/engine"
	"backtestengine/internal/guard"
	"backtestengine/internal/logger"

	"github.com/caarlos0/env/v11"
)

// AppConfig is the top-level process configuration: logging level and
// which symbols to run.
type AppConfig struct {
	LogLevel string   `env:"LOG_LEVEL" envDefault:"info"`
	Symbols  []string `env:"SYMBOLS" envSeparator:"," envDefault:"BTCUSDT"`
}

// EngineConfig mirrors engine.Config's tunables as environment variables.
type EngineConfig struct {
	TickIntervalMs                    int64 `env:"TICK_INTERVAL_MS" envDefault:"0"`
	HasTradingWindow                  bool  `env:"HAS_TRADING_WINDOW" envDefault:"false"`
	TradingStartMs                    int64 `env:"TRADING_START_MS" envDefault:"0"`
	TradingEndMs                      int64 `env:"TRADING_END_MS" envDefault:"0"`
	BlockAllOutsideWindow             bool  `env:"BLOCK_ALL_OUTSIDE_WINDOW" envDefault:"false"`
	AllowReducingOutsideTradingWindow bool  `env:"ALLOW_REDUCING_OUTSIDE_WINDOW" envDefault:"true"`
	StrictEventTimeMonotonic          bool  `env:"STRICT_EVENT_TIME_MONOTONIC" envDefault:"true"`
	BookGuardEnabled                  bool  `env:"BOOK_GUARD_ENABLED" envDefault:"false"`
	BookGuardSymbol                   string `env:"BOOK_GUARD_SYMBOL" envDefault:""`
	FundingAppliesToAllPositions      bool  `env:"FUNDING_APPLIES_TO_ALL_POSITIONS" envDefault:"false"`
}

// BrokerConfig mirrors broker.Config's tunables as environment variables.
type BrokerConfig struct {
	MakerFeeFrac            float64 `env:"MAKER_FEE_FRAC" envDefault:"0.0004"`
	TakerFeeFrac            float64 `env:"TAKER_FEE_FRAC" envDefault:"0.0005"`
	SubmitLatencyMs         int64   `env:"SUBMIT_LATENCY_MS" envDefault:"0"`
	CancelLatencyMs         int64   `env:"CANCEL_LATENCY_MS" envDefault:"0"`
	TakerSlippageBps        float64 `env:"TAKER_SLIPPAGE_BPS" envDefault:"0"`
	TakerSlippageSpreadFrac float64 `env:"TAKER_SLIPPAGE_SPREAD_FRAC" envDefault:"0"`
	TakerSlippageAbs        float64 `env:"TAKER_SLIPPAGE_ABS" envDefault:"0"`
	MakerQueueAheadFactor   float64 `env:"MAKER_QUEUE_AHEAD_FACTOR" envDefault:"1.0"`
	MakerQueueAheadExtraQty float64 `env:"MAKER_QUEUE_AHEAD_EXTRA_QTY" envDefault:"0"`
	MakerTradeParticipation float64 `env:"MAKER_TRADE_PARTICIPATION" envDefault:"1.0"`
}

// GuardConfig mirrors guard.Config's tunables as environment variables.
type GuardConfig struct {
	Enabled            bool    `env:"GUARD_ENABLED" envDefault:"false"`
	MaxSpread          float64 `env:"GUARD_MAX_SPREAD" envDefault:"0"`
	MaxSpreadBps       float64 `env:"GUARD_MAX_SPREAD_BPS" envDefault:"5.0"`
	CooldownMs         int64   `env:"GUARD_COOLDOWN_MS" envDefault:"1000"`
	WarmupDepthUpdates int64   `env:"GUARD_WARMUP_DEPTH_UPDATES" envDefault:"1000"`
	MaxStalenessMs     int64   `env:"GUARD_MAX_STALENESS_MS" envDefault:"500"`
	ResetOnMismatch    bool    `env:"GUARD_RESET_ON_MISMATCH" envDefault:"true"`
	ResetOnCrossed     bool    `env:"GUARD_RESET_ON_CROSSED" envDefault:"true"`
	ResetOnMissingSide bool    `env:"GUARD_RESET_ON_MISSING_SIDE" envDefault:"false"`
	ResetOnSpread      bool    `env:"GUARD_RESET_ON_SPREAD" envDefault:"false"`
	ResetOnStale       bool    `env:"GUARD_RESET_ON_STALE" envDefault:"false"`
}

// Config is the full environment-sourced configuration for one run.
type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	Engine EngineConfig `envPrefix:"ENGINE_"`
	Broker BrokerConfig `envPrefix:"BROKER_"`
	Guard  GuardConfig  `envPrefix:"GUARD_"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogLevel converts App.LogLevel into a logger.Level, defaulting to info
// on an unrecognized value.
func (c *Config) LogLevel() logger.Level {
	switch c.App.LogLevel {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// BuildEngineConfig builds an engine.Config from the environment-sourced
// values, layered over engine.NewConfig's defaults.
func (c *Config) BuildEngineConfig() engine.Config {
	cfg := engine.NewConfig()
	cfg.TickIntervalMs = c.Engine.TickIntervalMs
	cfg.HasTradingWindow = c.Engine.HasTradingWindow
	cfg.TradingStartMs = c.Engine.TradingStartMs
	cfg.TradingEndMs = c.Engine.TradingEndMs
	if c.Engine.BlockAllOutsideWindow {
		cfg.TradingWindowMode = engine.BlockAll
	} else {
		cfg.TradingWindowMode = engine.EntryOnly
	}
	cfg.AllowReducingOutsideTradingWindow = c.Engine.AllowReducingOutsideTradingWindow
	cfg.StrictEventTimeMonotonic = c.Engine.StrictEventTimeMonotonic
	cfg.BookGuardEnabled = c.Engine.BookGuardEnabled
	cfg.BookGuardSymbol = c.Engine.BookGuardSymbol
	cfg.FundingAppliesToAllPositions = c.Engine.FundingAppliesToAllPositions
	return cfg
}

// BuildBrokerConfig builds a broker.Config from the environment-sourced
// values, layered over broker.NewConfig's defaults.
func (c *Config) BuildBrokerConfig() broker.Config {
	cfg := broker.NewConfig()
	cfg.MakerFeeFrac = c.Broker.MakerFeeFrac
	cfg.TakerFeeFrac = c.Broker.TakerFeeFrac
	cfg.SubmitLatencyMs = c.Broker.SubmitLatencyMs
	cfg.CancelLatencyMs = c.Broker.CancelLatencyMs
	cfg.TakerSlippageBps = c.Broker.TakerSlippageBps
	cfg.TakerSlippageSpreadFrac = c.Broker.TakerSlippageSpreadFrac
	cfg.TakerSlippageAbs = c.Broker.TakerSlippageAbs
	cfg.MakerQueueAheadFactor = c.Broker.MakerQueueAheadFactor
	cfg.MakerQueueAheadExtraQty = c.Broker.MakerQueueAheadExtraQty
	cfg.MakerTradeParticipation = c.Broker.MakerTradeParticipation
	return cfg
}

// BuildGuardConfig builds a guard.Config from the environment-sourced
// values, layered over guard.NewConfig's defaults.
func (c *Config) BuildGuardConfig() guard.Config {
	cfg := guard.NewConfig()
	cfg.Enabled = c.Guard.Enabled
	cfg.MaxSpread, cfg.HasMaxSpread = c.Guard.MaxSpread, c.Guard.MaxSpread > 0
	cfg.MaxSpreadBps, cfg.HasMaxSpreadBps = c.Guard.MaxSpreadBps, c.Guard.MaxSpreadBps > 0
	cfg.CooldownMs = c.Guard.CooldownMs
	cfg.WarmupDepthUpdates = c.Guard.WarmupDepthUpdates
	cfg.MaxStalenessMs = c.Guard.MaxStalenessMs
	cfg.ResetOnMismatch = c.Guard.ResetOnMismatch
	cfg.ResetOnCrossed = c.Guard.ResetOnCrossed
	cfg.ResetOnMissingSide = c.Guard.ResetOnMissingSide
	cfg.ResetOnSpread = c.Guard.ResetOnSpread
	cfg.ResetOnStale = c.Guard.ResetOnStale
	return cfg
}
