package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"frvi-monitor/infrastructure/logger"
)

const (
	SourceREST   = "rest"
	SourceWS     = "ws"
	SourceReplay = "replay"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env            string        `yaml:"env"`
	Symbol         string        `yaml:"symbol"`
	Levels         int           `yaml:"levels"`         // 深度平均使用的档位数，启动后不可修改
	PollIntervalMs int           `yaml:"pollIntervalMs"` // 取样间隔（毫秒），可热更新
	ResetAfterMs   int           `yaml:"resetAfterMs"`   // 两次成功取样间隔超过该值则重置 ΔS 基准，0 表示关闭
	Source         string        `yaml:"source"`         // rest | ws | replay
	ReplayFile     string        `yaml:"replayFile"`
	Gateway        GatewayConfig `yaml:"gateway"`
	Metrics        MetricsConfig `yaml:"metrics"`
	Log            logger.Config `yaml:"log"`
}

type GatewayConfig struct {
	RestURL     string  `yaml:"restURL"`
	WSEndpoint  string  `yaml:"wsEndpoint"`
	Rate        float64 `yaml:"rate"`  // REST 限流：每秒令牌数
	Burst       int     `yaml:"burst"` // REST 限流：最大突发令牌数
	TimeoutMs   int     `yaml:"timeoutMs"`
	MaxRetries  int     `yaml:"maxRetries"`
	BackoffMs   int     `yaml:"backoffMs"`
	RatioPeriod string  `yaml:"ratioPeriod"` // 多空账户比周期，如 5m
	MaxStaleMs  int     `yaml:"maxStaleMs"`  // WS 盘口最大允许滞后
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default 返回带默认值的配置。
func Default() AppConfig {
	return AppConfig{
		Env:            "dev",
		Symbol:         "BTCUSDT",
		Levels:         5,
		PollIntervalMs: 60000,
		Source:         SourceREST,
		Gateway: GatewayConfig{
			RestURL:     "https://fapi.binance.com",
			WSEndpoint:  "wss://fstream.binance.com",
			Rate:        5,
			Burst:       10,
			TimeoutMs:   10000,
			MaxRetries:  3,
			BackoffMs:   500,
			RatioPeriod: "5m",
			MaxStaleMs:  5000,
		},
		Metrics: MetricsConfig{Addr: ":9100"},
		Log:     logger.DefaultConfig(),
	}
}

// PollInterval 返回取样间隔。
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ResetAfter 返回触发重置的数据断档时长；0 表示关闭。
func (c AppConfig) ResetAfter() time.Duration {
	return time.Duration(c.ResetAfterMs) * time.Millisecond
}

// Load reads YAML config from path, fills defaults and applies validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.Symbol = strings.ToUpper(cfg.Symbol)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("FRVI_SYMBOL"); v != "" {
		cfg.Symbol = strings.ToUpper(v)
	}
	if v := os.Getenv("FRVI_REST_URL"); v != "" {
		cfg.Gateway.RestURL = v
	}
	if v := os.Getenv("FRVI_WS_ENDPOINT"); v != "" {
		cfg.Gateway.WSEndpoint = v
	}
	if v := os.Getenv("FRVI_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Symbol == "" {
		return ErrInvalid("symbol is required")
	}
	if cfg.Levels <= 0 {
		return ErrInvalid("levels must be > 0")
	}
	if cfg.PollIntervalMs <= 0 {
		return ErrInvalid("pollIntervalMs must be > 0")
	}
	if cfg.ResetAfterMs < 0 {
		return ErrInvalid("resetAfterMs must be >= 0")
	}
	switch cfg.Source {
	case SourceREST, SourceWS:
		if cfg.Gateway.RestURL == "" {
			return ErrInvalid("gateway.restURL is required")
		}
		if cfg.Source == SourceWS && cfg.Gateway.WSEndpoint == "" {
			return ErrInvalid("gateway.wsEndpoint is required for ws source")
		}
	case SourceReplay:
		if cfg.ReplayFile == "" {
			return ErrInvalid("replayFile is required for replay source")
		}
	default:
		return ErrInvalid(fmt.Sprintf("unknown source %q", cfg.Source))
	}
	if cfg.Gateway.Rate < 0 || cfg.Gateway.Burst < 0 {
		return ErrInvalid("gateway.rate/burst must be >= 0")
	}
	if cfg.Gateway.TimeoutMs < 0 || cfg.Gateway.MaxRetries < 0 || cfg.Gateway.BackoffMs < 0 || cfg.Gateway.MaxStaleMs < 0 {
		return ErrInvalid("gateway timeouts/retries must be >= 0")
	}
	return nil
}
