package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tradeflow/models"
)

type Config struct {
	Tradeflow TradeflowConfig `yaml:"tradeflow"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Trading   TradingConfig   `yaml:"trading"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TradeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	UsedWeight bool `yaml:"used_weight"`
}

type ExchangeConfig struct {
	// Network is the default network used before any credentials are
	// configured; active credentials carry their own network selection.
	Network        models.Network       `yaml:"network"`
	Live           EndpointConfig       `yaml:"live"`
	Sandbox        EndpointConfig       `yaml:"sandbox"`
	RecvWindowMs   int64                `yaml:"recv_window_ms"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type TradingConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DefaultSymbol   string        `yaml:"default_symbol"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Exchange: ExchangeConfig{
			Network:      models.NetworkSandbox,
			RecvWindowMs: 5000,
			Timeout:      10 * time.Second,
		},
		Metrics: MetricsConfig{
			UsedWeight: true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Base URLs can be overridden for testnets or proxies without
	// touching the file.
	if v := os.Getenv("TRADEFLOW_LIVE_BASE_URL"); v != "" {
		config.Exchange.Live.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("TRADEFLOW_SANDBOX_BASE_URL"); v != "" {
		config.Exchange.Sandbox.BaseURL = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tradeflow.Name == "" {
		return fmt.Errorf("tradeflow.name is required")
	}

	if cfg.Tradeflow.Version == "" {
		return fmt.Errorf("tradeflow.version is required")
	}

	if !cfg.Exchange.Network.Valid() {
		return fmt.Errorf("exchange.network must be %q or %q", models.NetworkLive, models.NetworkSandbox)
	}

	if cfg.Exchange.Live.BaseURL == "" {
		return fmt.Errorf("exchange.live.base_url is required")
	}
	if cfg.Exchange.Sandbox.BaseURL == "" {
		return fmt.Errorf("exchange.sandbox.base_url is required")
	}

	if cfg.Exchange.RecvWindowMs <= 0 {
		return fmt.Errorf("exchange.recv_window_ms must be greater than 0")
	}
	if cfg.Exchange.Timeout <= 0 {
		return fmt.Errorf("exchange.timeout must be greater than 0")
	}

	if cfg.Exchange.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("exchange.rate_limit.requests_per_second must not be negative")
	}

	if cfg.Trading.RefreshInterval <= 0 {
		return fmt.Errorf("trading.refresh_interval must be greater than 0")
	}

	return nil
}
