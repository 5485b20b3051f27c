package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	minPollIntervalSec = 15
	maxPollIntervalSec = 30
)

type Config struct {
	App struct {
		LogLevel    string `toml:"log_level" yaml:"log_level"`
		ThrottleMS  int    `toml:"throttle_ms" yaml:"throttle_ms"`
		EventBuffer int    `toml:"event_buffer" yaml:"event_buffer"`
	} `toml:"app" yaml:"app"`

	Instruments struct {
		List   []string `toml:"list" yaml:"list"`
		Active string   `toml:"active" yaml:"active"`
	} `toml:"instruments" yaml:"instruments"`

	Feed struct {
		Exchange            string `toml:"exchange" yaml:"exchange"`
		WsURL               string `toml:"ws_url" yaml:"ws_url"`
		RestURL             string `toml:"rest_url" yaml:"rest_url"`
		ReconnectBackoffSec int    `toml:"reconnect_backoff_sec" yaml:"reconnect_backoff_sec"`
		RequestTimeoutSec   int    `toml:"request_timeout_sec" yaml:"request_timeout_sec"`
		ChangeRefreshSec    int    `toml:"change_refresh_sec" yaml:"change_refresh_sec"`
		ClosesRefreshSec    int    `toml:"closes_refresh_sec" yaml:"closes_refresh_sec"`
		ClosesInterval      string `toml:"closes_interval" yaml:"closes_interval"`
		ClosesCount         int    `toml:"closes_count" yaml:"closes_count"`
		PollIntervalSec     int    `toml:"poll_interval_sec" yaml:"poll_interval_sec"`
	} `toml:"feed" yaml:"feed"`

	Storage struct {
		Driver string `toml:"driver" yaml:"driver"`

		SQLite struct {
			Path string `toml:"path" yaml:"path"`
		} `toml:"sqlite" yaml:"sqlite"`

		Postgres struct {
			DSN string `toml:"dsn" yaml:"dsn"`
		} `toml:"postgres" yaml:"postgres"`

		Redis struct {
			Enabled       bool   `toml:"enabled" yaml:"enabled"`
			Addr          string `toml:"addr" yaml:"addr"`
			Password      string `toml:"password" yaml:"password"`
			DB            int    `toml:"db" yaml:"db"`
			Prefix        string `toml:"prefix" yaml:"prefix"`
			TTLSeconds    int    `toml:"ttl_seconds" yaml:"ttl_seconds"`
			SignalStream  string `toml:"signal_stream" yaml:"signal_stream"`
			SignalChannel string `toml:"signal_channel" yaml:"signal_channel"`
		} `toml:"redis" yaml:"redis"`
	} `toml:"storage" yaml:"storage"`
}

// Load reads a .toml, .yaml or .yml file, fills defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	_ = validate(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.ThrottleMS <= 0 {
		cfg.App.ThrottleMS = 250
	}
	if cfg.App.EventBuffer <= 0 {
		cfg.App.EventBuffer = 64
	}

	if cfg.Feed.Exchange == "" {
		cfg.Feed.Exchange = "binance"
	}
	if cfg.Feed.WsURL == "" {
		cfg.Feed.WsURL = "wss://stream.binance.com:9443"
	}
	if cfg.Feed.RestURL == "" {
		cfg.Feed.RestURL = "https://api.binance.com"
	}
	if cfg.Feed.ReconnectBackoffSec <= 0 {
		cfg.Feed.ReconnectBackoffSec = 5
	}
	if cfg.Feed.RequestTimeoutSec <= 0 {
		cfg.Feed.RequestTimeoutSec = 10
	}
	if cfg.Feed.ChangeRefreshSec <= 0 {
		cfg.Feed.ChangeRefreshSec = 60
	}
	if cfg.Feed.ClosesRefreshSec <= 0 {
		cfg.Feed.ClosesRefreshSec = 300
	}
	if cfg.Feed.ClosesInterval == "" {
		cfg.Feed.ClosesInterval = "1h"
	}
	if cfg.Feed.ClosesCount <= 0 {
		cfg.Feed.ClosesCount = 24
	}
	if cfg.Feed.PollIntervalSec <= 0 {
		cfg.Feed.PollIntervalSec = 20
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/pricewatch.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "pricewatch"
	}
	if cfg.Storage.Redis.TTLSeconds <= 0 {
		cfg.Storage.Redis.TTLSeconds = 3600
	}
}

func validate(cfg *Config) error {
	cfg.Instruments.List = normalizeSymbols(cfg.Instruments.List)
	cfg.Instruments.Active = strings.ToUpper(strings.TrimSpace(cfg.Instruments.Active))

	// the poll cadence is bounded, not rejected
	if cfg.Feed.PollIntervalSec < minPollIntervalSec {
		cfg.Feed.PollIntervalSec = minPollIntervalSec
	}
	if cfg.Feed.PollIntervalSec > maxPollIntervalSec {
		cfg.Feed.PollIntervalSec = maxPollIntervalSec
	}

	cfg.Feed.Exchange = strings.ToLower(strings.TrimSpace(cfg.Feed.Exchange))

	switch strings.ToLower(strings.TrimSpace(cfg.App.LogLevel)) {
	case "debug", "info", "warn", "error":
		cfg.App.LogLevel = strings.ToLower(strings.TrimSpace(cfg.App.LogLevel))
	default:
		return fmt.Errorf("app.log_level %q not one of debug|info|warn|error", cfg.App.LogLevel)
	}

	for name, raw := range map[string]string{"feed.ws_url": cfg.Feed.WsURL, "feed.rest_url": cfg.Feed.RestURL} {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q is not an absolute url", name, raw)
		}
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q not one of sqlite|postgres|memory", cfg.Storage.Driver)
	}

	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (c *Config) ThrottleInterval() time.Duration {
	return time.Duration(c.App.ThrottleMS) * time.Millisecond
}

func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Feed.ReconnectBackoffSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Feed.RequestTimeoutSec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feed.PollIntervalSec) * time.Second
}

func (c *Config) ChangeRefresh() time.Duration {
	return time.Duration(c.Feed.ChangeRefreshSec) * time.Second
}

func (c *Config) ClosesRefresh() time.Duration {
	return time.Duration(c.Feed.ClosesRefreshSec) * time.Second
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.Redis.TTLSeconds) * time.Second
}
