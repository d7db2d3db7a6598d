package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Limit struct {
	RequestsPerHour   int     `yaml:"requests_per_hour"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	BurstLimit        int     `yaml:"burst_limit"`
	BackoffEnabled    *bool   `yaml:"backoff_enabled"` // nil means enabled
	BaseDelaySeconds  float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds   float64 `yaml:"max_delay_seconds"`
}

// BackoffOn resolves the optional flag; backoff defaults to enabled.
func (l Limit) BackoffOn() bool {
	return l.BackoffEnabled == nil || *l.BackoffEnabled
}

type Cache struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

type Fetch struct {
	DelayBetweenMs int `yaml:"delay_between_ms"`
	MaxRetries     int `yaml:"max_retries"`
}

type Provider struct {
	Mode      string `yaml:"mode"` // live | stub
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type Refresh struct {
	Enabled   bool     `yaml:"enabled"`
	Strategy  string   `yaml:"strategy"` // conservative | normal | aggressive | realtime
	API       string   `yaml:"api"`
	Watchlist []string `yaml:"watchlist"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Store struct {
	Path string `yaml:"path"` // empty disables the sqlite store
}

type Usage struct {
	Path string `yaml:"path"` // empty disables the jsonl usage file
}

type Root struct {
	LogLevel        string           `yaml:"log_level"`
	Server          Server           `yaml:"server"`
	APIs            map[string]Limit `yaml:"apis"`
	Cache           Cache            `yaml:"cache"`
	Fetch           Fetch            `yaml:"fetch"`
	Provider        Provider         `yaml:"provider"`
	Refresh         Refresh          `yaml:"refresh"`
	DrainIntervalMs int              `yaml:"drain_interval_ms"`
	Store           Store            `yaml:"store"`
	Usage           Usage            `yaml:"usage"`
}

// DefaultLimits returns the built-in per-api limits applied when the config
// file omits the apis section.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"yahoo_finance": {
			RequestsPerHour:   100,
			RequestsPerMinute: 10,
			BurstLimit:        5,
			BaseDelaySeconds:  1,
			MaxDelaySeconds:   300,
		},
		"j_quants": {
			RequestsPerHour:   500,
			RequestsPerMinute: 30,
			BurstLimit:        10,
			BaseDelaySeconds:  1,
			MaxDelaySeconds:   300,
		},
	}
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	return c, nil
}

// Defaults returns a config with every field at its built-in default,
// for callers that run without a config file.
func Defaults() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}

	if len(c.APIs) == 0 {
		c.APIs = DefaultLimits()
	}
	for name, l := range c.APIs {
		if l.RequestsPerHour == 0 {
			l.RequestsPerHour = 100
		}
		if l.BaseDelaySeconds == 0 {
			l.BaseDelaySeconds = 1
		}
		if l.MaxDelaySeconds == 0 {
			l.MaxDelaySeconds = 300
		}
		c.APIs[name] = l
	}

	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 900
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 100
	}

	if c.Fetch.DelayBetweenMs == 0 {
		c.Fetch.DelayBetweenMs = 1000
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}

	if c.Provider.Mode == "" {
		c.Provider.Mode = "stub"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Provider.TimeoutMs == 0 {
		c.Provider.TimeoutMs = 10000
	}

	if c.Refresh.Strategy == "" {
		c.Refresh.Strategy = "normal"
	}
	if c.Refresh.API == "" {
		c.Refresh.API = "yahoo_finance"
	}

	if c.DrainIntervalMs == 0 {
		c.DrainIntervalMs = 5000
	}
}
