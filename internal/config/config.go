package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultCronInterval  = 5 * time.Minute
	DefaultSafetyMargin  = 31 * time.Second // request timeout plus one second
	DefaultPollInterval  = 10 * time.Second
	DefaultPageSize      = 50
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Config represents the global ~/.msgsync/config.toml.
type Config struct {
	DefaultSite string                `toml:"default_site"`
	Sites       map[string]SiteConfig `toml:"sites"`
	Sync        SyncConfig            `toml:"sync"`
	Discussion  DiscussionConfig      `toml:"discussion"`
	Network     NetworkConfig         `toml:"network"`
}

// SiteConfig holds the credentials of one messaging site.
type SiteConfig struct {
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	UserID int64  `toml:"user_id"`
}

// SyncConfig tunes the background queue drain.
type SyncConfig struct {
	CronInterval Duration `toml:"cron_interval"`
	SafetyMargin Duration `toml:"safety_margin"`
}

// DiscussionConfig tunes open conversation views.
type DiscussionConfig struct {
	PollInterval Duration `toml:"poll_interval"`
	PageSize     int      `toml:"page_size"`
}

// NetworkConfig tunes the connectivity probe.
type NetworkConfig struct {
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
}

// Duration is a time.Duration written as a string ("10s", "5m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a config with every tunable set.
func Default() *Config {
	return (&Config{}).WithDefaults()
}

// WithDefaults fills zero values in place and returns c.
func (c *Config) WithDefaults() *Config {
	if c.Sync.CronInterval.Duration <= 0 {
		c.Sync.CronInterval.Duration = DefaultCronInterval
	}
	if c.Sync.SafetyMargin.Duration <= 0 {
		c.Sync.SafetyMargin.Duration = DefaultSafetyMargin
	}
	if c.Discussion.PollInterval.Duration <= 0 {
		c.Discussion.PollInterval.Duration = DefaultPollInterval
	}
	if c.Discussion.PageSize <= 0 {
		c.Discussion.PageSize = DefaultPageSize
	}
	if c.Network.ProbeInterval.Duration <= 0 {
		c.Network.ProbeInterval.Duration = DefaultProbeInterval
	}
	if c.Network.ProbeTimeout.Duration <= 0 {
		c.Network.ProbeTimeout.Duration = DefaultProbeTimeout
	}
	return c
}

// Site returns the configuration of the named site.
func (c *Config) Site(id string) (SiteConfig, bool) {
	s, ok := c.Sites[id]
	return s, ok
}

// Load reads config from the given path. Returns nil config and error if file missing.
// Unset tunables are filled with defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
