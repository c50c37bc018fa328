package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lastping/lastpingd/internal/principal"
)

// TokenEntry binds one bearer token to the principal it identifies.
type TokenEntry struct {
	Token     string `toml:"token"`
	Principal string `toml:"principal"`
}

type Config struct {
	ID              string
	ListenAddr      string
	AdminListenAddr string
	CorsOrigins     []string
	Heartbeat       time.Duration
	DefaultTimeout  time.Duration
	SnapshotPath    string
	SnapshotSecret  string
	ClaimRatePerSec float64
	ClaimBurst      int
	Tokens          []TokenEntry
}

func DefaultConfig() Config {
	return Config{
		ID:              "lastping.local",
		ListenAddr:      ":9200",
		AdminListenAddr: "",
		Heartbeat:       30 * time.Second,
		DefaultTimeout:  30 * 24 * time.Hour,
		ClaimRatePerSec: 0.2,
		ClaimBurst:      3,
	}
}

// config.toml key mapping for the daemon.
type fileConfig struct {
	ID              string       `toml:"id"`
	Addr            string       `toml:"addr"`
	AdminListenAddr string       `toml:"admin_listen_addr"`
	CorsOrigins     []string     `toml:"cors_origins"`
	Heartbeat       string       `toml:"heartbeat"`
	DefaultTimeout  string       `toml:"default_timeout"`
	SnapshotPath    string       `toml:"snapshot_path"`
	SnapshotSecret  string       `toml:"snapshot_secret"`
	ClaimRatePerSec float64      `toml:"claim_rate_per_sec"`
	ClaimBurst      int          `toml:"claim_burst"`
	Tokens          []TokenEntry `toml:"tokens"`
}

// Load reads a TOML file and overlays its defined keys on DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return Config{}, fmt.Errorf("load config: heartbeat: %w", err)
		}
		cfg.Heartbeat = d
	}
	if meta.IsDefined("default_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DefaultTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("load config: default_timeout: %w", err)
		}
		cfg.DefaultTimeout = d
	}
	if meta.IsDefined("snapshot_path") {
		cfg.SnapshotPath = strings.TrimSpace(raw.SnapshotPath)
	}
	if meta.IsDefined("snapshot_secret") {
		cfg.SnapshotSecret = raw.SnapshotSecret
	}
	if meta.IsDefined("claim_rate_per_sec") {
		cfg.ClaimRatePerSec = raw.ClaimRatePerSec
	}
	if meta.IsDefined("claim_burst") {
		cfg.ClaimBurst = raw.ClaimBurst
	}
	if meta.IsDefined("tokens") {
		cfg.Tokens = raw.Tokens
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("config missing id")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config missing addr")
	}
	if cfg.Heartbeat <= 0 {
		return fmt.Errorf("config heartbeat must be positive")
	}
	if cfg.DefaultTimeout <= 0 {
		return fmt.Errorf("config default_timeout must be positive")
	}
	if cfg.SnapshotPath != "" && cfg.SnapshotSecret == "" {
		return fmt.Errorf("config snapshot_secret required when snapshot_path is set")
	}
	for i, entry := range cfg.Tokens {
		if strings.TrimSpace(entry.Token) == "" {
			return fmt.Errorf("tokens[%d] invalid: token is required", i)
		}
		if _, err := principal.Parse(entry.Principal); err != nil {
			return fmt.Errorf("tokens[%d] invalid: %w", i, err)
		}
	}
	return nil
}

// TokenMap resolves the configured token entries for the auth layer.
func (c Config) TokenMap() (map[string]principal.Principal, error) {
	out := make(map[string]principal.Principal, len(c.Tokens))
	for i, entry := range c.Tokens {
		p, err := principal.Parse(entry.Principal)
		if err != nil {
			return nil, fmt.Errorf("tokens[%d] invalid: %w", i, err)
		}
		if _, dup := out[entry.Token]; dup {
			return nil, fmt.Errorf("tokens[%d] invalid: duplicate token", i)
		}
		out[entry.Token] = p
	}
	return out, nil
}
