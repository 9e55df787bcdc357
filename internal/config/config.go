package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no config file is given on the command line.
const DefaultConfigPath = "config.yaml"

// Config holds the full server configuration loaded from YAML with
// environment-variable overrides applied on top.
type Config struct {
	Listen   string         `yaml:"listen"`   // host:port for the HTTP server
	Database DatabaseConfig `yaml:"database"` //
	Auth     AuthConfig     `yaml:"auth"`     //
	Redis    RedisConfig    `yaml:"redis"`    //
	Cache    CacheConfig    `yaml:"cache"`    //
	Billing  BillingConfig  `yaml:"billing"`  //
	Logging  LoggingConfig  `yaml:"logging"`  //
}

// DatabaseConfig selects the backing store. The DSN dialect is detected
// from its shape, postgres:// URLs go to Postgres and everything else
// is treated as a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig controls token issuance for the front API.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt-secret"`   // HS256 signing secret
	TokenExpiry time.Duration `yaml:"token-expiry"` // access token lifetime
}

// RedisConfig points at the optional response cache backend.
type RedisConfig struct {
	URL string `yaml:"url"` // redis://host:port/db, empty disables caching
}

// CacheConfig tunes the completion response cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"` // how long cached completions stay valid
}

// BillingConfig carries the pricing model used by the savings summary.
type BillingConfig struct {
	SubscriptionPriceUSD float64 `yaml:"subscription-price-usd"`
}

// LoggingConfig controls the rotating file log.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`          // log directory, empty logs to stderr only
	MaxSizeMB  int    `yaml:"max-size-mb"`  //
	MaxBackups int    `yaml:"max-backups"`  //
	MaxAgeDays int    `yaml:"max-age-days"` //
}

// ResolveConfigPath returns the effective config file path, falling back
// to DefaultConfigPath when empty.
func ResolveConfigPath(path string) string {
	if path == "" {
		return DefaultConfigPath
	}
	return filepath.Clean(path)
}

// defaults returns a Config with every tunable at its baseline value.
func defaults() Config {
	return Config{
		Listen: ":8317",
		Database: DatabaseConfig{
			DSN: "modelgate.db",
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Billing: BillingConfig{
			SubscriptionPriceUSD: 20.0,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads the YAML config at path, applies env overrides, and
// validates the result. A missing file is not an error, env and
// defaults alone can run the server.
func Load(path string) (Config, error) {
	cfg := defaults()
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	} else if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	applyEnv(&cfg)
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// applyEnv overlays MODELGATE_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MODELGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("MODELGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MODELGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("MODELGATE_TOKEN_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Auth.TokenExpiry = d
		}
	}
	if v := os.Getenv("MODELGATE_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("MODELGATE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("MODELGATE_SUBSCRIPTION_PRICE_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Billing.SubscriptionPriceUSD = f
		}
	}
	if v := os.Getenv("MODELGATE_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

// Validate rejects configurations the server cannot safely run with.
func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt-secret is required (set MODELGATE_JWT_SECRET)")
	}
	if c.Auth.TokenExpiry <= 0 {
		return fmt.Errorf("config: auth.token-expiry must be positive")
	}
	return nil
}
