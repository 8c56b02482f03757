// Package config defines the top-level configuration for the exchange engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/service"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OMEN_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Risk     RiskConfig     `toml:"risk"`
	Market   MarketConfig   `toml:"market"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RiskConfig holds the risk-check thresholds and enforcement toggles.
// Thresholds are decimal strings in currency units; the volatility threshold
// is in basis points before maturity scaling. Every enforce_* toggle defaults
// to false: checks record violations without blocking trades.
type RiskConfig struct {
	SuspiciousTradeThreshold string `toml:"suspicious_trade_threshold"`
	CircuitBreakerThreshold  string `toml:"circuit_breaker_threshold"`
	MaxVolatilityBps         int64  `toml:"max_volatility_bps"`
	EnforceSuspiciousTrade   bool   `toml:"enforce_suspicious_trade"`
	EnforceCircuitBreaker    bool   `toml:"enforce_circuit_breaker"`
	EnforceVolatility        bool   `toml:"enforce_volatility"`
}

// Limits converts the configured thresholds into domain limits. Call Validate
// first; unparseable thresholds come back zero-valued here.
func (r RiskConfig) Limits() domain.RiskLimits {
	suspicious, _ := decimal.NewFromString(r.SuspiciousTradeThreshold)
	breaker, _ := decimal.NewFromString(r.CircuitBreakerThreshold)
	return domain.RiskLimits{
		SuspiciousTradeThreshold:        suspicious,
		CircuitBreakerThreshold:         breaker,
		MaxMarketVolatilityThresholdBps: r.MaxVolatilityBps,
	}
}

// Enforcement returns the service-level enforcement toggles.
func (r RiskConfig) Enforcement() service.RiskConfig {
	return service.RiskConfig{
		EnforceSuspiciousTrade: r.EnforceSuspiciousTrade,
		EnforceCircuitBreaker:  r.EnforceCircuitBreaker,
		EnforceVolatility:      r.EnforceVolatility,
	}
}

// MarketConfig holds defaults applied when creating markets.
type MarketConfig struct {
	DefaultLiquidityParam int64    `toml:"default_liquidity_param"`
	DisputeWindow         duration `toml:"dispute_window"`
}

// Defaults returns the service-level market fallbacks.
func (m MarketConfig) Defaults() service.MarketDefaults {
	return service.MarketDefaults{
		LiquidityParam: m.DefaultLiquidityParam,
		DisputeWindow:  m.DisputeWindow.Duration,
	}
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKeys         []string `toml:"api_keys"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "omen",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "omen-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Risk: RiskConfig{
			SuspiciousTradeThreshold: "10000",
			CircuitBreakerThreshold:  "100000",
			MaxVolatilityBps:         500,
			EnforceSuspiciousTrade:   false,
			EnforceCircuitBreaker:    false,
			EnforceVolatility:        false,
		},
		Market: MarketConfig{
			DefaultLiquidityParam: 10_000,
			DisputeWindow:         duration{24 * time.Hour},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 600,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Risk — thresholds must parse as positive decimals.
	if v, err := decimal.NewFromString(c.Risk.SuspiciousTradeThreshold); err != nil || !v.IsPositive() {
		errs = append(errs, fmt.Sprintf("risk: suspicious_trade_threshold must be a positive decimal, got %q", c.Risk.SuspiciousTradeThreshold))
	}
	if v, err := decimal.NewFromString(c.Risk.CircuitBreakerThreshold); err != nil || !v.IsPositive() {
		errs = append(errs, fmt.Sprintf("risk: circuit_breaker_threshold must be a positive decimal, got %q", c.Risk.CircuitBreakerThreshold))
	}
	if c.Risk.MaxVolatilityBps <= 0 {
		errs = append(errs, "risk: max_volatility_bps must be > 0")
	}

	// Market
	if c.Market.DefaultLiquidityParam <= 0 {
		errs = append(errs, "market: default_liquidity_param must be > 0")
	}
	if c.Market.DisputeWindow.Duration < 0 {
		errs = append(errs, "market: dispute_window must not be negative")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
