package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OMEN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OMEN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OMEN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "OMEN_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OMEN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OMEN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OMEN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OMEN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OMEN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OMEN_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OMEN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OMEN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OMEN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OMEN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OMEN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OMEN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OMEN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OMEN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OMEN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OMEN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OMEN_S3_REGION")
	setStr(&cfg.S3.Bucket, "OMEN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OMEN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OMEN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OMEN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OMEN_S3_FORCE_PATH_STYLE")

	// ── Risk ──
	setStr(&cfg.Risk.SuspiciousTradeThreshold, "OMEN_RISK_SUSPICIOUS_TRADE_THRESHOLD")
	setStr(&cfg.Risk.CircuitBreakerThreshold, "OMEN_RISK_CIRCUIT_BREAKER_THRESHOLD")
	setInt64(&cfg.Risk.MaxVolatilityBps, "OMEN_RISK_MAX_VOLATILITY_BPS")
	setBool(&cfg.Risk.EnforceSuspiciousTrade, "OMEN_RISK_ENFORCE_SUSPICIOUS_TRADE")
	setBool(&cfg.Risk.EnforceCircuitBreaker, "OMEN_RISK_ENFORCE_CIRCUIT_BREAKER")
	setBool(&cfg.Risk.EnforceVolatility, "OMEN_RISK_ENFORCE_VOLATILITY")

	// ── Market ──
	setInt64(&cfg.Market.DefaultLiquidityParam, "OMEN_MARKET_DEFAULT_LIQUIDITY_PARAM")
	setDuration(&cfg.Market.DisputeWindow, "OMEN_MARKET_DISPUTE_WINDOW")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "OMEN_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "OMEN_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "OMEN_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OMEN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OMEN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OMEN_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "OMEN_SERVER_API_KEYS")
	setInt(&cfg.Server.RateLimitPerMin, "OMEN_SERVER_RATE_LIMIT_PER_MIN")
	setDuration(&cfg.Server.ShutdownTimeout, "OMEN_SERVER_SHUTDOWN_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "OMEN_MODE")
	setStr(&cfg.LogLevel, "OMEN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
