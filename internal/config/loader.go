package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MOMOBOT_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOMOBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Alpaca ──
	setStr(&cfg.Alpaca.KeyID, "APCA_API_KEY_ID") // broker SDK convention
	setStr(&cfg.Alpaca.KeyID, "MOMOBOT_ALPACA_KEY_ID")
	setStr(&cfg.Alpaca.SecretKey, "APCA_API_SECRET_KEY")
	setStr(&cfg.Alpaca.SecretKey, "MOMOBOT_ALPACA_SECRET_KEY")
	setStr(&cfg.Alpaca.TradingURL, "MOMOBOT_ALPACA_TRADING_URL")
	setStr(&cfg.Alpaca.DataURL, "MOMOBOT_ALPACA_DATA_URL")
	setStr(&cfg.Alpaca.StreamURL, "MOMOBOT_ALPACA_STREAM_URL")
	setStr(&cfg.Alpaca.Feed, "MOMOBOT_ALPACA_FEED")
	setInt(&cfg.Alpaca.RateLimit, "MOMOBOT_ALPACA_RATE_LIMIT")

	// ── Fundamentals ──
	setStr(&cfg.Polygon.BaseURL, "MOMOBOT_POLYGON_BASE_URL")
	setStr(&cfg.Polygon.APIKey, "MOMOBOT_POLYGON_API_KEY")
	setInt(&cfg.Polygon.RateLimit, "MOMOBOT_POLYGON_RATE_LIMIT")
	setStr(&cfg.IEX.BaseURL, "MOMOBOT_IEX_BASE_URL")
	setStr(&cfg.IEX.Token, "MOMOBOT_IEX_TOKEN")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MinGap, "MOMOBOT_STRATEGY_MIN_GAP")
	setFloat64(&cfg.Strategy.RiskFraction, "MOMOBOT_STRATEGY_RISK_FRACTION")
	setFloat64(&cfg.Strategy.MaxNotional, "MOMOBOT_STRATEGY_MAX_NOTIONAL")
	setFloat64(&cfg.Strategy.RewardRisk, "MOMOBOT_STRATEGY_REWARD_RISK")

	// ── Universe ──
	setInt(&cfg.Universe.BatchSize, "MOMOBOT_UNIVERSE_BATCH_SIZE")
	setFloat64(&cfg.Universe.MinVolume, "MOMOBOT_UNIVERSE_MIN_VOLUME")
	setFloat64(&cfg.Universe.MinPrice, "MOMOBOT_UNIVERSE_MIN_PRICE")
	setFloat64(&cfg.Universe.MaxPrice, "MOMOBOT_UNIVERSE_MAX_PRICE")
	setBool(&cfg.Universe.USCompanies, "MOMOBOT_UNIVERSE_US_COMPANIES")
	setBool(&cfg.Universe.RequireFinancials, "MOMOBOT_UNIVERSE_REQUIRE_FINANCIALS")

	// ── Retry ──
	setInt(&cfg.Retry.Attempts, "MOMOBOT_RETRY_ATTEMPTS")
	setInt(&cfg.Retry.DataAttempts, "MOMOBOT_RETRY_DATA_ATTEMPTS")
	setDuration(&cfg.Retry.Unit, "MOMOBOT_RETRY_UNIT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "MOMOBOT_CACHE_BACKEND")
	setStr(&cfg.Cache.Dir, "MOMOBOT_CACHE_DIR")
	setDuration(&cfg.Cache.TTL, "MOMOBOT_CACHE_TTL")
	setInt(&cfg.Cache.MemoSize, "MOMOBOT_CACHE_MEMO_SIZE")
	setDuration(&cfg.Cache.MemoTTL, "MOMOBOT_CACHE_MEMO_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MOMOBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "MOMOBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOMOBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOMOBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOMOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOMOBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOMOBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOMOBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOMOBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOMOBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOMOBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MOMOBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MOMOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOMOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOMOBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOMOBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOMOBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOMOBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MOMOBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "MOMOBOT_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MOMOBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MOMOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOMOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOMOBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MOMOBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MOMOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOMOBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOMOBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOMOBOT_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveSessions, "MOMOBOT_S3_ARCHIVE_SESSIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MOMOBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MOMOBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MOMOBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MOMOBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MOMOBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MOMOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MOMOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MOMOBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MOMOBOT_NOTIFY_EVENTS")

	// ── Scheduler / executor ──
	setDuration(&cfg.Scheduler.Lead, "MOMOBOT_SCHEDULER_LEAD")
	setDuration(&cfg.Scheduler.JobTimeout, "MOMOBOT_SCHEDULER_JOB_TIMEOUT")
	setDuration(&cfg.Executor.DedupTTL, "MOMOBOT_EXECUTOR_DEDUP_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "MOMOBOT_MODE")
	setStr(&cfg.LogLevel, "MOMOBOT_LOG_LEVEL")
	setStr(&cfg.Timezone, "MOMOBOT_TIMEZONE")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
