// Package config defines the top-level configuration for the momentum
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MOMOBOT_* environment variables.
type Config struct {
	Alpaca    AlpacaConfig    `toml:"alpaca"`
	Polygon   PolygonConfig   `toml:"polygon"`
	IEX       IEXConfig       `toml:"iex"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Universe  UniverseConfig  `toml:"universe"`
	Retry     RetryConfig     `toml:"retry"`
	Cache     CacheConfig     `toml:"cache"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Executor  ExecutorConfig  `toml:"executor"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	// Timezone is the exchange time zone; sessions and bar windows are
	// interpreted in it.
	Timezone string `toml:"timezone"`
}

// AlpacaConfig holds brokerage credentials and endpoints.
type AlpacaConfig struct {
	KeyID      string `toml:"key_id"`
	SecretKey  string `toml:"secret_key"`
	TradingURL string `toml:"trading_url"`
	DataURL    string `toml:"data_url"`
	StreamURL  string `toml:"stream_url"`
	Feed       string `toml:"feed"`
	// RateLimit is REST requests per minute; it only applies when redis is
	// enabled.
	RateLimit int `toml:"rate_limit"`
}

// PolygonConfig holds the company metadata API.
type PolygonConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// RateLimit is requests per second; it only applies when redis is enabled.
	RateLimit int `toml:"rate_limit"`
}

// IEXConfig holds the financials API.
type IEXConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// StrategyConfig holds the momentum rules. Minute fields are offsets from
// the session open, or from the close for liquidate_before_close.
type StrategyConfig struct {
	MinGap       float64 `toml:"min_gap"`
	RiskFraction float64 `toml:"risk_fraction"`
	MaxNotional  float64 `toml:"max_notional"`
	RewardRisk   float64 `toml:"reward_risk"`
	StopOffset   float64 `toml:"stop_offset"`

	OpeningRangeMinutes  int `toml:"opening_range_minutes"`
	OpeningRangeLookback int `toml:"opening_range_lookback"`
	StopLookback         int `toml:"stop_lookback"`
	ExitLookback         int `toml:"exit_lookback"`
	DailyLookback        int `toml:"daily_lookback"`

	MACDFast   int `toml:"macd_fast"`
	MACDSlow   int `toml:"macd_slow"`
	MACDSignal int `toml:"macd_signal"`

	EntryFrom            int `toml:"entry_from"`
	EntryTo              int `toml:"entry_to"`
	ExitFrom             int `toml:"exit_from"`
	ExitTo               int `toml:"exit_to"`
	LiquidateAfterOpen   int `toml:"liquidate_after_open"`
	LiquidateBeforeClose int `toml:"liquidate_before_close"`
}

// UniverseConfig holds the pre-open liquidity screen.
type UniverseConfig struct {
	BatchSize int      `toml:"batch_size"`
	Lookback  int      `toml:"lookback"`
	MaxBarAge duration `toml:"max_bar_age"`
	MinVolume float64  `toml:"min_volume"`
	MinPrice  float64  `toml:"min_price"`
	MaxPrice  float64  `toml:"max_price"`
	// USCompanies keeps only instruments whose company is domiciled in the US.
	USCompanies bool `toml:"us_companies"`
	// RequireFinancials keeps only instruments with reported revenue.
	RequireFinancials bool `toml:"require_financials"`
}

// RetryConfig holds the remote call budgets.
type RetryConfig struct {
	Attempts     int      `toml:"attempts"`
	DataAttempts int      `toml:"data_attempts"`
	Unit         duration `toml:"unit"`
}

// CacheConfig selects where day-scoped results are kept and tunes the
// in-process price window memo.
type CacheConfig struct {
	// Backend is one of file, redis or s3.
	Backend  string   `toml:"backend"`
	Dir      string   `toml:"dir"`
	TTL      duration `toml:"ttl"`
	MemoSize int      `toml:"memo_size"`
	MemoTTL  duration `toml:"memo_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	// LockTTL bounds how long the instance lock survives a crashed holder.
	LockTTL duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveSessions uploads the end-of-day session snapshot.
	ArchiveSessions bool `toml:"archive_sessions"`
}

// ServerConfig holds HTTP status API settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per minute per client; it needs redis.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SchedulerConfig tunes the session scheduler.
type SchedulerConfig struct {
	Lead       duration `toml:"lead"`
	JobTimeout duration `toml:"job_timeout"`
}

// ExecutorConfig tunes order submission.
type ExecutorConfig struct {
	DedupTTL duration `toml:"dedup_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// Defaults returns a Config populated with sensible default values. Callers
// typically start from Defaults() and then overlay a TOML file on top.
func Defaults() Config {
	return Config{
		Alpaca: AlpacaConfig{
			TradingURL: "https://paper-api.alpaca.markets",
			DataURL:    "https://data.alpaca.markets",
			StreamURL:  "wss://paper-api.alpaca.markets/stream",
			Feed:       "iex",
			RateLimit:  200,
		},
		Polygon: PolygonConfig{
			BaseURL:   "https://api.polygon.io",
			RateLimit: 100,
		},
		IEX: IEXConfig{
			BaseURL: "https://cloud.iexapis.com/stable",
		},
		Strategy: StrategyConfig{
			MinGap:               0.04,
			RiskFraction:         0.02,
			MaxNotional:          100,
			RewardRisk:           3,
			StopOffset:           0.01,
			OpeningRangeMinutes:  15,
			OpeningRangeLookback: 500,
			StopLookback:         100,
			ExitLookback:         3000,
			DailyLookback:        5,
			MACDFast:             13,
			MACDSlow:             21,
			MACDSignal:           8,
			EntryFrom:            16,
			EntryTo:              29,
			ExitFrom:             24,
			ExitTo:               359,
			LiquidateAfterOpen:   1,
			LiquidateBeforeClose: 25,
		},
		Universe: UniverseConfig{
			BatchSize: 200,
			Lookback:  5,
			MaxBarAge: duration{6 * 24 * time.Hour},
			MinVolume: 300_000,
			MinPrice:  2.0,
			MaxPrice:  13.0,
		},
		Retry: RetryConfig{
			Attempts:     3,
			DataAttempts: 5,
			Unit:         duration{time.Second},
		},
		Cache: CacheConfig{
			Backend:  "file",
			Dir:      "cache",
			TTL:      duration{48 * time.Hour},
			MemoSize: 10,
			MemoTTL:  duration{90 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "momobot",
			User:          "momobot",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "momobot",
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Region:          "us-east-1",
			Bucket:          "momobot",
			ForcePathStyle:  true,
			ArchiveSessions: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "liquidation", "error"},
		},
		Scheduler: SchedulerConfig{
			Lead:       duration{30 * time.Minute},
			JobTimeout: duration{50 * time.Second},
		},
		Executor: ExecutorConfig{
			DedupTTL: duration{2 * time.Minute},
		},
		Mode:     "trade",
		LogLevel: "info",
		Timezone: "America/New_York",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"scan":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCacheBackends = map[string]bool{
	"file":  true,
	"redis": true,
	"s3":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q: %v", c.Timezone, err))
	}

	// Alpaca credentials are needed by every mode.
	if c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "" {
		errs = append(errs, "alpaca: key_id and secret_key must be set")
	}
	if c.Alpaca.TradingURL == "" || c.Alpaca.DataURL == "" {
		errs = append(errs, "alpaca: trading_url and data_url must not be empty")
	}
	if strings.EqualFold(c.Mode, "trade") && c.Alpaca.StreamURL == "" {
		errs = append(errs, "alpaca: stream_url must not be empty for mode trade")
	}

	if c.Universe.USCompanies && c.Polygon.APIKey == "" {
		errs = append(errs, "polygon: api_key is required when universe.us_companies is set")
	}
	if c.Universe.RequireFinancials && c.IEX.Token == "" {
		errs = append(errs, "iex: token is required when universe.require_financials is set")
	}

	// Strategy
	s := c.Strategy
	if s.RiskFraction <= 0 || s.RiskFraction >= 1 {
		errs = append(errs, "strategy: risk_fraction must be in (0, 1)")
	}
	if s.MaxNotional <= 0 {
		errs = append(errs, "strategy: max_notional must be > 0")
	}
	if s.RewardRisk <= 0 {
		errs = append(errs, "strategy: reward_risk must be > 0")
	}
	if s.OpeningRangeMinutes < 1 {
		errs = append(errs, "strategy: opening_range_minutes must be >= 1")
	}
	if s.MACDFast < 1 || s.MACDSlow <= s.MACDFast || s.MACDSignal < 1 {
		errs = append(errs, "strategy: macd periods must satisfy 1 <= fast < slow and signal >= 1")
	}
	if s.EntryFrom > s.EntryTo {
		errs = append(errs, "strategy: entry_from must not exceed entry_to")
	}
	if s.ExitFrom > s.ExitTo {
		errs = append(errs, "strategy: exit_from must not exceed exit_to")
	}

	// Universe
	u := c.Universe
	if u.BatchSize < 1 {
		errs = append(errs, "universe: batch_size must be >= 1")
	}
	if u.Lookback < 1 {
		errs = append(errs, "universe: lookback must be >= 1")
	}
	if u.MinPrice >= u.MaxPrice {
		errs = append(errs, "universe: min_price must be below max_price")
	}

	if c.Retry.Attempts < 1 || c.Retry.DataAttempts < 1 {
		errs = append(errs, "retry: attempts and data_attempts must be >= 1")
	}

	// Cache
	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: file, redis, s3)", c.Cache.Backend))
	}
	if backend == "file" && c.Cache.Dir == "" {
		errs = append(errs, "cache: dir must not be empty for the file backend")
	}
	if backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "cache: backend redis requires redis.enabled")
	}
	if backend == "s3" && !c.S3.Enabled {
		errs = append(errs, "cache: backend s3 requires s3.enabled")
	}
	if c.Cache.MemoSize < 1 {
		errs = append(errs, "cache: memo_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
