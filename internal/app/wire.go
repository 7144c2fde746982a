package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/ankhone/alpacahq-zipline/internal/blob/s3"
	"github.com/ankhone/alpacahq-zipline/internal/cache/redis"
	"github.com/ankhone/alpacahq-zipline/internal/config"
	"github.com/ankhone/alpacahq-zipline/internal/dailycache"
	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/notify"
	"github.com/ankhone/alpacahq-zipline/internal/platform/alpaca"
	"github.com/ankhone/alpacahq-zipline/internal/server/handler"
	"github.com/ankhone/alpacahq-zipline/internal/store/postgres"
	"github.com/ankhone/alpacahq-zipline/internal/strategy"
)

// Rate limiter buckets shared with the platform clients.
const (
	alpacaRateKey  = "alpaca:rest"
	polygonRateKey = "polygon:rest"
)

// Dependencies bundles the infrastructure the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional backends are nil when disabled in configuration.
type Dependencies struct {
	Location *time.Location

	// Broker
	Alpaca *alpaca.Client
	Stream *alpaca.TradeStream

	// Stores
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	CacheStore    domain.CacheStore

	// Redis-backed coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	Archiver strategy.SnapshotArchiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probe each wired backend for /api/health.
	HealthChecks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: timezone %q: %w", cfg.Timezone, err)
	}

	deps := &Dependencies{
		Location:     loc,
		HealthChecks: make(map[string]handler.Check),
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pool.Ping
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		limiter := redis.NewRateLimiter(redisClient)
		if cfg.Alpaca.RateLimit > 0 {
			limiter.SetLimit(alpacaRateKey, redis.Limit{Requests: cfg.Alpaca.RateLimit, Window: time.Minute})
		}
		if cfg.Polygon.RateLimit > 0 {
			limiter.SetLimit(polygonRateKey, redis.Limit{Requests: cfg.Polygon.RateLimit, Window: time.Second})
		}
		deps.RateLimiter = limiter
		deps.LockManager = redis.NewLockManager(redisClient, logger)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	var s3Client *s3blob.Client
	if cfg.S3.Enabled {
		s3Client, err = s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if cfg.S3.ArchiveSessions {
			deps.Archiver = s3blob.NewSnapshotArchiver(s3Client)
		}
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Daily cache store ---
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		if redisClient == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: cache backend redis: redis is disabled")
		}
		deps.CacheStore = redis.NewDailyStore(redisClient, cfg.Cache.TTL.Duration)
	case "s3":
		if s3Client == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: cache backend s3: s3 is disabled")
		}
		deps.CacheStore = s3blob.NewDailyStore(s3Client)
	default:
		deps.CacheStore = dailycache.NewFileStore(cfg.Cache.Dir)
	}

	// --- Broker ---
	alpacaCfg := alpaca.Config{
		KeyID:      cfg.Alpaca.KeyID,
		SecretKey:  cfg.Alpaca.SecretKey,
		TradingURL: cfg.Alpaca.TradingURL,
		DataURL:    cfg.Alpaca.DataURL,
		StreamURL:  cfg.Alpaca.StreamURL,
		Feed:       cfg.Alpaca.Feed,
	}
	deps.Alpaca = alpaca.NewClient(alpacaCfg, deps.RateLimiter, loc)
	if strings.EqualFold(cfg.Mode, "trade") {
		deps.Stream = alpaca.NewTradeStream(alpacaCfg, logger)
		closers = append(closers, func() { _ = deps.Stream.Close() })
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.Info("dependencies wired",
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}
