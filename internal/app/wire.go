package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/strikeodds/strikebot/internal/blob/s3"
	"github.com/strikeodds/strikebot/internal/cache/redis"
	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/metrics"
	"github.com/strikeodds/strikebot/internal/notify"
	"github.com/strikeodds/strikebot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the operating modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Postgres (nil in modes without persistence)
	SnapshotStore    domain.SnapshotStore
	AlertStore       domain.AlertStore
	OpportunityStore domain.OpportunityStore
	Repo             domain.Repository

	// Redis
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	SignalBus     domain.SignalBus

	// Blob storage (nil when archival is disabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Observability and notifications
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "sync", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true when a mode with archival enabled requires object
// storage.
func needsS3(cfg *config.Config) bool {
	if !needsPostgres(cfg.Mode) {
		return false
	}
	return cfg.Pipeline.ArchiveEnabled || cfg.Pipeline.ArchiveRawPayload
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

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that persist) ---
	if needsPostgres(cfg.Mode) {
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
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.AlertStore = postgres.NewAlertStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)

		repo := postgres.NewRepository(pool, logger)
		closers = append(closers, repo.Close)
		deps.Repo = repo
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival needs it) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if cfg.Pipeline.ArchiveEnabled && deps.SnapshotStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.SnapshotStore, logger)
		}
	}

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
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

	return deps, cleanup, nil
}
