package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/outcomex/settle/internal/blob/s3"
	"github.com/outcomex/settle/internal/cache/redis"
	"github.com/outcomex/settle/internal/config"
	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/identity"
	"github.com/outcomex/settle/internal/service"
	"github.com/outcomex/settle/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Storage
	Store domain.Store

	// Redis-backed collaborators
	MarketCache domain.MarketCache
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Identity
	Verifier *identity.Verifier
	Signer   *identity.ReceiptSigner

	// Services
	Markets  *service.MarketService
	Exchange *service.ExchangeService
	Ledger   *service.LedgerService
	Archive  *service.ArchiveService

	// Health probes by dependency name, served by the health endpoint.
	Health map[string]func(context.Context) error
}

// needsIdentity returns true for modes that sign receipts and verify caller
// signatures.
func needsIdentity(mode string) bool {
	return mode == "serve" || mode == "full"
}

// needsS3 returns true when the configuration requires object storage.
func needsS3(cfg *config.Config, mode string) bool {
	if mode == "archive" {
		return true
	}
	return mode == "full" && cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health: make(map[string]func(context.Context) error),
	}
	clock := domain.SystemClock

	// --- PostgreSQL ---
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
	deps.Health["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Store = postgres.NewStore(pgClient)

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
	deps.Health["redis"] = redisClient.Ping

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.BookCache = redis.NewBookCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Identity (operator key + request verification) ---
	if needsIdentity(mode) {
		keyHex, err := identity.LoadKey(identity.KeySource{
			RawPrivateKey:    cfg.Identity.PrivateKey,
			EncryptedKeyPath: cfg.Identity.EncryptedKeyPath,
			KeyPassword:      cfg.Identity.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: identity: %w", err)
		}
		signer, err := identity.NewReceiptSigner(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: identity: %w", err)
		}
		deps.Signer = signer
		deps.Verifier = identity.NewVerifier(cfg.Server.SignatureSkew.Duration)

		deps.Markets = service.NewMarketService(deps.Store, deps.MarketCache, deps.SignalBus, signer, clock, logger)
		deps.Exchange = service.NewExchangeService(deps.Store, deps.MarketCache, deps.BookCache, deps.SignalBus, signer, clock, logger)
	}
	deps.Ledger = service.NewLedgerService(deps.Store, logger)

	// --- S3 archive storage ---
	if needsS3(cfg, mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Health["s3"] = s3Client.Health

		archiver := s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Store.Fills(),
			deps.Store.Audit(),
		)
		deps.Archive = service.NewArchiveService(
			archiver,
			deps.LockManager,
			clock,
			cfg.Archive.Retention.Duration,
			cfg.Archive.Interval.Duration,
			logger,
		)
	}

	return deps, cleanup, nil
}
