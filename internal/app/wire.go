package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/friendbet/internal/blob/s3"
	"github.com/alanyoungcy/friendbet/internal/cache/redis"
	"github.com/alanyoungcy/friendbet/internal/chain"
	"github.com/alanyoungcy/friendbet/internal/config"
	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/membership"
	"github.com/alanyoungcy/friendbet/internal/notify"
	"github.com/alanyoungcy/friendbet/internal/oracle"
	"github.com/alanyoungcy/friendbet/internal/platform/polymarket"
	"github.com/alanyoungcy/friendbet/internal/store/postgres"
	"github.com/alanyoungcy/friendbet/internal/vault"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	AcceptanceStore domain.AcceptanceStore
	VaultStore      domain.VaultStore
	ConditionStore  domain.ConditionStore
	AuditStore      domain.AuditStore

	// Caches
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.ArchiveImpl

	// Escrow and settlement
	Vault      *vault.Vault
	Capability domain.CapabilityChecker

	// Oracle adapters
	Bridge     *oracle.Bridge
	Optimistic *oracle.Optimistic

	// Notifications
	Notifier *notify.Notifier

	// Clock is the shared time source for every deadline-gated transition.
	Clock domain.Clock
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Clock: domain.RealClock{},
	}

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

	// Run migrations if enabled.
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.AcceptanceStore = postgres.NewAcceptanceStore(pool)
	deps.VaultStore = postgres.NewVaultStore(pool)
	deps.ConditionStore = postgres.NewConditionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when the archiver needs it) ---
	if cfg.S3.Enabled || cfg.Archiver.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.MarketStore, deps.AuditStore)
	}

	// --- Vault (escrow ledger + optional on-chain settlement) ---
	var transferor vault.TokenTransferor
	if cfg.Chain.Enabled {
		key, err := chain.LoadKey(chain.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain key: %w", err)
		}
		t, err := chain.NewERC20Transferor(ctx, cfg.Chain.RPCURL, key, cfg.Chain.ChainID, cfg.Chain.GasLimit)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain transferor: %w", err)
		}
		closers = append(closers, t.Close)
		transferor = t
	} else {
		transferor = vault.NewNoopTransferor(logger)
	}
	deps.Vault = vault.New(deps.VaultStore, transferor, deps.Clock, logger)

	// --- Membership / capability checks ---
	if cfg.Membership.Enabled {
		deps.Capability = membership.NewClient(cfg.Membership.BaseURL, cfg.Membership.APIKey)
	} else {
		deps.Capability = membership.AllowAll{}
	}

	// --- Oracle adapters ---
	deps.Bridge = oracle.NewBridge()
	deps.Optimistic = oracle.NewOptimistic(deps.ConditionStore, deps.Clock, oracle.OptimisticConfig{
		LivenessPeriod: cfg.Oracle.LivenessPeriod.Duration,
		MinBond:        cfg.OracleMinBond(),
	}, logger)
	if err := deps.Bridge.Register(deps.Optimistic); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: register optimistic oracle: %w", err)
	}
	if cfg.Oracle.GammaHost != "" {
		gamma := oracle.NewGamma(polymarket.NewGammaClient(cfg.Oracle.GammaHost), logger)
		if err := deps.Bridge.Register(gamma); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: register gamma oracle: %w", err)
		}
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
