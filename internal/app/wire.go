package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/bondwizard/internal/blob/s3"
	"github.com/alanyoungcy/bondwizard/internal/cache/redis"
	"github.com/alanyoungcy/bondwizard/internal/chain"
	"github.com/alanyoungcy/bondwizard/internal/config"
	"github.com/alanyoungcy/bondwizard/internal/crypto"
	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/notify"
	"github.com/alanyoungcy/bondwizard/internal/platform/indexer"
	"github.com/alanyoungcy/bondwizard/internal/platform/pricefeed"
	"github.com/alanyoungcy/bondwizard/internal/server/handler"
	"github.com/alanyoungcy/bondwizard/internal/store/postgres"
)

// Dependencies bundles every concrete dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	IssuanceStore domain.IssuanceStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache    *redis.PriceCache
	TokenCache    *redis.TokenCache
	OfferingCache *redis.OfferingCache
	RateLimiter   *redis.RateLimiter
	LockManager   *redis.LockManager
	SignalBus     *redis.SignalBus

	// Blob storage; nil outside snapshot modes.
	Archive *s3blob.SnapshotArchive

	// External sources
	Indexer   *indexer.Client
	PriceFeed *pricefeed.Client

	// Chain; nil outside API modes.
	Wallet *chain.Wallet
	Tokens *chain.TokenReader

	// Notifications
	Notifier *notify.Notifier

	// Health probes of every connected backend, by name.
	Checks map[string]handler.Checker
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Checker{}}

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
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}
	deps.IssuanceStore = postgres.NewIssuanceStore(pgClient.Pool())
	deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	deps.Checks["postgres"] = pgClient.Ping

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
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, 0)
	deps.TokenCache = redis.NewTokenCache(redisClient)
	deps.OfferingCache = redis.NewOfferingCache(redisClient, 0)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 snapshot archive ---
	if cfg.RunsSnapshots() {
		bucket, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = s3blob.NewSnapshotArchive(bucket, cfg.Snapshot.Prefix)
		deps.Checks["s3"] = bucket.Health
	}

	// --- External sources ---
	deps.Indexer = indexer.NewClient(cfg.Indexer.GraphQLURL, cfg.Indexer.APIKey, cfg.Indexer.AppURL)

	var feedSigner *crypto.RequestSigner
	if cfg.PriceFeed.APIKey != "" {
		feedSigner = &crypto.RequestSigner{Key: cfg.PriceFeed.APIKey, Secret: cfg.PriceFeed.APISecret}
	}
	deps.PriceFeed = pricefeed.NewClient(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Platform, feedSigner)

	// --- Chain wallet ---
	if cfg.ServesAPI() {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("wallet key", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Chain.ChainID)
		if err != nil {
			return fail("signer", err)
		}

		ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
		if err != nil {
			return fail("chain", err)
		}
		closers = append(closers, ethClient.Close)

		deps.Wallet = chain.NewWallet(ethClient, signer, chain.WalletConfig{
			BondFactory:  common.HexToAddress(cfg.Chain.BondFactory),
			PollInterval: cfg.Chain.ReceiptPollInterval.Duration,
			GasBufferPct: uint64(cfg.Chain.GasBufferPct),
		}, logger)
		deps.Tokens = chain.NewTokenReader(ethClient)
		deps.Checks["chain"] = func(ctx context.Context) error {
			_, err := ethClient.BlockNumber(ctx)
			return err
		}
		logger.InfoContext(ctx, "wallet ready",
			slog.String("address", signer.Address().Hex()),
			slog.Int64("chain_id", cfg.Chain.ChainID),
		)
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
