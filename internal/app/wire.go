package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/outcomebridge/ooadapter/internal/blob/s3"
	"github.com/outcomebridge/ooadapter/internal/cache/redis"
	"github.com/outcomebridge/ooadapter/internal/config"
	"github.com/outcomebridge/ooadapter/internal/crypto"
	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/notify"
	"github.com/outcomebridge/ooadapter/internal/platform/ethereum"
	"github.com/outcomebridge/ooadapter/internal/platform/local"
	"github.com/outcomebridge/ooadapter/internal/server/handler"
	"github.com/outcomebridge/ooadapter/internal/store/memory"
	"github.com/outcomebridge/ooadapter/internal/store/postgres"
)

// Synthetic principals used by standalone mode, where no chain accounts
// exist. Callers identify as the deployer (or an address from
// adapter.admins) to exercise privileged operations.
var (
	localDeployer   = common.HexToAddress("0x0000000000000000000000000000000000000A00")
	localAdapter    = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	localOracle     = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	localCollateral = common.HexToAddress("0x0000000000000000000000000000000000000A03")
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Persistence
	Store domain.QuestionStore
	Audit domain.AuditStore

	// Caching and coordination
	Cache   domain.QuestionCache
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Oracle collaborators
	Oracle     domain.PriceOracle
	Settlement domain.SettlementRegistry
	Tokens     domain.FungibleToken
	AllowList  domain.AllowList

	// Blob storage (archive modes only)
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Dispute feed sources. Exactly one is set: LocalOracle in standalone
	// mode, OracleWatcher when connected to a chain.
	LocalOracle   *local.Oracle
	OracleWatcher *ethereum.OptimisticOracle

	// Principals
	AdapterAddress common.Address
	OracleAddress  common.Address
	Deployer       common.Address

	// Health reports per-dependency liveness on /api/health.
	Health map[string]handler.Pinger
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

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}

	if cfg.NeedsChain() {
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

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Store = postgres.NewQuestionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient

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

		deps.Cache = redis.NewQuestionCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Health["redis"] = redisClient

		// --- Ethereum ---
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signing key: %w", err)
		}

		ethClient, err := ethereum.NewClient(ctx, ethereum.ClientConfig{
			RPCURL:     cfg.Chain.RPCURL,
			ChainID:    cfg.Chain.ChainID,
			PrivateKey: key,
			TxTimeout:  cfg.Chain.TxTimeout.Duration,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ethereum: %w", err)
		}
		closers = append(closers, ethClient.Close)

		oracleAddr := common.HexToAddress(cfg.Chain.OracleAddress)
		oracle := ethereum.NewOptimisticOracle(ethClient, oracleAddr, logger)
		deps.Oracle = oracle
		deps.OracleWatcher = oracle
		deps.Settlement = ethereum.NewConditionalTokens(ethClient, common.HexToAddress(cfg.Chain.SettlementAddress), logger)
		deps.Tokens = ethereum.NewERC20(ethClient, logger)
		deps.AllowList = ethereum.NewAddressWhitelist(ethClient, common.HexToAddress(cfg.Chain.AllowListAddress))

		deps.AdapterAddress = common.HexToAddress(cfg.Chain.AdapterAddress)
		deps.OracleAddress = oracleAddr
		deps.Deployer = ethClient.Address()
	} else {
		// --- Standalone: in-process stand-ins, no external services ---
		deps.Store = memory.NewQuestionStore()
		deps.Audit = memory.NewAuditStore()
		deps.Cache = memory.NewQuestionCache()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewSignalBus()

		oracle := local.NewOracle(localOracle, logger)
		deps.Oracle = oracle
		deps.LocalOracle = oracle
		deps.Settlement = local.NewSettlement(logger)

		// Fund the deployer so question rewards flow without setup.
		ledger := local.NewTokenLedger(localAdapter)
		ledger.Mint(localCollateral, localDeployer, big.NewInt(1_000_000_000_000))
		ledger.SetAllowance(localCollateral, localDeployer, localAdapter, big.NewInt(1_000_000_000_000))
		deps.Tokens = ledger
		deps.AllowList = local.NewAllowList(localCollateral)

		deps.AdapterAddress = localAdapter
		deps.OracleAddress = localOracle
		deps.Deployer = localDeployer

		logger.InfoContext(ctx, "standalone principals",
			slog.String("deployer", localDeployer.Hex()),
			slog.String("adapter", localAdapter.Hex()),
			slog.String("oracle", localOracle.Hex()),
			slog.String("collateral", localCollateral.Hex()),
		)
	}

	// --- S3 blob storage (only when archiving is enabled) ---
	if cfg.Archive.Enabled {
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
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Store, deps.Audit)
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
