package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/guildxyz/tokenbuyer/internal/allowance"
	s3blob "github.com/guildxyz/tokenbuyer/internal/blob/s3"
	"github.com/guildxyz/tokenbuyer/internal/cache/redis"
	"github.com/guildxyz/tokenbuyer/internal/chain"
	"github.com/guildxyz/tokenbuyer/internal/config"
	"github.com/guildxyz/tokenbuyer/internal/crypto"
	"github.com/guildxyz/tokenbuyer/internal/domain"
	"github.com/guildxyz/tokenbuyer/internal/fee"
	"github.com/guildxyz/tokenbuyer/internal/notify"
	"github.com/guildxyz/tokenbuyer/internal/pricing"
	"github.com/guildxyz/tokenbuyer/internal/router"
	"github.com/guildxyz/tokenbuyer/internal/server/handler"
	"github.com/guildxyz/tokenbuyer/internal/service"
	"github.com/guildxyz/tokenbuyer/internal/store/postgres"
)

// defaultPoolFee is the Uniswap V3 fee tier routed through when a chain does
// not override it (0.3%).
const defaultPoolFee uint32 = 3000

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence and caching (serve mode only).
	AttemptStore  domain.AttemptStore
	RateCache     domain.RateCache
	DecimalsCache domain.DecimalsCache
	RateLimiter   *redis.RateLimiter
	SignalBus     domain.SignalBus

	// Blob storage (serve mode, when an S3 bucket is configured).
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.AttemptArchiver

	// Notifications.
	Notifier *notify.Notifier

	// Chain access and pricing.
	Chains *chain.Client
	Signer *crypto.Signer
	Engine *pricing.Engine
	Fees   *fee.Calculator
	Gate   *allowance.Gate

	// Orchestration.
	Purchases *service.PurchaseService

	// Pingers feed the health endpoint.
	Pingers map[string]handler.Pinger
}

// pingFunc adapts a plain health function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// isServe reports whether the mode runs the long-lived API. Quote mode is a
// one-shot read: it skips postgres, redis, and blob storage entirely.
func isServe(mode string) bool {
	return strings.ToLower(mode) == "serve"
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
		Pingers: map[string]handler.Pinger{},
	}

	// --- PostgreSQL (serve mode only) ---
	if isServe(cfg.Mode) {
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
		deps.AttemptStore = postgres.NewAttemptStore(pool)
		deps.Pingers["postgres"] = pool
	}

	// --- Redis (serve mode only) ---
	if isServe(cfg.Mode) {
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

		deps.RateCache = redis.NewRateCache(redisClient)
		deps.DecimalsCache = redis.NewDecimalsCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Pingers["redis"] = redisClient
	}

	// --- S3 blob storage (serve mode, optional) ---
	if isServe(cfg.Mode) && cfg.S3.Bucket != "" {
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
		deps.Archiver = s3blob.NewAttemptArchiver(deps.BlobWriter, deps.AttemptStore)
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
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

	// --- Chain access and payer key ---
	chainClient, err := chain.Dial(cfg.Chains, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chains = chainClient

	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	deps.Signer = signer

	// --- Pricing, fees, allowance ---
	timeout := cfg.Pricing.RequestTimeout.Duration
	sources := make(map[string]pricing.ChainSource, len(cfg.Chains))
	encoders := make(map[string]service.PlanEncoder, len(cfg.Chains))
	contracts := make(map[string]service.ChainContracts, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		src := pricing.ChainSource{
			Swap:          pricing.NewSwapPriceClient(cc.SwapPriceBaseURL, timeout),
			NativeSymbol:  cc.NativeSymbol,
			WrappedNative: common.HexToAddress(cc.WrappedNative),
			Liquidity:     domain.LiquiditySource(cc.LiquiditySource),
		}
		if cc.NFTPriceBaseURL != "" {
			src.NFT = pricing.NewNFTPriceClient(cc.NFTPriceBaseURL, timeout)
		}
		sources[name] = src

		wrapped := common.HexToAddress(cc.WrappedNative)
		routerAddr := common.HexToAddress(cc.UniversalRouter)
		encoders[name] = router.NewEncoder(wrapped, routerAddr)
		poolFee := defaultPoolFee
		if cc.PoolFee != 0 {
			poolFee = uint32(cc.PoolFee)
		}
		contracts[name] = service.ChainContracts{
			ChainID:         cc.ChainID,
			UniversalRouter: routerAddr,
			Permit2:         common.HexToAddress(cc.Permit2),
			PoolFee:         poolFee,
		}
	}

	rates := pricing.NewRateClient(cfg.Pricing.RateBaseURL, timeout)
	deps.Engine = pricing.NewEngine(
		sources,
		rates,
		chainClient,
		deps.DecimalsCache,
		deps.RateCache,
		cfg.Pricing.QuoteTTL.Duration,
		cfg.Pricing.RateCacheTTL.Duration,
		logger,
	)

	deps.Fees = fee.NewCalculator(
		cfg.Fee.PercentageFeeBps,
		decimal.NewFromFloat(cfg.Fee.FixedFeeUSD),
		cfg.Fee.SlippageBps,
	)
	deps.Gate = allowance.NewGate(chainClient, logger)

	// --- Purchase orchestration ---
	// In quote mode the store, bus, and blob writer stay nil; the service
	// only serves QuoteWithFees there.
	deps.Purchases = service.NewPurchaseService(
		deps.Engine,
		deps.Fees,
		deps.Gate,
		encoders,
		contracts,
		chainClient,
		signer,
		deps.AttemptStore,
		deps.SignalBus,
		deps.BlobWriter,
		logger,
	)

	return deps, cleanup, nil
}
