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
// built-in defaults, applies TOKENBUYER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TOKENBUYER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Per-chain values (RPC URLs and pricing keys tend to be secret) use
// the chain name uppercased, e.g. TOKENBUYER_CHAIN_ETHEREUM_RPC_URL.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TOKENBUYER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TOKENBUYER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TOKENBUYER_WALLET_KEY_PASSWORD")

	// ── Chains ──
	for name, chain := range cfg.Chains {
		prefix := "TOKENBUYER_CHAIN_" + strings.ToUpper(name) + "_"
		setStr(&chain.RPCURL, prefix+"RPC_URL")
		setStr(&chain.SwapPriceBaseURL, prefix+"SWAP_PRICE_BASE_URL")
		setStr(&chain.NFTPriceBaseURL, prefix+"NFT_PRICE_BASE_URL")
		cfg.Chains[name] = chain
	}

	// ── Pricing ──
	setStr(&cfg.Pricing.RateBaseURL, "TOKENBUYER_PRICING_RATE_BASE_URL")
	setDuration(&cfg.Pricing.QuoteTTL, "TOKENBUYER_PRICING_QUOTE_TTL")
	setDuration(&cfg.Pricing.RateCacheTTL, "TOKENBUYER_PRICING_RATE_CACHE_TTL")
	setDuration(&cfg.Pricing.RequestTimeout, "TOKENBUYER_PRICING_REQUEST_TIMEOUT")

	// ── Fee ──
	setInt64(&cfg.Fee.PercentageFeeBps, "TOKENBUYER_FEE_PERCENTAGE_FEE_BPS")
	setFloat64(&cfg.Fee.FixedFeeUSD, "TOKENBUYER_FEE_FIXED_FEE_USD")
	setInt64(&cfg.Fee.SlippageBps, "TOKENBUYER_FEE_SLIPPAGE_BPS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TOKENBUYER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TOKENBUYER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TOKENBUYER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TOKENBUYER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TOKENBUYER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TOKENBUYER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TOKENBUYER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TOKENBUYER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TOKENBUYER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TOKENBUYER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TOKENBUYER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TOKENBUYER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TOKENBUYER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TOKENBUYER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TOKENBUYER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TOKENBUYER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TOKENBUYER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TOKENBUYER_S3_REGION")
	setStr(&cfg.S3.Bucket, "TOKENBUYER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TOKENBUYER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TOKENBUYER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TOKENBUYER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TOKENBUYER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TOKENBUYER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TOKENBUYER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TOKENBUYER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TOKENBUYER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TOKENBUYER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TOKENBUYER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TOKENBUYER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TOKENBUYER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TOKENBUYER_MODE")
	setStr(&cfg.LogLevel, "TOKENBUYER_LOG_LEVEL")
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
