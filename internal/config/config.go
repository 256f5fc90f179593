// Package config defines the top-level configuration for the token buyer
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TOKENBUYER_* environment
// variables.
type Config struct {
	Wallet   WalletConfig           `toml:"wallet"`
	Chains   map[string]ChainConfig `toml:"chains"`
	Pricing  PricingConfig          `toml:"pricing"`
	Fee      FeeConfig              `toml:"fee"`
	Postgres PostgresConfig         `toml:"postgres"`
	Redis    RedisConfig            `toml:"redis"`
	S3       S3Config               `toml:"s3"`
	Server   ServerConfig           `toml:"server"`
	Notify   NotifyConfig           `toml:"notify"`
	Mode     string                 `toml:"mode"`
	LogLevel string                 `toml:"log_level"`
}

// WalletConfig holds the submitter wallet credentials. The raw key takes
// precedence; otherwise the encrypted key file is decrypted with KeyPassword.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds everything the pipeline needs to operate on one chain:
// the node endpoint, the pricing-source base URLs, and the pre-deployed
// contract addresses.
type ChainConfig struct {
	ChainID          int64  `toml:"chain_id"`
	RPCURL           string `toml:"rpc_url"`
	SwapPriceBaseURL string `toml:"swap_price_base_url"`
	NFTPriceBaseURL  string `toml:"nft_price_base_url"`
	NativeSymbol     string `toml:"native_symbol"`
	WrappedNative    string `toml:"wrapped_native"`
	LiquiditySource  string `toml:"liquidity_source"`
	UniversalRouter  string `toml:"universal_router"`
	Permit2          string `toml:"permit2"`
	// PoolFee selects the V3 fee tier for single-hop swaps on this chain, in
	// hundredths of a bip. Zero falls back to the 0.30% tier.
	PoolFee int64 `toml:"pool_fee"`
}

// PricingConfig holds quotation parameters shared across chains.
type PricingConfig struct {
	// RateBaseURL is the native/USD spot rate endpoint base.
	RateBaseURL string `toml:"rate_base_url"`
	// QuoteTTL bounds how long a quote may be acted on.
	QuoteTTL duration `toml:"quote_ttl"`
	// RateCacheTTL bounds how long a cached native/USD rate is served.
	RateCacheTTL duration `toml:"rate_cache_ttl"`
	// RequestTimeout applies to each outbound pricing request.
	RequestTimeout duration `toml:"request_timeout"`
}

// FeeConfig holds the commission model. PercentageFeeBps is applied to the
// base price; FixedFeeUSD is converted to native currency at quote time and
// may be zero.
type FeeConfig struct {
	PercentageFeeBps int64   `toml:"percentage_fee_bps"`
	FixedFeeUSD      float64 `toml:"fixed_fee_usd"`
	// SlippageBps is the extra headroom added on top of the fee total when
	// sizing maxAmountIn.
	SlippageBps int64 `toml:"slippage_bps"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the receipt
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chains: map[string]ChainConfig{
			"ethereum": {
				ChainID:          1,
				SwapPriceBaseURL: "https://api.0x.org",
				NFTPriceBaseURL:  "https://api.reservoir.tools",
				NativeSymbol:     "ETH",
				WrappedNative:    "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				LiquiditySource:  "uniswap_v3",
				UniversalRouter:  "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
				Permit2:          "0x000000000022D473030F116dDEE9F6B43aC78BA3",
				PoolFee:          3000,
			},
			"polygon": {
				ChainID:          137,
				SwapPriceBaseURL: "https://polygon.api.0x.org",
				NFTPriceBaseURL:  "https://api-polygon.reservoir.tools",
				NativeSymbol:     "MATIC",
				WrappedNative:    "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
				LiquiditySource:  "uniswap_v2",
				UniversalRouter:  "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
				Permit2:          "0x000000000022D473030F116dDEE9F6B43aC78BA3",
				PoolFee:          3000,
			},
		},
		Pricing: PricingConfig{
			RateBaseURL:    "https://api.coinbase.com",
			QuoteTTL:       duration{30 * time.Second},
			RateCacheTTL:   duration{15 * time.Second},
			RequestTimeout: duration{10 * time.Second},
		},
		Fee: FeeConfig{
			PercentageFeeBps: 200,
			FixedFeeUSD:      0,
			SlippageBps:      50,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tokenbuyer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies that would prevent
// the service from operating. It returns the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "quote":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("config: at least one chain must be configured")
	}
	for name, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("config: chain %s: chain_id is required", name)
		}
		if chain.SwapPriceBaseURL == "" {
			return fmt.Errorf("config: chain %s: swap_price_base_url is required", name)
		}
		if chain.NativeSymbol == "" {
			return fmt.Errorf("config: chain %s: native_symbol is required", name)
		}
		if !isHexAddress(chain.WrappedNative) {
			return fmt.Errorf("config: chain %s: wrapped_native is not a valid address", name)
		}
		if !isHexAddress(chain.UniversalRouter) {
			return fmt.Errorf("config: chain %s: universal_router is not a valid address", name)
		}
		if !isHexAddress(chain.Permit2) {
			return fmt.Errorf("config: chain %s: permit2 is not a valid address", name)
		}
		switch chain.PoolFee {
		case 0, 100, 500, 3000, 10_000:
		default:
			return fmt.Errorf("config: chain %s: pool_fee %d is not a known fee tier", name, chain.PoolFee)
		}
		switch chain.LiquiditySource {
		case "uniswap_v2", "uniswap_v3":
		default:
			return fmt.Errorf("config: chain %s: liquidity_source must be uniswap_v2 or uniswap_v3", name)
		}
	}

	if c.Fee.PercentageFeeBps < 0 || c.Fee.PercentageFeeBps > 10_000 {
		return fmt.Errorf("config: fee.percentage_fee_bps must be within [0, 10000]")
	}
	if c.Fee.FixedFeeUSD < 0 {
		return fmt.Errorf("config: fee.fixed_fee_usd must not be negative")
	}
	if c.Fee.SlippageBps < 0 {
		return fmt.Errorf("config: fee.slippage_bps must not be negative")
	}

	if c.Pricing.QuoteTTL.Duration <= 0 {
		return fmt.Errorf("config: pricing.quote_ttl must be positive")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}

	return nil
}

// isHexAddress is a light validity check for 0x-prefixed 20-byte addresses,
// kept here to avoid pulling go-ethereum into the config package.
func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
