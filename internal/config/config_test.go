package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Contains(t, cfg.Chains, "ethereum")
	require.Contains(t, cfg.Chains, "polygon")
	require.Equal(t, "serve", cfg.Mode)
	require.Equal(t, 30*time.Second, cfg.Pricing.QuoteTTL.Duration)
	require.EqualValues(t, 3000, cfg.Chains["ethereum"].PoolFee)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "quote mode accepted",
			mutate:  func(c *Config) { c.Mode = "quote" },
			wantErr: "",
		},
		{
			name:    "mode is case insensitive",
			mutate:  func(c *Config) { c.Mode = "Serve" },
			wantErr: "",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "daemon" },
			wantErr: "unsupported mode",
		},
		{
			name:    "no chains",
			mutate:  func(c *Config) { c.Chains = nil },
			wantErr: "at least one chain",
		},
		{
			name: "missing chain id",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.ChainID = 0
				c.Chains["ethereum"] = ch
			},
			wantErr: "chain_id is required",
		},
		{
			name: "missing swap price url",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.SwapPriceBaseURL = ""
				c.Chains["ethereum"] = ch
			},
			wantErr: "swap_price_base_url is required",
		},
		{
			name: "missing native symbol",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.NativeSymbol = ""
				c.Chains["ethereum"] = ch
			},
			wantErr: "native_symbol is required",
		},
		{
			name: "bad wrapped native address",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.WrappedNative = "0xnothex"
				c.Chains["ethereum"] = ch
			},
			wantErr: "wrapped_native",
		},
		{
			name: "bad router address",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.UniversalRouter = "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FA" // 41 chars
				c.Chains["ethereum"] = ch
			},
			wantErr: "universal_router",
		},
		{
			name: "bad permit2 address",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.Permit2 = "000000000022D473030F116dDEE9F6B43aC78BA300"
				c.Chains["ethereum"] = ch
			},
			wantErr: "permit2",
		},
		{
			name: "unset pool fee allowed",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.PoolFee = 0
				c.Chains["ethereum"] = ch
			},
			wantErr: "",
		},
		{
			name: "unknown pool fee tier",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.PoolFee = 2500
				c.Chains["ethereum"] = ch
			},
			wantErr: "pool_fee",
		},
		{
			name: "unknown liquidity source",
			mutate: func(c *Config) {
				ch := c.Chains["ethereum"]
				ch.LiquiditySource = "sushiswap"
				c.Chains["ethereum"] = ch
			},
			wantErr: "liquidity_source",
		},
		{
			name:    "percentage fee above 100 percent",
			mutate:  func(c *Config) { c.Fee.PercentageFeeBps = 10_001 },
			wantErr: "percentage_fee_bps",
		},
		{
			name:    "negative percentage fee",
			mutate:  func(c *Config) { c.Fee.PercentageFeeBps = -1 },
			wantErr: "percentage_fee_bps",
		},
		{
			name:    "negative fixed fee",
			mutate:  func(c *Config) { c.Fee.FixedFeeUSD = -0.5 },
			wantErr: "fixed_fee_usd",
		},
		{
			name:    "negative slippage",
			mutate:  func(c *Config) { c.Fee.SlippageBps = -10 },
			wantErr: "slippage_bps",
		},
		{
			name:    "zero quote ttl",
			mutate:  func(c *Config) { c.Pricing.QuoteTTL.Duration = 0 },
			wantErr: "quote_ttl",
		},
		{
			name:    "server port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70_000 },
			wantErr: "out of range",
		},
		{
			name: "port ignored when server disabled",
			mutate: func(c *Config) {
				c.Server.Enabled = false
				c.Server.Port = 0
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "quote"
log_level = "debug"

[fee]
percentage_fee_bps = 150
fixed_fee_usd = 2.5
slippage_bps = 100

[pricing]
quote_ttl = "45s"

[chains.ethereum]
rpc_url = "https://eth.example.org"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "quote", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.EqualValues(t, 150, cfg.Fee.PercentageFeeBps)
	require.InDelta(t, 2.5, cfg.Fee.FixedFeeUSD, 1e-9)
	require.Equal(t, 45*time.Second, cfg.Pricing.QuoteTTL.Duration)

	// File values merge into the default chain entry rather than replacing it.
	eth := cfg.Chains["ethereum"]
	require.Equal(t, "https://eth.example.org", eth.RPCURL)
	require.EqualValues(t, 1, eth.ChainID)
	require.Equal(t, "ETH", eth.NativeSymbol)

	// Untouched sections keep their defaults.
	require.Equal(t, 8080, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600))

	t.Setenv("TOKENBUYER_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("TOKENBUYER_FEE_PERCENTAGE_FEE_BPS", "75")
	t.Setenv("TOKENBUYER_PRICING_QUOTE_TTL", "1m")
	t.Setenv("TOKENBUYER_CHAIN_ETHEREUM_RPC_URL", "https://mainnet.example.org")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "s3cret", cfg.Postgres.Password)
	require.EqualValues(t, 75, cfg.Fee.PercentageFeeBps)
	require.Equal(t, time.Minute, cfg.Pricing.QuoteTTL.Duration)
	require.Equal(t, "https://mainnet.example.org", cfg.Chains["ethereum"].RPCURL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()

	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	require.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(out))

	require.Error(t, d.UnmarshalText([]byte("ninety")))
}

func TestIsHexAddress(t *testing.T) {
	t.Parallel()

	require.True(t, isHexAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"))
	require.True(t, isHexAddress("0x0000000000000000000000000000000000000000"))
	require.False(t, isHexAddress("3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"))
	require.False(t, isHexAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FA"))
	require.False(t, isHexAddress("0xZfC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"))
	require.False(t, isHexAddress(""))
}
