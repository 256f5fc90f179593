// Package chain wraps JSON-RPC access to the supported EVM chains: ERC20
// reads, transaction signing and submission, and receipt waits.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/guildxyz/tokenbuyer/internal/config"
	"github.com/guildxyz/tokenbuyer/internal/domain"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// The permit registry's allowance mapping: (owner, token, spender) ->
// (amount uint160, expiration uint48, nonce uint48).
const permit2ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"token","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"},{"name":"nonce","type":"uint48"}],"type":"function"}
]`

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	permit2ABI = mustParseABI(permit2ABIJSON)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("chain: bad embedded ABI: %v", err))
	}
	return parsed
}

// conn is one chain's dialed RPC endpoint.
type conn struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Client multiplexes RPC access across every configured chain. Chains are
// addressed by their config name; an unknown name is an unsupported-chain
// error, not a panic.
type Client struct {
	conns  map[string]*conn
	logger *slog.Logger
}

// Dial connects to every configured chain's RPC endpoint. A single
// unreachable endpoint fails startup; partial chain support is configured,
// never silently degraded into.
func Dial(chains map[string]config.ChainConfig, logger *slog.Logger) (*Client, error) {
	conns := make(map[string]*conn, len(chains))
	for name, cfg := range chains {
		eth, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			for _, c := range conns {
				c.eth.Close()
			}
			return nil, fmt.Errorf("chain: dial %s: %w", name, err)
		}
		conns[name] = &conn{eth: eth, chainID: big.NewInt(cfg.ChainID)}
	}
	return &Client{
		conns:  conns,
		logger: logger.With(slog.String("component", "chain")),
	}, nil
}

func (c *Client) conn(chain string) (*conn, error) {
	cn, ok := c.conns[chain]
	if !ok {
		return nil, domain.E(domain.ErrUnsupportedChain, "no RPC connection for chain %q", chain)
	}
	return cn, nil
}

// Decimals reads a token's decimals() value. Tokens that do not implement
// the call or return garbage are reported as errors for the caller to type.
func (c *Client) Decimals(ctx context.Context, chain string, token common.Address) (uint8, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return 0, err
	}

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: pack decimals call: %w", err)
	}

	result, err := cn.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: decimals call to %s: %w", token.Hex(), err)
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("chain: token %s returned no decimals value", token.Hex())
	}

	v := new(big.Int).SetBytes(result)
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("chain: token %s returned out-of-range decimals %s", token.Hex(), v)
	}
	return uint8(v.Uint64()), nil
}

// Allowance reads the ERC20 allowance the owner has granted the spender.
func (c *Client) Allowance(ctx context.Context, chain string, token, owner, spender common.Address) (*big.Int, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return nil, err
	}

	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance call: %w", err)
	}

	result, err := cn.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance call to %s: %w", token.Hex(), err)
	}
	return new(big.Int).SetBytes(result), nil
}

// PermitNonce reads the next permit nonce for (owner, token, spender) from
// the permit registry. Nonces increment per permit, so a fresh read is
// needed before every signature.
func (c *Client) PermitNonce(ctx context.Context, chain string, permit2, owner, token, spender common.Address) (*big.Int, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return nil, err
	}

	data, err := permit2ABI.Pack("allowance", owner, token, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack permit allowance call: %w", err)
	}

	result, err := cn.eth.CallContract(ctx, ethereum.CallMsg{To: &permit2, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: permit allowance call: %w", err)
	}

	values, err := permit2ABI.Methods["allowance"].Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack permit allowance: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("chain: permit allowance returned %d values", len(values))
	}
	nonce, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: permit nonce has unexpected type %T", values[2])
	}
	return nonce, nil
}

// SuggestGasPrice proxies the chain's current gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context, chain string) (*big.Int, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return nil, err
	}
	price, err := cn.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	return price, nil
}

// Submit signs the request with the payer key and broadcasts it. When the
// request carries no gas limit the estimate is padded by 20% so swaps do not
// fail on routing-dependent gas variance.
func (c *Client) Submit(ctx context.Context, chain string, key *ecdsa.PrivateKey, req domain.TxRequest) (common.Hash, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return common.Hash{}, err
	}

	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := cn.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pending nonce for %s: %w", from.Hex(), err)
	}

	gasPrice, err := cn.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimate, err := cn.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
		}
		gasLimit = estimate * 120 / 100
	}

	tx := types.NewTransaction(nonce, req.To, req.Value, gasLimit, gasPrice, req.Data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(cn.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign transaction: %w", err)
	}

	if err := cn.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send transaction: %w", err)
	}

	c.logger.Info("transaction submitted",
		slog.String("chain", chain),
		slog.String("hash", signed.Hash().Hex()),
		slog.String("to", req.To.Hex()),
		slog.Uint64("gas_limit", gasLimit),
	)
	return signed.Hash(), nil
}

// WaitMined polls for the transaction receipt until the context ends. It
// returns the receipt whatever its status; reading success or revert off it
// is the caller's concern.
func (c *Client) WaitMined(ctx context.Context, chain string, hash common.Hash) (*types.Receipt, error) {
	cn, err := c.conn(chain)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := cn.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			c.logger.Warn("receipt poll failed",
				slog.String("hash", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases every RPC connection.
func (c *Client) Close() {
	for _, cn := range c.conns {
		cn.eth.Close()
	}
}

// ApproveCalldata packs an ERC20 approve(spender, amount) call.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve call: %w", err)
	}
	return data, nil
}
