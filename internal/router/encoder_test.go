package router

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	testWrapped   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testRouter    = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	testBuyToken  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testSellToken = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testPayer     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func nativeIntent(source domain.LiquiditySource) domain.SwapIntent {
	return domain.SwapIntent{
		Payer:          testPayer,
		Recipient:      testRecipient,
		SellCurrency:   domain.NativeCurrency,
		BuyToken:       testBuyToken,
		MaxAmountIn:    big.NewInt(1_050_000),
		ExactAmountOut: big.NewInt(1_000_000),
		Source:         source,
		PoolFee:        3000,
	}
}

func erc20Intent(source domain.LiquiditySource) domain.SwapIntent {
	intent := nativeIntent(source)
	intent.SellCurrency = testSellToken
	intent.Permit = &domain.PermitSignature{
		Amount:      big.NewInt(1_050_000),
		Expiration:  big.NewInt(1_700_001_800),
		Nonce:       big.NewInt(0),
		SigDeadline: big.NewInt(1_700_001_800),
		Signature:   bytes.Repeat([]byte{0xab}, 65),
	}
	return intent
}

func TestEncodeNativeRoute(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(testWrapped, testRouter)
	plan, err := enc.Encode(nativeIntent(domain.SourceUniswapV3))
	require.NoError(t, err)

	require.Equal(t, []domain.Command{
		domain.CommandWrapNative,
		domain.CommandV3SwapExactOut,
		domain.CommandUnwrapNative,
	}, plan.Commands)
	require.Len(t, plan.Inputs, 3, "commands and inputs must stay aligned")
	require.Equal(t, []byte{0x0b, 0x01, 0x0c}, plan.CommandBytes())

	// The full swap ceiling travels as call value.
	require.Equal(t, "1050000", plan.Value.String())
}

func TestEncodeNativeV2Route(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(testWrapped, testRouter)
	plan, err := enc.Encode(nativeIntent(domain.SourceUniswapV2))
	require.NoError(t, err)

	require.Equal(t, []domain.Command{
		domain.CommandWrapNative,
		domain.CommandV2SwapExactOut,
		domain.CommandUnwrapNative,
	}, plan.Commands)
}

func TestEncodeErc20Route(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(testWrapped, testRouter)
	plan, err := enc.Encode(erc20Intent(domain.SourceUniswapV3))
	require.NoError(t, err)

	require.Equal(t, []domain.Command{
		domain.CommandPermit2Permit,
		domain.CommandV3SwapExactOut,
	}, plan.Commands)
	require.Len(t, plan.Inputs, 2)

	// ERC20 routes attach no native value.
	require.Zero(t, plan.Value.Sign())

	// The permit input embeds the sell token and the router as spender.
	require.True(t, bytes.Contains(plan.Inputs[0], testSellToken.Bytes()))
	require.True(t, bytes.Contains(plan.Inputs[0], testRouter.Bytes()))
}

func TestEncodeErc20RequiresPermit(t *testing.T) {
	t.Parallel()

	intent := erc20Intent(domain.SourceUniswapV3)
	intent.Permit = nil

	enc := NewEncoder(testWrapped, testRouter)
	_, err := enc.Encode(intent)
	require.Error(t, err)
	require.Contains(t, err.Error(), "permit")
}

func TestEncodeRejectsNFTSource(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(testWrapped, testRouter)
	_, err := enc.Encode(nativeIntent(domain.SourceNFTMarket))
	require.ErrorIs(t, err, domain.ErrUnsupportedSourceForCurrency)
}

func TestEncodeRejectsMissingBounds(t *testing.T) {
	t.Parallel()

	intent := nativeIntent(domain.SourceUniswapV3)
	intent.MaxAmountIn = nil

	enc := NewEncoder(testWrapped, testRouter)
	_, err := enc.Encode(intent)
	require.Error(t, err)
}

func TestV3PathLayout(t *testing.T) {
	t.Parallel()

	path := v3Path(testBuyToken, 3000, testWrapped)
	require.Len(t, path, 43)

	// Exact-output paths run buy token -> fee -> sell token.
	require.Equal(t, testBuyToken.Bytes(), path[:20])
	require.Equal(t, []byte{0x00, 0x0b, 0xb8}, path[20:23]) // 3000 big-endian
	require.Equal(t, testWrapped.Bytes(), path[23:])
}

func TestV2PathOrder(t *testing.T) {
	t.Parallel()

	path := v2Path(testWrapped, testBuyToken)
	require.Equal(t, []common.Address{testWrapped, testBuyToken}, path)
}

func TestExecuteCalldata(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(testWrapped, testRouter)
	plan, err := enc.Encode(nativeIntent(domain.SourceUniswapV3))
	require.NoError(t, err)

	calldata, err := ExecuteCalldata(plan, big.NewInt(1_700_000_000))
	require.NoError(t, err)

	// execute(bytes,bytes[],uint256) selector.
	require.Equal(t, []byte{0x35, 0x93, 0x56, 0x4c}, calldata[:4])
	// The ABI payload is head-aligned to 32-byte words.
	require.Zero(t, (len(calldata)-4)%32)
}
