// Package router encodes purchase intents into universal-router command
// sequences. Each opcode gets one ABI-encoded input blob; the two slices of
// a plan stay positionally aligned and a plan is built in full or not at all.
package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// Sentinel recipients understood by the router contract: 0x...01 resolves to
// msg.sender, 0x...02 to the router itself.
var (
	recipientSender = common.HexToAddress("0x0000000000000000000000000000000000000001")
	recipientRouter = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

var (
	addressType = mustType("address", nil)
	uint256Type = mustType("uint256", nil)
	bytesType   = mustType("bytes", nil)
	boolType    = mustType("bool", nil)
	addrSlice   = mustType("address[]", nil)
	bytesSlice  = mustType("bytes[]", nil)

	permitSingleType = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "details", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint160"},
			{Name: "expiration", Type: "uint48"},
			{Name: "nonce", Type: "uint48"},
		}},
		{Name: "spender", Type: "address"},
		{Name: "sigDeadline", Type: "uint256"},
	})

	wrapArgs = abi.Arguments{
		{Type: addressType}, // recipient
		{Type: uint256Type}, // amount
	}
	unwrapArgs = abi.Arguments{
		{Type: addressType}, // recipient
		{Type: uint256Type}, // minimum amount
	}
	v3SwapArgs = abi.Arguments{
		{Type: addressType}, // recipient
		{Type: uint256Type}, // amount out
		{Type: uint256Type}, // amount in max
		{Type: bytesType},   // path
		{Type: boolType},    // payer is user
	}
	v2SwapArgs = abi.Arguments{
		{Type: addressType}, // recipient
		{Type: uint256Type}, // amount out
		{Type: uint256Type}, // amount in max
		{Type: addrSlice},   // path
		{Type: boolType},    // payer is user
	}
	permitArgs = abi.Arguments{
		{Type: permitSingleType},
		{Type: bytesType}, // signature
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("router: bad abi type %s: %v", t, err))
	}
	return typ
}

type permitDetails struct {
	Token      common.Address
	Amount     *big.Int
	Expiration *big.Int
	Nonce      *big.Int
}

type permitSingle struct {
	Details     permitDetails
	Spender     common.Address
	SigDeadline *big.Int
}

// Encoder turns swap intents into router command plans for one chain.
type Encoder struct {
	wrappedNative common.Address
	routerAddr    common.Address
}

// NewEncoder creates an encoder for a chain's wrapped-native token and
// router deployment. The router address is the permit spender.
func NewEncoder(wrappedNative, routerAddr common.Address) *Encoder {
	return &Encoder{wrappedNative: wrappedNative, routerAddr: routerAddr}
}

// Encode resolves the intent's sell currency and liquidity source into the
// full command sequence for a single router call.
//
// Selling native wraps first and unwraps the exact-output leftover last, so
// the payer is never left holding wrapped dust. Selling an ERC20 leads with
// the permit so the swap command can pull funds through the permit registry.
func (e *Encoder) Encode(intent domain.SwapIntent) (domain.SwapPlan, error) {
	switch intent.Source {
	case domain.SourceUniswapV2, domain.SourceUniswapV3:
	default:
		return domain.SwapPlan{}, domain.E(domain.ErrUnsupportedSourceForCurrency,
			"no router commands for liquidity source %q", intent.Source)
	}
	if intent.MaxAmountIn == nil || intent.ExactAmountOut == nil {
		return domain.SwapPlan{}, fmt.Errorf("router: intent is missing swap bounds")
	}

	if domain.IsNative(intent.SellCurrency) {
		return e.encodeNative(intent)
	}
	return e.encodeErc20(intent)
}

func (e *Encoder) encodeNative(intent domain.SwapIntent) (domain.SwapPlan, error) {
	wrap, err := wrapArgs.Pack(recipientRouter, intent.MaxAmountIn)
	if err != nil {
		return domain.SwapPlan{}, fmt.Errorf("router: pack wrap input: %w", err)
	}

	// The router holds the wrapped funds after WRAP_ETH, so it pays for the
	// swap itself.
	swapCmd, swapInput, err := e.packSwap(intent, e.wrappedNative, false)
	if err != nil {
		return domain.SwapPlan{}, err
	}

	unwrap, err := unwrapArgs.Pack(recipientSender, big.NewInt(0))
	if err != nil {
		return domain.SwapPlan{}, fmt.Errorf("router: pack unwrap input: %w", err)
	}

	return domain.SwapPlan{
		Payer:        intent.Payer,
		Recipient:    intent.Recipient,
		SellCurrency: intent.SellCurrency,
		Commands:     []domain.Command{domain.CommandWrapNative, swapCmd, domain.CommandUnwrapNative},
		Inputs:       [][]byte{wrap, swapInput, unwrap},
		Value:        new(big.Int).Set(intent.MaxAmountIn),
	}, nil
}

func (e *Encoder) encodeErc20(intent domain.SwapIntent) (domain.SwapPlan, error) {
	if intent.Permit == nil {
		return domain.SwapPlan{}, fmt.Errorf("router: ERC20 sell currency %s requires a permit signature", intent.SellCurrency)
	}

	permit, err := permitArgs.Pack(permitSingle{
		Details: permitDetails{
			Token:      intent.SellCurrency,
			Amount:     intent.Permit.Amount,
			Expiration: intent.Permit.Expiration,
			Nonce:      intent.Permit.Nonce,
		},
		Spender:     e.routerAddr,
		SigDeadline: intent.Permit.SigDeadline,
	}, intent.Permit.Signature)
	if err != nil {
		return domain.SwapPlan{}, fmt.Errorf("router: pack permit input: %w", err)
	}

	swapCmd, swapInput, err := e.packSwap(intent, intent.SellCurrency, true)
	if err != nil {
		return domain.SwapPlan{}, err
	}

	return domain.SwapPlan{
		Payer:        intent.Payer,
		Recipient:    intent.Recipient,
		SellCurrency: intent.SellCurrency,
		Commands:     []domain.Command{domain.CommandPermit2Permit, swapCmd},
		Inputs:       [][]byte{permit, swapInput},
		Value:        big.NewInt(0),
	}, nil
}

// packSwap encodes the exact-output swap command for the intent's source.
// sellToken is the on-chain token the pool actually trades, which differs
// from the intent's sell currency on the native path.
func (e *Encoder) packSwap(intent domain.SwapIntent, sellToken common.Address, payerIsUser bool) (domain.Command, []byte, error) {
	switch intent.Source {
	case domain.SourceUniswapV3:
		input, err := v3SwapArgs.Pack(
			intent.Recipient,
			intent.ExactAmountOut,
			intent.MaxAmountIn,
			v3Path(intent.BuyToken, intent.PoolFee, sellToken),
			payerIsUser,
		)
		if err != nil {
			return 0, nil, fmt.Errorf("router: pack v3 swap input: %w", err)
		}
		return domain.CommandV3SwapExactOut, input, nil

	case domain.SourceUniswapV2:
		input, err := v2SwapArgs.Pack(
			intent.Recipient,
			intent.ExactAmountOut,
			intent.MaxAmountIn,
			v2Path(sellToken, intent.BuyToken),
			payerIsUser,
		)
		if err != nil {
			return 0, nil, fmt.Errorf("router: pack v2 swap input: %w", err)
		}
		return domain.CommandV2SwapExactOut, input, nil

	default:
		return 0, nil, domain.E(domain.ErrUnsupportedSourceForCurrency,
			"no router commands for liquidity source %q", intent.Source)
	}
}

// ExecuteCalldata wraps the plan into calldata for the router's
// execute(bytes,bytes[],uint256) entrypoint with the given deadline.
func ExecuteCalldata(plan domain.SwapPlan, deadline *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: bytesType},
		{Type: bytesSlice},
		{Type: uint256Type},
	}
	packed, err := args.Pack(plan.CommandBytes(), plan.Inputs, deadline)
	if err != nil {
		return nil, fmt.Errorf("router: pack execute calldata: %w", err)
	}
	// execute(bytes commands, bytes[] inputs, uint256 deadline)
	selector := []byte{0x35, 0x93, 0x56, 0x4c}
	return append(selector, packed...), nil
}
