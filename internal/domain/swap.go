package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Command is a universal-router opcode. Each command executes with its own
// ABI-encoded input blob.
type Command byte

const (
	CommandV3SwapExactOut Command = 0x01
	CommandV2SwapExactOut Command = 0x09
	CommandPermit2Permit  Command = 0x0a
	CommandWrapNative     Command = 0x0b
	CommandUnwrapNative   Command = 0x0c
)

func (c Command) String() string {
	switch c {
	case CommandV3SwapExactOut:
		return "V3_SWAP_EXACT_OUT"
	case CommandV2SwapExactOut:
		return "V2_SWAP_EXACT_OUT"
	case CommandPermit2Permit:
		return "PERMIT2_PERMIT"
	case CommandWrapNative:
		return "WRAP_ETH"
	case CommandUnwrapNative:
		return "UNWRAP_WETH"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(c))
	}
}

// PermitSignature carries a signed Permit2 PermitSingle message authorizing
// the router to move the sell token. It is produced off-chain by the payer's
// signer and consumed on-chain by the PERMIT2_PERMIT command.
type PermitSignature struct {
	Amount      *big.Int
	Expiration  *big.Int
	Nonce       *big.Int
	SigDeadline *big.Int
	Signature   []byte
}

// SwapIntent is the fully resolved input of the command encoder: who pays,
// who receives, what is bought, and the bounds the router must enforce.
type SwapIntent struct {
	Payer        common.Address
	Recipient    common.Address
	SellCurrency common.Address
	BuyToken     common.Address

	// MaxAmountIn is the sell-currency ceiling including fee and slippage
	// headroom; ExactAmountOut is the quote's buy amount.
	MaxAmountIn    *big.Int
	ExactAmountOut *big.Int

	Source LiquiditySource

	// PoolFee is the V3 fee tier in hundredths of a bip (e.g. 3000 = 0.3%).
	// Ignored on V2 routes.
	PoolFee uint32

	// Permit must be set for ERC20 sell currencies and is ignored for native.
	Permit *PermitSignature
}

// SwapPlan is the encoded command sequence ready for a single router call.
// It is consumed exactly once and never mutated; commands and inputs are
// positionally aligned.
type SwapPlan struct {
	Payer        common.Address
	Recipient    common.Address
	SellCurrency common.Address
	Commands     []Command
	Inputs       [][]byte

	// Value is the native amount attached to the router call; zero for
	// ERC20 sell currencies.
	Value *big.Int
}

// CommandBytes returns the opcode sequence as the byte string the router's
// execute method takes.
func (p SwapPlan) CommandBytes() []byte {
	out := make([]byte, len(p.Commands))
	for i, c := range p.Commands {
		out[i] = byte(c)
	}
	return out
}

// TxRequest is an unsigned transaction handed to the chain layer or to an
// external wallet collaborator for signing and submission.
type TxRequest struct {
	To       common.Address `json:"to"`
	Value    *big.Int       `json:"value"`
	Data     []byte         `json:"data"`
	GasLimit uint64         `json:"gas_limit,omitempty"`
}
