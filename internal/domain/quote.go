package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LiquiditySource identifies where a quote's price came from and therefore
// how the purchase must be executed.
type LiquiditySource string

const (
	SourceUniswapV2 LiquiditySource = "uniswap_v2"
	SourceUniswapV3 LiquiditySource = "uniswap_v3"
	SourceNFTMarket LiquiditySource = "nft_market"
)

// Quote is the result of pricing a Requirement against a sell currency.
// All sell-side amounts are in the sell currency's smallest unit; USD values
// are display-only and never flow into a SwapPlan.
//
// UnitPrice is nil on the NFT path: heterogeneous floor prices have no
// meaningful per-unit figure.
type Quote struct {
	Requirement  Requirement     `json:"requirement"`
	SellCurrency common.Address  `json:"sell_currency"`
	BuyToken     common.Address  `json:"buy_token"`

	// BuyAmount is the exact output the swap must produce: the requirement's
	// target amount in smallest units (fungible) or the listing count (NFT).
	BuyAmount *big.Int `json:"buy_amount"`

	// UnitPrice is the sell-currency cost per whole buy token, scaled to the
	// sell currency's smallest unit.
	UnitPrice *big.Int `json:"unit_price,omitempty"`

	// BasePrice is the total sell-currency cost before fees.
	BasePrice *big.Int `json:"base_price"`

	PriceInUSD    decimal.Decimal `json:"price_in_usd"`
	NativeUSDRate decimal.Decimal `json:"native_usd_rate"`

	// SellDecimals is the sell currency's smallest-unit precision (18 for
	// native currency). SellUSDRate is the USD value of one whole sell-currency
	// unit, captured at quote time. Together they let the fee calculator
	// convert USD figures into the same unit as BasePrice.
	SellDecimals uint8           `json:"sell_decimals"`
	SellUSDRate  decimal.Decimal `json:"sell_usd_rate"`

	// EstimatedGasNative is the gas cost estimate in native smallest units.
	EstimatedGasNative *big.Int `json:"estimated_gas_native"`

	Source    LiquiditySource `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the quote may no longer be acted on. Expired
// quotes must never reach the command encoder; the flow restarts from
// quotation instead.
func (q Quote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// FeeBreakdown is derived from a Quote by the fee calculator. All amounts
// are in the quote's sell-currency smallest unit, matching BasePrice. The
// invariant TotalNative == BasePrice + PercentageFee + FixedFeeNative always
// holds; gas is additive and paid separately in native currency.
type FeeBreakdown struct {
	BasePrice      *big.Int        `json:"base_price"`
	PercentageFee  *big.Int        `json:"percentage_fee"`
	FixedFeeNative *big.Int        `json:"fixed_fee_native"`
	GasFee         *big.Int        `json:"gas_fee"`
	TotalNative    *big.Int        `json:"total_native"`
	TotalUSD       decimal.Decimal `json:"total_usd"`
}
