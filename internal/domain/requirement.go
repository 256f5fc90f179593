// Package domain holds the core types of the token purchase pipeline:
// requirements, quotes, fee breakdowns, swap plans, and the store and cache
// interfaces the infrastructure layers implement.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetKind distinguishes the asset categories the pipeline can acquire.
type AssetKind string

const (
	AssetFungible AssetKind = "fungible"
	AssetERC721   AssetKind = "erc721"
	AssetERC1155  AssetKind = "erc1155"
)

// IsNFT reports whether the kind is one of the non-fungible categories.
func (k AssetKind) IsNFT() bool {
	return k == AssetERC721 || k == AssetERC1155
}

// NativeCurrency is the sentinel address pricing sources use for a chain's
// native currency (ETH, MATIC, ...).
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether addr is the native-currency sentinel.
func IsNative(addr common.Address) bool {
	return addr == NativeCurrency
}

// AttributeFilter narrows an NFT listings query to tokens carrying a
// specific trait value.
type AttributeFilter struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Requirement describes what must be acquired for the user to satisfy a
// gating rule. It is immutable once created.
//
// TargetAmount is a whole count for NFTs and a minimum holding in whole
// token units for fungible assets; the pricing engine converts it to the
// token's smallest unit using the on-chain decimals value.
type Requirement struct {
	AssetKind    AssetKind         `json:"asset_kind"`
	Chain        string            `json:"chain"`
	AssetAddress common.Address    `json:"asset_address"`
	TargetAmount decimal.Decimal   `json:"target_amount"`
	TokenID      *big.Int          `json:"token_id,omitempty"`
	Attributes   []AttributeFilter `json:"attributes,omitempty"`
}

// SmallestUnitAmount converts TargetAmount to the token's smallest unit
// given its decimal precision.
func (r Requirement) SmallestUnitAmount(decimals uint8) *big.Int {
	return r.TargetAmount.Shift(int32(decimals)).BigInt()
}
