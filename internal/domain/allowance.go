package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceState captures a live (owner, spender) allowance read against the
// amount the purchase needs. It is derived fresh on every attempt; on-chain
// allowances change out-of-band, so caching across sessions is unsafe.
type AllowanceState struct {
	Owner    common.Address `json:"owner"`
	Spender  common.Address `json:"spender"`
	Token    common.Address `json:"token"`
	Current  *big.Int       `json:"current"`
	Required *big.Int       `json:"required"`
}

// NeedsApproval reports whether an approve transaction must confirm before
// the swap can be submitted.
func (s AllowanceState) NeedsApproval() bool {
	if IsNative(s.Token) {
		return false
	}
	return s.Current.Cmp(s.Required) < 0
}
