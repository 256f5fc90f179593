package domain

import (
	"math/big"
	"time"
)

// AttemptStatus is the lifecycle state of a purchase attempt.
type AttemptStatus string

const (
	AttemptQuoted           AttemptStatus = "quoted"
	AttemptAwaitingApproval AttemptStatus = "awaiting_approval"
	AttemptApproved         AttemptStatus = "approved"
	AttemptSubmitted        AttemptStatus = "submitted"
	AttemptConfirmed        AttemptStatus = "confirmed"
	AttemptFailed           AttemptStatus = "failed"
)

// PurchaseAttempt is the audit record of one user-initiated purchase flow,
// from quotation through on-chain confirmation or failure.
type PurchaseAttempt struct {
	ID           string        `json:"id"`
	Chain        string        `json:"chain"`
	Payer        string        `json:"payer"`
	AssetAddress string        `json:"asset_address"`
	AssetKind    AssetKind     `json:"asset_kind"`
	SellCurrency string        `json:"sell_currency"`
	Source       LiquiditySource `json:"source"`

	BuyAmount   *big.Int `json:"buy_amount"`
	MaxAmountIn *big.Int `json:"max_amount_in"`
	TotalNative *big.Int `json:"total_native"`

	Status        AttemptStatus `json:"status"`
	FailureKind   string        `json:"failure_kind,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`

	ApprovalTxHash string `json:"approval_tx_hash,omitempty"`
	SwapTxHash     string `json:"swap_tx_hash,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// StatusEvent is published on the signal bus whenever an attempt changes
// state, and relayed to WebSocket subscribers.
type StatusEvent struct {
	AttemptID string        `json:"attempt_id"`
	Status    AttemptStatus `json:"status"`
	TxHash    string        `json:"tx_hash,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}
