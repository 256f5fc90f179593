// Package service orchestrates the purchase flow: quotation, fee
// calculation, the allowance gate, permit signing, command encoding, and
// on-chain submission, with every state change persisted and published.
package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/guildxyz/tokenbuyer/internal/crypto"
	"github.com/guildxyz/tokenbuyer/internal/domain"
	"github.com/guildxyz/tokenbuyer/internal/router"
)

// StatusChannel is the signal-bus channel carrying purchase status events.
const StatusChannel = "purchase:status"

// permitExpiry is how long a signed permit stays valid. Permits outlive the
// quote on purpose: a slow approval confirmation must not invalidate them.
const permitExpiry = 30 * time.Minute

// Quoter prices a requirement against a sell currency.
type Quoter interface {
	Quote(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, error)
}

// FeeApplier derives the payable total and the swap input ceiling.
type FeeApplier interface {
	Apply(q domain.Quote) domain.FeeBreakdown
	MaxAmountIn(b domain.FeeBreakdown) *big.Int
}

// ApprovalGate reads the live allowance and builds the approve transaction
// when it falls short.
type ApprovalGate interface {
	ApprovalIfNeeded(ctx context.Context, chainName string, token, owner, spender common.Address, required *big.Int) (*domain.TxRequest, domain.AllowanceState, error)
}

// PlanEncoder turns a resolved swap intent into router commands.
type PlanEncoder interface {
	Encode(intent domain.SwapIntent) (domain.SwapPlan, error)
}

// PermitSigner signs Permit2 messages and owns the payer key.
type PermitSigner interface {
	SignPermit(chainID int64, permit2 common.Address, req crypto.PermitRequest) (*domain.PermitSignature, error)
	Address() common.Address
	Key() *ecdsa.PrivateKey
}

// ChainAccess covers the on-chain operations the purchase flow performs.
type ChainAccess interface {
	PermitNonce(ctx context.Context, chain string, permit2, owner, token, spender common.Address) (*big.Int, error)
	Submit(ctx context.Context, chain string, key *ecdsa.PrivateKey, req domain.TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, chain string, hash common.Hash) (*types.Receipt, error)
}

// ChainContracts holds the per-chain contract addresses the flow targets.
type ChainContracts struct {
	ChainID         int64
	UniversalRouter common.Address
	Permit2         common.Address
	// PoolFee is the V3 fee tier routed through on this chain.
	PoolFee uint32
}

// PurchaseService drives purchase attempts end to end.
type PurchaseService struct {
	quoter    Quoter
	fees      FeeApplier
	gate      ApprovalGate
	encoders  map[string]PlanEncoder
	contracts map[string]ChainContracts
	chains    ChainAccess
	signer    PermitSigner
	store     domain.AttemptStore
	bus       domain.SignalBus
	receipts  domain.BlobWriter
	logger    *slog.Logger

	now func() time.Time
}

// NewPurchaseService creates a PurchaseService with all required
// dependencies. bus and receipts may be nil; status fan-out and receipt
// archiving are then skipped.
func NewPurchaseService(
	quoter Quoter,
	fees FeeApplier,
	gate ApprovalGate,
	encoders map[string]PlanEncoder,
	contracts map[string]ChainContracts,
	chains ChainAccess,
	signer PermitSigner,
	store domain.AttemptStore,
	bus domain.SignalBus,
	receipts domain.BlobWriter,
	logger *slog.Logger,
) *PurchaseService {
	return &PurchaseService{
		quoter:    quoter,
		fees:      fees,
		gate:      gate,
		encoders:  encoders,
		contracts: contracts,
		chains:    chains,
		signer:    signer,
		store:     store,
		bus:       bus,
		receipts:  receipts,
		logger:    logger.With(slog.String("component", "purchase_service")),
		now:       time.Now,
	}
}

// QuoteWithFees prices a requirement and applies the fee schedule. This is
// the read-only half of the flow, shared by the quote endpoint and the CLI.
func (s *PurchaseService) QuoteWithFees(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, domain.FeeBreakdown, error) {
	quote, err := s.quoter.Quote(ctx, req, sellCurrency)
	if err != nil {
		return domain.Quote{}, domain.FeeBreakdown{}, err
	}
	return quote, s.fees.Apply(quote), nil
}

// Purchase runs the full flow for one requirement and returns the final
// attempt record. The attempt is persisted before any on-chain action, so a
// crash mid-flow leaves an auditable trail rather than an orphaned swap.
func (s *PurchaseService) Purchase(ctx context.Context, req domain.Requirement, sellCurrency, recipient common.Address) (domain.PurchaseAttempt, error) {
	contracts, ok := s.contracts[req.Chain]
	if !ok {
		return domain.PurchaseAttempt{}, domain.E(domain.ErrUnsupportedChain, "no contracts configured for chain %q", req.Chain)
	}
	encoder, ok := s.encoders[req.Chain]
	if !ok {
		return domain.PurchaseAttempt{}, domain.E(domain.ErrUnsupportedChain, "no encoder configured for chain %q", req.Chain)
	}

	quote, breakdown, err := s.QuoteWithFees(ctx, req, sellCurrency)
	if err != nil {
		return domain.PurchaseAttempt{}, err
	}
	maxIn := s.fees.MaxAmountIn(breakdown)

	payer := s.signer.Address()
	attempt := domain.PurchaseAttempt{
		ID:           uuid.NewString(),
		Chain:        req.Chain,
		Payer:        payer.Hex(),
		AssetAddress: req.AssetAddress.Hex(),
		AssetKind:    req.AssetKind,
		SellCurrency: sellCurrency.Hex(),
		Source:       quote.Source,
		BuyAmount:    quote.BuyAmount,
		MaxAmountIn:  maxIn,
		TotalNative:  breakdown.TotalNative,
		Status:       domain.AttemptQuoted,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, attempt); err != nil {
		return domain.PurchaseAttempt{}, fmt.Errorf("purchase_service: persist attempt: %w", err)
	}
	s.publish(ctx, attempt.ID, domain.AttemptQuoted, "", "")

	if quote.Source == domain.SourceNFTMarket {
		err := domain.E(domain.ErrUnsupportedSourceForCurrency,
			"NFT listings are quoted but not yet purchasable on-chain")
		return s.fail(ctx, attempt, err)
	}

	// Approval gate. Only ERC20 sell currencies pass through it; the swap
	// must not be submitted until the approval has confirmed.
	if !domain.IsNative(sellCurrency) {
		attempt, err = s.ensureApproval(ctx, attempt, contracts, sellCurrency, payer, maxIn)
		if err != nil {
			return s.fail(ctx, attempt, err)
		}
	}

	// An approval wait can outlive the quote. Re-quote once instead of
	// encoding against stale prices; a second expiry aborts the attempt.
	if quote.Expired(s.now()) {
		s.logger.Info("quote expired during approval, re-quoting",
			slog.String("attempt_id", attempt.ID),
		)
		quote, breakdown, err = s.QuoteWithFees(ctx, req, sellCurrency)
		if err != nil {
			return s.fail(ctx, attempt, err)
		}
		refreshed := s.fees.MaxAmountIn(breakdown)
		if refreshed.Cmp(maxIn) > 0 {
			// The approved allowance no longer covers the swap ceiling.
			return s.fail(ctx, attempt, domain.E(domain.ErrQuoteExpired,
				"price moved beyond the approved amount during approval"))
		}
		maxIn = refreshed
	}

	intent := domain.SwapIntent{
		Payer:          payer,
		Recipient:      recipient,
		SellCurrency:   sellCurrency,
		BuyToken:       quote.BuyToken,
		MaxAmountIn:    maxIn,
		ExactAmountOut: quote.BuyAmount,
		Source:         quote.Source,
		PoolFee:        contracts.PoolFee,
	}

	if !domain.IsNative(sellCurrency) {
		permit, err := s.signPermit(ctx, req.Chain, contracts, sellCurrency, payer, maxIn)
		if err != nil {
			return s.fail(ctx, attempt, err)
		}
		intent.Permit = permit
	}

	// Expired quotes never reach the encoder; permit signing can take long
	// enough on a congested RPC for the window to close.
	if quote.Expired(s.now()) {
		return s.fail(ctx, attempt, domain.E(domain.ErrQuoteExpired,
			"quote expired before the swap could be encoded"))
	}

	plan, err := encoder.Encode(intent)
	if err != nil {
		return s.fail(ctx, attempt, err)
	}

	deadline := big.NewInt(quote.ExpiresAt.Unix())
	calldata, err := router.ExecuteCalldata(plan, deadline)
	if err != nil {
		return s.fail(ctx, attempt, err)
	}

	swapHash, err := s.chains.Submit(ctx, req.Chain, s.signer.Key(), domain.TxRequest{
		To:    contracts.UniversalRouter,
		Value: plan.Value,
		Data:  calldata,
	})
	if err != nil {
		return s.fail(ctx, attempt, err)
	}
	attempt.SwapTxHash = swapHash.Hex()
	attempt.Status = domain.AttemptSubmitted
	if err := s.store.SetTxHash(ctx, attempt.ID, domain.AttemptSubmitted, attempt.SwapTxHash); err != nil {
		s.logger.Error("persist swap hash failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, attempt.ID, domain.AttemptSubmitted, attempt.SwapTxHash, "")

	receipt, err := s.chains.WaitMined(ctx, req.Chain, swapHash)
	if err != nil {
		return s.fail(ctx, attempt, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return s.fail(ctx, attempt, fmt.Errorf("purchase_service: swap %s reverted", swapHash.Hex()))
	}

	attempt.Status = domain.AttemptConfirmed
	confirmedAt := s.now().UTC()
	attempt.ConfirmedAt = &confirmedAt
	attempt.UpdatedAt = confirmedAt
	if err := s.store.UpdateStatus(ctx, attempt.ID, domain.AttemptConfirmed); err != nil {
		s.logger.Error("persist confirmation failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, attempt.ID, domain.AttemptConfirmed, attempt.SwapTxHash, "")
	s.archiveReceipt(ctx, attempt, quote, breakdown, receipt)

	s.logger.Info("purchase confirmed",
		slog.String("attempt_id", attempt.ID),
		slog.String("chain", attempt.Chain),
		slog.String("swap_tx", attempt.SwapTxHash),
		slog.String("total_native", attempt.TotalNative.String()),
	)
	return attempt, nil
}

// GetAttempt returns one attempt by ID.
func (s *PurchaseService) GetAttempt(ctx context.Context, id string) (domain.PurchaseAttempt, error) {
	return s.store.GetByID(ctx, id)
}

// ListAttempts returns the payer's most recent attempts.
func (s *PurchaseService) ListAttempts(ctx context.Context, payer string, limit int) ([]domain.PurchaseAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByPayer(ctx, payer, limit)
}

// ensureApproval walks the attempt through the allowance gate: when the
// current allowance falls short it submits the approve transaction and
// blocks until it confirms.
func (s *PurchaseService) ensureApproval(ctx context.Context, attempt domain.PurchaseAttempt, contracts ChainContracts, token, payer common.Address, required *big.Int) (domain.PurchaseAttempt, error) {
	approveTx, state, err := s.gate.ApprovalIfNeeded(ctx, attempt.Chain, token, payer, contracts.Permit2, required)
	if err != nil {
		return attempt, err
	}
	if approveTx == nil {
		s.logger.Debug("allowance sufficient",
			slog.String("attempt_id", attempt.ID),
			slog.String("current", state.Current.String()),
		)
		return attempt, nil
	}

	attempt.Status = domain.AttemptAwaitingApproval
	if err := s.store.UpdateStatus(ctx, attempt.ID, domain.AttemptAwaitingApproval); err != nil {
		s.logger.Error("persist status failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, attempt.ID, domain.AttemptAwaitingApproval, "", "")

	hash, err := s.chains.Submit(ctx, attempt.Chain, s.signer.Key(), *approveTx)
	if err != nil {
		return attempt, err
	}
	attempt.ApprovalTxHash = hash.Hex()

	receipt, err := s.chains.WaitMined(ctx, attempt.Chain, hash)
	if err != nil {
		return attempt, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return attempt, fmt.Errorf("purchase_service: approval %s reverted", hash.Hex())
	}

	attempt.Status = domain.AttemptApproved
	if err := s.store.SetTxHash(ctx, attempt.ID, domain.AttemptApproved, attempt.ApprovalTxHash); err != nil {
		s.logger.Error("persist approval hash failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, attempt.ID, domain.AttemptApproved, attempt.ApprovalTxHash, "")
	return attempt, nil
}

// signPermit reads the next permit nonce and signs a PermitSingle covering
// the swap ceiling.
func (s *PurchaseService) signPermit(ctx context.Context, chainName string, contracts ChainContracts, token, payer common.Address, amount *big.Int) (*domain.PermitSignature, error) {
	nonce, err := s.chains.PermitNonce(ctx, chainName, contracts.Permit2, payer, token, contracts.UniversalRouter)
	if err != nil {
		return nil, fmt.Errorf("purchase_service: read permit nonce: %w", err)
	}

	expiry := big.NewInt(s.now().Add(permitExpiry).Unix())
	return s.signer.SignPermit(contracts.ChainID, contracts.Permit2, crypto.PermitRequest{
		Token:       token,
		Spender:     contracts.UniversalRouter,
		Amount:      amount,
		Expiration:  expiry,
		Nonce:       nonce,
		SigDeadline: expiry,
	})
}

// fail records the failure on the attempt, publishes the terminal event, and
// returns the original error to the caller.
func (s *PurchaseService) fail(ctx context.Context, attempt domain.PurchaseAttempt, cause error) (domain.PurchaseAttempt, error) {
	kind := "internal"
	reason := cause.Error()
	var derr *domain.Error
	if errors.As(cause, &derr) {
		kind = derr.Kind
		reason = derr.Reason
	}

	attempt.Status = domain.AttemptFailed
	attempt.FailureKind = kind
	attempt.FailureReason = reason
	if err := s.store.SetFailure(ctx, attempt.ID, kind, reason); err != nil {
		s.logger.Error("persist failure failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, attempt.ID, domain.AttemptFailed, attempt.SwapTxHash, reason)

	s.logger.Warn("purchase failed",
		slog.String("attempt_id", attempt.ID),
		slog.String("kind", kind),
		slog.String("reason", reason),
	)
	return attempt, cause
}

// publish emits a status event on the bus. Fan-out is best effort; a bus
// outage never blocks the purchase flow.
func (s *PurchaseService) publish(ctx context.Context, attemptID string, status domain.AttemptStatus, txHash, reason string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.StatusEvent{
		AttemptID: attemptID,
		Status:    status,
		TxHash:    txHash,
		Reason:    reason,
		At:        s.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, StatusChannel, payload); err != nil {
		s.logger.Warn("status publish failed",
			slog.String("attempt_id", attemptID),
			slog.String("error", err.Error()),
		)
	}
}

// archiveReceipt writes the confirmed purchase's full context to the blob
// store for offline auditing.
func (s *PurchaseService) archiveReceipt(ctx context.Context, attempt domain.PurchaseAttempt, quote domain.Quote, breakdown domain.FeeBreakdown, receipt *types.Receipt) {
	if s.receipts == nil {
		return
	}
	record := struct {
		Attempt   domain.PurchaseAttempt `json:"attempt"`
		Quote     domain.Quote           `json:"quote"`
		Breakdown domain.FeeBreakdown    `json:"breakdown"`
		GasUsed   uint64                 `json:"gas_used"`
		Block     uint64                 `json:"block_number"`
	}{attempt, quote, breakdown, receipt.GasUsed, receipt.BlockNumber.Uint64()}

	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	key := fmt.Sprintf("receipts/%s/%s.json", attempt.Chain, attempt.ID)
	if err := s.receipts.Put(ctx, key, data, "application/json"); err != nil {
		s.logger.Warn("receipt archive failed",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
}
