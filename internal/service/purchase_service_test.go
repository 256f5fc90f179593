package service

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/guildxyz/tokenbuyer/internal/crypto"
	"github.com/guildxyz/tokenbuyer/internal/domain"
	"github.com/guildxyz/tokenbuyer/internal/fee"
)

// Hardhat's first default account; used only to produce valid signatures in
// tests.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testAsset  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testUSDC   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testRouter = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	testPermit = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	testRecip  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeQuoter serves a sequence of canned quotes, one per call.
type fakeQuoter struct {
	quotes []domain.Quote
	errs   []error
	calls  int
}

func (f *fakeQuoter) Quote(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, error) {
	i := f.calls
	f.calls++
	if i >= len(f.quotes) {
		i = len(f.quotes) - 1
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.Quote{}, f.errs[i]
	}
	return f.quotes[i], nil
}

// fakeGate returns a canned approval decision.
type fakeGate struct {
	approveTx *domain.TxRequest
	err       error
}

func (f *fakeGate) ApprovalIfNeeded(ctx context.Context, chainName string, token, owner, spender common.Address, required *big.Int) (*domain.TxRequest, domain.AllowanceState, error) {
	state := domain.AllowanceState{Token: token, Required: required, Current: big.NewInt(0)}
	return f.approveTx, state, f.err
}

// fakeEncoder records the intents it encoded.
type fakeEncoder struct {
	lastIntent domain.SwapIntent
	calls      int
	err        error
}

func (f *fakeEncoder) Encode(intent domain.SwapIntent) (domain.SwapPlan, error) {
	f.lastIntent = intent
	f.calls++
	if f.err != nil {
		return domain.SwapPlan{}, f.err
	}
	return domain.SwapPlan{
		Payer:        intent.Payer,
		Recipient:    intent.Recipient,
		SellCurrency: intent.SellCurrency,
		Commands:     []domain.Command{domain.CommandWrapNative, domain.CommandV3SwapExactOut, domain.CommandUnwrapNative},
		Inputs:       [][]byte{{0x01}, {0x02}, {0x03}},
		Value:        new(big.Int).Set(intent.MaxAmountIn),
	}, nil
}

// fakeChain submits transactions into thin air and mines them instantly.
type fakeChain struct {
	nonce       *big.Int
	receiptFail bool
	submitErr   error
	submitted   []domain.TxRequest
}

func (f *fakeChain) PermitNonce(ctx context.Context, chain string, permit2, owner, token, spender common.Address) (*big.Int, error) {
	if f.nonce == nil {
		return big.NewInt(0), nil
	}
	return f.nonce, nil
}

func (f *fakeChain) Submit(ctx context.Context, chain string, key *ecdsa.PrivateKey, req domain.TxRequest) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return common.BigToHash(big.NewInt(int64(len(f.submitted)))), nil
}

func (f *fakeChain) WaitMined(ctx context.Context, chain string, hash common.Hash) (*types.Receipt, error) {
	status := types.ReceiptStatusSuccessful
	if f.receiptFail {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{Status: status, BlockNumber: big.NewInt(1), GasUsed: 21_000}, nil
}

// memStore is an in-memory AttemptStore.
type memStore struct {
	mu       sync.Mutex
	attempts map[string]domain.PurchaseAttempt
	order    []string
}

func newMemStore() *memStore {
	return &memStore{attempts: map[string]domain.PurchaseAttempt{}}
}

func (m *memStore) Create(ctx context.Context, a domain.PurchaseAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status domain.AttemptStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.attempts[id]
	a.Status = status
	m.attempts[id] = a
	return nil
}

func (m *memStore) SetFailure(ctx context.Context, id, kind, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.attempts[id]
	a.Status = domain.AttemptFailed
	a.FailureKind = kind
	a.FailureReason = reason
	m.attempts[id] = a
	return nil
}

func (m *memStore) SetTxHash(ctx context.Context, id string, status domain.AttemptStatus, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.attempts[id]
	a.Status = status
	switch status {
	case domain.AttemptApproved, domain.AttemptAwaitingApproval:
		a.ApprovalTxHash = txHash
	default:
		a.SwapTxHash = txHash
	}
	m.attempts[id] = a
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (domain.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return domain.PurchaseAttempt{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListByPayer(ctx context.Context, payer string, limit int) ([]domain.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PurchaseAttempt
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if a := m.attempts[m.order[i]]; a.Payer == payer {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.PurchaseAttempt, error) {
	return nil, nil
}

func testQuote(source domain.LiquiditySource, ttl time.Duration) domain.Quote {
	now := time.Now().UTC()
	return domain.Quote{
		Requirement: domain.Requirement{
			AssetKind:    domain.AssetFungible,
			Chain:        "ethereum",
			AssetAddress: testAsset,
			TargetAmount: decimal.NewFromInt(100),
		},
		SellCurrency:  domain.NativeCurrency,
		BuyToken:      testAsset,
		BuyAmount:     big.NewInt(100_000_000),
		BasePrice:     big.NewInt(1_000_000_000),
		PriceInUSD:    decimal.NewFromInt(50),
		NativeUSDRate: decimal.NewFromInt(2000),
		SellDecimals:  18,
		SellUSDRate:   decimal.NewFromInt(2000),
		Source:        source,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

type fixture struct {
	svc     *PurchaseService
	quoter  *fakeQuoter
	chain   *fakeChain
	gate    *fakeGate
	encoder *fakeEncoder
	store   *memStore
}

func newFixture(t *testing.T, quotes ...domain.Quote) *fixture {
	t.Helper()

	signer, err := crypto.NewSigner(testKeyHex)
	require.NoError(t, err)

	f := &fixture{
		quoter:  &fakeQuoter{quotes: quotes},
		chain:   &fakeChain{},
		gate:    &fakeGate{},
		encoder: &fakeEncoder{},
		store:   newMemStore(),
	}
	f.svc = NewPurchaseService(
		f.quoter,
		fee.NewCalculator(200, decimal.Zero, 50),
		f.gate,
		map[string]PlanEncoder{"ethereum": f.encoder},
		map[string]ChainContracts{"ethereum": {
			ChainID:         1,
			UniversalRouter: testRouter,
			Permit2:         testPermit,
			PoolFee:         3000,
		}},
		f.chain,
		signer,
		f.store,
		nil, nil,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func fungibleReq() domain.Requirement {
	return domain.Requirement{
		AssetKind:    domain.AssetFungible,
		Chain:        "ethereum",
		AssetAddress: testAsset,
		TargetAmount: decimal.NewFromInt(100),
	}
}

func TestPurchaseNativeHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.NoError(t, err)

	require.Equal(t, domain.AttemptConfirmed, attempt.Status)
	require.NotEmpty(t, attempt.SwapTxHash)
	require.Empty(t, attempt.ApprovalTxHash, "native sell currency needs no approval")
	require.NotNil(t, attempt.ConfirmedAt)

	// One transaction: the router call, carrying the swap ceiling as value.
	require.Len(t, f.chain.submitted, 1)
	require.Equal(t, testRouter, f.chain.submitted[0].To)
	require.Equal(t, attempt.MaxAmountIn.String(), f.chain.submitted[0].Value.String())

	// No permit on the native path.
	require.Nil(t, f.encoder.lastIntent.Permit)

	stored, err := f.store.GetByID(context.Background(), attempt.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AttemptConfirmed, stored.Status)
}

func TestPurchaseErc20SubmitsApprovalAndPermit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	f.gate.approveTx = &domain.TxRequest{To: testUSDC, Value: big.NewInt(0), Data: []byte{0x09, 0x5e, 0xa7, 0xb3}}

	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), testUSDC, testRecip)
	require.NoError(t, err)

	require.Equal(t, domain.AttemptConfirmed, attempt.Status)
	require.NotEmpty(t, attempt.ApprovalTxHash)
	require.NotEmpty(t, attempt.SwapTxHash)

	// Approval first, then the router call.
	require.Len(t, f.chain.submitted, 2)
	require.Equal(t, testUSDC, f.chain.submitted[0].To)
	require.Equal(t, testRouter, f.chain.submitted[1].To)

	// The ERC20 path always carries a permit covering the swap ceiling.
	require.NotNil(t, f.encoder.lastIntent.Permit)
	require.Equal(t, attempt.MaxAmountIn.String(), f.encoder.lastIntent.Permit.Amount.String())
	require.Len(t, f.encoder.lastIntent.Permit.Signature, 65)
}

func TestPurchaseNFTQuotedButNotExecutable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceNFTMarket, time.Minute))
	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.ErrorIs(t, err, domain.ErrUnsupportedSourceForCurrency)

	// The attempt is still recorded with the failure classification.
	require.Equal(t, domain.AttemptFailed, attempt.Status)
	stored, storeErr := f.store.GetByID(context.Background(), attempt.ID)
	require.NoError(t, storeErr)
	require.Equal(t, "unsupported_source_for_currency", stored.FailureKind)

	require.Empty(t, f.chain.submitted, "nothing may reach the chain")
}

func TestPurchaseUnsupportedChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	req := fungibleReq()
	req.Chain = "fantom"

	_, err := f.svc.Purchase(context.Background(), req, domain.NativeCurrency, testRecip)
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestPurchaseRequotesAfterExpiry(t *testing.T) {
	t.Parallel()

	// First quote is already expired; the refreshed one is cheaper, so the
	// flow proceeds.
	expired := testQuote(domain.SourceUniswapV3, -time.Second)
	fresh := testQuote(domain.SourceUniswapV3, time.Minute)
	fresh.BasePrice = big.NewInt(900_000_000)

	f := newFixture(t, expired, fresh)
	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.NoError(t, err)
	require.Equal(t, domain.AttemptConfirmed, attempt.Status)
	require.Equal(t, 2, f.quoter.calls, "expired quote must be refreshed exactly once")
}

func TestPurchaseExpiryPriceMovedUp(t *testing.T) {
	t.Parallel()

	// The refreshed quote costs more than the ceiling computed from the
	// first one, so the attempt aborts instead of overspending.
	expired := testQuote(domain.SourceUniswapV3, -time.Second)
	pricier := testQuote(domain.SourceUniswapV3, time.Minute)
	pricier.BasePrice = big.NewInt(2_000_000_000)

	f := newFixture(t, expired, pricier)
	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.ErrorIs(t, err, domain.ErrQuoteExpired)
	require.Equal(t, domain.AttemptFailed, attempt.Status)
	require.Empty(t, f.chain.submitted)
}

func TestPurchaseExpiredQuoteNeverEncoded(t *testing.T) {
	t.Parallel()

	// The quote outlives the first freshness check but expires before the
	// plan is built. The flow must abort without handing the stale quote to
	// the encoder.
	base := time.Now().UTC()
	quote := testQuote(domain.SourceUniswapV3, time.Minute)
	quote.CreatedAt = base
	quote.ExpiresAt = base.Add(25 * time.Second)

	f := newFixture(t, quote)
	step := 0
	f.svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step-1) * 10 * time.Second)
	}

	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.ErrorIs(t, err, domain.ErrQuoteExpired)
	require.Equal(t, domain.AttemptFailed, attempt.Status)
	require.Zero(t, f.encoder.calls, "stale quotes must not be encoded")
	require.Empty(t, f.chain.submitted)
}

func TestPurchaseRevertedSwapFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	f.chain.receiptFail = true

	attempt, err := f.svc.Purchase(context.Background(), fungibleReq(), domain.NativeCurrency, testRecip)
	require.Error(t, err)
	require.Equal(t, domain.AttemptFailed, attempt.Status)

	stored, storeErr := f.store.GetByID(context.Background(), attempt.ID)
	require.NoError(t, storeErr)
	require.Equal(t, "internal", stored.FailureKind)
}

func TestQuoteWithFees(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	quote, breakdown, err := f.svc.QuoteWithFees(context.Background(), fungibleReq(), domain.NativeCurrency)
	require.NoError(t, err)

	require.Equal(t, "1000000000", quote.BasePrice.String())
	// 2% of 1e9.
	require.Equal(t, "20000000", breakdown.PercentageFee.String())
	require.Equal(t, "1020000000", breakdown.TotalNative.String())
}

func TestListAttemptsClampsLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testQuote(domain.SourceUniswapV3, time.Minute))
	_, err := f.svc.ListAttempts(context.Background(), testRecip.Hex(), -5)
	require.NoError(t, err)
}
