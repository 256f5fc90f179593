package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Create inserts a new purchase attempt.
func (s *AttemptStore) Create(ctx context.Context, a domain.PurchaseAttempt) error {
	const query = `
		INSERT INTO purchase_attempts (
			id, chain, payer, asset_address, asset_kind, sell_currency, source,
			buy_amount, max_amount_in, total_native,
			status, failure_kind, failure_reason,
			approval_tx_hash, swap_tx_hash,
			created_at, updated_at, confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, NOW(), $17
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Chain, a.Payer, a.AssetAddress, string(a.AssetKind), a.SellCurrency, string(a.Source),
		bigIntStr(a.BuyAmount), bigIntStr(a.MaxAmountIn), bigIntStr(a.TotalNative),
		string(a.Status), nullable(a.FailureKind), nullable(a.FailureReason),
		nullable(a.ApprovalTxHash), nullable(a.SwapTxHash),
		a.CreatedAt, a.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create attempt %s: %w", a.ID, err)
	}
	return nil
}

// UpdateStatus moves an attempt to a new lifecycle state. Confirmation also
// stamps confirmed_at.
func (s *AttemptStore) UpdateStatus(ctx context.Context, id string, status domain.AttemptStatus) error {
	var query string
	if status == domain.AttemptConfirmed {
		query = `UPDATE purchase_attempts SET status = $1, confirmed_at = NOW(), updated_at = NOW() WHERE id = $2`
	} else {
		query = `UPDATE purchase_attempts SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update attempt status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetFailure marks an attempt failed with its failure classification.
func (s *AttemptStore) SetFailure(ctx context.Context, id, kind, reason string) error {
	const query = `
		UPDATE purchase_attempts
		SET status = $1, failure_kind = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query, string(domain.AttemptFailed), kind, reason, id)
	if err != nil {
		return fmt.Errorf("postgres: set attempt failure %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTxHash records the transaction hash that carried the attempt into the
// given status. Approved attempts carry the approval hash, submitted and
// later attempts the swap hash.
func (s *AttemptStore) SetTxHash(ctx context.Context, id string, status domain.AttemptStatus, txHash string) error {
	var query string
	if status == domain.AttemptApproved || status == domain.AttemptAwaitingApproval {
		query = `UPDATE purchase_attempts SET status = $1, approval_tx_hash = $2, updated_at = NOW() WHERE id = $3`
	} else {
		query = `UPDATE purchase_attempts SET status = $1, swap_tx_hash = $2, updated_at = NOW() WHERE id = $3`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), txHash, id)
	if err != nil {
		return fmt.Errorf("postgres: set attempt tx hash %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const attemptSelectCols = `id, chain, payer, asset_address, asset_kind, sell_currency, source,
	buy_amount, max_amount_in, total_native,
	status, failure_kind, failure_reason,
	approval_tx_hash, swap_tx_hash,
	created_at, updated_at, confirmed_at`

// GetByID returns a single attempt.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.PurchaseAttempt, error) {
	query := `SELECT ` + attemptSelectCols + ` FROM purchase_attempts WHERE id = $1`

	a, err := scanAttemptFromRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PurchaseAttempt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PurchaseAttempt{}, fmt.Errorf("postgres: get attempt %s: %w", id, err)
	}
	return a, nil
}

// ListByPayer returns the payer's most recent attempts, newest first.
func (s *AttemptStore) ListByPayer(ctx context.Context, payer string, limit int) ([]domain.PurchaseAttempt, error) {
	query := `SELECT ` + attemptSelectCols + `
		FROM purchase_attempts WHERE payer = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, payer, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts for %s: %w", payer, err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListBefore returns attempts created before the cutoff, oldest first. The
// retention job uses it to archive and prune aged records.
func (s *AttemptStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.PurchaseAttempt, error) {
	query := `SELECT ` + attemptSelectCols + `
		FROM purchase_attempts WHERE created_at < $1
		ORDER BY created_at ASC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]domain.PurchaseAttempt, error) {
	var out []domain.PurchaseAttempt
	for rows.Next() {
		a, err := scanAttemptFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttemptFromRow(scanner interface{ Scan(dest ...any) error }) (domain.PurchaseAttempt, error) {
	var a domain.PurchaseAttempt
	var assetKind, source, status string
	var buyAmount, maxIn, totalNative *string
	var failureKind, failureReason, approvalHash, swapHash *string

	err := scanner.Scan(
		&a.ID, &a.Chain, &a.Payer, &a.AssetAddress, &assetKind, &a.SellCurrency, &source,
		&buyAmount, &maxIn, &totalNative,
		&status, &failureKind, &failureReason,
		&approvalHash, &swapHash,
		&a.CreatedAt, &a.UpdatedAt, &a.ConfirmedAt,
	)
	if err != nil {
		return domain.PurchaseAttempt{}, err
	}

	a.AssetKind = domain.AssetKind(assetKind)
	a.Source = domain.LiquiditySource(source)
	a.Status = domain.AttemptStatus(status)
	a.BuyAmount = parseBigInt(buyAmount)
	a.MaxAmountIn = parseBigInt(maxIn)
	a.TotalNative = parseBigInt(totalNative)
	a.FailureKind = deref(failureKind)
	a.FailureReason = deref(failureReason)
	a.ApprovalTxHash = deref(approvalHash)
	a.SwapTxHash = deref(swapHash)
	return a, nil
}

func bigIntStr(n *big.Int) *string {
	if n == nil {
		return nil
	}
	v := n.String()
	return &v
}

func parseBigInt(s *string) *big.Int {
	if s == nil {
		return nil
	}
	n, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return n
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
