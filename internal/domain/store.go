package domain

import (
	"context"
	"time"
)

// AttemptStore persists purchase attempts for auditing and status queries.
type AttemptStore interface {
	Create(ctx context.Context, a PurchaseAttempt) error
	UpdateStatus(ctx context.Context, id string, status AttemptStatus) error
	SetFailure(ctx context.Context, id, kind, reason string) error
	SetTxHash(ctx context.Context, id string, status AttemptStatus, txHash string) error
	GetByID(ctx context.Context, id string) (PurchaseAttempt, error)
	ListByPayer(ctx context.Context, payer string, limit int) ([]PurchaseAttempt, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]PurchaseAttempt, error)
}
