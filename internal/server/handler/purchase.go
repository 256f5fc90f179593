package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// Purchaser is the service surface behind the purchase endpoints.
type Purchaser interface {
	Purchase(ctx context.Context, req domain.Requirement, sellCurrency, recipient common.Address) (domain.PurchaseAttempt, error)
	GetAttempt(ctx context.Context, id string) (domain.PurchaseAttempt, error)
	ListAttempts(ctx context.Context, payer string, limit int) ([]domain.PurchaseAttempt, error)
}

// PurchaseHandler serves the purchase flow endpoints.
type PurchaseHandler struct {
	purchases Purchaser
	logger    *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler.
func NewPurchaseHandler(purchases Purchaser, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		logger:    logHandler(logger, "purchase"),
	}
}

// Purchase runs a purchase end to end and returns the final attempt record.
// Progress can be followed live over the WebSocket status stream; the
// response arrives once the swap confirms or the attempt fails.
// POST /api/purchase
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	req, sellCurrency, recipient, err := decodeQuoteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if recipient == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	attempt, err := h.purchases.Purchase(r.Context(), req, sellCurrency, recipient)
	if err != nil {
		// A failed attempt still carries its audit record; return it
		// alongside the error classification when available.
		if attempt.ID != "" {
			status := http.StatusBadGateway
			var derr *domain.Error
			if errors.As(err, &derr) {
				writeJSON(w, status, map[string]any{
					"error":   derr.Reason,
					"kind":    derr.Kind,
					"attempt": attempt,
				})
				return
			}
			h.logger.Error("purchase failed", slog.String("error", err.Error()))
			writeJSON(w, status, map[string]any{
				"error":   "purchase failed",
				"attempt": attempt,
			})
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, attempt)
}

// GetAttempt returns one purchase attempt by ID.
// GET /api/purchase/{id}
func (h *PurchaseHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "attempt id is required")
		return
	}

	attempt, err := h.purchases.GetAttempt(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		h.logger.Error("get attempt failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, attempt)
}

// ListAttempts returns the most recent attempts for a payer.
// GET /api/purchases?payer=0x...&limit=20
func (h *PurchaseHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	payer := r.URL.Query().Get("payer")
	if !common.IsHexAddress(payer) {
		writeError(w, http.StatusBadRequest, "payer must be a hex address")
		return
	}

	attempts, err := h.purchases.ListAttempts(r.Context(), common.HexToAddress(payer).Hex(), parseLimit(r, 20, 100))
	if err != nil {
		h.logger.Error("list attempts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if attempts == nil {
		attempts = []domain.PurchaseAttempt{}
	}

	writeJSON(w, http.StatusOK, attempts)
}
