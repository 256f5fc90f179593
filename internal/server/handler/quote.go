package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// QuoteProvider is the service operation behind the quote endpoint.
type QuoteProvider interface {
	QuoteWithFees(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, domain.FeeBreakdown, error)
}

// QuoteHandler serves read-only price quotes.
type QuoteHandler struct {
	quotes QuoteProvider
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes QuoteProvider, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		logger: logHandler(logger, "quote"),
	}
}

// quoteRequest is the wire format of a quote or purchase request body.
type quoteRequest struct {
	Chain        string                   `json:"chain"`
	AssetKind    string                   `json:"asset_kind"`
	AssetAddress string                   `json:"asset_address"`
	Amount       string                   `json:"amount"`
	TokenID      string                   `json:"token_id"`
	Attributes   []domain.AttributeFilter `json:"attributes"`
	SellCurrency string                   `json:"sell_currency"`
	Recipient    string                   `json:"recipient"`
}

// quoteResponse pairs the quote with its fee breakdown.
type quoteResponse struct {
	Quote     domain.Quote        `json:"quote"`
	Breakdown domain.FeeBreakdown `json:"breakdown"`
}

// Quote prices a requirement without touching the chain's transaction pool.
// POST /api/quote
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	req, sellCurrency, _, err := decodeQuoteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, breakdown, err := h.quotes.QuoteWithFees(r.Context(), req, sellCurrency)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{Quote: quote, Breakdown: breakdown})
}

// decodeQuoteRequest parses and validates the shared request body. The third
// return value is the recipient address, used only by the purchase endpoint.
func decodeQuoteRequest(r *http.Request) (domain.Requirement, common.Address, common.Address, error) {
	var body quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("invalid JSON body")
	}

	kind := domain.AssetKind(body.AssetKind)
	switch kind {
	case domain.AssetFungible, domain.AssetERC721, domain.AssetERC1155:
	default:
		return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("asset_kind must be fungible, erc721, or erc1155")
	}

	if body.Chain == "" {
		return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("chain is required")
	}
	if !common.IsHexAddress(body.AssetAddress) {
		return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("asset_address must be a hex address")
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("amount must be a positive decimal string")
	}

	req := domain.Requirement{
		AssetKind:    kind,
		Chain:        body.Chain,
		AssetAddress: common.HexToAddress(body.AssetAddress),
		TargetAmount: amount,
		Attributes:   body.Attributes,
	}
	if body.TokenID != "" {
		id, ok := new(big.Int).SetString(body.TokenID, 10)
		if !ok {
			return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("token_id must be a decimal integer string")
		}
		req.TokenID = id
	}

	sellCurrency := domain.NativeCurrency
	if body.SellCurrency != "" {
		if !common.IsHexAddress(body.SellCurrency) {
			return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("sell_currency must be a hex address")
		}
		sellCurrency = common.HexToAddress(body.SellCurrency)
	}

	var recipient common.Address
	if body.Recipient != "" {
		if !common.IsHexAddress(body.Recipient) {
			return domain.Requirement{}, common.Address{}, common.Address{}, errors.New("recipient must be a hex address")
		}
		recipient = common.HexToAddress(body.Recipient)
	}

	return req, sellCurrency, recipient, nil
}

// writeDomainError maps flow errors onto HTTP statuses. Typed errors expose
// their kind and reason; anything else is an opaque 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrUnsupportedChain),
			errors.Is(err, domain.ErrUnsupportedSourceForCurrency):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrInsufficientListings),
			errors.Is(err, domain.ErrQuoteExpired):
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{
			"error": derr.Reason,
			"kind":  derr.Kind,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
