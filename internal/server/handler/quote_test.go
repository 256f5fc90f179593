package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

type stubQuoter struct {
	quote     domain.Quote
	breakdown domain.FeeBreakdown
	err       error
}

func (s *stubQuoter) QuoteWithFees(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, domain.FeeBreakdown, error) {
	if s.err != nil {
		return domain.Quote{}, domain.FeeBreakdown{}, s.err
	}
	return s.quote, s.breakdown, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

const validBody = `{
	"chain": "ethereum",
	"asset_kind": "fungible",
	"asset_address": "0x6B175474E89094C44Da98b954EedeAC495271d0F",
	"amount": "100"
}`

func TestQuoteSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	stub := &stubQuoter{
		quote: domain.Quote{
			BuyToken:      common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			BuyAmount:     big.NewInt(100),
			BasePrice:     big.NewInt(1_000_000),
			PriceInUSD:    decimal.NewFromInt(50),
			NativeUSDRate: decimal.NewFromInt(2000),
			Source:        domain.SourceUniswapV3,
			CreatedAt:     now,
			ExpiresAt:     now.Add(30 * time.Second),
		},
		breakdown: domain.FeeBreakdown{
			BasePrice:      big.NewInt(1_000_000),
			PercentageFee:  big.NewInt(20_000),
			FixedFeeNative: big.NewInt(0),
			GasFee:         big.NewInt(0),
			TotalNative:    big.NewInt(1_020_000),
		},
	}
	h := NewQuoteHandler(stub, discardLogger())

	rec := postJSON(t, h.Quote, validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "1000000", resp.Quote.BasePrice.String())
	require.Equal(t, "1020000", resp.Breakdown.TotalNative.String())
}

func TestQuoteValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "malformed json",
			body:    `{`,
			wantMsg: "invalid JSON",
		},
		{
			name:    "unknown asset kind",
			body:    `{"chain":"ethereum","asset_kind":"bond","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"1"}`,
			wantMsg: "asset_kind",
		},
		{
			name:    "missing chain",
			body:    `{"asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"1"}`,
			wantMsg: "chain is required",
		},
		{
			name:    "bad asset address",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"dai","amount":"1"}`,
			wantMsg: "asset_address",
		},
		{
			name:    "non numeric amount",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"lots"}`,
			wantMsg: "amount",
		},
		{
			name:    "zero amount",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"0"}`,
			wantMsg: "amount",
		},
		{
			name:    "negative amount",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"-1"}`,
			wantMsg: "amount",
		},
		{
			name:    "bad token id",
			body:    `{"chain":"ethereum","asset_kind":"erc721","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"1","token_id":"0xabc"}`,
			wantMsg: "token_id",
		},
		{
			name:    "bad sell currency",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"1","sell_currency":"usdc"}`,
			wantMsg: "sell_currency",
		},
		{
			name:    "bad recipient",
			body:    `{"chain":"ethereum","asset_kind":"fungible","asset_address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","amount":"1","recipient":"me"}`,
			wantMsg: "recipient",
		},
	}

	h := NewQuoteHandler(&stubQuoter{}, discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := postJSON(t, h.Quote, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestQuoteSellCurrencyDefaultsToNative(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(validBody))
	_, sellCurrency, _, err := decodeQuoteRequest(req)
	require.NoError(t, err)
	require.Equal(t, domain.NativeCurrency, sellCurrency)
}

func TestWriteDomainErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			name:       "unsupported chain is a client error",
			err:        domain.E(domain.ErrUnsupportedChain, "no contracts configured for chain %q", "fantom"),
			wantStatus: http.StatusBadRequest,
			wantKind:   "unsupported_chain",
		},
		{
			name:       "unsupported source is a client error",
			err:        domain.ErrUnsupportedSourceForCurrency,
			wantStatus: http.StatusBadRequest,
			wantKind:   "unsupported_source_for_currency",
		},
		{
			name:       "insufficient listings conflicts",
			err:        domain.E(domain.ErrInsufficientListings, "2 of 5 listings available"),
			wantStatus: http.StatusConflict,
			wantKind:   "insufficient_listings",
		},
		{
			name:       "expired quote conflicts",
			err:        domain.ErrQuoteExpired,
			wantStatus: http.StatusConflict,
			wantKind:   "quote_expired",
		},
		{
			name:       "upstream failure is a bad gateway",
			err:        domain.E(domain.ErrQuoteUnavailable, "swap source returned 503"),
			wantStatus: http.StatusBadGateway,
			wantKind:   "quote_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			writeDomainError(rec, discardLogger(), tt.err)
			require.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantKind, body["kind"])
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestWriteDomainErrorOpaque(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeDomainError(rec, discardLogger(), context.DeadlineExceeded)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
	require.NotContains(t, rec.Body.String(), "deadline")
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	mk := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/purchases?"+q, nil)
	}

	require.Equal(t, 20, parseLimit(mk(""), 20, 100))
	require.Equal(t, 5, parseLimit(mk("limit=5"), 20, 100))
	require.Equal(t, 100, parseLimit(mk("limit=1000"), 20, 100))
	require.Equal(t, 20, parseLimit(mk("limit=-3"), 20, 100))
	require.Equal(t, 20, parseLimit(mk("limit=abc"), 20, 100))
}
