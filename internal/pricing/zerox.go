// Package pricing implements the price quotation engine: a 0x-style swap
// price client for fungible tokens, a Reservoir-style listings client for
// NFTs, a native/USD rate client, and the engine that combines them into
// normalized quotes.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// SwapPriceClient is the REST client for a 0x-style swap price API.
type SwapPriceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSwapPriceClient creates a client for the given API root, e.g.
// "https://api.0x.org".
func NewSwapPriceClient(baseURL string, timeout time.Duration) *SwapPriceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SwapPriceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SwapPriceParams describes an exact-output price request: how much of
// buyToken is wanted and what it is paid with.
type SwapPriceParams struct {
	// SellToken is the sell currency: a contract address, or the native
	// symbol (e.g. "ETH") for native currency.
	SellToken string
	// BuyToken is the target token contract address.
	BuyToken string
	// BuyAmount is the exact output wanted, in the buy token's smallest unit.
	BuyAmount *big.Int
}

// SwapPrice is the normalized response of a swap price request. All numeric
// fields are parsed from the API's string representations.
type SwapPrice struct {
	// Price is the sell-currency cost per whole buy token.
	Price decimal.Decimal
	// SellAmount is the total sell-currency cost in smallest units.
	SellAmount *big.Int
	// SellTokenToEthRate is how many sell tokens one native unit buys.
	SellTokenToEthRate decimal.Decimal
	// EstimatedGas and GasPrice together estimate the swap's gas cost.
	EstimatedGas *big.Int
	GasPrice     *big.Int
}

// swapPriceResponse mirrors the wire format of the price endpoint.
type swapPriceResponse struct {
	Price              string `json:"price"`
	SellAmount         string `json:"sellAmount"`
	BuyAmount          string `json:"buyAmount"`
	SellTokenToEthRate string `json:"sellTokenToEthRate"`
	EstimatedGas       string `json:"estimatedGas"`
	GasPrice           string `json:"gasPrice"`
}

// validationErrorResponse mirrors the error body the API returns on 4xx.
type validationErrorResponse struct {
	Reason           string `json:"reason"`
	ValidationErrors []struct {
		Field       string `json:"field"`
		Description string `json:"description"`
	} `json:"validationErrors"`
}

// Price requests a fixed-output swap price. A non-2xx response surfaces as
// domain.ErrQuoteUnavailable carrying the source's validation message when
// present, else its status text.
func (c *SwapPriceClient) Price(ctx context.Context, p SwapPriceParams) (SwapPrice, error) {
	params := url.Values{}
	params.Set("sellToken", p.SellToken)
	params.Set("buyToken", p.BuyToken)
	params.Set("buyAmount", p.BuyAmount.String())

	fullURL := c.baseURL + "/swap/v1/price?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return SwapPrice{}, fmt.Errorf("zerox: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SwapPrice{}, domain.Wrap(domain.ErrQuoteUnavailable, fmt.Errorf("zerox: http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SwapPrice{}, fmt.Errorf("zerox: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SwapPrice{}, domain.E(domain.ErrQuoteUnavailable, "%s", upstreamReason(resp, body))
	}

	var raw swapPriceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return SwapPrice{}, fmt.Errorf("zerox: decode price: %w", err)
	}

	return parseSwapPrice(raw)
}

// upstreamReason extracts a user-displayable failure reason from an error
// body, preferring the first validation error's description.
func upstreamReason(resp *http.Response, body []byte) string {
	var ve validationErrorResponse
	if err := json.Unmarshal(body, &ve); err == nil {
		if len(ve.ValidationErrors) > 0 && ve.ValidationErrors[0].Description != "" {
			return ve.ValidationErrors[0].Description
		}
		if ve.Reason != "" {
			return ve.Reason
		}
	}
	return resp.Status
}

func parseSwapPrice(raw swapPriceResponse) (SwapPrice, error) {
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return SwapPrice{}, fmt.Errorf("zerox: parse price %q: %w", raw.Price, err)
	}
	rate, err := decimal.NewFromString(raw.SellTokenToEthRate)
	if err != nil {
		return SwapPrice{}, fmt.Errorf("zerox: parse sellTokenToEthRate %q: %w", raw.SellTokenToEthRate, err)
	}

	sellAmount, ok := new(big.Int).SetString(raw.SellAmount, 10)
	if !ok {
		return SwapPrice{}, fmt.Errorf("zerox: parse sellAmount %q", raw.SellAmount)
	}

	out := SwapPrice{
		Price:              price,
		SellAmount:         sellAmount,
		SellTokenToEthRate: rate,
	}

	// Gas figures are informative; tolerate their absence.
	if raw.EstimatedGas != "" {
		if gas, ok := new(big.Int).SetString(raw.EstimatedGas, 10); ok {
			out.EstimatedGas = gas
		}
	}
	if raw.GasPrice != "" {
		if gp, ok := new(big.Int).SetString(raw.GasPrice, 10); ok {
			out.GasPrice = gp
		}
	}

	return out, nil
}
