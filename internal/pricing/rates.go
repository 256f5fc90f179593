package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// RateClient fetches native-currency/USD spot rates from a Coinbase-style
// exchange-rates endpoint.
type RateClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRateClient creates a client for the given API root, e.g.
// "https://api.coinbase.com".
func NewRateClient(baseURL string, timeout time.Duration) *RateClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RateClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ratesResponse mirrors the exchange-rates wire format.
type ratesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// NativeUSD returns the USD rate for one unit of the given currency symbol.
func (c *RateClient) NativeUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("currency", symbol)

	fullURL := c.baseURL + "/v2/exchange-rates?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("rates: %s for %s", resp.Status, symbol)
	}

	var raw ratesResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("rates: decode response: %w", err)
	}

	usd, ok := raw.Data.Rates["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("rates: no USD rate for %s", symbol)
	}

	rate, err := decimal.NewFromString(usd)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: parse USD rate %q: %w", usd, err)
	}
	if rate.IsZero() || rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("rates: non-positive USD rate %s for %s", rate, symbol)
	}

	return rate, nil
}
