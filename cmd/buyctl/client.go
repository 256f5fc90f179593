package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// purchaseTimeout bounds a purchase call, which blocks server-side until the
// swap confirms or fails.
const purchaseTimeout = 6 * time.Minute

// apiClient is a thin typed wrapper over the token buyer HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: purchaseTimeout},
	}
}

// buyRequest is the shared wire body of the quote and purchase endpoints.
type buyRequest struct {
	Chain        string                   `json:"chain"`
	AssetKind    string                   `json:"asset_kind"`
	AssetAddress string                   `json:"asset_address"`
	Amount       string                   `json:"amount"`
	TokenID      string                   `json:"token_id,omitempty"`
	Attributes   []domain.AttributeFilter `json:"attributes,omitempty"`
	SellCurrency string                   `json:"sell_currency,omitempty"`
	Recipient    string                   `json:"recipient,omitempty"`
}

// quoteResult pairs a quote with its fee breakdown, mirroring the server
// response.
type quoteResult struct {
	Quote     domain.Quote        `json:"quote"`
	Breakdown domain.FeeBreakdown `json:"breakdown"`
}

// purchaseResult is the purchase response; on failure the server still
// returns the attempt record alongside the error classification.
type purchaseResult struct {
	Error   string                  `json:"error,omitempty"`
	Kind    string                  `json:"kind,omitempty"`
	Attempt *domain.PurchaseAttempt `json:"attempt,omitempty"`
}

func (c *apiClient) Quote(req buyRequest) (*quoteResult, error) {
	var out quoteResult
	if err := c.post("/api/quote", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Purchase(req buyRequest) (*domain.PurchaseAttempt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(http.MethodPost, "/api/purchase", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		var attempt domain.PurchaseAttempt
		if err := json.Unmarshal(data, &attempt); err != nil {
			return nil, fmt.Errorf("decode purchase response: %w", err)
		}
		return &attempt, nil
	}

	var failed purchaseResult
	if err := json.Unmarshal(data, &failed); err != nil || failed.Error == "" {
		return nil, fmt.Errorf("purchase failed: %s", apiError(resp.StatusCode, data))
	}
	if failed.Kind != "" {
		return failed.Attempt, fmt.Errorf("purchase failed (%s): %s", failed.Kind, failed.Error)
	}
	return failed.Attempt, fmt.Errorf("purchase failed: %s", failed.Error)
}

func (c *apiClient) GetAttempt(id string) (*domain.PurchaseAttempt, error) {
	var attempt domain.PurchaseAttempt
	if err := c.get("/api/purchase/"+url.PathEscape(id), &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (c *apiClient) ListAttempts(payer string, limit int) ([]domain.PurchaseAttempt, error) {
	q := url.Values{}
	q.Set("payer", payer)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var attempts []domain.PurchaseAttempt
	if err := c.get("/api/purchases?"+q.Encode(), &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (c *apiClient) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.do(http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *apiClient) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.http.Do(req)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", apiError(resp.StatusCode, data))
	}
	return json.Unmarshal(data, out)
}

// apiError extracts the server's error message when the body carries one.
func apiError(status int, data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return fmt.Sprintf("%s (HTTP %d)", body.Error, status)
	}
	return fmt.Sprintf("HTTP %d", status)
}
