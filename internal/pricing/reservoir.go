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

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// NFTPriceClient is the REST client for a Reservoir-style NFT pricing API.
type NFTPriceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNFTPriceClient creates a client for the given API root, e.g.
// "https://api.reservoir.tools".
func NewNFTPriceClient(baseURL string, timeout time.Duration) *NFTPriceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NFTPriceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListingsQuery filters the listings request by collection and, optionally,
// a specific token id or attribute values.
type ListingsQuery struct {
	Collection string
	TokenID    *big.Int
	Attributes []domain.AttributeFilter
	Limit      int
}

// Listing is one listed token with its current floor ask. FloorNative or
// FloorUSD are nil when the token has no priced ask.
type Listing struct {
	TokenID     string
	FloorNative *float64
	FloorUSD    *float64
}

// listingsResponse mirrors the wire format of the tokens endpoint.
type listingsResponse struct {
	Tokens []struct {
		Token struct {
			TokenID string `json:"tokenId"`
		} `json:"token"`
		Market struct {
			FloorAsk struct {
				Price *struct {
					Amount struct {
						Native *float64 `json:"native"`
						USD    *float64 `json:"usd"`
					} `json:"amount"`
				} `json:"price"`
			} `json:"floorAsk"`
		} `json:"market"`
	} `json:"tokens"`
}

// Listings fetches up to q.Limit listed tokens for the collection, cheapest
// first. A non-2xx response surfaces as domain.ErrQuoteUnavailable.
func (c *NFTPriceClient) Listings(ctx context.Context, q ListingsQuery) ([]Listing, error) {
	params := url.Values{}
	if q.TokenID != nil {
		params.Add("tokens", q.Collection+":"+q.TokenID.String())
	} else {
		params.Set("collection", q.Collection)
	}
	for _, attr := range q.Attributes {
		params.Add("attributes["+attr.TraitType+"]", attr.Value)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	params.Set("sortBy", "floorAskPrice")

	fullURL := c.baseURL + "/tokens/v6?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("reservoir: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.ErrQuoteUnavailable, fmt.Errorf("reservoir: http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reservoir: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.E(domain.ErrQuoteUnavailable, "listings source: %s", resp.Status)
	}

	var raw listingsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("reservoir: decode listings: %w", err)
	}

	listings := make([]Listing, 0, len(raw.Tokens))
	for _, t := range raw.Tokens {
		l := Listing{TokenID: t.Token.TokenID}
		if p := t.Market.FloorAsk.Price; p != nil {
			l.FloorNative = p.Amount.Native
			l.FloorUSD = p.Amount.USD
		}
		listings = append(listings, l)
	}

	return listings, nil
}
