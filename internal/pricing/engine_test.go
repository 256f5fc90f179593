package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	testAsset      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testCollection = common.HexToAddress("0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D")
	testWrapped    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// fakeDecimals serves decimals() reads without touching a chain. Tokens not
// in byToken read as 18.
type fakeDecimals struct {
	byToken map[common.Address]uint8
	err     error
}

func (f *fakeDecimals) Decimals(ctx context.Context, chain string, token common.Address) (uint8, error) {
	if f.err != nil {
		return 0, f.err
	}
	if d, ok := f.byToken[token]; ok {
		return d, nil
	}
	return 18, nil
}

// ratesHandler answers the exchange-rates endpoint with a fixed USD rate.
func ratesHandler(usd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"currency":"ETH","rates":{"USD":"%s"}}}`, usd)
	}
}

func newTestEngine(t *testing.T, swapURL, nftURL, ratesURL string) *Engine {
	t.Helper()
	return newTestEngineWithDecimals(t, swapURL, nftURL, ratesURL, &fakeDecimals{})
}

func newTestEngineWithDecimals(t *testing.T, swapURL, nftURL, ratesURL string, dec *fakeDecimals) *Engine {
	t.Helper()

	src := ChainSource{
		Swap:          NewSwapPriceClient(swapURL, time.Second),
		NativeSymbol:  "ETH",
		WrappedNative: testWrapped,
		Liquidity:     domain.SourceUniswapV3,
	}
	if nftURL != "" {
		src.NFT = NewNFTPriceClient(nftURL, time.Second)
	}

	return NewEngine(
		map[string]ChainSource{"ethereum": src},
		NewRateClient(ratesURL, time.Second),
		dec,
		nil, nil,
		30*time.Second, 15*time.Second,
		slog.New(slog.DiscardHandler),
	)
}

func fungibleReq(amount int64) domain.Requirement {
	return domain.Requirement{
		AssetKind:    domain.AssetFungible,
		Chain:        "ethereum",
		AssetAddress: testAsset,
		TargetAmount: decimal.NewFromInt(amount),
	}
}

func TestQuoteFungible(t *testing.T) {
	t.Parallel()

	swapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap/v1/price", r.URL.Path)
		require.Equal(t, "ETH", r.URL.Query().Get("sellToken"))
		require.Equal(t, testAsset.Hex(), r.URL.Query().Get("buyToken"))
		require.Equal(t, "100000000000000000000", r.URL.Query().Get("buyAmount"))
		fmt.Fprint(w, `{
			"price": "0.5",
			"sellAmount": "50000000000000000000",
			"buyAmount": "100000000000000000000",
			"sellTokenToEthRate": "1",
			"estimatedGas": "210000",
			"gasPrice": "1000000000"
		}`)
	}))
	defer swapSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	engine := newTestEngine(t, swapSrv.URL, "", ratesSrv.URL)
	quote, err := engine.Quote(context.Background(), fungibleReq(100), domain.NativeCurrency)
	require.NoError(t, err)

	require.Equal(t, "50000000000000000000", quote.BasePrice.String())
	require.Equal(t, "100000000000000000000", quote.BuyAmount.String())
	require.Equal(t, domain.SourceUniswapV3, quote.Source)

	// 0.5 native per token * 100 tokens * $2000.
	require.True(t, quote.PriceInUSD.Equal(decimal.NewFromInt(100_000)),
		"got %s", quote.PriceInUSD)
	require.True(t, quote.NativeUSDRate.Equal(decimal.NewFromInt(2000)))

	// Native sell: unit price in wei, sell-side rate equals the native rate.
	require.Equal(t, "500000000000000000", quote.UnitPrice.String())
	require.EqualValues(t, 18, quote.SellDecimals)
	require.True(t, quote.SellUSDRate.Equal(decimal.NewFromInt(2000)), "got %s", quote.SellUSDRate)

	// 210000 gas * 1 gwei.
	require.Equal(t, "210000000000000", quote.EstimatedGasNative.String())
	require.Equal(t, 30*time.Second, quote.ExpiresAt.Sub(quote.CreatedAt))
}

func TestQuoteFungibleErc20Sell(t *testing.T) {
	t.Parallel()

	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	swapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, usdc.Hex(), r.URL.Query().Get("sellToken"))
		fmt.Fprint(w, `{
			"price": "2000",
			"sellAmount": "200000000000",
			"buyAmount": "100000000000000000000",
			"sellTokenToEthRate": "2000"
		}`)
	}))
	defer swapSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	dec := &fakeDecimals{byToken: map[common.Address]uint8{usdc: 6}}
	engine := newTestEngineWithDecimals(t, swapSrv.URL, "", ratesSrv.URL, dec)

	quote, err := engine.Quote(context.Background(), fungibleReq(100), usdc)
	require.NoError(t, err)

	// All sell-side figures in the sell token's 6-decimal smallest unit:
	// 2000 USDC per token is 2000e6 units, not a wei-scaled number.
	require.Equal(t, "2000000000", quote.UnitPrice.String())
	require.Equal(t, "200000000000", quote.BasePrice.String())
	require.EqualValues(t, 6, quote.SellDecimals)

	// $2000/ETH and 2000 USDC/ETH puts USDC at $1.
	require.True(t, quote.SellUSDRate.Equal(decimal.NewFromInt(1)), "got %s", quote.SellUSDRate)

	// 2000 USDC * 100 tokens / 2000 per ETH = 100 ETH = $200k.
	require.True(t, quote.PriceInUSD.Equal(decimal.NewFromInt(200_000)), "got %s", quote.PriceInUSD)
}

func TestQuoteUnsupportedChain(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, "http://invalid", "", "http://invalid")
	req := fungibleReq(1)
	req.Chain = "fantom"

	_, err := engine.Quote(context.Background(), req, domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestQuoteRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, "http://invalid", "", "http://invalid")
	req := fungibleReq(0)

	_, err := engine.Quote(context.Background(), req, domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}

func TestQuoteFungibleUpstreamValidation(t *testing.T) {
	t.Parallel()

	swapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"reason":"Validation Failed","validationErrors":[{"field":"buyAmount","description":"INSUFFICIENT_ASSET_LIQUIDITY"}]}`)
	}))
	defer swapSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	engine := newTestEngine(t, swapSrv.URL, "", ratesSrv.URL)
	_, err := engine.Quote(context.Background(), fungibleReq(1), domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	require.Contains(t, err.Error(), "INSUFFICIENT_ASSET_LIQUIDITY")
}

func nftReq(count int64) domain.Requirement {
	return domain.Requirement{
		AssetKind:    domain.AssetERC721,
		Chain:        "ethereum",
		AssetAddress: testCollection,
		TargetAmount: decimal.NewFromInt(count),
	}
}

func TestQuoteNFT(t *testing.T) {
	t.Parallel()

	nftSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokens/v6", r.URL.Path)
		require.Equal(t, testCollection.Hex(), r.URL.Query().Get("collection"))
		fmt.Fprint(w, `{"tokens":[
			{"token":{"tokenId":"1"},"market":{"floorAsk":{"price":{"amount":{"native":1.5,"usd":3000}}}}},
			{"token":{"tokenId":"2"},"market":{"floorAsk":{"price":{"amount":{"native":2.5,"usd":5000}}}}}
		]}`)
	}))
	defer nftSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	engine := newTestEngine(t, "http://invalid", nftSrv.URL, ratesSrv.URL)
	quote, err := engine.Quote(context.Background(), nftReq(2), domain.NativeCurrency)
	require.NoError(t, err)

	require.Equal(t, "2", quote.BuyAmount.String())
	require.Equal(t, "4000000000000000000", quote.BasePrice.String(), "1.5 + 2.5 native in wei")
	require.True(t, quote.PriceInUSD.Equal(decimal.NewFromInt(8000)), "got %s", quote.PriceInUSD)
	require.Equal(t, domain.SourceNFTMarket, quote.Source)
	require.Nil(t, quote.UnitPrice, "heterogeneous floors have no unit price")
	require.EqualValues(t, 18, quote.SellDecimals)
	require.True(t, quote.SellUSDRate.Equal(decimal.NewFromInt(2000)))
}

func TestQuoteNFTInsufficientListings(t *testing.T) {
	t.Parallel()

	nftSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tokens":[
			{"token":{"tokenId":"1"},"market":{"floorAsk":{"price":{"amount":{"native":1.5,"usd":3000}}}}}
		]}`)
	}))
	defer nftSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	engine := newTestEngine(t, "http://invalid", nftSrv.URL, ratesSrv.URL)
	_, err := engine.Quote(context.Background(), nftReq(2), domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrInsufficientListings)
}

func TestQuoteNFTUnpricedListing(t *testing.T) {
	t.Parallel()

	// A listing without a floor ask must fail the whole quote, not skew it.
	nftSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tokens":[
			{"token":{"tokenId":"1"},"market":{"floorAsk":{"price":{"amount":{"native":1.5,"usd":3000}}}}},
			{"token":{"tokenId":"2"},"market":{"floorAsk":{}}}
		]}`)
	}))
	defer nftSrv.Close()

	ratesSrv := httptest.NewServer(ratesHandler("2000"))
	defer ratesSrv.Close()

	engine := newTestEngine(t, "http://invalid", nftSrv.URL, ratesSrv.URL)
	_, err := engine.Quote(context.Background(), nftReq(2), domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrInsufficientListings)
}

func TestQuoteNFTFractionalCount(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, "http://invalid", "http://invalid", "http://invalid")
	req := nftReq(1)
	req.TargetAmount = decimal.NewFromFloat(1.5)

	_, err := engine.Quote(context.Background(), req, domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}

func TestQuoteNFTWithoutSource(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, "http://invalid", "", "http://invalid")
	_, err := engine.Quote(context.Background(), nftReq(1), domain.NativeCurrency)
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)
}
