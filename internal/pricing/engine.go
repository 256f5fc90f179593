package pricing

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// nativeDecimals is the smallest-unit precision of native currencies and
// their wrapped forms on every supported chain.
const nativeDecimals = 18

// ChainSource bundles the pricing clients and constants for one chain.
type ChainSource struct {
	Swap          *SwapPriceClient
	NFT           *NFTPriceClient
	NativeSymbol  string
	WrappedNative common.Address
	// Liquidity is the pool style the chain's swap source routes through,
	// carried into quotes so the encoder picks the matching commands.
	Liquidity domain.LiquiditySource
}

// DecimalsReader reads an ERC20 token's decimals() value from the chain.
type DecimalsReader interface {
	Decimals(ctx context.Context, chain string, token common.Address) (uint8, error)
}

// Engine prices requirements against live external sources. It performs no
// retries and holds no mutable state beyond its caches; a failed external
// call surfaces as a typed error immediately and retry policy belongs to the
// caller.
type Engine struct {
	sources   map[string]ChainSource
	rates     *RateClient
	decimals  DecimalsReader
	decCache  domain.DecimalsCache
	rateCache domain.RateCache
	quoteTTL  time.Duration
	rateTTL   time.Duration
	logger    *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewEngine creates a quotation engine. decCache and rateCache may be nil;
// the engine then reads through to the sources on every call.
func NewEngine(
	sources map[string]ChainSource,
	rates *RateClient,
	decimals DecimalsReader,
	decCache domain.DecimalsCache,
	rateCache domain.RateCache,
	quoteTTL, rateTTL time.Duration,
	logger *slog.Logger,
) *Engine {
	if quoteTTL <= 0 {
		quoteTTL = 30 * time.Second
	}
	return &Engine{
		sources:   sources,
		rates:     rates,
		decimals:  decimals,
		decCache:  decCache,
		rateCache: rateCache,
		quoteTTL:  quoteTTL,
		rateTTL:   rateTTL,
		logger:    logger.With(slog.String("component", "pricing")),
		now:       time.Now,
	}
}

// Quote prices the requirement against the given sell currency and returns a
// normalized, time-bound quote.
func (e *Engine) Quote(ctx context.Context, req domain.Requirement, sellCurrency common.Address) (domain.Quote, error) {
	src, ok := e.sources[req.Chain]
	if !ok {
		return domain.Quote{}, domain.E(domain.ErrUnsupportedChain, "no pricing source configured for chain %q", req.Chain)
	}
	if !req.TargetAmount.IsPositive() {
		return domain.Quote{}, domain.E(domain.ErrQuoteUnavailable, "target amount must be positive, got %s", req.TargetAmount)
	}

	switch {
	case req.AssetKind == domain.AssetFungible:
		return e.quoteFungible(ctx, src, req, sellCurrency)
	case req.AssetKind.IsNFT():
		return e.quoteNFT(ctx, src, req, sellCurrency)
	default:
		return domain.Quote{}, domain.E(domain.ErrQuoteUnavailable, "unknown asset kind %q", req.AssetKind)
	}
}

// quoteFungible prices a token requirement through the chain's swap source.
// The decimals read and the USD rate fetch are independent, so they run
// concurrently.
func (e *Engine) quoteFungible(ctx context.Context, src ChainSource, req domain.Requirement, sellCurrency common.Address) (domain.Quote, error) {
	var (
		tokenDecimals uint8
		sellDecimals  uint8 = nativeDecimals
		usdRate       decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := e.tokenDecimals(gctx, req.Chain, req.AssetAddress)
		if err != nil {
			return err
		}
		tokenDecimals = d
		return nil
	})
	if !domain.IsNative(sellCurrency) {
		g.Go(func() error {
			d, err := e.tokenDecimals(gctx, req.Chain, sellCurrency)
			if err != nil {
				return err
			}
			sellDecimals = d
			return nil
		})
	}
	g.Go(func() error {
		r, err := e.nativeUSD(gctx, src.NativeSymbol)
		if err != nil {
			return err
		}
		usdRate = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, err
	}

	buyAmount := req.SmallestUnitAmount(tokenDecimals)

	sellToken := sellCurrency.Hex()
	if domain.IsNative(sellCurrency) {
		sellToken = src.NativeSymbol
	}

	price, err := src.Swap.Price(ctx, SwapPriceParams{
		SellToken: sellToken,
		BuyToken:  req.AssetAddress.Hex(),
		BuyAmount: buyAmount,
	})
	if err != nil {
		return domain.Quote{}, err
	}

	// Cross-multiply the sell-side-to-native rate with the native/USD rate
	// for the display price. The rate is 1 when selling native directly, so
	// the sell currency's own USD rate degenerates to the native one.
	baseWhole := price.Price.Mul(req.TargetAmount)
	baseNative := baseWhole
	sellUSD := usdRate
	if !domain.IsNative(sellCurrency) {
		if price.SellTokenToEthRate.IsZero() {
			// Without the rate the sell token cannot be valued in USD; leave
			// the rate zero so USD-derived fee terms are dropped, not wrong.
			sellUSD = decimal.Zero
		} else {
			sellUSD = usdRate.Div(price.SellTokenToEthRate)
			baseNative = baseWhole.Div(price.SellTokenToEthRate)
		}
	}
	priceUSD := baseNative.Mul(usdRate)

	gasNative := big.NewInt(0)
	if price.EstimatedGas != nil && price.GasPrice != nil {
		gasNative = new(big.Int).Mul(price.EstimatedGas, price.GasPrice)
	}

	now := e.now().UTC()
	return domain.Quote{
		Requirement:        req,
		SellCurrency:       sellCurrency,
		BuyToken:           req.AssetAddress,
		BuyAmount:          buyAmount,
		UnitPrice:          price.Price.Shift(int32(sellDecimals)).BigInt(),
		BasePrice:          price.SellAmount,
		PriceInUSD:         priceUSD,
		NativeUSDRate:      usdRate,
		SellDecimals:       sellDecimals,
		SellUSDRate:        sellUSD,
		EstimatedGasNative: gasNative,
		Source:             src.Liquidity,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.quoteTTL),
	}, nil
}

// quoteNFT prices an NFT requirement by summing listing floor prices. A
// quote is only valid when every contributing listing has a known floor;
// partial pricing is rejected, never averaged.
func (e *Engine) quoteNFT(ctx context.Context, src ChainSource, req domain.Requirement, sellCurrency common.Address) (domain.Quote, error) {
	if src.NFT == nil {
		return domain.Quote{}, domain.E(domain.ErrUnsupportedChain, "no NFT pricing source configured for chain %q", req.Chain)
	}

	target := int(req.TargetAmount.IntPart())
	if target <= 0 || !req.TargetAmount.Equal(decimal.New(int64(target), 0)) {
		return domain.Quote{}, domain.E(domain.ErrQuoteUnavailable, "NFT target amount must be a positive whole number, got %s", req.TargetAmount)
	}

	var (
		listings []Listing
		usdRate  decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := src.NFT.Listings(gctx, ListingsQuery{
			Collection: req.AssetAddress.Hex(),
			TokenID:    req.TokenID,
			Attributes: req.Attributes,
			Limit:      target,
		})
		if err != nil {
			return err
		}
		listings = l
		return nil
	})
	g.Go(func() error {
		r, err := e.nativeUSD(gctx, src.NativeSymbol)
		if err != nil {
			return err
		}
		usdRate = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, err
	}

	if len(listings) < target {
		return domain.Quote{}, domain.E(domain.ErrInsufficientListings,
			"need %d priced listings, source returned %d", target, len(listings))
	}

	sumNative := decimal.Zero
	sumUSD := decimal.Zero
	usdComplete := true
	for _, l := range listings[:target] {
		if l.FloorNative == nil {
			return domain.Quote{}, domain.E(domain.ErrInsufficientListings,
				"listing %s has no floor price", l.TokenID)
		}
		sumNative = sumNative.Add(decimal.NewFromFloat(*l.FloorNative))
		if l.FloorUSD != nil {
			sumUSD = sumUSD.Add(decimal.NewFromFloat(*l.FloorUSD))
		} else {
			usdComplete = false
		}
	}
	if !usdComplete {
		sumUSD = sumNative.Mul(usdRate)
	}

	now := e.now().UTC()
	return domain.Quote{
		Requirement:        req,
		SellCurrency:       sellCurrency,
		BuyToken:           req.AssetAddress,
		BuyAmount:          big.NewInt(int64(target)),
		BasePrice:          sumNative.Shift(nativeDecimals).BigInt(),
		PriceInUSD:         sumUSD,
		NativeUSDRate:      usdRate,
		SellDecimals:       nativeDecimals,
		SellUSDRate:        usdRate,
		EstimatedGasNative: big.NewInt(0),
		Source:             domain.SourceNFTMarket,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.quoteTTL),
	}, nil
}

// tokenDecimals reads a token's decimal precision through the cache.
// Decimals are immutable, so cached entries never expire.
func (e *Engine) tokenDecimals(ctx context.Context, chain string, token common.Address) (uint8, error) {
	if e.decCache != nil {
		if d, ok, err := e.decCache.Get(ctx, chain, token.Hex()); err == nil && ok {
			return d, nil
		}
	}

	d, err := e.decimals.Decimals(ctx, chain, token)
	if err != nil {
		return 0, domain.Wrap(domain.ErrDecimalsUnavailable, err)
	}

	if e.decCache != nil {
		if err := e.decCache.Set(ctx, chain, token.Hex(), d); err != nil {
			e.logger.Warn("decimals cache write failed",
				slog.String("token", token.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	return d, nil
}

// nativeUSD fetches the native/USD spot rate through the short-TTL cache.
func (e *Engine) nativeUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if e.rateCache != nil {
		if r, ok, err := e.rateCache.Get(ctx, symbol); err == nil && ok {
			return r, nil
		}
	}

	r, err := e.rates.NativeUSD(ctx, symbol)
	if err != nil {
		return decimal.Zero, domain.Wrap(domain.ErrQuoteUnavailable, err)
	}

	if e.rateCache != nil {
		if err := e.rateCache.Set(ctx, symbol, r, e.rateTTL); err != nil {
			e.logger.Warn("rate cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	return r, nil
}
