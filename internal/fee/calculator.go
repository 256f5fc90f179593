// Package fee derives the payable total from a quote. All arithmetic is in
// *big.Int smallest units; the only decimal values are USD figures for
// display. Percentage components are computed from the base price with
// integer division so that the breakdown always re-sums to the total exactly.
package fee

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

const bpsDenominator = 10_000

// Calculator applies the platform fee schedule to quotes. It is stateless
// and safe for concurrent use.
type Calculator struct {
	percentageBps int64
	fixedUSD      decimal.Decimal
	slippageBps   int64
}

// NewCalculator builds a calculator from the fee schedule. percentageBps and
// slippageBps are basis points (1 bps = 0.01%); fixedUSD is a flat surcharge
// converted to native currency at each quote's own rate.
func NewCalculator(percentageBps int64, fixedUSD decimal.Decimal, slippageBps int64) *Calculator {
	return &Calculator{
		percentageBps: percentageBps,
		fixedUSD:      fixedUSD,
		slippageBps:   slippageBps,
	}
}

// Apply computes the fee breakdown for a quote. The identity
//
//	TotalNative == BasePrice + PercentageFee + FixedFeeNative
//
// holds exactly; gas is reported separately because it is paid to the
// network, not to the fee collector.
func (c *Calculator) Apply(q domain.Quote) domain.FeeBreakdown {
	base := new(big.Int).Set(q.BasePrice)

	pct := new(big.Int).Mul(base, big.NewInt(c.percentageBps))
	pct.Div(pct, big.NewInt(bpsDenominator))

	fixed := c.fixedFee(q)

	gas := big.NewInt(0)
	if q.EstimatedGasNative != nil {
		gas = new(big.Int).Set(q.EstimatedGasNative)
	}

	total := new(big.Int).Add(base, pct)
	total.Add(total, fixed)

	pctUSD := q.PriceInUSD.Mul(decimal.New(c.percentageBps, -4))
	totalUSD := q.PriceInUSD.Add(pctUSD).Add(c.fixedUSD)

	return domain.FeeBreakdown{
		BasePrice:      base,
		PercentageFee:  pct,
		FixedFeeNative: fixed,
		GasFee:         gas,
		TotalNative:    total,
		TotalUSD:       totalUSD,
	}
}

// MaxAmountIn returns the sell-currency ceiling for the swap: the payable
// total padded by the slippage tolerance, rounded up so the headroom is
// never understated.
func (c *Calculator) MaxAmountIn(b domain.FeeBreakdown) *big.Int {
	padded := new(big.Int).Mul(b.TotalNative, big.NewInt(bpsDenominator+c.slippageBps))
	rem := new(big.Int)
	padded.DivMod(padded, big.NewInt(bpsDenominator), rem)
	if rem.Sign() > 0 {
		padded.Add(padded, big.NewInt(1))
	}
	return padded
}

// fixedFee converts the flat USD fee into the quote's sell-currency smallest
// unit so it adds cleanly onto BasePrice, whatever currency pays for the
// swap. A zero or missing sell USD rate disables the fixed component rather
// than dividing by zero or mis-converting.
func (c *Calculator) fixedFee(q domain.Quote) *big.Int {
	if c.fixedUSD.IsZero() || q.SellUSDRate.IsZero() {
		return big.NewInt(0)
	}
	return c.fixedUSD.Div(q.SellUSDRate).Shift(int32(q.SellDecimals)).Floor().BigInt()
}
