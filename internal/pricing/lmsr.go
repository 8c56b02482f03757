// Package pricing implements the LMSR (logarithmic market scoring rule) cost
// and price functions used to quote binary-outcome markets. Everything in this
// package is a pure function of its inputs: no I/O, no clocks, no stores.
//
// Prices are fixed-point int64 values at the Precision scale, so a price of
// 0.5 is Precision/2. The yes and no prices of an option always sum to exactly
// Precision, and a price is never exactly 0 or Precision for finite inputs.
package pricing

import (
	"math"

	"github.com/omenmarkets/core/internal/domain"
)

// Precision is the fixed-point scale for prices: 1.0 == 1e9.
const Precision int64 = 1_000_000_000

// maxExpArg bounds the exponent passed to math.Exp after max-subtraction.
// Beyond roughly 709 the float64 exponential overflows; we cut well before
// that. Callers pre-validate trade quantities, so hitting this bound means a
// programming or configuration error, never a user error.
const maxExpArg = 700.0

// Price returns the yes-price of an option under LMSR:
//
//	price_yes = exp(yes/b) / (exp(yes/b) + exp(no/b))
//
// evaluated with the larger exponent subtracted out so the intermediate
// exponential never overflows, then rounded half-up to the Precision scale and
// clamped to the open interval (0, Precision).
//
// It returns domain.ErrInvalidLiquidity when b <= 0 and
// domain.ErrNumericOverflow when the share counts are negative or outside the
// safe exponent range for the representation.
func Price(yesShares, noShares, b int64) (int64, error) {
	if b <= 0 {
		return 0, domain.ErrInvalidLiquidity
	}
	if yesShares < 0 || noShares < 0 {
		return 0, domain.ErrNumericOverflow
	}

	// Work with the smaller side's price and derive the other by
	// complement. This keeps Price(yes,no) + Price(no,yes) == Precision
	// exactly, with no float rounding drift between the two calls.
	hi, lo := yesShares, noShares
	yesIsHigh := true
	if yesShares < noShares {
		hi, lo = noShares, yesShares
		yesIsHigh = false
	}

	d := float64(hi-lo) / float64(b)
	if d > maxExpArg {
		return 0, domain.ErrNumericOverflow
	}

	// Price of the losing-weight side: 1 / (1 + exp(d)), d >= 0, so the
	// value is in (0, 0.5].
	low := 1.0 / (1.0 + math.Exp(d))

	fixLow := int64(math.Floor(low*float64(Precision) + 0.5))
	if fixLow < 1 {
		fixLow = 1
	}
	if fixLow > Precision/2 {
		fixLow = Precision / 2
	}

	if yesIsHigh {
		return Precision - fixLow, nil
	}
	return fixLow, nil
}

// PricePair returns the yes and no prices for an option. The two always sum
// to exactly Precision.
func PricePair(yesShares, noShares, b int64) (priceYes, priceNo int64, err error) {
	priceYes, err = Price(yesShares, noShares, b)
	if err != nil {
		return 0, 0, err
	}
	return priceYes, Precision - priceYes, nil
}

// Cost returns the LMSR cost function C(q) = b * ln(exp(yes/b) + exp(no/b))
// at the Precision scale, computed as a stable log-sum-exp. The difference in
// cost between two share states is what a trade between them should charge.
func Cost(yesShares, noShares, b int64) (int64, error) {
	if b <= 0 {
		return 0, domain.ErrInvalidLiquidity
	}
	if yesShares < 0 || noShares < 0 {
		return 0, domain.ErrNumericOverflow
	}

	hi, lo := yesShares, noShares
	if hi < lo {
		hi, lo = lo, hi
	}
	d := float64(hi-lo) / float64(b)
	if d > maxExpArg {
		return 0, domain.ErrNumericOverflow
	}

	// C = hi + b*ln(1 + exp(-(hi-lo)/b)), in share units.
	cost := float64(hi) + float64(b)*math.Log1p(math.Exp(-d))
	if cost > float64(math.MaxInt64)/float64(Precision) {
		return 0, domain.ErrNumericOverflow
	}
	return int64(math.Floor(cost*float64(Precision) + 0.5)), nil
}
