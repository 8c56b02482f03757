package pricing

// Impact describes the estimated price impact of a candidate trade.
type Impact struct {
	CurrentPrice         int64 // fixed-point yes-price before the trade
	NewPrice             int64 // fixed-point yes-price after the trade
	VolatilityBps        int64 // floor(|new - current| / current * 10000)
	AdjustedThresholdBps int64 // base threshold scaled by market maturity
	// Passed is always true under the current observe-only policy. The full
	// impact is still computed and returned so callers can audit the trade
	// or switch enforcement on without recomputing.
	Passed bool
	// WithinThreshold is the verdict enforcement mode would apply:
	// VolatilityBps <= AdjustedThresholdBps.
	WithinThreshold bool
}

// thresholdMultiplier scales the base volatility threshold by market
// maturity. Thin early markets mechanically produce large LMSR price swings
// for ordinary trade sizes, so the threshold is relaxed until outstanding
// shares dwarf the trade size.
func thresholdMultiplier(totalShares, tradeSize int64) int64 {
	if tradeSize <= 0 {
		return 1
	}
	switch {
	case totalShares < tradeSize*10:
		return 5
	case totalShares < tradeSize*50:
		return 3
	case totalShares < tradeSize*100:
		return 2
	default:
		return 1
	}
}

// EvaluateImpact computes the pre/post-trade yes-price for a candidate trade
// and classifies its volatility against a liquidity-adjusted threshold. Buy
// trades add the deltas to the current share counts; sell trades subtract
// them. Subtraction that would drive a share count negative is a caller bug
// and surfaces as domain.ErrNumericOverflow from the price function.
func EvaluateImpact(currentYes, currentNo, deltaYes, deltaNo, b, baseThresholdBps int64, isSell bool) (Impact, error) {
	currentPrice, err := Price(currentYes, currentNo, b)
	if err != nil {
		return Impact{}, err
	}

	newYes, newNo := currentYes+deltaYes, currentNo+deltaNo
	if isSell {
		newYes, newNo = currentYes-deltaYes, currentNo-deltaNo
	}
	newPrice, err := Price(newYes, newNo, b)
	if err != nil {
		return Impact{}, err
	}

	diff := newPrice - currentPrice
	if diff < 0 {
		diff = -diff
	}
	volatilityBps := diff * 10_000 / currentPrice

	adjusted := baseThresholdBps * thresholdMultiplier(currentYes+currentNo, deltaYes+deltaNo)

	return Impact{
		CurrentPrice:         currentPrice,
		NewPrice:             newPrice,
		VolatilityBps:        volatilityBps,
		AdjustedThresholdBps: adjusted,
		Passed:               true,
		WithinThreshold:      volatilityBps <= adjusted,
	}, nil
}
