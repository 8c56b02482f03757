package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

func TestThresholdMultiplier(t *testing.T) {
	cases := []struct {
		name  string
		total int64
		size  int64
		want  int64
	}{
		{"very thin market", 5, 1, 5},
		{"thin market", 40, 1, 3},
		{"maturing market", 99, 1, 2},
		{"boundary at 100x", 100, 1, 1},
		{"mature market", 1000, 1, 1},
		{"zero size", 1000, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, thresholdMultiplier(tc.total, tc.size))
		})
	}
}

func TestEvaluateImpact_BuyYes(t *testing.T) {
	// Balanced market: 1000/1000 shares, b=2000, buying 100 YES.
	imp, err := EvaluateImpact(1000, 1000, 100, 0, 2000, 500, false)
	require.NoError(t, err)

	assert.Equal(t, Precision/2, imp.CurrentPrice)
	assert.Equal(t, int64(512_497_396), imp.NewPrice)

	diff := imp.NewPrice - imp.CurrentPrice
	assert.Equal(t, diff*10_000/imp.CurrentPrice, imp.VolatilityBps)
	assert.Equal(t, int64(249), imp.VolatilityBps)

	// total=2000, size=100: below the 50x maturity bound, so 3x base.
	assert.Equal(t, int64(1500), imp.AdjustedThresholdBps)
	assert.True(t, imp.Passed)
	assert.True(t, imp.WithinThreshold)
}

func TestEvaluateImpact_SellSubtractsShares(t *testing.T) {
	buy, err := EvaluateImpact(1000, 1000, 100, 0, 2000, 500, false)
	require.NoError(t, err)
	sell, err := EvaluateImpact(1000, 1000, 100, 0, 2000, 500, true)
	require.NoError(t, err)

	assert.Greater(t, buy.NewPrice, buy.CurrentPrice)
	assert.Less(t, sell.NewPrice, sell.CurrentPrice)
	// Symmetric move from a balanced book.
	assert.Equal(t, buy.NewPrice-buy.CurrentPrice, sell.CurrentPrice-sell.NewPrice)
}

func TestEvaluateImpact_ObserveOnlyNeverFails(t *testing.T) {
	// A trade that blows far past any threshold still passes; the verdict
	// enforcement mode would apply lands in WithinThreshold instead.
	imp, err := EvaluateImpact(100, 100, 1000, 0, 50, 10, false)
	require.NoError(t, err)
	assert.True(t, imp.Passed)
	assert.False(t, imp.WithinThreshold)
	assert.Greater(t, imp.VolatilityBps, imp.AdjustedThresholdBps)
}

func TestEvaluateImpact_PropagatesPricingErrors(t *testing.T) {
	_, err := EvaluateImpact(1000, 1000, 100, 0, 0, 500, false)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	// Selling more than outstanding drives shares negative.
	_, err = EvaluateImpact(50, 1000, 100, 0, 2000, 500, true)
	assert.ErrorIs(t, err, domain.ErrNumericOverflow)
}
