package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

func TestPrice_BalancedMarket(t *testing.T) {
	p, err := Price(1000, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, Precision/2, p)
}

func TestPrice_SwapSymmetry(t *testing.T) {
	cases := []struct {
		yes, no, b int64
	}{
		{0, 0, 100},
		{1000, 1000, 2000},
		{1100, 1000, 2000},
		{1, 5000, 2000},
		{987654, 12345, 500000},
		{3, 7, 2},
	}
	for _, tc := range cases {
		pYes, err := Price(tc.yes, tc.no, tc.b)
		require.NoError(t, err)
		pNo, err := Price(tc.no, tc.yes, tc.b)
		require.NoError(t, err)
		assert.Equal(t, Precision, pYes+pNo,
			"yes=%d no=%d b=%d", tc.yes, tc.no, tc.b)
	}
}

func TestPrice_MonotonicInYesShares(t *testing.T) {
	const no, b = 1000, 2000
	prev, err := Price(0, no, b)
	require.NoError(t, err)
	for yes := int64(100); yes <= 3000; yes += 100 {
		p, err := Price(yes, no, b)
		require.NoError(t, err)
		assert.Greater(t, p, prev, "yes=%d", yes)
		prev = p
	}
}

func TestPrice_DecreasingInNoShares(t *testing.T) {
	const yes, b = 1000, 2000
	prev, err := Price(yes, 0, b)
	require.NoError(t, err)
	for no := int64(100); no <= 3000; no += 100 {
		p, err := Price(yes, no, b)
		require.NoError(t, err)
		assert.Less(t, p, prev, "no=%d", no)
		prev = p
	}
}

func TestPrice_OpenInterval(t *testing.T) {
	// Heavily imbalanced markets clamp at the representation's limits but
	// never reach exactly 0 or Precision.
	p, err := Price(1_000_000, 0, 2000)
	require.NoError(t, err)
	assert.Equal(t, Precision-1, p)

	p, err = Price(0, 1_000_000, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p)
}

func TestPrice_InvalidLiquidity(t *testing.T) {
	_, err := Price(100, 100, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	_, err = Price(100, 100, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)
}

func TestPrice_NumericOverflow(t *testing.T) {
	_, err := Price(-1, 100, 2000)
	assert.ErrorIs(t, err, domain.ErrNumericOverflow)

	// Exponent argument beyond the safe float64 range.
	_, err = Price(800*2000, 0, 2000)
	assert.ErrorIs(t, err, domain.ErrNumericOverflow)
}

func TestPricePair_SumsToPrecision(t *testing.T) {
	yes, no, err := PricePair(1100, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, Precision, yes+no)
}

func TestCost_IncreasesWithShares(t *testing.T) {
	c1, err := Cost(1000, 1000, 2000)
	require.NoError(t, err)
	c2, err := Cost(1100, 1000, 2000)
	require.NoError(t, err)
	assert.Greater(t, c2, c1)

	_, err = Cost(100, 100, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)
}
