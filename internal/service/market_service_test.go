package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

type marketFixture struct {
	svc     *MarketService
	markets *fakeMarketStore
	now     time.Time
}

func newMarketFixture(t *testing.T, defaults MarketDefaults) *marketFixture {
	t.Helper()
	f := &marketFixture{
		markets: newFakeMarketStore(),
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewMarketService(f.markets, nil, nil, nil, defaults, testLogger())
	f.svc.nowFn = func() time.Time { return f.now }
	return f
}

func TestCreateMarket_AppliesDefaultLiquidity(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000})

	market, options, err := f.svc.CreateMarket(context.Background(), "Will it rain?", 0, []string{"yes-option"})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), market.LiquidityParam)
	assert.Len(t, options, 1)
	assert.Equal(t, market.LiquidityParam, f.markets.markets[market.ID].LiquidityParam)
}

func TestCreateMarket_ExplicitLiquidityWins(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000})

	market, _, err := f.svc.CreateMarket(context.Background(), "Will it rain?", 2_000, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), market.LiquidityParam)
}

func TestCreateMarket_NegativeLiquidityRejected(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000})

	_, _, err := f.svc.CreateMarket(context.Background(), "Will it rain?", -1, []string{"a"})
	require.ErrorIs(t, err, domain.ErrInvalidLiquidity)
	assert.Empty(t, f.markets.markets)
}

func TestCreateMarket_NoDefaultAndNoLiquidityRejected(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{})

	_, _, err := f.svc.CreateMarket(context.Background(), "Will it rain?", 0, []string{"a"})
	require.ErrorIs(t, err, domain.ErrInvalidLiquidity)
}

func TestResolveOption_AppliesDefaultDisputeWindow(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000, DisputeWindow: 24 * time.Hour})
	f.markets.options["o1"] = domain.Option{ID: "o1", MarketID: "m1"}

	require.NoError(t, f.svc.ResolveOption(context.Background(), "o1", domain.SideYes, nil))

	opt := f.markets.options["o1"]
	require.NotNil(t, opt.DisputeDeadline)
	assert.Equal(t, f.now.Add(24*time.Hour), *opt.DisputeDeadline)
}

func TestResolveOption_ZeroWindowClaimableImmediately(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000})
	f.markets.options["o1"] = domain.Option{ID: "o1", MarketID: "m1"}

	require.NoError(t, f.svc.ResolveOption(context.Background(), "o1", domain.SideNo, nil))
	assert.Nil(t, f.markets.options["o1"].DisputeDeadline)
}

func TestResolveOption_ExplicitDeadlineKept(t *testing.T) {
	f := newMarketFixture(t, MarketDefaults{LiquidityParam: 10_000, DisputeWindow: 24 * time.Hour})
	f.markets.options["o1"] = domain.Option{ID: "o1", MarketID: "m1"}
	deadline := f.now.Add(time.Hour)

	require.NoError(t, f.svc.ResolveOption(context.Background(), "o1", domain.SideYes, &deadline))

	opt := f.markets.options["o1"]
	require.NotNil(t, opt.DisputeDeadline)
	assert.Equal(t, deadline, *opt.DisputeDeadline)
}
