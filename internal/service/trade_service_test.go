package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

type tradeFixture struct {
	svc       *TradeService
	markets   *fakeMarketStore
	trades    *fakeTradeStore
	positions *fakePositionStore
	recorder  *fakeRecorder
}

func newTradeFixture(t *testing.T, cfg RiskConfig, limits domain.RiskLimits) *tradeFixture {
	t.Helper()
	f := &tradeFixture{
		markets:   newFakeMarketStore(),
		trades:    &fakeTradeStore{},
		positions: newFakePositionStore(),
		recorder:  &fakeRecorder{},
	}
	risk := NewRiskService(f.trades, f.recorder, cfg, testLogger())
	f.svc = NewTradeService(
		f.markets, f.trades, f.positions, passTx{},
		nil, nil, nil,
		risk, limits, testLogger(),
	)
	f.markets.markets["m1"] = domain.Market{ID: "m1", Question: "?", LiquidityParam: 2000}
	f.markets.options["o1"] = domain.Option{ID: "o1", MarketID: "m1", YesShares: 1000, NoShares: 1000}
	return f
}

func buyRequest(qty int64, price string) domain.TradeRequest {
	p := decimal.RequireFromString(price)
	return domain.TradeRequest{
		UserID:        "u1",
		MarketID:      "m1",
		OptionID:      "o1",
		Direction:     domain.TradeDirectionBuy,
		Side:          domain.SideYes,
		Quantity:      qty,
		TotalAmount:   p.Mul(decimal.NewFromInt(qty)),
		PricePerShare: p,
	}
}

func TestExecuteTrade_RejectsInvalidRequest(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())

	req := buyRequest(100, "0.5")
	req.Quantity = 0
	_, _, err := f.svc.ExecuteTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = buyRequest(10, "2")
	req.TotalAmount = decimal.NewFromInt(30) // expected 20, off by 10
	_, _, err = f.svc.ExecuteTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, f.trades.trades)
}

func TestExecuteTrade_BuyAppliesSharesAndPosition(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())

	decision, executed, err := f.svc.ExecuteTrade(context.Background(), buyRequest(100, "0.5"))
	require.NoError(t, err)

	assert.True(t, decision.Passed)
	assert.Equal(t, int64(512_497_396), decision.NewPrice)
	assert.NotEmpty(t, executed.ID)

	opt, err := f.markets.GetOption(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), opt.YesShares)
	assert.Equal(t, int64(1000), opt.NoShares)

	pos, err := f.positions.Get(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.YesShares)

	require.Len(t, f.trades.trades, 1)
	assert.Equal(t, executed.ID, f.trades.trades[0].ID)
}

func TestExecuteTrade_SellRequiresHoldings(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())

	req := buyRequest(10, "0.5")
	req.Direction = domain.TradeDirectionSell
	_, _, err := f.svc.ExecuteTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	opt, _ := f.markets.GetOption(context.Background(), "o1")
	assert.Equal(t, int64(1000), opt.YesShares)
	assert.Empty(t, f.trades.trades)
}

func TestExecuteTrade_SellReducesShares(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())
	f.positions.positions[posKey("u1", "o1")] = domain.Position{
		ID: "p1", UserID: "u1", OptionID: "o1", YesShares: 150,
	}

	req := buyRequest(100, "0.5")
	req.Direction = domain.TradeDirectionSell
	_, _, err := f.svc.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)

	opt, _ := f.markets.GetOption(context.Background(), "o1")
	assert.Equal(t, int64(900), opt.YesShares)

	pos, _ := f.positions.Get(context.Background(), "u1", "o1")
	assert.Equal(t, int64(50), pos.YesShares)
}

func TestExecuteTrade_ResolvedOptionRejected(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())
	opt := f.markets.options["o1"]
	opt.IsResolved = true
	opt.WinningSide = domain.SideYes
	f.markets.options["o1"] = opt

	_, _, err := f.svc.ExecuteTrade(context.Background(), buyRequest(10, "0.5"))
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestExecuteTrade_MarketMismatchRejected(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())

	req := buyRequest(10, "0.5")
	req.MarketID = "m2"
	f.markets.markets["m2"] = domain.Market{ID: "m2", LiquidityParam: 2000}

	_, _, err := f.svc.ExecuteTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExecuteTrade_FlaggedTradeStillExecutes(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, testLimits())

	// 300 units is triple the suspicious-trade threshold.
	decision, _, err := f.svc.ExecuteTrade(context.Background(), buyRequest(100, "3"))
	require.NoError(t, err)
	assert.True(t, decision.Passed)
	assert.Contains(t, decision.Flags, domain.ReasonSuspiciousTradeThreshold)

	require.Len(t, f.recorder.records, 1)
	require.Len(t, f.trades.trades, 1)
}

func TestExecuteTrade_EnforcedRejectionLeavesStateUntouched(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{EnforceSuspiciousTrade: true}, testLimits())

	decision, _, err := f.svc.ExecuteTrade(context.Background(), buyRequest(100, "3"))
	require.ErrorIs(t, err, domain.ErrTradeRejected)
	assert.False(t, decision.Passed)

	opt, _ := f.markets.GetOption(context.Background(), "o1")
	assert.Equal(t, int64(1000), opt.YesShares)
	assert.Empty(t, f.trades.trades)
	_, err = f.positions.Get(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	// The flag is still recorded even though the trade was blocked.
	assert.Len(t, f.recorder.records, 1)
}

func TestExecuteTrade_MissingLimitsFails(t *testing.T) {
	f := newTradeFixture(t, RiskConfig{}, domain.RiskLimits{})

	_, _, err := f.svc.ExecuteTrade(context.Background(), buyRequest(10, "0.5"))
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
	assert.Empty(t, f.trades.trades)
}
