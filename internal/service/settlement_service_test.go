package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

type settlementFixture struct {
	svc       *SettlementService
	markets   *fakeMarketStore
	positions *fakePositionStore
	now       time.Time
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		markets:   newFakeMarketStore(),
		positions: newFakePositionStore(),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewSettlementService(f.markets, f.positions, passTx{}, nil, testLogger())
	f.svc.nowFn = func() time.Time { return f.now }
	return f
}

func (f *settlementFixture) seedOption(resolved bool, winning domain.Side, deadline *time.Time) {
	f.markets.options["o1"] = domain.Option{
		ID:              "o1",
		MarketID:        "m1",
		IsResolved:      resolved,
		WinningSide:     winning,
		DisputeDeadline: deadline,
	}
}

func (f *settlementFixture) seedPosition(yes, no int64) {
	f.positions.positions[posKey("u1", "o1")] = domain.Position{
		ID: "p1", UserID: "u1", OptionID: "o1", YesShares: yes, NoShares: no,
	}
}

func TestClaim_PaysWinningSideShares(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(true, domain.SideYes, nil)
	f.seedPosition(500, 120)

	got, err := f.svc.Claim(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Amount)

	pos, err := f.positions.Get(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.True(t, pos.IsClaimed)
}

func TestClaim_SecondClaimRejected(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(true, domain.SideNo, nil)
	f.seedPosition(0, 300)

	got, err := f.svc.Claim(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.Amount)

	_, err = f.svc.Claim(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)
}

func TestClaim_DisputeWindowGates(t *testing.T) {
	f := newSettlementFixture(t)
	deadline := f.now.Add(time.Hour)
	f.seedOption(true, domain.SideYes, &deadline)
	f.seedPosition(400, 0)

	_, err := f.svc.Claim(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrDisputeWindowActive)

	// The identical claim succeeds once the window has elapsed.
	f.now = deadline
	got, err := f.svc.Claim(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.Amount)
}

func TestClaim_UnresolvedOption(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(false, "", nil)
	f.seedPosition(100, 0)

	_, err := f.svc.Claim(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaim_NoPosition(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(true, domain.SideYes, nil)

	_, err := f.svc.Claim(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestClaim_LosingSideOnly(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(true, domain.SideYes, nil)
	f.seedPosition(0, 250)

	_, err := f.svc.Claim(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)

	pos, err := f.positions.Get(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.False(t, pos.IsClaimed, "a failed claim must not mark the position")
}

func TestClaim_EmptyArgs(t *testing.T) {
	f := newSettlementFixture(t)

	_, err := f.svc.Claim(context.Background(), "", "o1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Claim(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPreview_DoesNotMutate(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedOption(true, domain.SideYes, nil)
	f.seedPosition(150, 0)

	for i := 0; i < 2; i++ {
		got, err := f.svc.Preview(context.Background(), "u1", "o1")
		require.NoError(t, err)
		assert.Equal(t, int64(150), got.Amount)
	}

	got, err := f.svc.Claim(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Amount)

	_, err = f.svc.Preview(context.Background(), "u1", "o1")
	assert.ErrorIs(t, err, domain.ErrNoWinningShares)
}
