package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omenmarkets/core/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// passTx runs the function directly; the fakes mutate in place, so tests
// assert on state rather than rollback mechanics.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeMarketStore struct {
	markets map[string]domain.Market
	options map[string]domain.Option
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{
		markets: map[string]domain.Market{},
		options: map[string]domain.Option{},
	}
}

func (s *fakeMarketStore) CreateMarket(_ context.Context, m domain.Market) error {
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) GetMarket(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) ListMarkets(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeMarketStore) CreateOption(_ context.Context, o domain.Option) error {
	s.options[o.ID] = o
	return nil
}

func (s *fakeMarketStore) GetOption(_ context.Context, id string) (domain.Option, error) {
	o, ok := s.options[id]
	if !ok {
		return domain.Option{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *fakeMarketStore) GetOptionForUpdate(ctx context.Context, id string) (domain.Option, error) {
	return s.GetOption(ctx, id)
}

func (s *fakeMarketStore) ListOptions(_ context.Context, marketID string) ([]domain.Option, error) {
	var out []domain.Option
	for _, o := range s.options {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeMarketStore) UpdateOptionShares(_ context.Context, id string, yes, no int64) error {
	o, ok := s.options[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.YesShares, o.NoShares = yes, no
	s.options[id] = o
	return nil
}

func (s *fakeMarketStore) ResolveOption(_ context.Context, id string, winning domain.Side, deadline *time.Time) error {
	o, ok := s.options[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.IsResolved {
		return domain.ErrAlreadyResolved
	}
	o.IsResolved = true
	o.WinningSide = winning
	o.DisputeDeadline = deadline
	s.options[id] = o
	return nil
}

var _ domain.MarketStore = (*fakeMarketStore)(nil)

type fakeTradeStore struct {
	trades []domain.Trade
	sumErr error
}

func (s *fakeTradeStore) Insert(_ context.Context, t domain.Trade) error {
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeTradeStore) SumAmountSince(_ context.Context, marketID string, since time.Time) (decimal.Decimal, error) {
	if s.sumErr != nil {
		return decimal.Zero, s.sumErr
	}
	sum := decimal.Zero
	for _, t := range s.trades {
		if t.MarketID == marketID && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.TotalAmount)
		}
	}
	return sum, nil
}

func (s *fakeTradeStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.Trade
	var deleted int64
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	return deleted, nil
}

var _ domain.TradeStore = (*fakeTradeStore)(nil)

type fakePositionStore struct {
	positions map[string]domain.Position
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: map[string]domain.Position{}}
}

func posKey(userID, optionID string) string {
	return userID + "|" + optionID
}

func (s *fakePositionStore) Get(_ context.Context, userID, optionID string) (domain.Position, error) {
	p, ok := s.positions[posKey(userID, optionID)]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (s *fakePositionStore) GetForUpdate(ctx context.Context, userID, optionID string) (domain.Position, error) {
	return s.Get(ctx, userID, optionID)
}

func (s *fakePositionStore) Upsert(_ context.Context, p domain.Position) error {
	s.positions[posKey(p.UserID, p.OptionID)] = p
	return nil
}

func (s *fakePositionStore) MarkClaimed(_ context.Context, userID, optionID string) error {
	key := posKey(userID, optionID)
	p, ok := s.positions[key]
	if !ok || p.IsClaimed {
		return domain.ErrNoWinningShares
	}
	p.IsClaimed = true
	s.positions[key] = p
	return nil
}

func (s *fakePositionStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ domain.PositionStore = (*fakePositionStore)(nil)

type fakeRecorder struct {
	records []domain.SuspiciousTradeRecord
}

func (r *fakeRecorder) Record(_ context.Context, rec domain.SuspiciousTradeRecord) {
	r.records = append(r.records, rec)
}

var _ AuditRecorder = (*fakeRecorder)(nil)

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		SuspiciousTradeThreshold:        decimal.NewFromInt(100),
		CircuitBreakerThreshold:         decimal.NewFromInt(1000),
		MaxMarketVolatilityThresholdBps: 500,
	}
}
