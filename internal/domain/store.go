package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TxRunner executes fn inside a store transaction. Every store method called
// through the context passed to fn participates in the same transaction, so
// row locks taken by GetOptionForUpdate / GetPositionForUpdate hold until fn
// returns. fn returning an error rolls the transaction back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MarketStore persists markets and their options.
type MarketStore interface {
	CreateMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, id string) (Market, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]Market, error)
	CreateOption(ctx context.Context, o Option) error
	GetOption(ctx context.Context, id string) (Option, error)
	// GetOptionForUpdate locks the option row for the remainder of the
	// enclosing transaction. Concurrent trades on the same option serialize
	// on this lock.
	GetOptionForUpdate(ctx context.Context, id string) (Option, error)
	ListOptions(ctx context.Context, marketID string) ([]Option, error)
	UpdateOptionShares(ctx context.Context, id string, yesShares, noShares int64) error
	ResolveOption(ctx context.Context, id string, winning Side, disputeDeadline *time.Time) error
}

// TradeStore persists executed trades.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	// SumAmountSince returns the total traded amount on a market for trades
	// with created_at >= since. This is the circuit breaker's rolling window.
	SumAmountSince(ctx context.Context, marketID string, since time.Time) (decimal.Decimal, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists user positions.
type PositionStore interface {
	Get(ctx context.Context, userID, optionID string) (Position, error)
	// GetForUpdate locks the position row for the remainder of the enclosing
	// transaction, making the claimed check-and-set atomic.
	GetForUpdate(ctx context.Context, userID, optionID string) (Position, error)
	Upsert(ctx context.Context, p Position) error
	// MarkClaimed flips is_claimed for an unclaimed position. It returns
	// ErrNoWinningShares when the position was already claimed.
	MarkClaimed(ctx context.Context, userID, optionID string) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
}

// RiskRecordStore persists the append-only suspicious-trade audit trail.
type RiskRecordStore interface {
	Insert(ctx context.Context, rec SuspiciousTradeRecord) error
	List(ctx context.Context, marketID string, opts ListOpts) ([]SuspiciousTradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]SuspiciousTradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
