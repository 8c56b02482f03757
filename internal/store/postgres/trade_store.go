package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/omenmarkets/core/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert persists an executed trade.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (id, user_id, market_id, option_id, direction, side,
			quantity, total_amount, price_per_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := queryFrom(ctx, s.pool).Exec(ctx, query,
		t.ID, t.UserID, t.MarketID, t.OptionID, t.Direction, t.Side,
		t.Quantity, t.TotalAmount, t.PricePerShare, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// SumAmountSince returns the total traded amount on a market for trades with
// created_at >= since. This aggregate backs the circuit breaker's rolling
// one-hour window.
func (s *TradeStore) SumAmountSince(ctx context.Context, marketID string, since time.Time) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM trades WHERE market_id = $1 AND created_at >= $2`
	var sum decimal.Decimal
	err := queryFrom(ctx, s.pool).QueryRow(ctx, query, marketID, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum trades %s: %w", marketID, err)
	}
	return sum, nil
}

const tradeColumns = `id, user_id, market_id, option_id, direction, side,
	quantity, total_amount, price_per_share, created_at`

// ListByMarket returns trades for a market, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}
	return s.queryTrades(ctx, query, args...)
}

// ListBefore returns all trades created strictly before the cutoff. Used by
// the cold-storage archiver.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE created_at < $1 ORDER BY created_at`
	return s.queryTrades(ctx, query, before)
}

// DeleteBefore removes trades created strictly before the cutoff and returns
// the number deleted. Only called after a successful archive upload.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := queryFrom(ctx, s.pool).Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := queryFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.MarketID, &t.OptionID, &t.Direction, &t.Side,
			&t.Quantity, &t.TotalAmount, &t.PricePerShare, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query trades rows: %w", err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
