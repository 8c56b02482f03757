package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omenmarkets/core/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// CreateMarket inserts a new market row.
func (s *MarketStore) CreateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (id, question, liquidity_param, status)
		VALUES ($1, $2, $3, $4)`
	_, err := queryFrom(ctx, s.pool).Exec(ctx, query, m.ID, m.Question, m.LiquidityParam, m.Status)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetMarket returns a market by ID, or domain.ErrNotFound.
func (s *MarketStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	const query = `
		SELECT id, question, liquidity_param, status, created_at, updated_at
		FROM markets WHERE id = $1`
	var m domain.Market
	err := queryFrom(ctx, s.pool).QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Question, &m.LiquidityParam, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets ordered by creation time, newest first.
func (s *MarketStore) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `
		SELECT id, question, liquidity_param, status, created_at, updated_at
		FROM markets ORDER BY created_at DESC`
	args := []any{}
	if opts.Limit > 0 {
		query += " LIMIT $1"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $2"
			args = append(args, opts.Offset)
		}
	}

	rows, err := queryFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(&m.ID, &m.Question, &m.LiquidityParam, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// CreateOption inserts a new option row.
func (s *MarketStore) CreateOption(ctx context.Context, o domain.Option) error {
	const query = `
		INSERT INTO options (id, market_id, label, yes_shares, no_shares)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := queryFrom(ctx, s.pool).Exec(ctx, query, o.ID, o.MarketID, o.Label, o.YesShares, o.NoShares)
	if err != nil {
		return fmt.Errorf("postgres: create option %s: %w", o.ID, err)
	}
	return nil
}

const optionColumns = `id, market_id, label, yes_shares, no_shares,
	is_resolved, COALESCE(winning_side, ''), dispute_deadline, created_at, updated_at`

func scanOption(row pgx.Row) (domain.Option, error) {
	var o domain.Option
	err := row.Scan(
		&o.ID, &o.MarketID, &o.Label, &o.YesShares, &o.NoShares,
		&o.IsResolved, &o.WinningSide, &o.DisputeDeadline, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// GetOption returns an option by ID, or domain.ErrNotFound.
func (s *MarketStore) GetOption(ctx context.Context, id string) (domain.Option, error) {
	query := `SELECT ` + optionColumns + ` FROM options WHERE id = $1`
	o, err := scanOption(queryFrom(ctx, s.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Option{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Option{}, fmt.Errorf("postgres: get option %s: %w", id, err)
	}
	return o, nil
}

// GetOptionForUpdate locks the option row for the remainder of the enclosing
// transaction. Concurrent trades on the same option serialize here; trades on
// different options proceed in parallel.
func (s *MarketStore) GetOptionForUpdate(ctx context.Context, id string) (domain.Option, error) {
	query := `SELECT ` + optionColumns + ` FROM options WHERE id = $1 FOR UPDATE`
	o, err := scanOption(queryFrom(ctx, s.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Option{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Option{}, fmt.Errorf("postgres: lock option %s: %w", id, err)
	}
	return o, nil
}

// ListOptions returns all options of a market.
func (s *MarketStore) ListOptions(ctx context.Context, marketID string) ([]domain.Option, error) {
	query := `SELECT ` + optionColumns + ` FROM options WHERE market_id = $1 ORDER BY created_at`
	rows, err := queryFrom(ctx, s.pool).Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list options %s: %w", marketID, err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan option: %w", err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list options rows: %w", err)
	}
	return options, nil
}

// UpdateOptionShares writes new share counts for an option.
func (s *MarketStore) UpdateOptionShares(ctx context.Context, id string, yesShares, noShares int64) error {
	const query = `
		UPDATE options SET yes_shares = $2, no_shares = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := queryFrom(ctx, s.pool).Exec(ctx, query, id, yesShares, noShares)
	if err != nil {
		return fmt.Errorf("postgres: update option shares %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResolveOption records the winning side and dispute deadline for an option.
// It returns domain.ErrAlreadyResolved when the option has been resolved
// before; resolutions are applied exactly once.
func (s *MarketStore) ResolveOption(ctx context.Context, id string, winning domain.Side, disputeDeadline *time.Time) error {
	const query = `
		UPDATE options
		SET is_resolved = TRUE, winning_side = $2, dispute_deadline = $3, updated_at = NOW()
		WHERE id = $1 AND is_resolved = FALSE`
	tag, err := queryFrom(ctx, s.pool).Exec(ctx, query, id, winning, disputeDeadline)
	if err != nil {
		return fmt.Errorf("postgres: resolve option %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the option does not exist or it is already resolved.
		if _, getErr := s.GetOption(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
