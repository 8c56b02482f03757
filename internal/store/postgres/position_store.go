package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omenmarkets/core/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionColumns = `id, user_id, option_id, yes_shares, no_shares, is_claimed, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.UserID, &p.OptionID, &p.YesShares, &p.NoShares,
		&p.IsClaimed, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Get returns the position for a (user, option) pair.
func (s *PositionStore) Get(ctx context.Context, userID, optionID string) (domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1 AND option_id = $2`
	p, err := scanPosition(queryFrom(ctx, s.pool).QueryRow(ctx, query, userID, optionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", userID, optionID, err)
	}
	return p, nil
}

// GetForUpdate locks the position row for the remainder of the enclosing
// transaction so the claimed check-and-set is atomic; two concurrent claims
// for the same position serialize here.
func (s *PositionStore) GetForUpdate(ctx context.Context, userID, optionID string) (domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1 AND option_id = $2 FOR UPDATE`
	p, err := scanPosition(queryFrom(ctx, s.pool).QueryRow(ctx, query, userID, optionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: lock position %s/%s: %w", userID, optionID, err)
	}
	return p, nil
}

// Upsert inserts a position on the user's first trade in an option, or
// updates the share counts on subsequent trades.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (id, user_id, option_id, yes_shares, no_shares)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, option_id) DO UPDATE
		SET yes_shares = EXCLUDED.yes_shares,
		    no_shares  = EXCLUDED.no_shares,
		    updated_at = NOW()`
	_, err := queryFrom(ctx, s.pool).Exec(ctx, query, p.ID, p.UserID, p.OptionID, p.YesShares, p.NoShares)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", p.UserID, p.OptionID, err)
	}
	return nil
}

// MarkClaimed flips is_claimed for an unclaimed position. A second attempt on
// the same position finds no unclaimed row and returns ErrNoWinningShares,
// which is how double-claims surface to the caller.
func (s *PositionStore) MarkClaimed(ctx context.Context, userID, optionID string) error {
	const query = `
		UPDATE positions SET is_claimed = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND option_id = $2 AND is_claimed = FALSE`
	tag, err := queryFrom(ctx, s.pool).Exec(ctx, query, userID, optionID)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed %s/%s: %w", userID, optionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoWinningShares
	}
	return nil
}

// ListByUser returns a user's positions, newest first. Claimed positions are
// included; they are historical records, never deleted.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}

	rows, err := queryFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %s: %w", userID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
