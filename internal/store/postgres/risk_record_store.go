package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omenmarkets/core/internal/domain"
)

// RiskRecordStore implements domain.RiskRecordStore using PostgreSQL. The
// suspicious_trades table is append-only: rows are inserted by the risk gate
// and never updated.
type RiskRecordStore struct {
	pool *pgxpool.Pool
}

// NewRiskRecordStore creates a RiskRecordStore backed by the given connection pool.
func NewRiskRecordStore(pool *pgxpool.Pool) *RiskRecordStore {
	return &RiskRecordStore{pool: pool}
}

// Insert appends a suspicious-trade record. Metadata is stored as JSONB.
func (s *RiskRecordStore) Insert(ctx context.Context, rec domain.SuspiciousTradeRecord) error {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk metadata: %w", err)
	}

	const query = `
		INSERT INTO suspicious_trades (id, user_id, market_id, option_id, direction,
			side, quantity, total_amount, detection_reason, risk_score, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = queryFrom(ctx, s.pool).Exec(ctx, query,
		rec.ID, rec.UserID, rec.MarketID, rec.OptionID, rec.Direction,
		rec.Side, rec.Quantity, rec.TotalAmount, rec.DetectionReason,
		rec.RiskScore, metadataJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk record %s: %w", rec.ID, err)
	}
	return nil
}

const riskRecordColumns = `id, user_id, market_id, option_id, direction, side,
	quantity, total_amount, detection_reason, risk_score, metadata, created_at`

// List returns suspicious-trade records, newest first. An empty marketID
// lists across all markets.
func (s *RiskRecordStore) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.SuspiciousTradeRecord, error) {
	query := `SELECT ` + riskRecordColumns + ` FROM suspicious_trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if marketID != "" {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, marketID)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryRecords(ctx, query, args...)
}

// ListBefore returns all records created strictly before the cutoff. Used by
// the cold-storage archiver.
func (s *RiskRecordStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SuspiciousTradeRecord, error) {
	query := `SELECT ` + riskRecordColumns + ` FROM suspicious_trades WHERE created_at < $1 ORDER BY created_at`
	return s.queryRecords(ctx, query, before)
}

// DeleteBefore removes records created strictly before the cutoff and returns
// the number deleted. Only called after a successful archive upload.
func (s *RiskRecordStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := queryFrom(ctx, s.pool).Exec(ctx, `DELETE FROM suspicious_trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete risk records before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *RiskRecordStore) queryRecords(ctx context.Context, query string, args ...any) ([]domain.SuspiciousTradeRecord, error) {
	rows, err := queryFrom(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query risk records: %w", err)
	}
	defer rows.Close()

	var records []domain.SuspiciousTradeRecord
	for rows.Next() {
		rec, err := scanRiskRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query risk records rows: %w", err)
	}
	return records, nil
}

func scanRiskRecord(row pgx.Row) (domain.SuspiciousTradeRecord, error) {
	var rec domain.SuspiciousTradeRecord
	var metadataJSON []byte
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.MarketID, &rec.OptionID, &rec.Direction, &rec.Side,
		&rec.Quantity, &rec.TotalAmount, &rec.DetectionReason, &rec.RiskScore,
		&metadataJSON, &rec.CreatedAt,
	); err != nil {
		return domain.SuspiciousTradeRecord{}, fmt.Errorf("postgres: scan risk record: %w", err)
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return domain.SuspiciousTradeRecord{}, fmt.Errorf("postgres: unmarshal risk metadata: %w", err)
		}
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.RiskRecordStore = (*RiskRecordStore)(nil)
