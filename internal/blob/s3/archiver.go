package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omenmarkets/core/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the time-ranged query and prune methods it
// actually calls, not the full domain store interfaces. The Postgres stores
// satisfy these implicitly.
// ---------------------------------------------------------------------------

// TradeArchiveStore provides read and prune access to trades for archival.
type TradeArchiveStore interface {
	// ListBefore returns all trades created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
	// DeleteBefore removes all trades created strictly before the cutoff and
	// returns the number of rows removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RiskRecordArchiveStore provides read and prune access to suspicious-trade
// records for archival.
type RiskRecordArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SuspiciousTradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, uploading the result to S3, and then
// pruning the archived rows from the primary store.
//
// Upload strictly precedes deletion: a failed upload leaves the database
// untouched, so re-running the archive after a failure loses nothing.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	risk   RiskRecordArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveStore,
	risk RiskRecordArchiveStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		risk:   risk,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveTrades queries all trades before the cutoff, serializes them to
// JSONL, uploads the file to S3 at archive/trades/YYYY-MM.jsonl, and prunes
// the archived rows. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades prune: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
		slog.Int64("pruned", deleted),
		slog.Time("before", before),
	)
	return int64(len(trades)), nil
}

// ArchiveRiskRecords queries all suspicious-trade records before the cutoff,
// serializes them to JSONL, uploads the file to S3 at
// archive/risk_records/YYYY-MM.jsonl, and prunes the archived rows. The count
// of archived records is returned.
func (a *ArchiveImpl) ArchiveRiskRecords(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.risk.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk records query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive risk records marshal: %w", err)
	}

	path := archivePath("risk_records", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive risk records upload: %w", err)
	}

	deleted, err := a.risk.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive risk records prune: %w", err)
	}

	a.logger.InfoContext(ctx, "risk records archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int64("pruned", deleted),
		slog.Time("before", before),
	)
	return int64(len(records)), nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/risk_records/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
