// Package audit provides best-effort, non-blocking persistence for the
// suspicious-trade audit trail. A failed write must never fail the trade that
// triggered it; failures are queued and retried in the background instead.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/omenmarkets/core/internal/domain"
)

const (
	defaultQueueSize     = 1024
	defaultRetryInterval = 5 * time.Second
)

// Recorder wraps a RiskRecordStore with retry semantics. Record attempts a
// synchronous insert; on failure the record is parked on a bounded in-memory
// queue that Run drains until the insert succeeds. Each recorded violation is
// also published on the "risk_alerts" signal-bus channel, best-effort.
type Recorder struct {
	store         domain.RiskRecordStore
	bus           domain.SignalBus // may be nil
	logger        *slog.Logger
	retries       chan domain.SuspiciousTradeRecord
	retryInterval time.Duration
}

// NewRecorder creates a Recorder. bus may be nil to disable alert publishing.
func NewRecorder(store domain.RiskRecordStore, bus domain.SignalBus, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:         store,
		bus:           bus,
		logger:        logger.With(slog.String("component", "audit_recorder")),
		retries:       make(chan domain.SuspiciousTradeRecord, defaultQueueSize),
		retryInterval: defaultRetryInterval,
	}
}

// Record appends a suspicious-trade record. It never returns an error: on
// insert failure the record is queued for background retry, and if the queue
// is full the record is dropped and logged loudly for operator follow-up.
func (r *Recorder) Record(ctx context.Context, rec domain.SuspiciousTradeRecord) {
	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.WarnContext(ctx, "audit: insert failed, queueing for retry",
			slog.String("record_id", rec.ID),
			slog.String("reason", string(rec.DetectionReason)),
			slog.String("error", err.Error()),
		)
		select {
		case r.retries <- rec:
		default:
			r.logger.ErrorContext(ctx, "audit: retry queue full, record dropped",
				slog.String("record_id", rec.ID),
				slog.String("user_id", rec.UserID),
				slog.String("market_id", rec.MarketID),
			)
		}
	}

	r.publishAlert(ctx, rec)
}

// publishAlert pushes the violation onto the risk_alerts channel. Publish
// failures are logged and ignored.
func (r *Recorder) publishAlert(ctx context.Context, rec domain.SuspiciousTradeRecord) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event":      "suspicious_trade",
		"record_id":  rec.ID,
		"user_id":    rec.UserID,
		"market_id":  rec.MarketID,
		"option_id":  rec.OptionID,
		"reason":     rec.DetectionReason,
		"risk_score": rec.RiskScore,
		"amount":     rec.TotalAmount.String(),
		"timestamp":  rec.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err := r.bus.Publish(ctx, "risk_alerts", payload); err != nil {
		r.logger.WarnContext(ctx, "audit: publish alert failed",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Run drains the retry queue until the context is cancelled. Records that
// still fail to insert are re-queued and retried on the next tick.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "audit recorder started")
	defer r.logger.Info("audit recorder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain retries every record currently queued, once each.
func (r *Recorder) drain(ctx context.Context) {
	pending := len(r.retries)
	for i := 0; i < pending; i++ {
		var rec domain.SuspiciousTradeRecord
		select {
		case rec = <-r.retries:
		default:
			return
		}

		if err := r.store.Insert(ctx, rec); err != nil {
			select {
			case r.retries <- rec:
			default:
				r.logger.ErrorContext(ctx, "audit: retry queue full, record dropped",
					slog.String("record_id", rec.ID),
				)
			}
			continue
		}
		r.logger.InfoContext(ctx, "audit: retried record persisted",
			slog.String("record_id", rec.ID),
		)
	}
}
