package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/omenmarkets/core/internal/domain"
)

// RiskRecordLister defines the read access the risk handler needs to the
// suspicious-trade audit trail.
type RiskRecordLister interface {
	List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.SuspiciousTradeRecord, error)
}

// RiskHandler serves the suspicious-trade audit trail over HTTP.
type RiskHandler struct {
	records RiskRecordLister
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler with the given store and logger.
func NewRiskHandler(records RiskRecordLister, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		records: records,
		logger:  logger,
	}
}

type riskRecordJSON struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	MarketID        string          `json:"market_id"`
	OptionID        string          `json:"option_id"`
	Direction       string          `json:"direction"`
	Side            string          `json:"side"`
	Quantity        int64           `json:"quantity"`
	TotalAmount     string          `json:"total_amount"`
	DetectionReason string          `json:"detection_reason"`
	RiskScore       int             `json:"risk_score"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

func toRiskRecordJSON(rec domain.SuspiciousTradeRecord) riskRecordJSON {
	out := riskRecordJSON{
		ID:              rec.ID,
		UserID:          rec.UserID,
		MarketID:        rec.MarketID,
		OptionID:        rec.OptionID,
		Direction:       string(rec.Direction),
		Side:            string(rec.Side),
		Quantity:        rec.Quantity,
		TotalAmount:     rec.TotalAmount.String(),
		DetectionReason: string(rec.DetectionReason),
		RiskScore:       rec.RiskScore,
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(rec.Metadata) > 0 {
		if raw, err := json.Marshal(rec.Metadata); err == nil {
			out.Metadata = raw
		}
	}
	return out
}

// ListRecords returns suspicious-trade records, newest first. An empty
// market_id returns records across all markets.
// GET /api/risk/records?market_id=...&since=RFC3339&limit=50&offset=0
func (h *RiskHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market_id")

	records, err := h.records.List(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list risk records failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list risk records")
		return
	}

	out := make([]riskRecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toRiskRecordJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}
