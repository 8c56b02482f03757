package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omenmarkets/core/internal/domain"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.RiskDecision, domain.Trade, error)
	History(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeRequestJSON is the JSON body for trade execution. Monetary fields are
// decimal strings to avoid float rounding on the wire.
type tradeRequestJSON struct {
	UserID        string `json:"user_id"`
	MarketID      string `json:"market_id"`
	OptionID      string `json:"option_id"`
	Direction     string `json:"direction"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	TotalAmount   string `json:"total_amount"`
	PricePerShare string `json:"price_per_share"`
}

// tradeJSON is the wire representation of an executed trade.
type tradeJSON struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	MarketID      string `json:"market_id"`
	OptionID      string `json:"option_id"`
	Direction     string `json:"direction"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	TotalAmount   string `json:"total_amount"`
	PricePerShare string `json:"price_per_share"`
	CreatedAt     string `json:"created_at"`
}

func toTradeJSON(t domain.Trade) tradeJSON {
	return tradeJSON{
		ID:            t.ID,
		UserID:        t.UserID,
		MarketID:      t.MarketID,
		OptionID:      t.OptionID,
		Direction:     string(t.Direction),
		Side:          string(t.Side),
		Quantity:      t.Quantity,
		TotalAmount:   t.TotalAmount.String(),
		PricePerShare: t.PricePerShare.String(),
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// riskDecisionJSON is the wire representation of a risk decision.
type riskDecisionJSON struct {
	Passed            bool     `json:"passed"`
	CurrentPrice      int64    `json:"current_price"`
	NewPrice          int64    `json:"new_price"`
	VolatilityBps     int64    `json:"volatility_bps"`
	AdjustedThreshold int64    `json:"adjusted_threshold_bps"`
	Flags             []string `json:"flags,omitempty"`
}

func toRiskDecisionJSON(d domain.RiskDecision) riskDecisionJSON {
	flags := make([]string, 0, len(d.Flags))
	for _, f := range d.Flags {
		flags = append(flags, string(f))
	}
	return riskDecisionJSON{
		Passed:            d.Passed,
		CurrentPrice:      d.CurrentPrice,
		NewPrice:          d.NewPrice,
		VolatilityBps:     d.VolatilityBps,
		AdjustedThreshold: d.AdjustedThreshold,
		Flags:             flags,
	}
}

// ExecuteTrade runs the full trade cycle: validation, risk checks, share and
// position mutation. The risk decision is returned alongside the trade so
// clients can surface flags even on accepted trades.
// POST /api/trades
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	total, err := decimal.NewFromString(body.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "total_amount must be a decimal string")
		return
	}
	price, err := decimal.NewFromString(body.PricePerShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, "price_per_share must be a decimal string")
		return
	}

	req := domain.TradeRequest{
		UserID:        body.UserID,
		MarketID:      body.MarketID,
		OptionID:      body.OptionID,
		Direction:     domain.TradeDirection(body.Direction),
		Side:          domain.Side(body.Side),
		Quantity:      body.Quantity,
		TotalAmount:   total,
		PricePerShare: price,
	}

	decision, trade, err := h.trades.ExecuteTrade(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "invalid trade request")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market or option not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "option already resolved")
		case errors.Is(err, domain.ErrTradeRejected):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":         "trade rejected by risk controls",
				"risk_decision": toRiskDecisionJSON(decision),
			})
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "option is busy, retry shortly")
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "handler: execute trade failed",
				slog.String("option_id", body.OptionID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to execute trade")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"trade":         toTradeJSON(trade),
		"risk_decision": toRiskDecisionJSON(decision),
	})
}

// ListTrades returns a market's executed trades.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	trades, err := h.trades.History(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}
