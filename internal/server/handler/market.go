package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/pricing"
)

// MarketService defines the methods that the market handler requires from the
// service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, question string, liquidityParam int64, labels []string) (domain.Market, []domain.Option, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	GetOption(ctx context.Context, id string) (domain.Option, error)
	ListOptions(ctx context.Context, marketID string) ([]domain.Option, error)
	Quote(ctx context.Context, optionID string) (int64, error)
	ResolveOption(ctx context.Context, optionID string, winning domain.Side, disputeDeadline *time.Time) error
}

// MarketHandler serves market and option HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketJSON is the wire representation of a market.
type marketJSON struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	LiquidityParam int64  `json:"liquidity_param"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

func toMarketJSON(m domain.Market) marketJSON {
	return marketJSON{
		ID:             m.ID,
		Question:       m.Question,
		LiquidityParam: m.LiquidityParam,
		Status:         string(m.Status),
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// optionJSON is the wire representation of an option.
type optionJSON struct {
	ID              string  `json:"id"`
	MarketID        string  `json:"market_id"`
	Label           string  `json:"label"`
	YesShares       int64   `json:"yes_shares"`
	NoShares        int64   `json:"no_shares"`
	IsResolved      bool    `json:"is_resolved"`
	WinningSide     string  `json:"winning_side,omitempty"`
	DisputeDeadline *string `json:"dispute_deadline,omitempty"`
}

func toOptionJSON(o domain.Option) optionJSON {
	out := optionJSON{
		ID:          o.ID,
		MarketID:    o.MarketID,
		Label:       o.Label,
		YesShares:   o.YesShares,
		NoShares:    o.NoShares,
		IsResolved:  o.IsResolved,
		WinningSide: string(o.WinningSide),
	}
	if o.DisputeDeadline != nil {
		s := o.DisputeDeadline.UTC().Format(time.RFC3339)
		out.DisputeDeadline = &s
	}
	return out
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Question       string   `json:"question"`
	LiquidityParam int64    `json:"liquidity_param"`
	Options        []string `json:"options"`
}

// CreateMarket lists a new market with its options.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, options, err := h.markets.CreateMarket(r.Context(), req.Question, req.LiquidityParam, req.Options)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "question and at least one option are required")
			return
		}
		if errors.Is(err, domain.ErrInvalidLiquidity) {
			writeError(w, http.StatusBadRequest, "liquidity_param must be positive")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	opts := make([]optionJSON, 0, len(options))
	for _, o := range options {
		opts = append(opts, toOptionJSON(o))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"market":  toMarketJSON(market),
		"options": opts,
	})
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	out := make([]marketJSON, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketJSON(market))
}

// ListOptions returns all options of a market.
// GET /api/markets/{id}/options
func (h *MarketHandler) ListOptions(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	options, err := h.markets.ListOptions(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list options failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list options")
		return
	}

	out := make([]optionJSON, 0, len(options))
	for _, o := range options {
		out = append(out, toOptionJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": out})
}

// Quote returns the current LMSR prices for an option. Prices are fixed-point
// integers scaled by 1e9; price_yes + price_no always equals the scale.
// GET /api/options/{id}/quote
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing option id")
		return
	}

	priceYes, err := h.markets.Quote(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "option not found")
			return
		}
		if errors.Is(err, domain.ErrNumericOverflow) || errors.Is(err, domain.ErrInvalidLiquidity) {
			writeError(w, http.StatusUnprocessableEntity, "quote unavailable for current market state")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("option_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to quote option")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"option_id": id,
		"price_yes": priceYes,
		"price_no":  pricing.Precision - priceYes,
		"scale":     pricing.Precision,
	})
}

// resolveRequest is the JSON body for option resolution.
type resolveRequest struct {
	WinningSide     string `json:"winning_side"`
	DisputeDeadline string `json:"dispute_deadline,omitempty"` // RFC 3339; empty means immediately claimable
}

// ResolveOption records an external resolution for an option.
// POST /api/options/{id}/resolve
func (h *MarketHandler) ResolveOption(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing option id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var deadline *time.Time
	if req.DisputeDeadline != "" {
		ts, err := time.Parse(time.RFC3339, req.DisputeDeadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dispute_deadline must be RFC 3339")
			return
		}
		deadline = &ts
	}

	err := h.markets.ResolveOption(r.Context(), id, domain.Side(req.WinningSide), deadline)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "winning_side must be yes or no")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "option not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "option already resolved")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve option failed",
				slog.String("option_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve option")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "resolved",
		"option_id":    id,
		"winning_side": req.WinningSide,
	})
}
