package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/omenmarkets/core/internal/domain"
)

// SettlementService defines the methods that the claim handler requires from
// the service layer.
type SettlementService interface {
	Claim(ctx context.Context, userID, optionID string) (domain.PayoutResult, error)
	Preview(ctx context.Context, userID, optionID string) (domain.PayoutResult, error)
	Positions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
}

// ClaimHandler serves settlement and position HTTP endpoints.
type ClaimHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(settlement SettlementService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		settlement: settlement,
		logger:     logger,
	}
}

type claimRequest struct {
	UserID   string `json:"user_id"`
	OptionID string `json:"option_id"`
}

type payoutJSON struct {
	Amount int64 `json:"amount"`
}

type positionJSON struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	OptionID  string `json:"option_id"`
	YesShares int64  `json:"yes_shares"`
	NoShares  int64  `json:"no_shares"`
	IsClaimed bool   `json:"is_claimed"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toPositionJSON(p domain.Position) positionJSON {
	return positionJSON{
		ID:        p.ID,
		UserID:    p.UserID,
		OptionID:  p.OptionID,
		YesShares: p.YesShares,
		NoShares:  p.NoShares,
		IsClaimed: p.IsClaimed,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "user_id and option_id are required")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "option not found")
	case errors.Is(err, domain.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, "no position for user on this option")
	case errors.Is(err, domain.ErrMarketNotResolved):
		writeError(w, http.StatusConflict, "option is not resolved yet")
	case errors.Is(err, domain.ErrDisputeWindowActive):
		writeError(w, http.StatusConflict, "dispute window is still open")
	case errors.Is(err, domain.ErrNoWinningShares):
		writeError(w, http.StatusConflict, "no unclaimed winning shares")
	default:
		writeError(w, http.StatusInternalServerError, "claim failed")
	}
}

// Claim pays out a user's winning shares on a resolved option. A position can
// be claimed at most once.
// POST /api/claims
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var body claimRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	payout, err := h.settlement.Claim(r.Context(), body.UserID, body.OptionID)
	if err != nil {
		if !isClientClaimError(err) {
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("user_id", body.UserID),
				slog.String("option_id", body.OptionID),
				slog.String("error", err.Error()),
			)
		}
		writeClaimError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutJSON{Amount: payout.Amount})
}

// PreviewClaim computes the payout a claim would produce without mutating any
// state.
// GET /api/claims/preview?user_id=...&option_id=...
func (h *ClaimHandler) PreviewClaim(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	optionID := r.URL.Query().Get("option_id")

	payout, err := h.settlement.Preview(r.Context(), userID, optionID)
	if err != nil {
		if !isClientClaimError(err) {
			h.logger.ErrorContext(r.Context(), "handler: claim preview failed",
				slog.String("user_id", userID),
				slog.String("option_id", optionID),
				slog.String("error", err.Error()),
			)
		}
		writeClaimError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutJSON{Amount: payout.Amount})
}

// ListPositions returns a user's positions.
// GET /api/positions?user_id=...&limit=50&offset=0
func (h *ClaimHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	positions, err := h.settlement.Positions(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	out := make([]positionJSON, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func isClientClaimError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrPositionNotFound) ||
		errors.Is(err, domain.ErrMarketNotResolved) ||
		errors.Is(err, domain.ErrDisputeWindowActive) ||
		errors.Is(err, domain.ErrNoWinningShares)
}
