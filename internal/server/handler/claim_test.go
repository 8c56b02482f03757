package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

type stubSettlementService struct {
	claimFn     func(ctx context.Context, userID, optionID string) (domain.PayoutResult, error)
	previewFn   func(ctx context.Context, userID, optionID string) (domain.PayoutResult, error)
	positionsFn func(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
}

func (s *stubSettlementService) Claim(ctx context.Context, userID, optionID string) (domain.PayoutResult, error) {
	return s.claimFn(ctx, userID, optionID)
}

func (s *stubSettlementService) Preview(ctx context.Context, userID, optionID string) (domain.PayoutResult, error) {
	return s.previewFn(ctx, userID, optionID)
}

func (s *stubSettlementService) Positions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	return s.positionsFn(ctx, userID, opts)
}

func TestClaimHandler_Claim(t *testing.T) {
	svc := &stubSettlementService{
		claimFn: func(_ context.Context, userID, optionID string) (domain.PayoutResult, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "o1", optionID)
			return domain.PayoutResult{Amount: 500}, nil
		},
	}
	h := NewClaimHandler(svc, discardLogger())

	body := `{"user_id":"u1","option_id":"o1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/claims", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Claim(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp payoutJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(500), resp.Amount)
}

func TestClaimHandler_Claim_DisputeWindowActive(t *testing.T) {
	svc := &stubSettlementService{
		claimFn: func(context.Context, string, string) (domain.PayoutResult, error) {
			return domain.PayoutResult{}, domain.ErrDisputeWindowActive
		},
	}
	h := NewClaimHandler(svc, discardLogger())

	body := `{"user_id":"u1","option_id":"o1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/claims", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Claim(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimHandler_Claim_NoPosition(t *testing.T) {
	svc := &stubSettlementService{
		claimFn: func(context.Context, string, string) (domain.PayoutResult, error) {
			return domain.PayoutResult{}, domain.ErrPositionNotFound
		},
	}
	h := NewClaimHandler(svc, discardLogger())

	body := `{"user_id":"u1","option_id":"o1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/claims", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Claim(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimHandler_PreviewClaim(t *testing.T) {
	svc := &stubSettlementService{
		previewFn: func(_ context.Context, userID, optionID string) (domain.PayoutResult, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "o1", optionID)
			return domain.PayoutResult{Amount: 400}, nil
		},
	}
	h := NewClaimHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/claims/preview?user_id=u1&option_id=o1", nil)
	rec := httptest.NewRecorder()

	h.PreviewClaim(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp payoutJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(400), resp.Amount)
}

func TestClaimHandler_ListPositions_RequiresUserID(t *testing.T) {
	h := NewClaimHandler(&stubSettlementService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()

	h.ListPositions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimHandler_ListPositions(t *testing.T) {
	svc := &stubSettlementService{
		positionsFn: func(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Position, error) {
			assert.Equal(t, "u1", userID)
			return []domain.Position{
				{ID: "p1", UserID: userID, OptionID: "o1", YesShares: 100},
			}, nil
		},
	}
	h := NewClaimHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?user_id=u1", nil)
	rec := httptest.NewRecorder()

	h.ListPositions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Positions []positionJSON `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, int64(100), resp.Positions[0].YesShares)
}
