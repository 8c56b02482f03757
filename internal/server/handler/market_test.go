package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/pricing"
)

type stubMarketService struct {
	createFn  func(ctx context.Context, question string, liquidityParam int64, labels []string) (domain.Market, []domain.Option, error)
	quoteFn   func(ctx context.Context, optionID string) (int64, error)
	resolveFn func(ctx context.Context, optionID string, winning domain.Side, deadline *time.Time) error
}

func (s *stubMarketService) CreateMarket(ctx context.Context, question string, liquidityParam int64, labels []string) (domain.Market, []domain.Option, error) {
	return s.createFn(ctx, question, liquidityParam, labels)
}

func (s *stubMarketService) GetMarket(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (s *stubMarketService) ListMarkets(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (s *stubMarketService) GetOption(context.Context, string) (domain.Option, error) {
	return domain.Option{}, domain.ErrNotFound
}

func (s *stubMarketService) ListOptions(context.Context, string) ([]domain.Option, error) {
	return nil, nil
}

func (s *stubMarketService) Quote(ctx context.Context, optionID string) (int64, error) {
	return s.quoteFn(ctx, optionID)
}

func (s *stubMarketService) ResolveOption(ctx context.Context, optionID string, winning domain.Side, deadline *time.Time) error {
	return s.resolveFn(ctx, optionID, winning, deadline)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMarketHandler_Quote_ComplementsToScale(t *testing.T) {
	svc := &stubMarketService{
		quoteFn: func(_ context.Context, optionID string) (int64, error) {
			assert.Equal(t, "o1", optionID)
			return 400_000_000, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/options/o1/quote", nil)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	h.Quote(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OptionID string `json:"option_id"`
		PriceYes int64  `json:"price_yes"`
		PriceNo  int64  `json:"price_no"`
		Scale    int64  `json:"scale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "o1", body.OptionID)
	assert.Equal(t, int64(400_000_000), body.PriceYes)
	assert.Equal(t, pricing.Precision, body.PriceYes+body.PriceNo)
	assert.Equal(t, pricing.Precision, body.Scale)
}

func TestMarketHandler_Quote_NotFound(t *testing.T) {
	svc := &stubMarketService{
		quoteFn: func(context.Context, string) (int64, error) {
			return 0, domain.ErrNotFound
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/options/missing/quote", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.Quote(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarketHandler_Quote_Overflow(t *testing.T) {
	svc := &stubMarketService{
		quoteFn: func(context.Context, string) (int64, error) {
			return 0, domain.ErrNumericOverflow
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/options/o1/quote", nil)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	h.Quote(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMarketHandler_CreateMarket(t *testing.T) {
	svc := &stubMarketService{
		createFn: func(_ context.Context, question string, liquidityParam int64, labels []string) (domain.Market, []domain.Option, error) {
			assert.Equal(t, "Will it rain tomorrow?", question)
			assert.Equal(t, int64(2000), liquidityParam)
			require.Len(t, labels, 2)

			m := domain.Market{ID: "m1", Question: question, LiquidityParam: liquidityParam, Status: domain.MarketStatusOpen}
			opts := []domain.Option{
				{ID: "o1", MarketID: "m1", Label: labels[0]},
				{ID: "o2", MarketID: "m1", Label: labels[1]},
			}
			return m, opts, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := `{"question":"Will it rain tomorrow?","liquidity_param":2000,"options":["Yes city A","Yes city B"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Market  marketJSON   `json:"market"`
		Options []optionJSON `json:"options"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.Market.ID)
	assert.Len(t, resp.Options, 2)
}

func TestMarketHandler_CreateMarket_InvalidLiquidity(t *testing.T) {
	svc := &stubMarketService{
		createFn: func(context.Context, string, int64, []string) (domain.Market, []domain.Option, error) {
			return domain.Market{}, nil, domain.ErrInvalidLiquidity
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := `{"question":"q","liquidity_param":0,"options":["a"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketHandler_ResolveOption_BadDeadline(t *testing.T) {
	called := false
	svc := &stubMarketService{
		resolveFn: func(context.Context, string, domain.Side, *time.Time) error {
			called = true
			return nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := `{"winning_side":"yes","dispute_deadline":"next tuesday"}`
	req := httptest.NewRequest(http.MethodPost, "/api/options/o1/resolve", strings.NewReader(body))
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	h.ResolveOption(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestMarketHandler_ResolveOption_AlreadyResolved(t *testing.T) {
	svc := &stubMarketService{
		resolveFn: func(_ context.Context, optionID string, winning domain.Side, deadline *time.Time) error {
			assert.Equal(t, "o1", optionID)
			assert.Equal(t, domain.SideYes, winning)
			require.NotNil(t, deadline)
			return domain.ErrAlreadyResolved
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := `{"winning_side":"yes","dispute_deadline":"2026-09-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/options/o1/resolve", strings.NewReader(body))
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	h.ResolveOption(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
