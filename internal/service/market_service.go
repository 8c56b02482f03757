package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/pricing"
)

// MarketDefaults are fallbacks applied when a request leaves a field unset:
// the liquidity parameter for new markets and the dispute window appended to
// resolutions that carry no explicit deadline. A zero DisputeWindow makes
// winnings claimable immediately after resolution.
type MarketDefaults struct {
	LiquidityParam int64
	DisputeWindow  time.Duration
}

// MarketService handles market and option reads, quoting, and resolution
// ingestion. Market listing and resolution are driven by external systems;
// this service records their effects so the trade and settlement paths can
// read them.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache // may be nil
	prices   domain.PriceCache  // may be nil
	bus      domain.SignalBus   // may be nil
	defaults MarketDefaults
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	defaults MarketDefaults,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		cache:    cache,
		prices:   prices,
		bus:      bus,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "market_service")),
		nowFn:    time.Now,
	}
}

// CreateMarket lists a new market with one option per label. The liquidity
// parameter must be positive and is fixed for the life of the market; when
// the request leaves it at zero the configured default applies.
func (s *MarketService) CreateMarket(ctx context.Context, question string, liquidityParam int64, labels []string) (domain.Market, []domain.Option, error) {
	if question == "" || len(labels) == 0 {
		return domain.Market{}, nil, domain.ErrValidation
	}
	if liquidityParam == 0 {
		liquidityParam = s.defaults.LiquidityParam
	}
	if liquidityParam <= 0 {
		return domain.Market{}, nil, domain.ErrInvalidLiquidity
	}

	market := domain.Market{
		ID:             uuid.New().String(),
		Question:       question,
		LiquidityParam: liquidityParam,
		Status:         domain.MarketStatusOpen,
	}
	if err := s.markets.CreateMarket(ctx, market); err != nil {
		return domain.Market{}, nil, fmt.Errorf("market_service: create market: %w", err)
	}

	options := make([]domain.Option, 0, len(labels))
	for _, label := range labels {
		opt := domain.Option{
			ID:       uuid.New().String(),
			MarketID: market.ID,
			Label:    label,
		}
		if err := s.markets.CreateOption(ctx, opt); err != nil {
			return domain.Market{}, nil, fmt.Errorf("market_service: create option %q: %w", label, err)
		}
		options = append(options, opt)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", market.ID),
		slog.Int64("liquidity_param", liquidityParam),
		slog.Int("options", len(options)),
	)
	return market, options, nil
}

// GetMarket returns a market, reading through the cache when available.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets with pagination.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListMarkets(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// GetOption returns a single option.
func (s *MarketService) GetOption(ctx context.Context, id string) (domain.Option, error) {
	opt, err := s.markets.GetOption(ctx, id)
	if err != nil {
		return domain.Option{}, fmt.Errorf("market_service: get option %s: %w", id, err)
	}
	return opt, nil
}

// ListOptions returns all options of a market.
func (s *MarketService) ListOptions(ctx context.Context, marketID string) ([]domain.Option, error) {
	options, err := s.markets.ListOptions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: list options %s: %w", marketID, err)
	}
	return options, nil
}

// Quote returns the current LMSR yes-price for an option and refreshes the
// price cache.
func (s *MarketService) Quote(ctx context.Context, optionID string) (priceYes int64, err error) {
	opt, err := s.markets.GetOption(ctx, optionID)
	if err != nil {
		return 0, fmt.Errorf("market_service: get option %s: %w", optionID, err)
	}
	market, err := s.GetMarket(ctx, opt.MarketID)
	if err != nil {
		return 0, err
	}

	priceYes, err = pricing.Price(opt.YesShares, opt.NoShares, market.LiquidityParam)
	if err != nil {
		return 0, fmt.Errorf("market_service: quote option %s: %w", optionID, err)
	}

	if s.prices != nil {
		if cacheErr := s.prices.SetPrice(ctx, optionID, priceYes, time.Now()); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: price cache update failed",
				slog.String("option_id", optionID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return priceYes, nil
}

// ResolveOption records an external resolution event: the winning side and an
// optional dispute deadline. When the deadline is nil the configured dispute
// window applies; with a zero window, winnings are claimable immediately.
// Re-resolving an option fails with domain.ErrAlreadyResolved.
func (s *MarketService) ResolveOption(ctx context.Context, optionID string, winning domain.Side, disputeDeadline *time.Time) error {
	if !winning.Valid() {
		return domain.ErrValidation
	}
	if disputeDeadline == nil && s.defaults.DisputeWindow > 0 {
		d := s.nowFn().Add(s.defaults.DisputeWindow)
		disputeDeadline = &d
	}

	opt, err := s.markets.GetOption(ctx, optionID)
	if err != nil {
		return fmt.Errorf("market_service: get option %s: %w", optionID, err)
	}

	if err := s.markets.ResolveOption(ctx, optionID, winning, disputeDeadline); err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("market_service: resolve option %s: %w", optionID, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, opt.MarketID); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", opt.MarketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":        "option_resolved",
			"option_id":    optionID,
			"market_id":    opt.MarketID,
			"winning_side": winning,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
		if pubErr := s.bus.Publish(ctx, "risk_alerts", payload); pubErr != nil {
			s.logger.WarnContext(ctx, "market_service: publish resolution failed",
				slog.String("option_id", optionID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: option resolved",
		slog.String("option_id", optionID),
		slog.String("winning_side", string(winning)),
	)
	return nil
}
