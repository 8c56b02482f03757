package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/pricing"
)

// tradeLockTTL bounds how long a trade holds its per-option lock.
const tradeLockTTL = 10 * time.Second

// TradeService executes trades. Each trade's full cycle — read current
// shares, run the risk pipeline, mutate shares and positions — happens inside
// one transaction with the option row locked, so concurrent trades on the
// same option are strictly serialized while trades on different options
// proceed in parallel. A per-option distributed lock in front of the
// transaction keeps contending requests from piling up on the row lock across
// replicas.
type TradeService struct {
	markets   domain.MarketStore
	trades    domain.TradeStore
	positions domain.PositionStore
	tx        domain.TxRunner
	locks     domain.LockManager // may be nil
	prices    domain.PriceCache  // may be nil
	bus       domain.SignalBus   // may be nil
	risk      *RiskService
	limits    domain.RiskLimits
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewTradeService creates a TradeService with all required dependencies.
// limits are the deployment's per-market risk thresholds, loaded once from
// configuration.
func NewTradeService(
	markets domain.MarketStore,
	trades domain.TradeStore,
	positions domain.PositionStore,
	tx domain.TxRunner,
	locks domain.LockManager,
	prices domain.PriceCache,
	bus domain.SignalBus,
	risk *RiskService,
	limits domain.RiskLimits,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:   markets,
		trades:    trades,
		positions: positions,
		tx:        tx,
		locks:     locks,
		prices:    prices,
		bus:       bus,
		risk:      risk,
		limits:    limits,
		logger:    logger.With(slog.String("component", "trade_service")),
		nowFn:     time.Now,
	}
}

// ExecuteTrade validates, risk-checks, and executes one trade request. It
// returns the risk decision alongside the executed trade; when the decision
// rejects the trade (enforcement mode only) the error is
// domain.ErrTradeRejected and nothing is mutated.
func (s *TradeService) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.RiskDecision, domain.Trade, error) {
	if err := req.Validate(); err != nil {
		return domain.RiskDecision{}, domain.Trade{}, err
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "option:"+req.OptionID, tradeLockTTL)
		if err != nil {
			return domain.RiskDecision{}, domain.Trade{}, fmt.Errorf("trade_service: lock option %s: %w",
				req.OptionID, err)
		}
		defer unlock()
	}

	var (
		decision domain.RiskDecision
		executed domain.Trade
		newYes   int64
		newNo    int64
		liqB     int64
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		opt, err := s.markets.GetOptionForUpdate(ctx, req.OptionID)
		if err != nil {
			return fmt.Errorf("trade_service: get option %s: %w", req.OptionID, err)
		}
		if opt.MarketID != req.MarketID {
			return domain.ErrValidation
		}
		if opt.IsResolved {
			return domain.ErrAlreadyResolved
		}

		market, err := s.markets.GetMarket(ctx, opt.MarketID)
		if err != nil {
			return fmt.Errorf("trade_service: get market %s: %w", opt.MarketID, err)
		}
		liqB = market.LiquidityParam

		if err := s.validateSell(ctx, req, opt); err != nil {
			return err
		}

		decision, err = s.risk.PerformRiskChecks(ctx, TradeContext{
			Request:        req,
			Option:         opt,
			LiquidityParam: market.LiquidityParam,
			Limits:         s.limits,
		})
		if err != nil {
			return err
		}
		if !decision.Passed {
			return domain.ErrTradeRejected
		}

		newYes, newNo = applyDeltas(opt, req)
		if err := s.markets.UpdateOptionShares(ctx, opt.ID, newYes, newNo); err != nil {
			return fmt.Errorf("trade_service: update shares %s: %w", opt.ID, err)
		}

		executed = domain.Trade{
			ID:            uuid.New().String(),
			UserID:        req.UserID,
			MarketID:      req.MarketID,
			OptionID:      req.OptionID,
			Direction:     req.Direction,
			Side:          req.Side,
			Quantity:      req.Quantity,
			TotalAmount:   req.TotalAmount,
			PricePerShare: req.PricePerShare,
			CreatedAt:     s.nowFn().UTC(),
		}
		if err := s.trades.Insert(ctx, executed); err != nil {
			return fmt.Errorf("trade_service: insert trade: %w", err)
		}

		return s.applyToPosition(ctx, req)
	})
	if err != nil {
		return decision, domain.Trade{}, err
	}

	s.publishPrice(ctx, req.OptionID, newYes, newNo, liqB)

	s.logger.InfoContext(ctx, "trade_service: trade executed",
		slog.String("trade_id", executed.ID),
		slog.String("user_id", req.UserID),
		slog.String("option_id", req.OptionID),
		slog.String("direction", string(req.Direction)),
		slog.String("side", string(req.Side)),
		slog.Int64("quantity", req.Quantity),
		slog.String("amount", req.TotalAmount.String()),
	)
	return decision, executed, nil
}

// History returns a market's executed trades with pagination.
func (s *TradeService) History(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades %s: %w", marketID, err)
	}
	return trades, nil
}

// validateSell rejects sells that exceed either the user's holdings or the
// option's outstanding shares, so the share subtraction downstream can never
// go negative.
func (s *TradeService) validateSell(ctx context.Context, req domain.TradeRequest, opt domain.Option) error {
	if req.Direction != domain.TradeDirectionSell {
		return nil
	}

	if opt.SharesOn(req.Side) < req.Quantity {
		return domain.ErrValidation
	}

	pos, err := s.positions.Get(ctx, req.UserID, req.OptionID)
	if err != nil {
		if err == domain.ErrPositionNotFound {
			return domain.ErrValidation
		}
		return fmt.Errorf("trade_service: get position %s/%s: %w", req.UserID, req.OptionID, err)
	}
	if pos.SharesOn(req.Side) < req.Quantity {
		return domain.ErrValidation
	}
	return nil
}

// applyToPosition creates or updates the user's position for this option.
func (s *TradeService) applyToPosition(ctx context.Context, req domain.TradeRequest) error {
	pos, err := s.positions.Get(ctx, req.UserID, req.OptionID)
	if err != nil {
		if err != domain.ErrPositionNotFound {
			return fmt.Errorf("trade_service: get position %s/%s: %w", req.UserID, req.OptionID, err)
		}
		pos = domain.Position{
			ID:       uuid.New().String(),
			UserID:   req.UserID,
			OptionID: req.OptionID,
		}
	}

	qty := req.Quantity
	if req.Direction == domain.TradeDirectionSell {
		qty = -qty
	}
	if req.Side == domain.SideYes {
		pos.YesShares += qty
	} else {
		pos.NoShares += qty
	}
	if pos.YesShares < 0 || pos.NoShares < 0 {
		return domain.ErrValidation
	}

	if err := s.positions.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("trade_service: upsert position %s/%s: %w", req.UserID, req.OptionID, err)
	}
	return nil
}

// applyDeltas returns the option's post-trade share counts.
func applyDeltas(opt domain.Option, req domain.TradeRequest) (yes, no int64) {
	qty := req.Quantity
	if req.Direction == domain.TradeDirectionSell {
		qty = -qty
	}
	yes, no = opt.YesShares, opt.NoShares
	if req.Side == domain.SideYes {
		yes += qty
	} else {
		no += qty
	}
	return yes, no
}

// publishPrice refreshes the price cache and announces the new quote on the
// signal bus. Both are best-effort: a cache or bus hiccup never unwinds an
// executed trade.
func (s *TradeService) publishPrice(ctx context.Context, optionID string, yes, no, b int64) {
	priceYes, err := pricing.Price(yes, no, b)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: post-trade price computation failed",
			slog.String("option_id", optionID),
			slog.String("error", err.Error()),
		)
		return
	}

	now := s.nowFn()
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, optionID, priceYes, now); err != nil {
			s.logger.WarnContext(ctx, "trade_service: price cache update failed",
				slog.String("option_id", optionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":     "price_update",
			"option_id": optionID,
			"price_yes": priceYes,
			"price_no":  pricing.Precision - priceYes,
			"timestamp": now.UTC().Format(time.RFC3339),
		})
		if err := s.bus.Publish(ctx, "prices", payload); err != nil {
			s.logger.WarnContext(ctx, "trade_service: publish price failed",
				slog.String("option_id", optionID),
				slog.String("error", err.Error()),
			)
		}
		// Durable copy so late websocket subscribers can backfill recent
		// price points they missed on the pub/sub channel.
		if err := s.bus.StreamAppend(ctx, "prices", payload); err != nil {
			s.logger.WarnContext(ctx, "trade_service: price stream append failed",
				slog.String("option_id", optionID),
				slog.String("error", err.Error()),
			)
		}
	}
}
