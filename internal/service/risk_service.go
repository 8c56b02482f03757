package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omenmarkets/core/internal/domain"
	"github.com/omenmarkets/core/internal/pricing"
)

// circuitBreakerWindow is the trailing window the circuit breaker sums trade
// volume over. The boundary is inclusive: created_at >= now - window counts.
const circuitBreakerWindow = time.Hour

// AuditRecorder appends suspicious-trade records without ever failing the
// caller. Satisfied by audit.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, rec domain.SuspiciousTradeRecord)
}

// RiskConfig holds the enforcement toggles for the risk pipeline. All checks
// always run and always record violations; a toggle only controls whether a
// flagged trade is rejected. Every toggle defaults to off: the engine
// observes, it does not block. That is a deliberate product decision, not a
// missing feature.
type RiskConfig struct {
	EnforceSuspiciousTrade bool
	EnforceCircuitBreaker  bool
	EnforceVolatility      bool
}

// TradeContext carries everything one risk evaluation needs: the candidate
// request, the option's current (locked) share counts, the market's liquidity
// parameter, and the per-market thresholds. Thresholds are passed in
// explicitly rather than read from ambient state so evaluations stay pure
// against a snapshot.
type TradeContext struct {
	Request        domain.TradeRequest
	Option         domain.Option
	LiquidityParam int64
	Limits         domain.RiskLimits
}

// RiskService is the single risk entry point run before every trade executes.
// It composes three checks in order: the suspicious-trade threshold, the
// rolling-volume circuit breaker, and the volatility guard.
type RiskService struct {
	trades  domain.TradeStore
	auditor AuditRecorder
	cfg     RiskConfig
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewRiskService creates a RiskService with all required dependencies.
func NewRiskService(trades domain.TradeStore, auditor AuditRecorder, cfg RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		trades:  trades,
		auditor: auditor,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "risk_service")),
		nowFn:   time.Now,
	}
}

// PerformRiskChecks evaluates one trade against the risk pipeline and returns
// the aggregate decision. It fails fast with domain.ErrConfigurationMissing
// when the market's thresholds are absent; an audit-write problem never
// surfaces here (the recorder retries in the background).
func (s *RiskService) PerformRiskChecks(ctx context.Context, tc TradeContext) (domain.RiskDecision, error) {
	if !tc.Limits.Configured() {
		return domain.RiskDecision{}, fmt.Errorf("risk_service: market %s: %w",
			tc.Request.MarketID, domain.ErrConfigurationMissing)
	}

	decision := domain.RiskDecision{Passed: true}

	// Check 1: suspicious-trade threshold.
	if flagged := s.checkTradeSize(ctx, tc); flagged {
		decision.Flags = append(decision.Flags, domain.ReasonSuspiciousTradeThreshold)
		if s.cfg.EnforceSuspiciousTrade {
			decision.Passed = false
			return decision, nil
		}
	}

	// Check 2: rolling-volume circuit breaker.
	if flagged := s.checkCircuitBreaker(ctx, tc); flagged {
		decision.Flags = append(decision.Flags, domain.ReasonCircuitBreaker)
		if s.cfg.EnforceCircuitBreaker {
			decision.Passed = false
			return decision, nil
		}
	}

	// Check 3: volatility guard, only when share state and liquidity are
	// available.
	if tc.LiquidityParam > 0 {
		impact, err := s.checkVolatility(tc)
		if err != nil {
			return domain.RiskDecision{}, err
		}
		decision.CurrentPrice = impact.CurrentPrice
		decision.NewPrice = impact.NewPrice
		decision.VolatilityBps = impact.VolatilityBps
		decision.AdjustedThreshold = impact.AdjustedThresholdBps
		if s.cfg.EnforceVolatility && !impact.WithinThreshold {
			decision.Passed = false
			return decision, nil
		}
	}

	return decision, nil
}

// checkTradeSize flags trades whose total amount reaches the per-market
// suspicious-trade threshold. The risk score grows linearly with the overage:
// min(100, floor(amount / threshold * 50)), so a trade at exactly the
// threshold scores 50 and one at double the threshold maxes out.
func (s *RiskService) checkTradeSize(ctx context.Context, tc TradeContext) bool {
	threshold := tc.Limits.SuspiciousTradeThreshold
	amount := tc.Request.TotalAmount
	if amount.LessThan(threshold) {
		return false
	}

	score := amount.Mul(decimal.NewFromInt(50)).Div(threshold).IntPart()
	if score > 100 {
		score = 100
	}

	s.logger.WarnContext(ctx, "risk_service: large trade flagged",
		slog.String("user_id", tc.Request.UserID),
		slog.String("market_id", tc.Request.MarketID),
		slog.String("amount", amount.String()),
		slog.String("threshold", threshold.String()),
		slog.Int64("risk_score", score),
	)

	s.auditor.Record(ctx, s.newRecord(tc, domain.ReasonSuspiciousTradeThreshold, int(score), map[string]any{
		"threshold": threshold.String(),
	}))
	return true
}

// checkCircuitBreaker flags the trade when the market's trailing one-hour
// traded volume has reached the circuit-breaker threshold. The aggregate read
// is point-in-time and tolerates slight staleness: its consequence is
// observation only. A store error here is logged and the check skipped rather
// than blocking the trade.
func (s *RiskService) checkCircuitBreaker(ctx context.Context, tc TradeContext) bool {
	since := s.nowFn().Add(-circuitBreakerWindow)
	sum, err := s.trades.SumAmountSince(ctx, tc.Request.MarketID, since)
	if err != nil {
		s.logger.WarnContext(ctx, "risk_service: rolling volume query failed, skipping circuit breaker",
			slog.String("market_id", tc.Request.MarketID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if sum.LessThan(tc.Limits.CircuitBreakerThreshold) {
		return false
	}

	s.logger.WarnContext(ctx, "risk_service: circuit breaker tripped",
		slog.String("market_id", tc.Request.MarketID),
		slog.String("rolling_volume", sum.String()),
		slog.String("threshold", tc.Limits.CircuitBreakerThreshold.String()),
	)

	s.auditor.Record(ctx, s.newRecord(tc, domain.ReasonCircuitBreaker, 100, map[string]any{
		"rolling_volume": sum.String(),
		"threshold":      tc.Limits.CircuitBreakerThreshold.String(),
		"window_seconds": int64(circuitBreakerWindow / time.Second),
	}))
	return true
}

// checkVolatility delegates to the pricing package's impact evaluation with
// buy- or sell-specific deltas.
func (s *RiskService) checkVolatility(tc TradeContext) (pricing.Impact, error) {
	var deltaYes, deltaNo int64
	if tc.Request.Side == domain.SideYes {
		deltaYes = tc.Request.Quantity
	} else {
		deltaNo = tc.Request.Quantity
	}
	isSell := tc.Request.Direction == domain.TradeDirectionSell

	impact, err := pricing.EvaluateImpact(
		tc.Option.YesShares, tc.Option.NoShares,
		deltaYes, deltaNo,
		tc.LiquidityParam,
		tc.Limits.MaxMarketVolatilityThresholdBps,
		isSell,
	)
	if err != nil {
		return pricing.Impact{}, fmt.Errorf("risk_service: volatility check option %s: %w",
			tc.Request.OptionID, err)
	}
	return impact, nil
}

func (s *RiskService) newRecord(tc TradeContext, reason domain.DetectionReason, score int, extra map[string]any) domain.SuspiciousTradeRecord {
	metadata := map[string]any{
		"quantity":        tc.Request.Quantity,
		"price_per_share": tc.Request.PricePerShare.String(),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	return domain.SuspiciousTradeRecord{
		ID:              uuid.New().String(),
		UserID:          tc.Request.UserID,
		MarketID:        tc.Request.MarketID,
		OptionID:        tc.Request.OptionID,
		Direction:       tc.Request.Direction,
		Side:            tc.Request.Side,
		Quantity:        tc.Request.Quantity,
		TotalAmount:     tc.Request.TotalAmount,
		DetectionReason: reason,
		RiskScore:       score,
		Metadata:        metadata,
		CreatedAt:       s.nowFn().UTC(),
	}
}
