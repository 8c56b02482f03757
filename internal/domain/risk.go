package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DetectionReason identifies which risk check flagged a trade.
type DetectionReason string

const (
	ReasonSuspiciousTradeThreshold DetectionReason = "suspicious_trade_threshold"
	ReasonCircuitBreaker           DetectionReason = "circuit_breaker"
)

// SuspiciousTradeRecord is an immutable audit entry appended whenever a risk
// check flags a trade. Records are created, never mutated.
type SuspiciousTradeRecord struct {
	ID              string
	UserID          string
	MarketID        string
	OptionID        string
	Direction       TradeDirection
	Side            Side
	Quantity        int64
	TotalAmount     decimal.Decimal
	DetectionReason DetectionReason
	RiskScore       int // 0-100
	Metadata        map[string]any
	CreatedAt       time.Time
}

// RiskLimits holds the per-market risk-check thresholds. They are loaded once
// per evaluation by the caller and passed in explicitly so the checks stay
// pure and independently testable.
type RiskLimits struct {
	SuspiciousTradeThreshold        decimal.Decimal
	CircuitBreakerThreshold         decimal.Decimal
	MaxMarketVolatilityThresholdBps int64
}

// Configured reports whether the limits carry usable thresholds.
func (l RiskLimits) Configured() bool {
	return l.SuspiciousTradeThreshold.IsPositive() &&
		l.CircuitBreakerThreshold.IsPositive() &&
		l.MaxMarketVolatilityThresholdBps > 0
}

// RiskDecision is the outcome of running the risk pipeline over one trade.
// It is ephemeral: only the audit records behind it are persisted.
type RiskDecision struct {
	Passed            bool
	CurrentPrice      int64 // fixed-point, pricing.Precision scale
	NewPrice          int64
	VolatilityBps     int64
	AdjustedThreshold int64
	Flags             []DetectionReason
}

// PayoutResult is the amount owed to a user after a successful claim, in the
// market's smallest currency unit (1 winning share = 1 unit).
type PayoutResult struct {
	Amount int64
}
