package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection indicates whether a trade adds or removes shares.
type TradeDirection string

const (
	TradeDirectionBuy  TradeDirection = "buy"
	TradeDirectionSell TradeDirection = "sell"
)

// Valid reports whether d is a recognised trade direction.
func (d TradeDirection) Valid() bool {
	return d == TradeDirectionBuy || d == TradeDirectionSell
}

// TradeRequest is a user's intent to trade shares on one option side.
// TotalAmount and PricePerShare are in currency units; the request is only
// valid when TotalAmount matches Quantity x PricePerShare within a one-unit
// rounding tolerance and both quantity and amount are strictly positive.
type TradeRequest struct {
	UserID        string
	MarketID      string
	OptionID      string
	Direction     TradeDirection
	Side          Side
	Quantity      int64
	TotalAmount   decimal.Decimal
	PricePerShare decimal.Decimal
}

// amountTolerance is the permitted rounding slack between TotalAmount and
// Quantity x PricePerShare, in currency units.
var amountTolerance = decimal.NewFromInt(1)

// Validate checks the request shape. It returns ErrValidation for any
// malformed field; numeric range checks against the pricing model happen
// later, at the engine boundary.
func (r TradeRequest) Validate() error {
	if r.UserID == "" || r.MarketID == "" || r.OptionID == "" {
		return ErrValidation
	}
	if !r.Direction.Valid() || !r.Side.Valid() {
		return ErrValidation
	}
	if r.Quantity <= 0 || !r.TotalAmount.IsPositive() {
		return ErrValidation
	}
	expected := r.PricePerShare.Mul(decimal.NewFromInt(r.Quantity))
	if r.TotalAmount.Sub(expected).Abs().GreaterThan(amountTolerance) {
		return ErrValidation
	}
	return nil
}

// Trade is an executed trade, persisted for history and for the circuit
// breaker's rolling-volume window.
type Trade struct {
	ID            string
	UserID        string
	MarketID      string
	OptionID      string
	Direction     TradeDirection
	Side          Side
	Quantity      int64
	TotalAmount   decimal.Decimal
	PricePerShare decimal.Decimal
	CreatedAt     time.Time
}
