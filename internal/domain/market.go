package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Side identifies one of the two outcomes of a binary option.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two recognised sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is a binary-outcome prediction market priced by LMSR. The liquidity
// parameter b controls how much the price moves per unit of shares traded.
type Market struct {
	ID             string
	Question       string
	LiquidityParam int64 // b, in share units
	Status         MarketStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Option is a single yes/no outcome of a market. Share counts are integer
// counts of the smallest share unit and only move through trade execution.
type Option struct {
	ID              string
	MarketID        string
	Label           string
	YesShares       int64
	NoShares        int64
	IsResolved      bool
	WinningSide     Side       // empty until resolution
	DisputeDeadline *time.Time // nil means claimable immediately after resolution
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SharesOn returns the outstanding share count on the given side.
func (o Option) SharesOn(side Side) int64 {
	if side == SideYes {
		return o.YesShares
	}
	return o.NoShares
}

// Claimable reports whether winnings on this option can be claimed at the
// given instant: the option is resolved and any dispute window has elapsed.
func (o Option) Claimable(now time.Time) bool {
	if !o.IsResolved || !o.WinningSide.Valid() {
		return false
	}
	if o.DisputeDeadline == nil {
		return true
	}
	return !now.Before(*o.DisputeDeadline)
}
