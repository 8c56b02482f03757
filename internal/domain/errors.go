package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("invalid request parameters")
	ErrConfigurationMissing = errors.New("market configuration missing")
	ErrInvalidLiquidity     = errors.New("invalid liquidity parameter")
	ErrNumericOverflow      = errors.New("share count outside safe numeric range")
	ErrMarketNotResolved    = errors.New("market not resolved")
	ErrDisputeWindowActive  = errors.New("dispute window still active")
	ErrNoWinningShares      = errors.New("no winning shares to claim")
	ErrPositionNotFound     = errors.New("position not found")
	ErrAlreadyResolved      = errors.New("option already resolved")
	ErrTradeRejected        = errors.New("trade rejected by risk controls")
	ErrLockHeld             = errors.New("lock already held")
	ErrRateLimited          = errors.New("rate limited")
)
