package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest LMSR prices per option.
// Prices are fixed-point yes-prices at the pricing.Precision scale.
type PriceCache interface {
	SetPrice(ctx context.Context, optionID string, priceYes int64, ts time.Time) error
	GetPrice(ctx context.Context, optionID string) (priceYes int64, ts time.Time, err error)
}

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Trade execution acquires a lock
// per option; claims acquire a lock per (user, option).
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for engine events
// ("prices" updates and "risk_alerts").
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
