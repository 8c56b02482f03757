package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omenmarkets/core/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each option's
// latest LMSR yes-price is stored at key "price:{optionID}" with fields
// "price_yes" (fixed-point, pricing.Precision scale) and "ts" (Unix
// nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(optionID string) string {
	return "price:" + optionID
}

// SetPrice stores the latest yes-price and timestamp for an option.
func (pc *PriceCache) SetPrice(ctx context.Context, optionID string, priceYes int64, ts time.Time) error {
	fields := map[string]interface{}{
		"price_yes": strconv.FormatInt(priceYes, 10),
		"ts":        strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(optionID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", optionID, err)
	}
	return nil
}

// GetPrice retrieves the latest yes-price and timestamp for an option.
// It returns domain.ErrNotFound when no price has been cached yet.
func (pc *PriceCache) GetPrice(ctx context.Context, optionID string) (int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(optionID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", optionID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price_yes"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", optionID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", optionID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
