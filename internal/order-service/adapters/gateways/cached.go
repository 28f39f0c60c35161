package gateways

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/cache"
)

// CachedCoupons reads coupon lookups through the cache.
type CachedCoupons struct {
	next   app.CouponGateway
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCoupons(next app.CouponGateway, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedCoupons {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCoupons{next: next, cache: c, ttl: ttl, logger: logger}
}

func (g *CachedCoupons) ApplyCoupon(ctx context.Context, code string) (app.CouponDetails, error) {
	return readThrough(ctx, g.cache, g.logger, g.cache.GenerateKey("coupon", code), g.ttl, func() (app.CouponDetails, error) {
		return g.next.ApplyCoupon(ctx, code)
	})
}

// CachedCustomers reads customer lookups through the cache.
type CachedCustomers struct {
	next   app.CustomerGateway
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCustomers(next app.CustomerGateway, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedCustomers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCustomers{next: next, cache: c, ttl: ttl, logger: logger}
}

func (g *CachedCustomers) CustomerDetails(ctx context.Context, customerID string) (app.CustomerDetails, error) {
	return readThrough(ctx, g.cache, g.logger, g.cache.GenerateKey("customer", customerID), g.ttl, func() (app.CustomerDetails, error) {
		return g.next.CustomerDetails(ctx, customerID)
	})
}

// readThrough serves key from the cache, falling back to load on a miss. Cache
// failures are logged and never fail the lookup.
func readThrough[T any](ctx context.Context, c cache.Cache, logger *slog.Logger, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var value T
	raw, err := c.Get(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &value); err == nil {
			return value, nil
		}
		logger.WarnContext(ctx, "cache entry discarded", "key", key)
	}

	value, err = load()
	if err != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.Set(ctx, key, encoded, ttl); err != nil {
		logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return value, nil
}
