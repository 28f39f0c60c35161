package gateways

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/cache"
)

func TestProductCatalogKeepsPrices(t *testing.T) {
	ctx := context.Background()
	catalog := NewProductCatalog(nil)

	first, err := catalog.ProductsBySKUs(ctx, []string{"prod_1", "new-sku"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, decimal.RequireFromString("10.00").Equal(first[0].UnitPrice))
	assert.True(t, first[1].UnitPrice.IsPositive())

	again, err := catalog.ProductsBySKUs(ctx, []string{"NEW-SKU"})
	require.NoError(t, err)
	assert.True(t, first[1].UnitPrice.Equal(again[0].UnitPrice))
	assert.Equal(t, "NEW-SKU", again[0].SKU)

	catalog.Set("new-sku", decimal.RequireFromString("3.00"))
	again, err = catalog.ProductsBySKUs(ctx, []string{"new-sku"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.00").Equal(again[0].UnitPrice))
}

func TestStandInServices(t *testing.T) {
	ctx := context.Background()

	coupon, err := NewCouponService(nil).ApplyCoupon(ctx, "ANY")
	require.NoError(t, err)
	assert.True(t, coupon.Valid)
	assert.True(t, decimal.NewFromInt(10).Equal(coupon.Percentage))

	customer, err := NewCustomerService().CustomerDetails(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "customer-1", customer.ID)
	assert.Equal(t, "John Doe", customer.Name)
	assert.NotEmpty(t, customer.Address.ZipCode)
}

type countingCoupons struct {
	calls int
	err   error
}

func (c *countingCoupons) ApplyCoupon(ctx context.Context, code string) (app.CouponDetails, error) {
	c.calls++
	if c.err != nil {
		return app.CouponDetails{}, c.err
	}
	return app.CouponDetails{Code: code, Percentage: decimal.RequireFromString("12.5"), Valid: true}, nil
}

type countingCustomers struct {
	calls int
}

func (c *countingCustomers) CustomerDetails(ctx context.Context, id string) (app.CustomerDetails, error) {
	c.calls++
	return app.CustomerDetails{ID: id, Name: "Jane"}, nil
}

func newTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCache(client, "order"), srv
}

func TestCachedCoupons(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t)
	next := &countingCoupons{}
	coupons := NewCachedCoupons(next, c, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := coupons.ApplyCoupon(ctx, "TEN")
		require.NoError(t, err)
		assert.Equal(t, "TEN", got.Code)
		assert.True(t, decimal.RequireFromString("12.5").Equal(got.Percentage))
	}
	assert.Equal(t, 1, next.calls)
	assert.True(t, srv.Exists("order:coupon:TEN"))

	srv.FastForward(2 * time.Minute)
	_, err := coupons.ApplyCoupon(ctx, "TEN")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedCouponsDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t)
	next := &countingCoupons{err: errors.New("coupon service down")}
	coupons := NewCachedCoupons(next, c, time.Minute, nil)

	_, err := coupons.ApplyCoupon(ctx, "TEN")
	require.Error(t, err)
	assert.False(t, srv.Exists("order:coupon:TEN"))
}

func TestCachedCustomersSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t)
	next := &countingCustomers{}
	customers := NewCachedCustomers(next, c, time.Minute, nil)

	_, err := customers.CustomerDetails(ctx, "customer-1")
	require.NoError(t, err)
	_, err = customers.CustomerDetails(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	srv.Close()
	got, err := customers.CustomerDetails(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, 2, next.calls)
}

func TestCachedCustomersDiscardsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set("order:customer:customer-1", "{not json"))
	next := &countingCustomers{}

	got, err := NewCachedCustomers(next, c, time.Minute, nil).CustomerDetails(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, 1, next.calls)
}
