// Package gateways holds the order service's view of the coupon, customer and
// product services. The implementations are local stand-ins until those
// services exist.
package gateways

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
)

// CouponService accepts every coupon at a flat 10% discount.
type CouponService struct {
	logger *slog.Logger
}

func NewCouponService(logger *slog.Logger) *CouponService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CouponService{logger: logger}
}

func (s *CouponService) ApplyCoupon(ctx context.Context, code string) (app.CouponDetails, error) {
	s.logger.DebugContext(ctx, "coupon applied", "coupon_code", code)
	return app.CouponDetails{
		Code:       code,
		Percentage: decimal.NewFromInt(10),
		Valid:      true,
	}, nil
}

// CustomerService returns the same customer profile for every id.
type CustomerService struct{}

func NewCustomerService() *CustomerService {
	return &CustomerService{}
}

func (s *CustomerService) CustomerDetails(ctx context.Context, customerID string) (app.CustomerDetails, error) {
	return app.CustomerDetails{
		ID:    customerID,
		Name:  "John Doe",
		Email: "john.doe@random.com",
		Address: app.CustomerAddress{
			Street:     "rua sem nome",
			Number:     "123",
			Complement: "apto 123",
			City:       "city sem nome",
			State:      "estado sem nome",
			ZipCode:    "94850300",
		},
	}, nil
}

// ProductCatalog prices any sku. Unseen skus get a random price between 0.01
// and 100.00 that stays fixed for the life of the catalog.
type ProductCatalog struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	logger *slog.Logger
}

func NewProductCatalog(logger *slog.Logger) *ProductCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductCatalog{
		prices: map[string]decimal.Decimal{
			"prod_1": decimal.RequireFromString("10.00"),
			"prod_2": decimal.RequireFromString("25.50"),
			"prod_3": decimal.RequireFromString("4.99"),
		},
		logger: logger,
	}
}

// Set overrides the price of a sku.
func (c *ProductCatalog) Set(sku string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[strings.ToLower(sku)] = price
}

func (c *ProductCatalog) ProductsBySKUs(ctx context.Context, skus []string) ([]app.ProductDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	products := make([]app.ProductDetails, 0, len(skus))
	for _, sku := range skus {
		key := strings.ToLower(sku)
		price, ok := c.prices[key]
		if !ok {
			price = decimal.New(rand.Int64N(10000)+1, -2)
			c.prices[key] = price
			c.logger.DebugContext(ctx, "product priced", "sku", sku, "unit_price", price.StringFixed(2))
		}
		products = append(products, app.ProductDetails{SKU: sku, UnitPrice: price})
	}
	return products, nil
}
