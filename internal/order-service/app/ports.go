package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
)

// EventStore persists and replays order histories.
type EventStore interface {
	Save(ctx context.Context, order *domain.Order) error
	LoadEvents(ctx context.Context, id domain.OrderID) ([]domain.Event, error)
}

type CouponDetails struct {
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
	Valid      bool            `json:"valid"`
}

type CouponGateway interface {
	ApplyCoupon(ctx context.Context, code string) (CouponDetails, error)
}

type CustomerAddress struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zipCode"`
}

type CustomerDetails struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Address CustomerAddress `json:"address"`
}

type CustomerGateway interface {
	CustomerDetails(ctx context.Context, customerID string) (CustomerDetails, error)
}

type ProductDetails struct {
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ProductGateway may return fewer products than requested; missing skus are
// unknown products.
type ProductGateway interface {
	ProductsBySKUs(ctx context.Context, skus []string) ([]ProductDetails, error)
}
