package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderItem struct {
	SKU      string
	Quantity int
}

// CreateOrder is a request to place an order, accepted asynchronously.
type CreateOrder struct {
	CustomerID      string
	Items           []CreateOrderItem
	CouponCode      string
	PaymentMethodID string
	Installments    int
	ShippingCompany string
	ShippingType    string
	RequestID       string
}

type OrderItem struct {
	OrderItemID string
	SKU         string
	Quantity    int
	UnitAmount  decimal.Decimal
	TotalAmount decimal.Decimal
}

type Address struct {
	Street     string
	Number     string
	Complement string
	City       string
	State      string
	ZipCode    string
}

type Coupon struct {
	Code       string
	Percentage decimal.Decimal
}

type Payment struct {
	PaymentID       string
	PaymentMethodID string
	Installments    int
	Tax             decimal.Decimal
}

type Shipping struct {
	ShippingID      string
	ShippingCompany string
	ShippingType    string
	Cost            decimal.Decimal
}

// Order is the current state of an order as rebuilt from its history.
type Order struct {
	ID              string
	Version         int64
	CustomerID      string
	Status          string
	TotalAmount     decimal.Decimal
	Items           []OrderItem
	ShippingAddress Address
	Coupon          *Coupon
	Payment         Payment
	Shipping        Shipping
	DeliveredAt     *time.Time
}
