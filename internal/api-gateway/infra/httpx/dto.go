package httpx

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	CustomerID      string               `json:"customerId"`
	Items           []CreateOrderItemDTO `json:"items"`
	CouponCode      string               `json:"couponCode,omitempty"`
	PaymentMethodID string               `json:"paymentMethodId"`
	Installments    int                  `json:"installments"`
	ShippingCompany string               `json:"shippingCompany"`
	ShippingType    string               `json:"shippingType"`
}

type CreateOrderItemDTO struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type EventRequest struct {
	Type    string           `json:"type"`
	Topic   string           `json:"topic"`
	Payload *EventPayloadDTO `json:"payload"`
}

type EventPayloadDTO struct {
	OrderID          string          `json:"orderId"`
	OrderStatus      string          `json:"orderStatus"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	AggregateVersion int64           `json:"aggregateVersion"`
	Who              string          `json:"who"`
	Street           string          `json:"street"`
	Number           string          `json:"number"`
	Complement       string          `json:"complement"`
	City             string          `json:"city"`
	State            string          `json:"state"`
	ZipCode          string          `json:"zipCode"`
	ShippingCompany  string          `json:"shippingCompany"`
	ShippingType     string          `json:"shippingType"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	PaymentMethodID  string          `json:"paymentMethodId"`
	Installments     int             `json:"installments"`
	PaymentTax       decimal.Decimal `json:"paymentTax"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	Version         int64               `json:"version"`
	CustomerID      string              `json:"customerId"`
	Status          string              `json:"status"`
	TotalAmount     string              `json:"totalAmount"`
	Items           []OrderItemResponse `json:"items"`
	ShippingAddress AddressResponse     `json:"shippingAddress"`
	Coupon          *CouponResponse     `json:"coupon,omitempty"`
	PaymentDetails  PaymentResponse     `json:"paymentDetails"`
	ShippingDetails ShippingResponse    `json:"shippingDetails"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty"`
}

type OrderItemResponse struct {
	OrderItemID string `json:"orderItemId"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitAmount  string `json:"unitAmount"`
	TotalAmount string `json:"totalAmount"`
}

type AddressResponse struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zipCode"`
}

type CouponResponse struct {
	Code       string `json:"code"`
	Percentage string `json:"percentage"`
}

type PaymentResponse struct {
	PaymentID       string `json:"paymentId,omitempty"`
	PaymentMethodID string `json:"paymentMethodId"`
	Installments    int    `json:"installments"`
	Tax             string `json:"tax"`
}

type ShippingResponse struct {
	ShippingID      string `json:"shippingId,omitempty"`
	ShippingCompany string `json:"shippingCompany"`
	ShippingType    string `json:"shippingType"`
	Cost            string `json:"cost"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string        `json:"message"`
	Errors  []ErrorDetail `json:"errors"`
}

type ErrorDetail struct {
	Message string `json:"message"`
}
