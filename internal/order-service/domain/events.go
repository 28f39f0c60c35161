package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event discriminators, as carried by the event_type header and column.
const (
	EventTypeOrderCreationInitiated      = "OrderCreationInitiatedEvent"
	EventTypeOrderShippingCostCalculated = "OrderShippingCostCalculatedEvent"
	EventTypeOrderPaymentTaxCalculated   = "OrderPaymentTaxCalculatedEvent"
	EventTypeShippingCostCalculated      = "ShippingCostCalculatedEvent"
	EventTypePaymentTaxCalculated        = "PaymentTaxCalculatedEvent"
)

// Decode targets identify the payload schema a stored event was written with.
const (
	decodeTargetOrderCreationInitiated      = "order.OrderCreationInitiated/v1"
	decodeTargetOrderShippingCostCalculated = "order.OrderShippingCostCalculated/v1"
	decodeTargetOrderPaymentTaxCalculated   = "order.OrderPaymentTaxCalculated/v1"
	decodeTargetShippingCostCalculated      = "shipping.ShippingCostCalculated/v1"
	decodeTargetPaymentTaxCalculated        = "payment.PaymentTaxCalculated/v1"
)

// Event is the closed set of facts known to the order service. Every kind
// embeds EventMeta; UnknownEvent stands for anything the registry cannot
// resolve.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta is the envelope shared by every event kind.
type EventMeta struct {
	AggregateID      string    `json:"aggregateId"`
	EventID          string    `json:"eventId"`
	EventType        string    `json:"eventType"`
	DecodeTarget     string    `json:"decodeTarget"`
	OccurredOn       time.Time `json:"occurredOn"`
	AggregateVersion int64     `json:"aggregateVersion"`
	Who              string    `json:"who"`
	TraceID          string    `json:"traceId"`
}

func (m EventMeta) Meta() EventMeta { return m }

func (EventMeta) isEvent() {}

func newEventMeta(aggregateID OrderID, eventType, decodeTarget string, version int64, who, traceID string) EventMeta {
	return EventMeta{
		AggregateID:      string(aggregateID),
		EventID:          uuid.NewString(),
		EventType:        eventType,
		DecodeTarget:     decodeTarget,
		OccurredOn:       time.Now().UTC(),
		AggregateVersion: version,
		Who:              who,
		TraceID:          traceID,
	}
}

// NewExternalEventMeta stamps the envelope of an inbound fact produced by
// another service (shipping, payment).
func NewExternalEventMeta(aggregateID, eventType string, version int64, who, traceID string) EventMeta {
	target := decodeTargetShippingCostCalculated
	if eventType == EventTypePaymentTaxCalculated {
		target = decodeTargetPaymentTaxCalculated
	}
	return newEventMeta(OrderID(aggregateID), eventType, target, version, who, traceID)
}

// OrderCreationInitiated records a freshly placed order.
type OrderCreationInitiated struct {
	EventMeta
	Status          Status          `json:"status"`
	CustomerID      string          `json:"customerId"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shippingAddress"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Coupon          *Coupon         `json:"coupon,omitempty"`
	PaymentDetails  PaymentDetails  `json:"paymentDetails"`
	ShippingDetails ShippingDetails `json:"shippingDetails"`
}

// OrderShippingCostCalculated records the shipping cost being added to an order.
type OrderShippingCostCalculated struct {
	EventMeta
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentDetails  PaymentDetails  `json:"paymentDetails"`
	ShippingDetails ShippingDetails `json:"shippingDetails"`
}

// OrderPaymentTaxCalculated records the payment tax being added to an order.
type OrderPaymentTaxCalculated struct {
	EventMeta
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentDetails  PaymentDetails  `json:"paymentDetails"`
	ShippingDetails ShippingDetails `json:"shippingDetails"`
}

// ShippingCostCalculated is published by the shipping service.
type ShippingCostCalculated struct {
	EventMeta
	OrderStatus     Status          `json:"orderStatus"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress Address         `json:"shippingAddress"`
	ShippingDetails ShippingDetails `json:"shippingDetails"`
}

// PaymentTaxCalculated is published by the payment service.
type PaymentTaxCalculated struct {
	EventMeta
	OrderStatus    Status          `json:"orderStatus"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	PaymentDetails PaymentDetails  `json:"paymentDetails"`
}

// UnknownEvent carries a payload whose discriminator is not registered.
type UnknownEvent struct {
	EventMeta
	Payload []byte `json:"-"`
}
