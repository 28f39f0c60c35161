package entity

import "github.com/shopspring/decimal"

// ExternalEvent simulates a fact published by another service.
type ExternalEvent struct {
	Type      string
	Topic     string
	Payload   *ExternalEventPayload
	RequestID string
}

// ExternalEventPayload carries the fields of both supported event types;
// each type reads the ones it needs.
type ExternalEventPayload struct {
	OrderID          string
	OrderStatus      string
	TotalAmount      decimal.Decimal
	AggregateVersion int64
	Who              string

	Street     string
	Number     string
	Complement string
	City       string
	State      string
	ZipCode    string

	ShippingCompany string
	ShippingType    string
	ShippingCost    decimal.Decimal

	PaymentMethodID string
	Installments    int
	PaymentTax      decimal.Decimal
}
