// Package domain holds the event-sourced Order aggregate.
//
// An Order is never mutated in place. Every operation builds a candidate
// copy, re-checks the invariants and hands back either the new state with
// its pending events or the complete list of violations.
package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

type OrderID string

func NewOrderID() OrderID {
	return OrderID(newCompactID())
}

func (id OrderID) String() string { return string(id) }

type Order struct {
	id              OrderID
	version         int64
	status          Status
	customerID      string
	items           []OrderItem
	shippingAddress Address
	totalAmount     decimal.Decimal
	coupon          *Coupon
	paymentDetails  PaymentDetails
	shippingDetails ShippingDetails
	deliveredAt     *time.Time

	pending []Event
}

type NewOrderParams struct {
	CustomerID      string
	Items           []OrderItem
	ShippingAddress Address
	Coupon          *Coupon
	PaymentDetails  PaymentDetails
	ShippingDetails ShippingDetails
	TraceID         string
}

// NewOrder places a fresh order at version 0 and emits exactly one
// OrderCreationInitiated event.
func NewOrder(p NewOrderParams) (*Order, error) {
	o := &Order{
		id:              NewOrderID(),
		version:         0,
		status:          StatusCreationInitiated,
		customerID:      p.CustomerID,
		items:           slices.Clone(p.Items),
		shippingAddress: p.ShippingAddress,
		paymentDetails:  p.PaymentDetails,
		shippingDetails: p.ShippingDetails,
	}
	if p.Coupon != nil {
		c := *p.Coupon
		o.coupon = &c
	}
	o.totalAmount = o.itemsTotal()
	if err := o.validate(); err != nil {
		return nil, err
	}

	var coupon *Coupon
	if o.coupon != nil {
		c := *o.coupon
		coupon = &c
	}
	o.pending = append(o.pending, OrderCreationInitiated{
		EventMeta:       newEventMeta(o.id, EventTypeOrderCreationInitiated, decodeTargetOrderCreationInitiated, o.version, o.customerID, p.TraceID),
		Status:          o.status,
		CustomerID:      o.customerID,
		Items:           slices.Clone(o.items),
		ShippingAddress: o.shippingAddress,
		TotalAmount:     o.totalAmount,
		Coupon:          coupon,
		PaymentDetails:  o.paymentDetails,
		ShippingDetails: o.shippingDetails,
	})
	return o, nil
}

// Reconstruct replays a stored history. Events are sorted by the version
// they were produced at before being folded, so input order does not matter.
func Reconstruct(events []Event) (*Order, error) {
	if len(events) == 0 {
		return nil, validation.New("cannot reconstruct order", "cannot reconstruct order without events")
	}
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		return cmp.Compare(a.Meta().AggregateVersion, b.Meta().AggregateVersion)
	})

	first := sorted[0].Meta()
	o := &Order{id: OrderID(first.AggregateID), version: first.AggregateVersion}
	for _, evt := range sorted {
		if err := o.apply(evt); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// HandleShippingCostCalculated adds the shipping cost to the total and moves
// the order to SHIPPING_CALCULATED.
func (o *Order) HandleShippingCostCalculated(evt ShippingCostCalculated) (*Order, error) {
	next := o.clone()
	next.version = evt.AggregateVersion
	next.status = StatusShippingCalculated
	next.shippingDetails = evt.ShippingDetails
	next.totalAmount = roundMoney(next.totalAmount.Add(evt.ShippingDetails.Cost))
	next.version++
	if err := next.validate(); err != nil {
		return nil, err
	}
	next.pending = append(next.pending, OrderShippingCostCalculated{
		EventMeta:       newEventMeta(next.id, EventTypeOrderShippingCostCalculated, decodeTargetOrderShippingCostCalculated, next.version, evt.Who, evt.TraceID),
		Status:          next.status,
		TotalAmount:     next.totalAmount,
		ShippingAddress: next.shippingAddress,
		PaymentDetails:  next.paymentDetails,
		ShippingDetails: next.shippingDetails,
	})
	return next, nil
}

// HandlePaymentTaxCalculated adds the payment tax to the total and moves the
// order to PAYMENT_TAX_CALCULATED.
func (o *Order) HandlePaymentTaxCalculated(evt PaymentTaxCalculated) (*Order, error) {
	next := o.clone()
	next.version = evt.AggregateVersion
	next.status = StatusPaymentTaxCalculated
	next.paymentDetails = evt.PaymentDetails
	next.totalAmount = roundMoney(next.totalAmount.Add(evt.PaymentDetails.Tax))
	next.version++
	if err := next.validate(); err != nil {
		return nil, err
	}
	next.pending = append(next.pending, OrderPaymentTaxCalculated{
		EventMeta:       newEventMeta(next.id, EventTypeOrderPaymentTaxCalculated, decodeTargetOrderPaymentTaxCalculated, next.version, evt.Who, evt.TraceID),
		Status:          next.status,
		TotalAmount:     next.totalAmount,
		ShippingAddress: next.shippingAddress,
		PaymentDetails:  next.paymentDetails,
		ShippingDetails: next.shippingDetails,
	})
	return next, nil
}

// apply folds a stored event into o. Only Reconstruct calls it, on an order
// nobody else holds yet.
func (o *Order) apply(evt Event) error {
	switch e := evt.(type) {
	case OrderCreationInitiated:
		o.id = OrderID(e.AggregateID)
		o.status = e.Status
		o.customerID = e.CustomerID
		o.items = slices.Clone(e.Items)
		o.shippingAddress = e.ShippingAddress
		o.totalAmount = e.TotalAmount
		o.coupon = nil
		if e.Coupon != nil {
			c := *e.Coupon
			o.coupon = &c
		}
		o.paymentDetails = e.PaymentDetails
		o.shippingDetails = e.ShippingDetails
	case OrderShippingCostCalculated:
		o.status = e.Status
		o.totalAmount = e.TotalAmount
		o.shippingAddress = e.ShippingAddress
		o.paymentDetails = e.PaymentDetails
		o.shippingDetails = e.ShippingDetails
	case OrderPaymentTaxCalculated:
		o.status = e.Status
		o.totalAmount = e.TotalAmount
		o.shippingAddress = e.ShippingAddress
		o.paymentDetails = e.PaymentDetails
		o.shippingDetails = e.ShippingDetails
	default:
		return &UnknownEventKindError{Kind: evt.Meta().EventType}
	}
	o.version = evt.Meta().AggregateVersion
	return o.validate()
}

func (o *Order) validate() error {
	var n validation.Notification
	if !o.status.Valid() {
		n.Append("'status' should not be null")
	}
	if validation.IsBlank(o.customerID) {
		n.Append("'customerId' should not be null or empty")
	}
	if len(o.items) == 0 {
		n.Append("'items' should not be empty")
	}
	seen := make(map[string]struct{}, len(o.items))
	for _, item := range o.items {
		sku := strings.ToLower(item.SKU)
		if _, dup := seen[sku]; dup {
			n.Append("'items' should not have duplicated items")
			break
		}
		seen[sku] = struct{}{}
	}
	return n.Err("invalid order")
}

func (o *Order) itemsTotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range o.items {
		subtotal = subtotal.Add(item.TotalAmount)
	}
	total := subtotal
	if o.coupon != nil {
		total = total.Sub(o.coupon.Discount(subtotal))
	}
	return roundMoney(total)
}

func (o *Order) clone() *Order {
	c := *o
	c.items = slices.Clone(o.items)
	c.pending = slices.Clone(o.pending)
	if o.coupon != nil {
		cp := *o.coupon
		c.coupon = &cp
	}
	if o.deliveredAt != nil {
		t := *o.deliveredAt
		c.deliveredAt = &t
	}
	return &c
}

// ClearPendingEvents returns a copy of o with no pending events, as seen
// after a successful save.
func (o *Order) ClearPendingEvents() *Order {
	c := o.clone()
	c.pending = nil
	return c
}

func (o *Order) ID() OrderID                      { return o.id }
func (o *Order) Version() int64                   { return o.version }
func (o *Order) Status() Status                   { return o.status }
func (o *Order) CustomerID() string               { return o.customerID }
func (o *Order) Items() []OrderItem               { return slices.Clone(o.items) }
func (o *Order) ShippingAddress() Address         { return o.shippingAddress }
func (o *Order) TotalAmount() decimal.Decimal     { return o.totalAmount }
func (o *Order) PaymentDetails() PaymentDetails   { return o.paymentDetails }
func (o *Order) ShippingDetails() ShippingDetails { return o.shippingDetails }
func (o *Order) PendingEvents() []Event           { return slices.Clone(o.pending) }

func (o *Order) Coupon() (Coupon, bool) {
	if o.coupon == nil {
		return Coupon{}, false
	}
	return *o.coupon, true
}

func (o *Order) DeliveredAt() (time.Time, bool) {
	if o.deliveredAt == nil {
		return time.Time{}, false
	}
	return *o.deliveredAt, true
}
