package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

// OrderItem is one line of an order. Build it with NewOrderItem.
type OrderItem struct {
	OrderItemID string          `json:"orderItemId"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unitAmount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

func NewOrderItem(sku string, quantity int, unitAmount decimal.Decimal) (OrderItem, error) {
	item := OrderItem{
		OrderItemID: newCompactID(),
		SKU:         sku,
		Quantity:    quantity,
		UnitAmount:  unitAmount,
		TotalAmount: unitAmount.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := item.Validate(); err != nil {
		return OrderItem{}, err
	}
	return item, nil
}

func (i OrderItem) Validate() error {
	var n validation.Notification
	if validation.IsBlank(i.OrderItemID) {
		n.Append("'orderItemId' should not be null or empty")
	}
	if validation.IsBlank(i.SKU) {
		n.Append("'sku' should not be null or empty")
	}
	if i.Quantity <= 0 {
		n.Append("'quantity' should be greater than 0")
	}
	if !i.UnitAmount.IsPositive() {
		n.Append("'unitAmount' should be greater than 0")
	}
	return n.Err("invalid order item")
}

// Address is where an order is shipped to. Complement is optional.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zipCode"`
}

func NewAddress(street, number, complement, city, state, zipCode string) (Address, error) {
	a := Address{
		Street:     street,
		Number:     number,
		Complement: complement,
		City:       city,
		State:      state,
		ZipCode:    zipCode,
	}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

func (a Address) Validate() error {
	var n validation.Notification
	required := []struct{ name, value string }{
		{"street", a.Street},
		{"number", a.Number},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
	}
	for _, f := range required {
		if validation.IsBlank(f.value) {
			n.Appendf("'%s' should not be null or empty", f.name)
		}
	}
	if a.Complement != "" && validation.IsBlank(a.Complement) {
		n.Append("'complement' should not be empty")
	}
	return n.Err("invalid address")
}

// Coupon is a percentage discount applied over the items subtotal.
type Coupon struct {
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
}

func NewCoupon(code string, percentage decimal.Decimal) (Coupon, error) {
	c := Coupon{Code: code, Percentage: percentage}
	if err := c.Validate(); err != nil {
		return Coupon{}, err
	}
	return c, nil
}

func (c Coupon) Validate() error {
	var n validation.Notification
	if validation.IsBlank(c.Code) {
		n.Append("'code' should not be null or empty")
	}
	if c.Percentage.IsNegative() {
		n.Append("'percentage' should not be negative")
	}
	if c.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		n.Append("'percentage' should not be greater than 100")
	}
	return n.Err("invalid coupon")
}

// Discount returns the amount taken off subtotal.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.Percentage).Div(decimal.NewFromInt(100))
}

// PaymentDetails describes how the customer pays. PaymentID is assigned
// later by the payment provider and may be empty.
type PaymentDetails struct {
	PaymentID       string          `json:"paymentId,omitempty"`
	PaymentMethodID string          `json:"paymentMethodId"`
	Installments    int             `json:"installments"`
	Tax             decimal.Decimal `json:"tax"`
}

func NewPaymentDetails(paymentID, paymentMethodID string, installments int, tax decimal.Decimal) (PaymentDetails, error) {
	p := PaymentDetails{
		PaymentID:       paymentID,
		PaymentMethodID: paymentMethodID,
		Installments:    installments,
		Tax:             tax,
	}
	if err := p.Validate(); err != nil {
		return PaymentDetails{}, err
	}
	return p, nil
}

func (p PaymentDetails) Validate() error {
	var n validation.Notification
	if p.PaymentID != "" && validation.IsBlank(p.PaymentID) {
		n.Append("'paymentId' should not be empty")
	}
	if validation.IsBlank(p.PaymentMethodID) {
		n.Append("'paymentMethodId' should not be null or empty")
	}
	if p.Installments <= 0 {
		n.Append("'installments' should be greater than zero")
	}
	if p.Tax.IsNegative() {
		n.Append("'tax' should not be negative")
	}
	return n.Err("invalid payment details")
}

// ShippingDetails describes the carrier. ShippingID is assigned once the
// shipment is booked and may be empty.
type ShippingDetails struct {
	ShippingID      string          `json:"shippingId,omitempty"`
	ShippingCompany string          `json:"shippingCompany"`
	ShippingType    string          `json:"shippingType"`
	Cost            decimal.Decimal `json:"cost"`
}

func NewShippingDetails(shippingID, company, shippingType string, cost decimal.Decimal) (ShippingDetails, error) {
	s := ShippingDetails{
		ShippingID:      shippingID,
		ShippingCompany: company,
		ShippingType:    shippingType,
		Cost:            cost,
	}
	if err := s.Validate(); err != nil {
		return ShippingDetails{}, err
	}
	return s, nil
}

func (s ShippingDetails) Validate() error {
	var n validation.Notification
	if s.ShippingID != "" && validation.IsBlank(s.ShippingID) {
		n.Append("'shippingId' should not be empty")
	}
	if validation.IsBlank(s.ShippingCompany) {
		n.Append("'shippingCompany' should not be null or empty")
	}
	if validation.IsBlank(s.ShippingType) {
		n.Append("'shippingType' should not be null or empty")
	}
	if s.Cost.IsNegative() {
		n.Append("'cost' should not be negative")
	}
	return n.Err("invalid shipping details")
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func newCompactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
