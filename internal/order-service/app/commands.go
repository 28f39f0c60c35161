package app

import (
	"strings"

	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

const CreateOrderCommandType = "CreateOrderCommand"

type CreateOrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// CreateOrderCommand asks the order service to place a new order.
type CreateOrderCommand struct {
	messaging.CommandMetadata
	CustomerID      string            `json:"customerId"`
	Items           []CreateOrderItem `json:"items"`
	CouponCode      string            `json:"couponCode,omitempty"`
	PaymentMethodID string            `json:"paymentMethodId"`
	Installments    int               `json:"installments"`
	ShippingCompany string            `json:"shippingCompany"`
	ShippingType    string            `json:"shippingType"`
}

type CreateOrderInput struct {
	CustomerID      string
	Items           []CreateOrderItem
	CouponCode      string
	PaymentMethodID string
	Installments    int
	ShippingCompany string
	ShippingType    string
	TraceID         string
}

// NewCreateOrderCommand stamps the command envelope and validates the input,
// reporting every violation at once.
func NewCreateOrderCommand(in CreateOrderInput) (CreateOrderCommand, error) {
	cmd := CreateOrderCommand{
		CommandMetadata: messaging.NewCommandMetadata(CreateOrderCommandType, in.CustomerID, in.TraceID),
		CustomerID:      in.CustomerID,
		Items:           append([]CreateOrderItem(nil), in.Items...),
		CouponCode:      in.CouponCode,
		PaymentMethodID: in.PaymentMethodID,
		Installments:    in.Installments,
		ShippingCompany: in.ShippingCompany,
		ShippingType:    in.ShippingType,
	}
	if err := cmd.Validate(); err != nil {
		return CreateOrderCommand{}, err
	}
	return cmd, nil
}

func (c CreateOrderCommand) Validate() error {
	var n validation.Notification
	if validation.IsBlank(c.CustomerID) {
		n.Append("'customerId' should not be null or empty")
	}
	if len(c.Items) == 0 {
		n.Append("'items' should not be empty")
	}
	seen := make(map[string]struct{}, len(c.Items))
	duplicated := false
	for _, item := range c.Items {
		if validation.IsBlank(item.SKU) {
			n.Append("'sku' should not be null or empty")
		}
		if item.Quantity <= 0 {
			n.Append("'quantity' should be greater than 0")
		}
		sku := strings.ToLower(item.SKU)
		if _, dup := seen[sku]; dup && !duplicated {
			n.Append("'items' should not have duplicated items")
			duplicated = true
		}
		seen[sku] = struct{}{}
	}
	if c.CouponCode != "" && validation.IsBlank(c.CouponCode) {
		n.Append("'couponCode' should not be empty")
	}
	if validation.IsBlank(c.PaymentMethodID) {
		n.Append("'paymentMethodId' should not be null or empty")
	}
	if c.Installments <= 0 {
		n.Append("'installments' should be greater than 0")
	}
	if validation.IsBlank(c.ShippingCompany) {
		n.Append("'shippingCompany' should not be null or empty")
	}
	if validation.IsBlank(c.ShippingType) {
		n.Append("'shippingType' should not be null or empty")
	}
	return n.Err("invalid create order command")
}

func (c CreateOrderCommand) SKUs() []string {
	skus := make([]string, len(c.Items))
	for i, item := range c.Items {
		skus[i] = item.SKU
	}
	return skus
}
