package domain

import (
	"fmt"
	"strings"
)

// Status is the ordered lifecycle of an order. The zero value means the
// status is absent and never passes validation.
type Status int

const (
	StatusUnknown Status = iota
	StatusCreationInitiated
	StatusShippingCalculated
	StatusPaymentTaxCalculated
	StatusCreated
	StatusStockConfirmed
	StatusStockConfirmationFailed
	StatusPaymentInitiated
	StatusPaymentPending
	StatusPaymentApproved
	StatusPaymentDenied
	StatusPaymentRefunded
	StatusPreparingForShipping
	StatusShipped
	StatusOutForDelivery
	StatusDelivered
	StatusDeliveryFailed
	StatusCanceled
	StatusRefunded
	StatusReturnRequested
	StatusReturned
)

var statusNames = [...]string{
	StatusUnknown:                 "",
	StatusCreationInitiated:       "CREATION_INITIATED",
	StatusShippingCalculated:      "SHIPPING_CALCULATED",
	StatusPaymentTaxCalculated:    "PAYMENT_TAX_CALCULATED",
	StatusCreated:                 "CREATED",
	StatusStockConfirmed:          "STOCK_CONFIRMED",
	StatusStockConfirmationFailed: "STOCK_CONFIRMATION_FAILED",
	StatusPaymentInitiated:        "PAYMENT_INITIATED",
	StatusPaymentPending:          "PAYMENT_PENDING",
	StatusPaymentApproved:         "PAYMENT_APPROVED",
	StatusPaymentDenied:           "PAYMENT_DENIED",
	StatusPaymentRefunded:         "PAYMENT_REFUNDED",
	StatusPreparingForShipping:    "PREPARING_FOR_SHIPPING",
	StatusShipped:                 "SHIPPED",
	StatusOutForDelivery:          "OUT_FOR_DELIVERY",
	StatusDelivered:               "DELIVERED",
	StatusDeliveryFailed:          "DELIVERY_FAILED",
	StatusCanceled:                "CANCELED",
	StatusRefunded:                "REFUNDED",
	StatusReturnRequested:         "RETURN_REQUESTED",
	StatusReturned:                "RETURNED",
}

// ParseStatus resolves a status name, ignoring case.
func ParseStatus(s string) (Status, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return StatusUnknown, nil
	}
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("domain: unknown order status %q", s)
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) Valid() bool {
	return s > StatusUnknown && int(s) < len(statusNames)
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCanceled, StatusRefunded, StatusReturned:
		return true
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
