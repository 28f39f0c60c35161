package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

// CreateOrderHandler turns a CreateOrderCommand into a stored order.
type CreateOrderHandler struct {
	coupons   CouponGateway
	customers CustomerGateway
	products  ProductGateway
	store     EventStore
	logger    *slog.Logger
}

func NewCreateOrderHandler(coupons CouponGateway, customers CustomerGateway, products ProductGateway, store EventStore, logger *slog.Logger) *CreateOrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateOrderHandler{
		coupons:   coupons,
		customers: customers,
		products:  products,
		store:     store,
		logger:    logger,
	}
}

// Handle looks up the coupon, customer and products, places the order and
// stores it. It returns the new order id.
func (h *CreateOrderHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (domain.OrderID, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	var coupon *domain.Coupon
	if cmd.CouponCode != "" {
		c, err := h.coupon(ctx, cmd.CouponCode)
		if err != nil {
			return "", err
		}
		coupon = &c
	}

	customer, err := h.customers.CustomerDetails(ctx, cmd.CustomerID)
	if err != nil {
		return "", fmt.Errorf("create order: customer %s: %w", cmd.CustomerID, err)
	}

	prices, err := h.prices(ctx, cmd.SKUs())
	if err != nil {
		return "", err
	}

	var n validation.Notification
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		item, err := domain.NewOrderItem(it.SKU, it.Quantity, prices[strings.ToLower(it.SKU)])
		if err != nil {
			n.Merge(err)
			continue
		}
		items = append(items, item)
	}
	a := customer.Address
	address, err := domain.NewAddress(a.Street, a.Number, a.Complement, a.City, a.State, a.ZipCode)
	n.Merge(err)
	shipping, err := domain.NewShippingDetails("", cmd.ShippingCompany, cmd.ShippingType, decimal.Zero)
	n.Merge(err)
	payment, err := domain.NewPaymentDetails("", cmd.PaymentMethodID, cmd.Installments, decimal.Zero)
	n.Merge(err)
	if err := n.Err("cannot create order"); err != nil {
		return "", err
	}

	order, err := domain.NewOrder(domain.NewOrderParams{
		CustomerID:      cmd.CustomerID,
		Items:           items,
		ShippingAddress: address,
		Coupon:          coupon,
		PaymentDetails:  payment,
		ShippingDetails: shipping,
		TraceID:         cmd.TraceID,
	})
	if err != nil {
		return "", err
	}

	if err := h.store.Save(ctx, order); err != nil {
		return "", fmt.Errorf("create order %s: %w", order.ID(), err)
	}

	h.logger.InfoContext(ctx, "order creation initiated",
		"order_id", order.ID().String(),
		"customer_id", cmd.CustomerID,
		"command_id", cmd.CommandID,
		"total_amount", order.TotalAmount().StringFixed(2),
	)
	return order.ID(), nil
}

func (h *CreateOrderHandler) coupon(ctx context.Context, code string) (domain.Coupon, error) {
	details, err := h.coupons.ApplyCoupon(ctx, code)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("create order: coupon %s: %w", code, err)
	}
	if !details.Valid {
		return domain.Coupon{}, validation.New("cannot create order", fmt.Sprintf("'couponCode' %s is not valid", code))
	}
	return domain.NewCoupon(details.Code, details.Percentage)
}

// prices maps lower-cased skus to unit prices. Fewer products than skus
// fails the command.
func (h *CreateOrderHandler) prices(ctx context.Context, skus []string) (map[string]decimal.Decimal, error) {
	products, err := h.products.ProductsBySKUs(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("create order: products: %w", err)
	}
	prices := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		prices[strings.ToLower(p.SKU)] = p.UnitPrice
	}

	var missing []string
	for _, sku := range skus {
		if _, ok := prices[strings.ToLower(sku)]; !ok {
			missing = append(missing, sku)
		}
	}
	if len(products) < len(skus) || len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("product details not found: %w", &domain.NotFoundError{Resource: "Product", ID: strings.Join(missing, ",")})
	}
	return prices, nil
}

// IsNonRetryable reports errors that replaying the same message cannot fix.
// Validation and not-found failures are retried: an external event may arrive
// before the order it refers to is committed.
func IsNonRetryable(err error) bool {
	return errors.Is(err, domain.ErrUnknownEventKind)
}
