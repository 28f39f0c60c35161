package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
)

// ShippingCostHandler applies a ShippingCostCalculated fact to its order.
type ShippingCostHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewShippingCostHandler(store EventStore, logger *slog.Logger) *ShippingCostHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShippingCostHandler{store: store, logger: logger}
}

func (h *ShippingCostHandler) Handle(ctx context.Context, evt domain.ShippingCostCalculated) error {
	next, err := mutate(ctx, h.store, domain.OrderID(evt.AggregateID), func(o *domain.Order) (*domain.Order, error) {
		return o.HandleShippingCostCalculated(evt)
	})
	if err != nil {
		return fmt.Errorf("apply shipping cost to order %s: %w", evt.AggregateID, err)
	}
	h.logger.InfoContext(ctx, "shipping cost applied",
		"order_id", evt.AggregateID,
		"event_id", evt.EventID,
		"version", next.Version(),
		"total_amount", next.TotalAmount().StringFixed(2),
	)
	return nil
}

// PaymentTaxHandler applies a PaymentTaxCalculated fact to its order.
type PaymentTaxHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewPaymentTaxHandler(store EventStore, logger *slog.Logger) *PaymentTaxHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentTaxHandler{store: store, logger: logger}
}

func (h *PaymentTaxHandler) Handle(ctx context.Context, evt domain.PaymentTaxCalculated) error {
	next, err := mutate(ctx, h.store, domain.OrderID(evt.AggregateID), func(o *domain.Order) (*domain.Order, error) {
		return o.HandlePaymentTaxCalculated(evt)
	})
	if err != nil {
		return fmt.Errorf("apply payment tax to order %s: %w", evt.AggregateID, err)
	}
	h.logger.InfoContext(ctx, "payment tax applied",
		"order_id", evt.AggregateID,
		"event_id", evt.EventID,
		"version", next.Version(),
		"total_amount", next.TotalAmount().StringFixed(2),
	)
	return nil
}

// GetOrderHandler rebuilds the current state of an order from its history.
type GetOrderHandler struct {
	store EventStore
}

func NewGetOrderHandler(store EventStore) *GetOrderHandler {
	return &GetOrderHandler{store: store}
}

func (h *GetOrderHandler) Handle(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return load(ctx, h.store, id)
}

func load(ctx context.Context, store EventStore, id domain.OrderID) (*domain.Order, error) {
	events, err := store.LoadEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &domain.NotFoundError{Resource: "Order", ID: string(id)}
	}
	return domain.Reconstruct(events)
}

// mutate loads the order, applies fn and stores the outcome.
func mutate(ctx context.Context, store EventStore, id domain.OrderID, fn func(*domain.Order) (*domain.Order, error)) (*domain.Order, error) {
	order, err := load(ctx, store, id)
	if err != nil {
		return nil, err
	}
	next, err := fn(order)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}
