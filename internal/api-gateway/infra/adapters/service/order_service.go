package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/ports"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/telemetry"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

// Ensure orderService implements the port at compile time.
var _ ports.OrderService = (*orderService)(nil)

type OrderReader interface {
	Handle(ctx context.Context, id domain.OrderID) (*domain.Order, error)
}

// orderService turns HTTP requests into commands on the bus and serves reads
// from the event store.
type orderService struct {
	commands      *messaging.CommandBus
	events        *messaging.EventBus
	orders        OrderReader
	commandsTopic string
	logger        *slog.Logger
}

func NewOrderService(commands *messaging.CommandBus, events *messaging.EventBus, orders OrderReader, commandsTopic string, logger *slog.Logger) ports.OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &orderService{
		commands:      commands,
		events:        events,
		orders:        orders,
		commandsTopic: commandsTopic,
		logger:        logger,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req entity.CreateOrder) error {
	items := make([]app.CreateOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = app.CreateOrderItem{SKU: it.SKU, Quantity: it.Quantity}
	}

	cmd, err := app.NewCreateOrderCommand(app.CreateOrderInput{
		CustomerID:      req.CustomerID,
		Items:           items,
		CouponCode:      req.CouponCode,
		PaymentMethodID: req.PaymentMethodID,
		Installments:    req.Installments,
		ShippingCompany: req.ShippingCompany,
		ShippingType:    req.ShippingType,
		TraceID:         traceID(ctx, req.RequestID),
	})
	if err != nil {
		return err
	}
	return s.commands.Dispatch(ctx, cmd, s.commandsTopic)
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.orders.Handle(ctx, domain.OrderID(id))
	if err != nil {
		return nil, err
	}
	return mapOrder(order), nil
}

func (s *orderService) PublishEvent(ctx context.Context, req entity.ExternalEvent) error {
	var n validation.Notification
	if validation.IsBlank(req.Type) {
		n.Append("'type' should not be null or empty")
	}
	if validation.IsBlank(req.Topic) {
		n.Append("'topic' should not be null or empty")
	}
	if req.Payload == nil {
		n.Append("'payload' should not be null or empty")
	}
	if err := n.Err("invalid event request"); err != nil {
		return err
	}

	evt, err := buildEvent(req.Type, *req.Payload, traceID(ctx, req.RequestID))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Type, err)
	}

	meta := evt.Meta()
	err = s.events.Publish(ctx, req.Topic, meta.AggregateID, messaging.EventMetadata{
		EventID:    meta.EventID,
		EventType:  meta.EventType,
		OccurredOn: meta.OccurredOn,
		Who:        meta.Who,
		TraceID:    meta.TraceID,
	}, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrDispatch, err)
	}

	s.logger.InfoContext(ctx, "simulated external event published",
		"event_id", meta.EventID,
		"event_type", meta.EventType,
		"aggregate_id", meta.AggregateID,
		"topic", req.Topic,
	)
	return nil
}

// buildEvent validates p for eventType and stamps a new event from it.
func buildEvent(eventType string, p entity.ExternalEventPayload, trace string) (domain.Event, error) {
	var n validation.Notification
	if validation.IsBlank(p.OrderID) {
		n.Append("'orderId' should not be null or empty")
	}
	if validation.IsBlank(p.Who) {
		n.Append("'who' should not be null or empty")
	}
	if p.AggregateVersion < 0 {
		n.Append("'aggregateVersion' should not be negative")
	}
	status, err := domain.ParseStatus(p.OrderStatus)
	if err != nil {
		n.Appendf("'orderStatus' %s is not valid", p.OrderStatus)
	}

	switch eventType {
	case domain.EventTypeShippingCostCalculated:
		address, err := domain.NewAddress(p.Street, p.Number, p.Complement, p.City, p.State, p.ZipCode)
		n.Merge(err)
		shipping, err := domain.NewShippingDetails("", p.ShippingCompany, p.ShippingType, p.ShippingCost)
		n.Merge(err)
		if err := n.Err("invalid event request"); err != nil {
			return nil, err
		}
		return domain.ShippingCostCalculated{
			EventMeta:       domain.NewExternalEventMeta(p.OrderID, eventType, p.AggregateVersion, p.Who, trace),
			OrderStatus:     status,
			TotalAmount:     p.TotalAmount,
			ShippingAddress: address,
			ShippingDetails: shipping,
		}, nil

	case domain.EventTypePaymentTaxCalculated:
		payment, err := domain.NewPaymentDetails("", p.PaymentMethodID, p.Installments, p.PaymentTax)
		n.Merge(err)
		if err := n.Err("invalid event request"); err != nil {
			return nil, err
		}
		return domain.PaymentTaxCalculated{
			EventMeta:      domain.NewExternalEventMeta(p.OrderID, eventType, p.AggregateVersion, p.Who, trace),
			OrderStatus:    status,
			TotalAmount:    p.TotalAmount,
			PaymentDetails: payment,
		}, nil

	default:
		return nil, validation.New("invalid event request", fmt.Sprintf("'type' %s is not supported", eventType))
	}
}

// traceID prefers the active span, then the caller's request id, then a
// fresh id.
func traceID(ctx context.Context, requestID string) string {
	if id := telemetry.ExtractTraceInfo(ctx).TraceID; id != "" {
		return id
	}
	if requestID != "" {
		return requestID
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func mapOrder(o *domain.Order) *entity.Order {
	items := o.Items()
	out := &entity.Order{
		ID:          o.ID().String(),
		Version:     o.Version(),
		CustomerID:  o.CustomerID(),
		Status:      o.Status().String(),
		TotalAmount: o.TotalAmount(),
		Items:       make([]entity.OrderItem, len(items)),
	}
	for i, it := range items {
		out.Items[i] = entity.OrderItem{
			OrderItemID: it.OrderItemID,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitAmount:  it.UnitAmount,
			TotalAmount: it.TotalAmount,
		}
	}

	a := o.ShippingAddress()
	out.ShippingAddress = entity.Address{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		City:       a.City,
		State:      a.State,
		ZipCode:    a.ZipCode,
	}
	if c, ok := o.Coupon(); ok {
		out.Coupon = &entity.Coupon{Code: c.Code, Percentage: c.Percentage}
	}
	p := o.PaymentDetails()
	out.Payment = entity.Payment{
		PaymentID:       p.PaymentID,
		PaymentMethodID: p.PaymentMethodID,
		Installments:    p.Installments,
		Tax:             p.Tax,
	}
	sh := o.ShippingDetails()
	out.Shipping = entity.Shipping{
		ShippingID:      sh.ShippingID,
		ShippingCompany: sh.ShippingCompany,
		ShippingType:    sh.ShippingType,
		Cost:            sh.Cost,
	}
	if at, ok := o.DeliveredAt(); ok {
		out.DeliveredAt = &at
	}
	return out
}
