// Package listeners binds the order service's handlers to its inbound topics.
package listeners

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
)

const (
	CommandsTopic       = "order-commands"
	ExternalEventsTopic = "order-external-events"
)

type Config struct {
	Topic          string
	MaxAttempts    int
	PublishTimeout time.Duration
	Logger         *slog.Logger
	Clock          func() time.Time
}

func (c Config) listener(name, topic string, contract messaging.HeaderContract) messaging.ListenerConfig {
	if c.Topic != "" {
		topic = c.Topic
	}
	return messaging.ListenerConfig{
		Name:           name,
		Topic:          topic,
		Contract:       contract,
		MaxAttempts:    c.MaxAttempts,
		PublishTimeout: c.PublishTimeout,
		NonRetryable:   app.IsNonRetryable,
		Logger:         c.Logger,
		Clock:          c.Clock,
	}
}

type CreateOrderHandler interface {
	Handle(ctx context.Context, cmd app.CreateOrderCommand) (domain.OrderID, error)
}

type ShippingCostHandler interface {
	Handle(ctx context.Context, evt domain.ShippingCostCalculated) error
}

type PaymentTaxHandler interface {
	Handle(ctx context.Context, evt domain.PaymentTaxCalculated) error
}

// NewCommandListener consumes order commands.
func NewCommandListener(create CreateOrderHandler, publisher messaging.Publisher, cfg Config) *messaging.Listener {
	l := messaging.NewListener(cfg.listener("order-commands-listener", CommandsTopic, messaging.CommandContract), publisher)
	l.Handle(app.CreateOrderCommandType, func(ctx context.Context, msg messaging.Message) error {
		var cmd app.CreateOrderCommand
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return fmt.Errorf("%w: decode %s: %v", messaging.ErrMalformedMessage, app.CreateOrderCommandType, err)
		}
		fillCommandMetadata(&cmd.CommandMetadata, msg)
		// TODO: record command_id in an inbox table and skip commands already
		// handled; a redelivered command currently places a second order.
		_, err := create.Handle(ctx, cmd)
		return err
	})
	return l
}

// NewExternalEventsListener consumes the facts other services publish about
// orders.
func NewExternalEventsListener(shipping ShippingCostHandler, payment PaymentTaxHandler, publisher messaging.Publisher, registry *domain.Registry, cfg Config) *messaging.Listener {
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	l := messaging.NewListener(cfg.listener("order-external-events-listener", ExternalEventsTopic, messaging.EventContract), publisher)
	l.Handle(domain.EventTypeShippingCostCalculated, func(ctx context.Context, msg messaging.Message) error {
		evt, err := decodeEvent[domain.ShippingCostCalculated](registry, msg)
		if err != nil {
			return err
		}
		return shipping.Handle(ctx, evt)
	})
	l.Handle(domain.EventTypePaymentTaxCalculated, func(ctx context.Context, msg messaging.Message) error {
		evt, err := decodeEvent[domain.PaymentTaxCalculated](registry, msg)
		if err != nil {
			return err
		}
		return payment.Handle(ctx, evt)
	})
	return l
}

func decodeEvent[T domain.Event](registry *domain.Registry, msg messaging.Message) (T, error) {
	var zero T
	eventType := msg.Header(messaging.HeaderEventType)
	decoded, err := registry.Decode(eventType, msg.Payload)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", messaging.ErrMalformedMessage, err)
	}
	evt, ok := decoded.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s decoded as %T", messaging.ErrMalformedMessage, eventType, decoded)
	}
	if evt.Meta().AggregateID == "" {
		return zero, fmt.Errorf("%w: %s without aggregateId", messaging.ErrMalformedMessage, eventType)
	}
	return evt, nil
}

// fillCommandMetadata takes envelope fields missing from the payload from the
// record headers.
func fillCommandMetadata(meta *messaging.CommandMetadata, msg messaging.Message) {
	if meta.CommandID == "" {
		meta.CommandID = msg.Header(messaging.HeaderCommandID)
	}
	if meta.CommandType == "" {
		meta.CommandType = msg.Header(messaging.HeaderCommandType)
	}
	if meta.Who == "" {
		meta.Who = msg.Header(messaging.HeaderWho)
	}
	if meta.TraceID == "" {
		meta.TraceID = msg.Header(messaging.HeaderTraceID)
	}
	if meta.OccurredOn.IsZero() {
		if t, err := time.Parse(messaging.TimeLayout, msg.Header(messaging.HeaderCommandOccurredOn)); err == nil {
			meta.OccurredOn = t
		}
	}
}
