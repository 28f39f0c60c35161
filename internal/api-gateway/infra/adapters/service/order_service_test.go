package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []messaging.Message
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

type orderReader map[domain.OrderID]*domain.Order

func (r orderReader) Handle(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	if o, ok := r[id]; ok {
		return o, nil
	}
	return nil, &domain.NotFoundError{Resource: "Order", ID: string(id)}
}

func newService(pub *recordingPublisher, orders orderReader) *orderService {
	return NewOrderService(
		messaging.NewCommandBus(pub, 0, nil),
		messaging.NewEventBus(pub, 0),
		orders,
		"order-commands",
		nil,
	).(*orderService)
}

func validRequest() entity.CreateOrder {
	return entity.CreateOrder{
		CustomerID:      "customer-1",
		Items:           []entity.CreateOrderItem{{SKU: "prod_1", Quantity: 2}},
		PaymentMethodID: "credit-card",
		Installments:    1,
		ShippingCompany: "ACME",
		ShippingType:    "EXPRESS",
		RequestID:       "req-1",
	}
}

func TestCreateOrderDispatchesCommand(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, newService(pub, nil).CreateOrder(context.Background(), validRequest()))

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, "order-commands", msg.Topic)
	assert.Equal(t, "customer-1", msg.Key)
	assert.Equal(t, app.CreateOrderCommandType, msg.Headers[messaging.HeaderCommandType])
	assert.Equal(t, "req-1", msg.Headers[messaging.HeaderTraceID])

	var cmd app.CreateOrderCommand
	require.NoError(t, json.Unmarshal(msg.Payload, &cmd))
	assert.Equal(t, "customer-1", cmd.CustomerID)
	assert.Equal(t, msg.Headers[messaging.HeaderCommandID], cmd.CommandID)
}

func TestCreateOrderRejectsInvalidRequestWithoutDispatching(t *testing.T) {
	pub := &recordingPublisher{}
	req := validRequest()
	req.CustomerID = ""

	err := newService(pub, nil).CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, validation.ErrValidation)
	assert.Empty(t, pub.sent)
}

func TestCreateOrderReportsDispatchFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection refused")}
	err := newService(pub, nil).CreateOrder(context.Background(), validRequest())
	assert.ErrorIs(t, err, messaging.ErrDispatch)
}

func TestGetOrderMapsDomainOrder(t *testing.T) {
	item, err := domain.NewOrderItem("prod_1", 2, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	address, err := domain.NewAddress("Main St", "10", "", "Springfield", "SP", "12345")
	require.NoError(t, err)
	payment, err := domain.NewPaymentDetails("", "credit-card", 1, decimal.Zero)
	require.NoError(t, err)
	shipping, err := domain.NewShippingDetails("", "ACME", "EXPRESS", decimal.Zero)
	require.NoError(t, err)
	coupon, err := domain.NewCoupon("TEN", decimal.NewFromInt(10))
	require.NoError(t, err)
	order, err := domain.NewOrder(domain.NewOrderParams{
		CustomerID:      "customer-1",
		Items:           []domain.OrderItem{item},
		ShippingAddress: address,
		Coupon:          &coupon,
		PaymentDetails:  payment,
		ShippingDetails: shipping,
	})
	require.NoError(t, err)

	svc := newService(&recordingPublisher{}, orderReader{order.ID(): order})
	got, err := svc.GetOrder(context.Background(), order.ID().String())
	require.NoError(t, err)

	assert.Equal(t, order.ID().String(), got.ID)
	assert.Equal(t, "CREATION_INITIATED", got.Status)
	assert.True(t, decimal.RequireFromString("18.00").Equal(got.TotalAmount))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "prod_1", got.Items[0].SKU)
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "TEN", got.Coupon.Code)
	assert.Equal(t, "Springfield", got.ShippingAddress.City)
	assert.Nil(t, got.DeliveredAt)

	_, err = svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublishEvent(t *testing.T) {
	tests := []struct {
		name    string
		evtType string
		payload entity.ExternalEventPayload
		check   func(t *testing.T, evt domain.Event)
	}{
		{
			name:    "shipping cost",
			evtType: domain.EventTypeShippingCostCalculated,
			payload: entity.ExternalEventPayload{
				OrderID: "order-1", OrderStatus: "creation_initiated", AggregateVersion: 0, Who: "shipping",
				Street: "Main St", Number: "10", City: "Springfield", State: "SP", ZipCode: "12345",
				ShippingCompany: "ACME", ShippingType: "EXPRESS", ShippingCost: decimal.RequireFromString("2.00"),
			},
			check: func(t *testing.T, evt domain.Event) {
				shipping, ok := evt.(domain.ShippingCostCalculated)
				require.True(t, ok)
				assert.Equal(t, domain.StatusCreationInitiated, shipping.OrderStatus)
				assert.True(t, decimal.RequireFromString("2.00").Equal(shipping.ShippingDetails.Cost))
			},
		},
		{
			name:    "payment tax",
			evtType: domain.EventTypePaymentTaxCalculated,
			payload: entity.ExternalEventPayload{
				OrderID: "order-1", AggregateVersion: 1, Who: "payment",
				PaymentMethodID: "credit-card", Installments: 3, PaymentTax: decimal.RequireFromString("5.00"),
			},
			check: func(t *testing.T, evt domain.Event) {
				payment, ok := evt.(domain.PaymentTaxCalculated)
				require.True(t, ok)
				assert.Equal(t, 3, payment.PaymentDetails.Installments)
				assert.Equal(t, int64(1), payment.AggregateVersion)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			payload := tt.payload
			err := newService(pub, nil).PublishEvent(context.Background(), entity.ExternalEvent{
				Type:      tt.evtType,
				Topic:     "order-external-events",
				Payload:   &payload,
				RequestID: "req-9",
			})
			require.NoError(t, err)

			require.Len(t, pub.sent, 1)
			msg := pub.sent[0]
			assert.Equal(t, "order-external-events", msg.Topic)
			assert.Equal(t, "order-1", msg.Key)
			assert.Equal(t, tt.evtType, msg.Headers[messaging.HeaderEventType])
			assert.Equal(t, "req-9", msg.Headers[messaging.HeaderTraceID])
			assert.Empty(t, messaging.EventContract.Missing(msg))

			evt, err := domain.DefaultRegistry().Decode(tt.evtType, msg.Payload)
			require.NoError(t, err)
			assert.Equal(t, msg.Headers[messaging.HeaderEventID], evt.Meta().EventID)
			tt.check(t, evt)
		})
	}
}

func TestPublishEventValidation(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(pub, nil)

	err := svc.PublishEvent(context.Background(), entity.ExternalEvent{})
	require.ErrorIs(t, err, validation.ErrValidation)
	var f *validation.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, []string{
		"'type' should not be null or empty",
		"'topic' should not be null or empty",
		"'payload' should not be null or empty",
	}, f.Messages())

	err = svc.PublishEvent(context.Background(), entity.ExternalEvent{
		Type:    "OrderDeliveredEvent",
		Topic:   "order-external-events",
		Payload: &entity.ExternalEventPayload{OrderID: "order-1", Who: "x"},
	})
	require.ErrorIs(t, err, validation.ErrValidation)
	assert.Contains(t, err.Error(), "'type' OrderDeliveredEvent is not supported")

	err = svc.PublishEvent(context.Background(), entity.ExternalEvent{
		Type:    domain.EventTypePaymentTaxCalculated,
		Topic:   "order-external-events",
		Payload: &entity.ExternalEventPayload{OrderStatus: "bogus"},
	})
	require.ErrorIs(t, err, validation.ErrValidation)
	assert.True(t, errors.As(err, &f))
	assert.Contains(t, f.Messages(), "'orderId' should not be null or empty")
	assert.Contains(t, f.Messages(), "'orderStatus' bogus is not valid")
	assert.Contains(t, f.Messages(), "'paymentMethodId' should not be null or empty")
	assert.Empty(t, pub.sent)
}
