package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

type fakeOrderService struct {
	created []entity.CreateOrder
	events  []entity.ExternalEvent
	orders  map[string]*entity.Order
	err     error
}

func (f *fakeOrderService) CreateOrder(ctx context.Context, req entity.CreateOrder) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, req)
	return nil
}

func (f *fakeOrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, &domain.NotFoundError{Resource: "Order", ID: id}
}

func (f *fakeOrderService) PublishEvent(ctx context.Context, evt entity.ExternalEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func serve(t *testing.T, svc *fakeOrderService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandler(svc, nil))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const createBody = `{
	"customerId": "customer-1",
	"items": [{"sku": "prod_1", "quantity": 2}],
	"couponCode": "TEN",
	"paymentMethodId": "credit-card",
	"installments": 1,
	"shippingCompany": "ACME",
	"shippingType": "EXPRESS"
}`

func TestCreateOrderAccepted(t *testing.T) {
	svc := &fakeOrderService{}
	rec := serve(t, svc, http.MethodPost, "/orders", createBody)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))
	require.Len(t, svc.created, 1)
	got := svc.created[0]
	assert.Equal(t, "customer-1", got.CustomerID)
	assert.Equal(t, []entity.CreateOrderItem{{SKU: "prod_1", Quantity: 2}}, got.Items)
	assert.Equal(t, "TEN", got.CouponCode)
	assert.NotEmpty(t, got.RequestID)
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		err         error
		wantStatus  int
		wantMessage string
		wantErrors  []ErrorDetail
	}{
		{
			name:        "malformed body",
			body:        "{",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Malformed request body",
		},
		{
			name:        "validation failure",
			body:        createBody,
			err:         validation.New("invalid create order command", "'customerId' should not be null or empty"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "invalid create order command",
			wantErrors:  []ErrorDetail{{Message: "'customerId' should not be null or empty"}},
		},
		{
			name:        "broker down",
			body:        createBody,
			err:         fmt.Errorf("%w: publish: %w", messaging.ErrDispatch, errors.New("dial tcp: refused")),
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Service unavailable",
			wantErrors:  []ErrorDetail{},
		},
		{
			name:        "unexpected failure",
			body:        createBody,
			err:         errors.New("sqlite: disk I/O error"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
			wantErrors:  []ErrorDetail{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeOrderService{err: tt.err}, http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantMessage, resp.Message)
			if tt.wantErrors != nil {
				assert.Equal(t, tt.wantErrors, resp.Errors)
			}
			assert.NotContains(t, rec.Body.String(), "refused")
			assert.NotContains(t, rec.Body.String(), "disk")
		})
	}
}

func TestGetOrderByID(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]*entity.Order{
		"order-1": {
			ID:          "order-1",
			Version:     1,
			CustomerID:  "customer-1",
			Status:      "SHIPPING_CALCULATED",
			TotalAmount: decimal.RequireFromString("22"),
			Items: []entity.OrderItem{{
				OrderItemID: "item-1", SKU: "prod_1", Quantity: 2,
				UnitAmount: decimal.RequireFromString("10"), TotalAmount: decimal.RequireFromString("20"),
			}},
			Coupon:   &entity.Coupon{Code: "TEN", Percentage: decimal.RequireFromString("10")},
			Shipping: entity.Shipping{ShippingCompany: "ACME", ShippingType: "EXPRESS", Cost: decimal.RequireFromString("2")},
		},
	}}

	rec := serve(t, svc, http.MethodGet, "/orders/order-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.ID)
	assert.Equal(t, int64(1), resp.Version)
	assert.Equal(t, "22.00", resp.TotalAmount)
	assert.Equal(t, "SHIPPING_CALCULATED", resp.Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "10.00", resp.Items[0].UnitAmount)
	require.NotNil(t, resp.Coupon)
	assert.Equal(t, "10", resp.Coupon.Percentage)
	assert.Equal(t, "2.00", resp.ShippingDetails.Cost)
	assert.Nil(t, resp.DeliveredAt)

	rec = serve(t, svc, http.MethodGet, "/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Order with id missing was not found", decodeError(t, rec).Message)
}

func TestCreateEvent(t *testing.T) {
	svc := &fakeOrderService{}
	body := `{
		"type": "ShippingCostCalculatedEvent",
		"topic": "order-external-events",
		"payload": {"orderId": "order-1", "aggregateVersion": 0, "who": "shipping", "shippingCost": "2.50"}
	}`
	rec := serve(t, svc, http.MethodPost, "/events", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.events, 1)
	got := svc.events[0]
	assert.Equal(t, "ShippingCostCalculatedEvent", got.Type)
	assert.Equal(t, "order-external-events", got.Topic)
	require.NotNil(t, got.Payload)
	assert.Equal(t, "order-1", got.Payload.OrderID)
	assert.True(t, decimal.RequireFromString("2.5").Equal(got.Payload.ShippingCost))
}

func TestCreateEventWithoutPayload(t *testing.T) {
	svc := &fakeOrderService{}
	rec := serve(t, svc, http.MethodPost, "/events", `{"type": "ShippingCostCalculatedEvent", "topic": "t"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.events, 1)
	assert.Nil(t, svc.events[0].Payload)
}
