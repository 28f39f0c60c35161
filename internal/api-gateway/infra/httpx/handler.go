package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/ports"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/validation"
)

// Handler handles incoming HTTP requests for the Order domain.
type Handler struct {
	orderService ports.OrderService
	logger       *slog.Logger
}

func NewHandler(os ports.OrderService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orderService: os, logger: logger}
}

// CreateOrder validates the request and dispatches a CreateOrderCommand. The
// order itself is created asynchronously, so the response has no body.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", err.Error())
		return
	}

	items := make([]entity.CreateOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = entity.CreateOrderItem{SKU: it.SKU, Quantity: it.Quantity}
	}

	h.logger.DebugContext(r.Context(), "received create order request", "customer_id", req.CustomerID, "items", len(items))

	err := h.orderService.CreateOrder(r.Context(), entity.CreateOrder{
		CustomerID:      req.CustomerID,
		Items:           items,
		CouponCode:      req.CouponCode,
		PaymentMethodID: req.PaymentMethodID,
		Installments:    req.Installments,
		ShippingCompany: req.ShippingCompany,
		ShippingType:    req.ShippingType,
		RequestID:       middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "create order command dispatched", "customer_id", req.CustomerID)
	w.WriteHeader(http.StatusAccepted)
}

// GetOrderByID returns the current state of one order.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// CreateEvent publishes a simulated external event.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", err.Error())
		return
	}

	evt := entity.ExternalEvent{
		Type:      req.Type,
		Topic:     req.Topic,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if p := req.Payload; p != nil {
		evt.Payload = &entity.ExternalEventPayload{
			OrderID:          p.OrderID,
			OrderStatus:      p.OrderStatus,
			TotalAmount:      p.TotalAmount,
			AggregateVersion: p.AggregateVersion,
			Who:              p.Who,
			Street:           p.Street,
			Number:           p.Number,
			Complement:       p.Complement,
			City:             p.City,
			State:            p.State,
			ZipCode:          p.ZipCode,
			ShippingCompany:  p.ShippingCompany,
			ShippingType:     p.ShippingType,
			ShippingCost:     p.ShippingCost,
			PaymentMethodID:  p.PaymentMethodID,
			Installments:     p.Installments,
			PaymentTax:       p.PaymentTax,
		}
	}

	if err := h.orderService.PublishEvent(r.Context(), evt); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleError maps service errors to responses. Only validation and
// not-found errors expose their message.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var failure *validation.Failure
	switch {
	case errors.As(err, &failure):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Message: failure.Message,
			Errors:  mapErrors(failure.Errors),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, messaging.ErrDispatch):
		h.logger.ErrorContext(r.Context(), "dispatch failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "internal server error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// mapOrderToResponse converts the order entity to the HTTP response format.
func mapOrderToResponse(order *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID,
		Version:     order.Version,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Items:       make([]OrderItemResponse, len(order.Items)),
		ShippingAddress: AddressResponse{
			Street:     order.ShippingAddress.Street,
			Number:     order.ShippingAddress.Number,
			Complement: order.ShippingAddress.Complement,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			ZipCode:    order.ShippingAddress.ZipCode,
		},
		PaymentDetails: PaymentResponse{
			PaymentID:       order.Payment.PaymentID,
			PaymentMethodID: order.Payment.PaymentMethodID,
			Installments:    order.Payment.Installments,
			Tax:             order.Payment.Tax.StringFixed(2),
		},
		ShippingDetails: ShippingResponse{
			ShippingID:      order.Shipping.ShippingID,
			ShippingCompany: order.Shipping.ShippingCompany,
			ShippingType:    order.Shipping.ShippingType,
			Cost:            order.Shipping.Cost.StringFixed(2),
		},
		DeliveredAt: order.DeliveredAt,
	}
	for i, it := range order.Items {
		resp.Items[i] = OrderItemResponse{
			OrderItemID: it.OrderItemID,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitAmount:  it.UnitAmount.StringFixed(2),
			TotalAmount: it.TotalAmount.StringFixed(2),
		}
	}
	if order.Coupon != nil {
		resp.Coupon = &CouponResponse{Code: order.Coupon.Code, Percentage: order.Coupon.Percentage.String()}
	}
	return resp
}

func mapErrors(errs []validation.Error) []ErrorDetail {
	out := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		out[i] = ErrorDetail{Message: e.Message}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	resp := ErrorResponse{Message: msg, Errors: []ErrorDetail{}}
	for _, d := range details {
		resp.Errors = append(resp.Errors, ErrorDetail{Message: d})
	}
	writeJSON(w, status, resp)
}
