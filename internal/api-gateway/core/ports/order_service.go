package ports

import (
	"context"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/core/domain/entity"
)

type OrderService interface {
	// CreateOrder validates the request and dispatches it; the order is
	// created asynchronously.
	CreateOrder(ctx context.Context, req entity.CreateOrder) error
	GetOrder(ctx context.Context, id string) (*entity.Order, error)
	PublishEvent(ctx context.Context, evt entity.ExternalEvent) error
}
