// Package outbox publishes stored order events to the broker.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
)

const EventsTopic = "order-events"

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]sqlite.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, eventID string) error
	MarkOutboxFailed(ctx context.Context, eventID string, cause error, maxAttempts int) error
}

type Config struct {
	Topic        string
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is how many failed publishes park an entry as FAILED.
	MaxAttempts int
	Logger      *slog.Logger
}

// Relay copies pending outbox entries to the events topic, oldest first.
type Relay struct {
	store Store
	bus   *messaging.EventBus
	cfg   Config
}

func NewRelay(store Store, bus *messaging.EventBus, cfg Config) *Relay {
	if cfg.Topic == "" {
		cfg.Topic = EventsTopic
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{store: store, bus: bus, cfg: cfg}
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.cfg.Logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries went out. It
// stops at the first publish failure so later events of the same order are
// never published ahead of earlier ones. Once an entry is parked as FAILED the
// store holds back the rest of its order until an operator resolves it.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.PendingOutbox(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range entries {
		meta := messaging.EventMetadata{
			EventID:    e.EventID,
			EventType:  e.EventType,
			OccurredOn: e.OccurredOn,
			Who:        e.Who,
			TraceID:    e.TraceID,
		}
		if err := r.bus.Publish(ctx, r.cfg.Topic, e.AggregateID, meta, e.Payload); err != nil {
			r.cfg.Logger.WarnContext(ctx, "outbox publish failed",
				"event_id", e.EventID,
				"aggregate_id", e.AggregateID,
				"attempt", e.Attempts+1,
				"error", err,
			)
			if markErr := r.store.MarkOutboxFailed(ctx, e.EventID, err, r.cfg.MaxAttempts); markErr != nil {
				return published, markErr
			}
			return published, nil
		}
		if err := r.store.MarkOutboxPublished(ctx, e.EventID); err != nil {
			return published, err
		}
		published++
		r.cfg.Logger.DebugContext(ctx, "outbox entry published",
			"event_id", e.EventID,
			"event_type", e.EventType,
			"aggregate_id", e.AggregateID,
		)
	}
	return published, nil
}
