package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPublishTimeout bounds how long a publish waits for the broker.
const DefaultPublishTimeout = time.Minute

// CommandBus publishes commands with the command header contract.
type CommandBus struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

func NewCommandBus(publisher Publisher, timeout time.Duration, logger *slog.Logger) *CommandBus {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandBus{publisher: publisher, timeout: timeout, logger: logger}
}

// Dispatch encodes cmd and publishes it to destination, keyed by who. A
// failure is returned wrapped in ErrDispatch; it is not retried here.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command, destination string) error {
	meta := cmd.Metadata()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrDispatch, meta.CommandType, err)
	}

	msg := Message{
		Topic:   destination,
		Key:     meta.Who,
		Payload: payload,
		Headers: meta.Headers(),
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.publisher.Publish(ctx, msg); err != nil {
		b.logger.ErrorContext(ctx, "failed to dispatch command",
			"command_id", meta.CommandID,
			"command_type", meta.CommandType,
			"topic", destination,
			"error", err,
		)
		return fmt.Errorf("%w: publish %s to %s: %w", ErrDispatch, meta.CommandType, destination, err)
	}

	b.logger.InfoContext(ctx, "command dispatched",
		"command_id", meta.CommandID,
		"command_type", meta.CommandType,
		"topic", destination,
	)
	return nil
}

// EventBus publishes already-encoded events with the event header contract.
type EventBus struct {
	publisher Publisher
	timeout   time.Duration
}

func NewEventBus(publisher Publisher, timeout time.Duration) *EventBus {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &EventBus{publisher: publisher, timeout: timeout}
}

// Publish sends payload to destination. key should be the aggregate id so
// that one aggregate's events stay in order.
func (b *EventBus) Publish(ctx context.Context, destination, key string, meta EventMetadata, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.publisher.Publish(ctx, Message{
		Topic:   destination,
		Key:     key,
		Payload: payload,
		Headers: meta.Headers(),
	})
	if err != nil {
		return fmt.Errorf("messaging: publish %s %s to %s: %w", meta.EventType, meta.EventID, destination, err)
	}
	return nil
}
