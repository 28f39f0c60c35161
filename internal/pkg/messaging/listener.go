package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlerFunc processes one decoded-by-type record. Returning an error sends
// the record down the retry chain.
type HandlerFunc func(ctx context.Context, msg Message) error

type ListenerConfig struct {
	// Name identifies the listener in logs and spans.
	Name string
	// Topic is the base topic; retry and dead-letter topics derive from it.
	Topic    string
	Contract HeaderContract
	// MaxAttempts counts every delivery, the first one included.
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	// StaleAfter is the age past which a record of unknown type is given up on.
	StaleAfter     time.Duration
	NackDelay      time.Duration
	PublishTimeout time.Duration
	// NonRetryable classifies handler errors that go straight to the dead
	// letter topic. Permanent and malformed errors are always non-retryable.
	NonRetryable func(error) bool
	Logger       *slog.Logger
	Clock        func() time.Time
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.Name == "" {
		c.Name = c.Topic
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 7 * 24 * time.Hour
	}
	if c.NackDelay <= 0 {
		c.NackDelay = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Listener routes records of one base topic to exactly one handler per type
// and decides what happens to each record afterwards.
type Listener struct {
	cfg       ListenerConfig
	publisher Publisher
	handlers  map[string]HandlerFunc
	tracer    trace.Tracer
}

func NewListener(cfg ListenerConfig, publisher Publisher) *Listener {
	return &Listener{
		cfg:       cfg.withDefaults(),
		publisher: publisher,
		handlers:  make(map[string]HandlerFunc),
		tracer:    otel.Tracer("github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"),
	}
}

// Handle registers h for records whose type header equals msgType exactly.
func (l *Listener) Handle(msgType string, h HandlerFunc) {
	l.handlers[msgType] = h
}

func (l *Listener) Name() string { return l.cfg.Name }

// Topics lists the base topic followed by every retry topic to subscribe to.
func (l *Listener) Topics() []string {
	topics := []string{l.cfg.Topic}
	for n := 0; n < l.cfg.MaxAttempts-1; n++ {
		topics = append(topics, RetryTopic(l.cfg.Topic, n))
	}
	return topics
}

func (l *Listener) DeadLetterTopic() string { return DeadLetterTopic(l.cfg.Topic) }

func (l *Listener) InvalidTopic() string { return InvalidTopic(l.cfg.Topic) }

// Backoff is the wait before the n-th retry: base * multiplier^n.
func (l *Listener) Backoff(n int) time.Duration {
	return time.Duration(float64(l.cfg.BackoffBase) * math.Pow(l.cfg.BackoffMultiplier, float64(n)))
}

// Process runs one record through the listener and tells the broker whether
// to acknowledge it or redeliver it later.
func (l *Listener) Process(ctx context.Context, msg Message) Decision {
	now := l.cfg.Clock()
	logger := l.cfg.Logger.With("listener", l.cfg.Name, "topic", msg.Topic, "message_id", msg.ID)

	if _, retrying := RetryIndex(l.cfg.Topic, msg.Topic); retrying {
		if raw := msg.Header(HeaderRetryNotBefore); raw != "" {
			if notBefore, err := time.Parse(TimeLayout, raw); err == nil && notBefore.After(now) {
				return Nack(notBefore.Sub(now))
			}
		}
	}

	if missing := l.cfg.Contract.Missing(msg); len(missing) > 0 {
		reason := fmt.Sprintf("missing required headers: %s", strings.Join(missing, ", "))
		logger.WarnContext(ctx, "routing malformed message to invalid topic", "reason", reason)
		return l.publishOrNack(ctx, logger, l.annotate(msg, l.InvalidTopic(), reason))
	}

	msgType := msg.Header(l.cfg.Contract.Type)
	handler, ok := l.handlers[msgType]
	if !ok {
		return l.unknownType(ctx, logger, msg, msgType, now)
	}

	ctx, span := l.tracer.Start(ctx, l.cfg.Name+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", msg.Header(l.cfg.Contract.ID)),
			attribute.String("messaging.message.type", msgType),
			attribute.String("origin.trace_id", msg.Header(HeaderTraceID)),
		),
	)
	defer span.End()

	err := handler(ctx, msg)
	if err == nil {
		logger.DebugContext(ctx, "message processed", "type", msgType)
		return Ack()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return l.retry(ctx, logger, msg, err, now)
}

// ReplayDeadLetter sends a dead-lettered record back to the topic it failed
// on, headers intact. It only runs when an operator asks for it.
func (l *Listener) ReplayDeadLetter(ctx context.Context, msg Message) Decision {
	logger := l.cfg.Logger.With("listener", l.cfg.Name, "topic", msg.Topic, "message_id", msg.ID)

	origin := msg.Header(HeaderOriginalTopic)
	if origin == "" {
		reason := fmt.Sprintf("missing required headers: %s", HeaderOriginalTopic)
		logger.WarnContext(ctx, "dead letter cannot be replayed", "reason", reason)
		return l.publishOrNack(ctx, logger, l.annotate(msg, l.InvalidTopic(), reason))
	}

	out := msg.Clone()
	out.Topic = origin
	out.ID = ""
	logger.InfoContext(ctx, "replaying dead letter", "original_topic", origin)
	return l.publishOrNack(ctx, logger, out)
}

func (l *Listener) unknownType(ctx context.Context, logger *slog.Logger, msg Message, msgType string, now time.Time) Decision {
	occurredOn, err := time.Parse(TimeLayout, msg.Header(l.cfg.Contract.OccurredOn))
	if err != nil {
		reason := fmt.Sprintf("unparsable %s header: %v", l.cfg.Contract.OccurredOn, err)
		logger.WarnContext(ctx, "routing message with unknown type to invalid topic", "type", msgType, "reason", reason)
		return l.publishOrNack(ctx, logger, l.annotate(msg, l.InvalidTopic(), reason))
	}

	age := now.Sub(occurredOn)
	if age >= l.cfg.StaleAfter {
		reason := fmt.Sprintf("no handler for type %q after %s", msgType, age.Round(time.Second))
		logger.WarnContext(ctx, "routing stale message to invalid topic", "type", msgType, "age", age.String())
		return l.publishOrNack(ctx, logger, l.annotate(msg, l.InvalidTopic(), reason))
	}

	logger.InfoContext(ctx, "no handler for message type yet, redelivering later", "type", msgType, "age", age.String())
	return Nack(l.cfg.NackDelay)
}

func (l *Listener) retry(ctx context.Context, logger *slog.Logger, msg Message, cause error, now time.Time) Decision {
	attempt := Attempt(l.cfg.Topic, msg.Topic)
	out := l.annotate(msg, "", cause.Error())
	if out.Header(HeaderOriginalTopic) == "" {
		out.Headers[HeaderOriginalTopic] = l.cfg.Topic
	}

	switch {
	case l.nonRetryable(cause):
		out.Topic = l.DeadLetterTopic()
		delete(out.Headers, HeaderRetryNotBefore)
		logger.ErrorContext(ctx, "message failed permanently, dead-lettering", "attempt", attempt, "error", cause)
	case attempt >= l.cfg.MaxAttempts:
		out.Topic = l.DeadLetterTopic()
		delete(out.Headers, HeaderRetryNotBefore)
		logger.ErrorContext(ctx, "retries exhausted, dead-lettering", "attempt", attempt, "error", cause)
	default:
		n := attempt - 1
		delay := l.Backoff(n)
		out.Topic = RetryTopic(l.cfg.Topic, n)
		out.Headers[HeaderRetryNotBefore] = now.Add(delay).UTC().Format(TimeLayout)
		logger.WarnContext(ctx, "message failed, scheduling retry", "attempt", attempt, "retry_topic", out.Topic, "backoff", delay.String(), "error", cause)
	}
	return l.publishOrNack(ctx, logger, out)
}

func (l *Listener) nonRetryable(err error) bool {
	if IsPermanent(err) || errors.Is(err, ErrMalformedMessage) {
		return true
	}
	return l.cfg.NonRetryable != nil && l.cfg.NonRetryable(err)
}

func (l *Listener) annotate(msg Message, topic, reason string) Message {
	out := msg.Clone()
	out.ID = ""
	if topic != "" {
		out.Topic = topic
	}
	out.Headers[HeaderErrorMessage] = reason
	return out
}

func (l *Listener) publishOrNack(ctx context.Context, logger *slog.Logger, msg Message) Decision {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.PublishTimeout)
	defer cancel()
	if err := l.publisher.Publish(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "failed to publish, redelivering later", "destination", msg.Topic, "error", err)
		return Nack(l.cfg.NackDelay)
	}
	return Ack()
}
