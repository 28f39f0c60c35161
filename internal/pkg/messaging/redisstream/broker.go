// Package redisstream implements the messaging protocol on Redis Streams.
//
// Every topic is split into a fixed number of partition streams. Records are
// assigned a partition by hashing their key, so records sharing a key (an
// aggregate id, a customer) are consumed in order by a single worker.
// Consumption goes through a consumer group: a record stays in the worker's
// pending list until it is acknowledged, and a negative acknowledgment simply
// leaves it there to be read again once the delay has elapsed. Records left
// pending by a consumer that went away are claimed by a live worker once they
// have been idle for longer than ClaimIdle.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
)

const (
	fieldTopic   = "topic"
	fieldKey     = "key"
	fieldPayload = "payload"
	headerPrefix = "h:"
)

// ProcessFunc is called for every record read from a stream.
type ProcessFunc func(ctx context.Context, msg messaging.Message) messaging.Decision

type Options struct {
	// Partitions is the number of streams per topic. Defaults to 1.
	Partitions int
	// Block is how long one read waits for new records.
	Block time.Duration
	// MaxLen caps each stream approximately; zero keeps everything.
	MaxLen int64
	// Consumer prefixes the consumer names of this process. It must survive
	// restarts; defaults to the hostname.
	Consumer string
	// ClaimIdle is how long a record may sit unacknowledged in another
	// consumer's pending list before a worker claims it. Defaults to 1m and
	// must exceed the longest negative acknowledgment delay.
	ClaimIdle time.Duration
	Logger    *slog.Logger
}

type Broker struct {
	client redis.UniversalClient
	opts   Options
	logger *slog.Logger
}

func New(client redis.UniversalClient, opts Options) *Broker {
	if opts.Partitions <= 0 {
		opts.Partitions = 1
	}
	if opts.Block <= 0 {
		opts.Block = time.Second
	}
	if opts.Consumer == "" {
		opts.Consumer = defaultConsumer()
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broker{client: client, opts: opts, logger: opts.Logger}
}

// Publish appends msg to the partition stream its key hashes to.
func (b *Broker) Publish(ctx context.Context, msg messaging.Message) error {
	values := map[string]any{
		fieldTopic:   msg.Topic,
		fieldKey:     msg.Key,
		fieldPayload: msg.Payload,
	}
	for name, value := range msg.Headers {
		values[headerPrefix+name] = value
	}

	args := &redis.XAddArgs{
		Stream: b.StreamName(msg.Topic, b.partition(msg.Key)),
		Values: values,
	}
	if b.opts.MaxLen > 0 {
		args.MaxLen = b.opts.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisstream: publish to %s: %w", args.Stream, err)
	}
	return nil
}

// StreamName is the Redis key of one partition of topic.
func (b *Broker) StreamName(topic string, partition int) string {
	if b.opts.Partitions == 1 {
		return topic
	}
	return fmt.Sprintf("%s:%d", topic, partition)
}

func (b *Broker) streams(topic string) []string {
	out := make([]string, b.opts.Partitions)
	for p := range out {
		out[p] = b.StreamName(topic, p)
	}
	return out
}

func (b *Broker) partition(key string) int {
	if b.opts.Partitions == 1 || key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.opts.Partitions))
}

// Len counts the records of every partition of topic.
func (b *Broker) Len(ctx context.Context, topic string) (int64, error) {
	var total int64
	for _, stream := range b.streams(topic) {
		n, err := b.client.XLen(ctx, stream).Result()
		if err != nil {
			return 0, fmt.Errorf("redisstream: length of %s: %w", stream, err)
		}
		total += n
	}
	return total, nil
}

// Consume reads topics through group until ctx is cancelled. Each topic gets
// up to workers goroutines; a partition is always owned by exactly one of
// them, so more workers than partitions are never started.
func (b *Broker) Consume(ctx context.Context, group string, topics []string, workers int, process ProcessFunc) error {
	if workers <= 0 {
		workers = 1
	}
	if workers > b.opts.Partitions {
		b.logger.Warn("more workers than partitions requested, capping",
			"group", group, "workers", workers, "partitions", b.opts.Partitions)
		workers = b.opts.Partitions
	}

	for _, topic := range topics {
		if err := b.ensureGroup(ctx, group, b.streams(topic)); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		for w := 0; w < workers; w++ {
			var owned []string
			for p := w; p < b.opts.Partitions; p += workers {
				owned = append(owned, b.StreamName(topic, p))
			}
			consumer := fmt.Sprintf("%s-%d", b.opts.Consumer, w)
			g.Go(func() error {
				return b.work(ctx, group, consumer, owned, process)
			})
		}
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Broker) work(ctx context.Context, group, consumer string, streams []string, process ProcessFunc) error {
	logger := b.logger.With("group", group, "consumer", consumer, "streams", strings.Join(streams, ","))
	logger.Info("stream worker started")
	defer logger.Info("stream worker stopped")

	var lastClaim time.Time
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= b.opts.ClaimIdle/2 {
			lastClaim = time.Now()
			if n, err := b.claim(ctx, group, consumer, streams); err != nil && ctx.Err() == nil {
				logger.Error("failed to claim idle records", "error", err)
			} else if n > 0 {
				logger.Warn("claimed idle records", "count", n)
			}
		}

		stream, x, found, err := b.next(ctx, group, consumer, streams)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("failed to read stream", "error", err)
			if isNoGroup(err) {
				_ = b.ensureGroup(ctx, group, streams)
			}
			sleep(ctx, time.Second)
			continue
		}
		if !found {
			continue
		}

		msg := decode(stream, x)
		decision := process(ctx, msg)
		if decision.Ack {
			if err := b.client.XAck(ctx, stream, group, x.ID).Err(); err != nil && ctx.Err() == nil {
				logger.Error("failed to acknowledge record", "stream", stream, "id", x.ID, "error", err)
			}
			continue
		}
		sleep(ctx, decision.Delay)
	}
	return ctx.Err()
}

// next returns the oldest record this consumer has not acknowledged yet, or
// failing that a new one. Reading the pending list first is what makes a
// negative acknowledgment redeliver the same record.
func (b *Broker) next(ctx context.Context, group, consumer string, streams []string) (string, redis.XMessage, bool, error) {
	stream, x, found, err := b.read(ctx, group, consumer, streams, "0", -1)
	if err != nil || found {
		return stream, x, found, err
	}
	return b.read(ctx, group, consumer, streams, ">", b.opts.Block)
}

// claim moves records idle for longer than ClaimIdle from any consumer of
// group into consumer's pending list, where next picks them up first.
func (b *Broker) claim(ctx context.Context, group, consumer string, streams []string) (int, error) {
	claimed := 0
	for _, stream := range streams {
		start := "0-0"
		for {
			msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    group,
				Consumer: consumer,
				MinIdle:  b.opts.ClaimIdle,
				Start:    start,
				Count:    100,
			}).Result()
			if err != nil {
				return claimed, fmt.Errorf("redisstream: claim on %s: %w", stream, err)
			}
			claimed += len(msgs)
			if next == "0-0" || next == "" {
				break
			}
			start = next
		}
	}
	return claimed, nil
}

func (b *Broker) read(ctx context.Context, group, consumer string, streams []string, id string, block time.Duration) (string, redis.XMessage, bool, error) {
	args := make([]string, 0, 2*len(streams))
	args = append(args, streams...)
	for range streams {
		args = append(args, id)
	}
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", redis.XMessage{}, false, nil
	}
	if err != nil {
		return "", redis.XMessage{}, false, err
	}
	for _, s := range res {
		if len(s.Messages) > 0 {
			return s.Stream, s.Messages[0], true, nil
		}
	}
	return "", redis.XMessage{}, false, nil
}

// Drain processes what is currently in every partition of topic once and
// returns. It stops at the first negative acknowledgment, leaving that record
// pending for the next drain.
func (b *Broker) Drain(ctx context.Context, group, topic string, process ProcessFunc) (int, error) {
	streams := b.streams(topic)
	if err := b.ensureGroup(ctx, group, streams); err != nil {
		return 0, err
	}
	consumer := b.opts.Consumer + "-drain"

	processed := 0
	for {
		stream, x, found, err := b.read(ctx, group, consumer, streams, "0", -1)
		if err == nil && !found {
			stream, x, found, err = b.read(ctx, group, consumer, streams, ">", -1)
		}
		if err != nil {
			return processed, fmt.Errorf("redisstream: drain %s: %w", topic, err)
		}
		if !found {
			return processed, nil
		}

		decision := process(ctx, decode(stream, x))
		if !decision.Ack {
			return processed, fmt.Errorf("redisstream: drain %s halted at %s, retry in %s", topic, x.ID, decision.Delay)
		}
		if err := b.client.XAck(ctx, stream, group, x.ID).Err(); err != nil {
			return processed, fmt.Errorf("redisstream: acknowledge %s on %s: %w", x.ID, stream, err)
		}
		processed++
	}
}

func (b *Broker) ensureGroup(ctx context.Context, group string, streams []string) error {
	for _, stream := range streams {
		err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("redisstream: create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func decode(stream string, x redis.XMessage) messaging.Message {
	msg := messaging.Message{
		Topic:   stream,
		ID:      x.ID,
		Headers: make(map[string]string),
	}
	for field, raw := range x.Values {
		value := fmt.Sprint(raw)
		switch {
		case field == fieldTopic:
			msg.Topic = value
		case field == fieldKey:
			msg.Key = value
		case field == fieldPayload:
			msg.Payload = []byte(value)
		case strings.HasPrefix(field, headerPrefix):
			msg.Headers[strings.TrimPrefix(field, headerPrefix)] = value
		}
	}
	return msg
}

func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "order-worker"
	}
	return host
}

func isNoGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "NOGROUP")
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
