// Package bootstrap assembles the order service from its configuration. Both
// binaries build one App: order-api serves HTTP from it and order-worker runs
// its listeners and outbox relay.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/infra/adapters/service"
	"github.com/jcmexdev/ecommerce-orders/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/gateways"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/listeners"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/outbox"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/messaging/redisstream"
)

// App holds every long-lived component of the order service.
type App struct {
	cfg    Config
	logger *slog.Logger

	redis  redis.UniversalClient
	store  *sqlite.EventStore
	broker *redisstream.Broker

	commandBus *messaging.CommandBus
	eventBus   *messaging.EventBus
	getOrder   *app.GetOrderHandler

	commandListener *messaging.Listener
	eventsListener  *messaging.Listener
	relay           *outbox.Relay
}

// New opens the event store and the Redis connection and wires the handlers
// on top of them. Close releases both.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis %s: %w", cfg.RedisAddr, err)
	}

	registry := domain.DefaultRegistry()
	store, err := sqlite.Open(cfg.DBPath, registry)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: event store: %w", err)
	}

	broker := redisstream.New(client, redisstream.Options{
		Partitions: cfg.StreamPartitions,
		Block:      cfg.StreamBlock,
		Consumer:   cfg.StreamConsumer,
		ClaimIdle:  cfg.StreamClaimIdle,
		Logger:     logger.With("component", "redisstream"),
	})

	lookups := cache.NewRedisCache(client, cfg.ServiceName)
	coupons := gateways.NewCachedCoupons(gateways.NewCouponService(logger), lookups, cfg.CacheTTL, logger)
	customers := gateways.NewCachedCustomers(gateways.NewCustomerService(), lookups, cfg.CacheTTL, logger)
	products := gateways.NewProductCatalog(logger)

	create := app.NewCreateOrderHandler(coupons, customers, products, store, logger)
	shipping := app.NewShippingCostHandler(store, logger)
	payment := app.NewPaymentTaxHandler(store, logger)

	listenerLogger := logger.With("component", "listener")
	a := &App{
		cfg:        cfg,
		logger:     logger,
		redis:      client,
		store:      store,
		broker:     broker,
		commandBus: messaging.NewCommandBus(broker, cfg.PublishTimeout, logger),
		eventBus:   messaging.NewEventBus(broker, cfg.PublishTimeout),
		getOrder:   app.NewGetOrderHandler(store),
	}
	a.commandListener = listeners.NewCommandListener(create, broker, listeners.Config{
		Topic:          cfg.CommandsTopic,
		MaxAttempts:    cfg.ListenerMaxAttempts,
		PublishTimeout: cfg.PublishTimeout,
		Logger:         listenerLogger,
	})
	a.eventsListener = listeners.NewExternalEventsListener(shipping, payment, broker, registry, listeners.Config{
		Topic:          cfg.ExternalEventsTopic,
		MaxAttempts:    cfg.ListenerMaxAttempts,
		PublishTimeout: cfg.PublishTimeout,
		Logger:         listenerLogger,
	})
	a.relay = outbox.NewRelay(store, a.eventBus, outbox.Config{
		Topic:        cfg.EventsTopic,
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		Logger:       logger.With("component", "outbox"),
	})
	return a, nil
}

func (a *App) Close() error {
	return errors.Join(a.store.Close(), a.redis.Close())
}

// HTTPHandler is the order API.
func (a *App) HTTPHandler() http.Handler {
	svc := service.NewOrderService(a.commandBus, a.eventBus, a.getOrder, a.cfg.CommandsTopic, a.logger)
	return httpx.NewRouter(httpx.NewHandler(svc, a.logger))
}

// Listeners returns the command and external events listeners.
func (a *App) Listeners() []*messaging.Listener {
	return []*messaging.Listener{a.commandListener, a.eventsListener}
}

// RunWorker consumes every listener's topics, relays the outbox and serves
// gRPC health checks until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	var lis net.Listener
	if a.cfg.GRPCAddr != "" {
		var err error
		lis, err = net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("bootstrap: listen %s: %w", a.cfg.GRPCAddr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range a.Listeners() {
		g.Go(func() error {
			a.logger.InfoContext(ctx, "listener started", "listener", l.Name(), "topics", l.Topics())
			return a.broker.Consume(ctx, a.cfg.ConsumerGroup, l.Topics(), a.cfg.ListenerConcurrency, l.Process)
		})
	}
	g.Go(func() error {
		return a.relay.Run(ctx)
	})

	if lis != nil {
		grpcServer, healthServer := a.newGRPCServer()
		g.Go(func() error {
			a.logger.InfoContext(ctx, "worker gRPC health running", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("bootstrap: serve grpc: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

func (a *App) newGRPCServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.RequestIDUnaryServerInterceptor(a.logger)),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, l := range a.Listeners() {
		healthServer.SetServingStatus(l.Name(), healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer, healthServer
}

// ReplayDeadLetters sends every record currently on the dead-letter topic of
// the named listener back to the topic it failed on. It returns how many
// records were replayed.
func (a *App) ReplayDeadLetters(ctx context.Context, listenerName string) (int, error) {
	for _, l := range a.Listeners() {
		if l.Name() != listenerName {
			continue
		}
		n, err := a.broker.Drain(ctx, a.cfg.ConsumerGroup+"-dlt-replay", l.DeadLetterTopic(), l.ReplayDeadLetter)
		if err != nil {
			return n, err
		}
		a.logger.InfoContext(ctx, "dead letters replayed", "listener", listenerName, "topic", l.DeadLetterTopic(), "count", n)
		return n, nil
	}
	return 0, fmt.Errorf("bootstrap: unknown listener %q", listenerName)
}

// OutboxStatus counts outbox entries per status.
func (a *App) OutboxStatus(ctx context.Context) (map[sqlite.OutboxStatus]int, error) {
	return a.store.OutboxSummary(ctx)
}
