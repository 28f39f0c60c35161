package bootstrap

import (
	"time"

	"github.com/jcmexdev/ecommerce-orders/internal/pkg/config"
)

// Config is shared by the order-api and order-worker processes.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr  string `env:"GRPC_ADDR" envDefault:":9090"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DBPath    string `env:"DB_PATH" envDefault:"orders.db"`

	CommandsTopic       string `env:"ORDER_COMMANDS_TOPIC" envDefault:"order-commands"`
	ExternalEventsTopic string `env:"ORDER_EXTERNAL_EVENTS_TOPIC" envDefault:"order-external-events"`
	EventsTopic         string `env:"ORDER_EVENTS_TOPIC" envDefault:"order-events"`
	ConsumerGroup       string `env:"CONSUMER_GROUP" envDefault:"order-service"`

	ListenerConcurrency int           `env:"LISTENER_CONCURRENCY" envDefault:"4"`
	ListenerMaxAttempts int           `env:"LISTENER_MAX_ATTEMPTS" envDefault:"4"`
	StreamPartitions    int           `env:"STREAM_PARTITIONS" envDefault:"4"`
	StreamBlock         time.Duration `env:"STREAM_BLOCK" envDefault:"1s"`
	StreamConsumer      string        `env:"STREAM_CONSUMER"`
	StreamClaimIdle     time.Duration `env:"STREAM_CLAIM_IDLE" envDefault:"1m"`
	PublishTimeout      time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"1m"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"order-service"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
