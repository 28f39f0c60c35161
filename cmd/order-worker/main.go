package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-orders/internal/order-service/bootstrap"
	"github.com/jcmexdev/ecommerce-orders/internal/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "order-worker",
		Usage: "consume order commands and external events, relay stored events",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the listeners and the outbox relay",
				Action: run,
			},
			{
				Name:  "replay-dlt",
				Usage: "send a listener's dead letters back to the topic they failed on",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listener",
						Value: "order-commands-listener",
						Usage: "listener whose dead-letter topic is replayed",
					},
				},
				Action: replayDeadLetters,
			},
			{
				Name:   "outbox-status",
				Usage:  "print outbox entries per status",
				Action: outboxStatus,
			},
		},
		DefaultCommand: "run",
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("order worker failed", "error", err)
		os.Exit(1)
	}
}

// withApp loads the configuration and runs fn against a ready App.
func withApp(c *cli.Context, fn func(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := telemetry.InitLogger(cfg.LogLevel)

	shutdown, err := telemetry.SetupTracer(c.Context, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName + "-worker",
		Endpoint:    cfg.OTLPEndpoint,
		Disabled:    !cfg.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("initialise tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	app, err := bootstrap.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(c.Context, app, logger)
}

func run(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error {
		logger.Info("order worker running")
		if err := app.RunWorker(ctx); err != nil {
			return err
		}
		logger.Info("order worker stopped")
		return nil
	})
}

func replayDeadLetters(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error {
		n, err := app.ReplayDeadLetters(ctx, c.String("listener"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "replayed %d dead letters\n", n)
		return nil
	})
}

func outboxStatus(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error {
		summary, err := app.OutboxStatus(ctx)
		if err != nil {
			return err
		}
		statuses := make([]sqlite.OutboxStatus, 0, len(summary))
		for status := range summary {
			statuses = append(statuses, status)
		}
		slices.Sort(statuses)
		for _, status := range statuses {
			fmt.Fprintf(c.App.Writer, "%-10s %d\n", status, summary[status])
		}
		return nil
	})
}
