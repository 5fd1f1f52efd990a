// Package main runs the chatflow runtime: it consumes inbound subscriber
// events and executes flows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/assistant"
	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/messaging"
	"github.com/dukex/chatflow/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:                  "chatflow-runtime",
		EnableShellCompletion: true,
		Usage:                 "Execute chatbot flows for inbound subscriber events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "amqp-url",
				Usage:   "RabbitMQ URL outbound messages are published to; empty logs them",
				Sources: cli.EnvVars("AMQP_URL"),
			},
			&cli.StringFlag{
				Name:    "amqp-exchange",
				Usage:   "Exchange outbound messages are published to",
				Value:   messaging.DefaultExchange,
				Sources: cli.EnvVars("AMQP_EXCHANGE"),
			},
			&cli.StringFlag{
				Name:    "catalog-url",
				Usage:   "PostgreSQL URL of the product catalog",
				Sources: cli.EnvVars("CATALOG_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "catalog-file",
				Usage:   "JSON product catalog used when no catalog URL is set",
				Sources: cli.EnvVars("CATALOG_FILE"),
			},
			&cli.StringFlag{
				Name:    "assistant-url",
				Usage:   "Webhook answering AI nodes",
				Sources: cli.EnvVars("ASSISTANT_URL"),
			},
			&cli.StringFlag{
				Name:    "assistant-token",
				Usage:   "Bearer token sent to the assistant webhook",
				Sources: cli.EnvVars("ASSISTANT_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "assistant-timeout",
				Usage:   "Timeout of one assistant call",
				Value:   assistant.DefaultTimeout,
				Sources: cli.EnvVars("ASSISTANT_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "delay-schedule",
				Usage:   "Cron schedule polling for elapsed delays",
				Value:   engine.DefaultDelaySchedule,
				Sources: cli.EnvVars("DELAY_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Node steps one event may run before the execution fails",
				Value:   engine.DefaultMaxSteps,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address serving /metrics and /healthz",
				Value:   ":9092",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "OTLP/HTTP collector endpoint; empty disables tracing",
				Sources: cli.EnvVars("OTEL_EXPORTER_OTLP_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("chatflow-runtime")

			logger.InfoContext(ctx, "Initializing Chatflow Runtime")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "chatflow-runtime", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			messenger, closeMessenger := cmd.NewMessenger(command.String("amqp-url"), command.String("amqp-exchange"), logger)
			defer func() {
				if err := closeMessenger(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to close messenger", "error", err)
				}
			}()

			products, closeCatalog := cmd.NewCatalog(ctx, command.String("catalog-url"), command.String("catalog-file"))
			defer func() {
				_ = closeCatalog(context.Background())
			}()

			flowEngine := engine.New(engine.Dependencies{
				Persistence: persistence,
				Messenger:   messenger,
				Catalog:     products,
				Assistant: cmd.NewAssistant(
					command.String("assistant-url"),
					command.String("assistant-token"),
					command.Duration("assistant-timeout"),
					logger,
				),
				Publisher: eventBus,
				Metrics:   metrics.New(prometheus.DefaultRegisterer),
				Tracer:    cmd.NewTracer(ctx, "chatflow-runtime", command.String("otlp-endpoint"), logger),
				Logger:    logger,
				MaxSteps:  command.Int("max-steps"),
			})

			runtime := NewRuntime(
				logger,
				flowEngine,
				eventBus,
				engine.NewDelayScheduler(flowEngine, command.String("delay-schedule"), logger),
				command.String("metrics-addr"),
			)

			if err := runtime.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Runtime stopped with error", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
