package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/assistant"
	"github.com/dukex/chatflow/pkg/catalog"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/messaging"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// Closer releases a resource opened by one of the constructors below.
type Closer func(ctx context.Context) error

func noopCloser(context.Context) error { return nil }

func NewRegistry(logger *slog.Logger) *registry.Registry {
	return registry.NewDefaultRegistry(logger)
}

// NewMessenger publishes outbound messages to RabbitMQ when amqpURL is set
// and only logs them otherwise.
func NewMessenger(amqpURL, exchange string, logger *slog.Logger) (engine.Messenger, Closer) {
	if amqpURL == "" {
		logger.Warn("No AMQP URL configured, outbound messages are only logged")

		return messaging.NewLogMessenger(logger), noopCloser
	}

	conn, err := messaging.NewConnection(amqpURL, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	messenger, err := messaging.NewAMQPMessenger(conn, exchange, logger)
	if err != nil {
		_ = conn.Close(context.Background())

		panic(fmt.Errorf("failed to create AMQP messenger: %w", err))
	}

	return messenger, conn.Close
}

// NewCatalog reads products from PostgreSQL when dsn is set, else from the
// JSON file at path. With neither, product nodes fail.
func NewCatalog(ctx context.Context, dsn, path string) (engine.Catalog, Closer) {
	switch {
	case dsn != "":
		pool, err := catalog.NewPool(ctx, dsn)
		if err != nil {
			panic(fmt.Errorf("failed to connect to the product catalog: %w", err))
		}

		return catalog.NewPostgres(pool), func(context.Context) error {
			pool.Close()

			return nil
		}
	case path != "":
		static, err := catalog.LoadStatic(path)
		if err != nil {
			panic(err)
		}

		return static, noopCloser
	default:
		return nil, noopCloser
	}
}

// NewAssistant returns the webhook assistant for url, or nil so AI nodes
// fail when none is configured.
func NewAssistant(url, token string, timeout time.Duration, logger *slog.Logger) engine.Assistant {
	if url == "" {
		return nil
	}

	return assistant.NewWebhook(url, token, timeout, logger)
}

// NewTracer exports spans over OTLP/HTTP when an endpoint is configured.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName, endpoint string, logger *slog.Logger) trace.Tracer {
	if endpoint == "" {
		return otelhelper.NewNoopTracer()
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create tracer, tracing disabled", "error", err)

		return otelhelper.NewNoopTracer()
	}

	return tracer
}
