package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runtime feeds inbound events from the bus into the engine and resumes
// elapsed delays.
type Runtime struct {
	logger      *slog.Logger
	engine      *engine.Engine
	eventBus    eventbus.EventSubscriber
	scheduler   *engine.DelayScheduler
	metricsAddr string
}

func NewRuntime(
	logger *slog.Logger,
	flowEngine *engine.Engine,
	eventBus eventbus.EventSubscriber,
	scheduler *engine.DelayScheduler,
	metricsAddr string,
) *Runtime {
	return &Runtime{
		logger:      logger.With("module", "chatflow-runtime"),
		engine:      flowEngine,
		eventBus:    eventBus,
		scheduler:   scheduler,
		metricsAddr: metricsAddr,
	}
}

// Start runs until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting chatflow runtime")

	if err := r.eventBus.Handle(events.MessageReceivedEvent, r.handleInbound); err != nil {
		return err
	}

	if err := r.eventBus.Handle(events.ButtonTappedEvent, r.handleInbound); err != nil {
		return err
	}

	if err := r.eventBus.Subscribe(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if err := r.scheduler.Start(ctx); err != nil {
		return err
	}

	server := r.metricsServer()

	go func() {
		r.logger.InfoContext(ctx, "Serving metrics", "addr", r.metricsAddr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()

	r.logger.InfoContext(ctx, "Runtime started successfully")

	<-ctx.Done()
	r.logger.Info("Shutting down runtime...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.scheduler.Stop(shutdownCtx); err != nil {
		r.logger.Error("Failed to stop delay scheduler", "error", err)
	}

	return server.Shutdown(shutdownCtx)
}

func (r *Runtime) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              r.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// handleInbound runs one inbound event. Malformed events are dropped; other
// failures are returned so the bus redelivers the event.
func (r *Runtime) handleInbound(ctx context.Context, event any) error {
	var inbound models.InboundEvent

	switch e := event.(type) {
	case *events.MessageReceived:
		inbound = e.Inbound
	case *events.ButtonTapped:
		inbound = e.Inbound
	default:
		r.logger.ErrorContext(ctx, "Invalid event type for inbound handler")

		return nil
	}

	logger := r.logger.With(
		"subscriber_id", inbound.SubscriberID,
		"channel", inbound.Channel,
		"type", inbound.Type,
	)

	result, err := r.engine.HandleInbound(ctx, inbound)
	if errors.Is(err, engine.ErrInvalidInbound) {
		logger.WarnContext(ctx, "Dropping invalid inbound event", "error", err)

		return nil
	}

	if err != nil {
		logger.ErrorContext(ctx, "Failed to handle inbound event", "error", err)

		return err
	}

	logger.DebugContext(ctx, "Inbound event handled", "outcome", result.Outcome, "execution_id", result.ExecutionID)

	return nil
}
