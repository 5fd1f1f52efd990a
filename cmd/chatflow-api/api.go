// Package main provides the Chatflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/uploads"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	uploader    *uploads.Uploader
	mediaRoot   string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	publisher eventbus.EventPublisher,
	uploader *uploads.Uploader,
	mediaRoot string,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		publisher:   publisher,
		uploader:    uploader,
		mediaRoot:   mediaRoot,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	flowService := services.NewFlow(a.persistence, a.registry, a.logger)
	executionService := services.NewExecution(a.persistence)

	handlers := web.NewAPIHandlers(
		flowService,
		executionService,
		a.validate,
		a.registry,
		a.publisher,
		a.uploader,
		a.mediaRoot,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Chatflow API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Patch("/:id", handlers.UpdateFlow)
	f.Post("/:id/activate", handlers.ActivateFlow)
	f.Post("/:id/deactivate", handlers.DeactivateFlow)
	f.Put("/:id/graph", handlers.ReplaceGraph)
	f.Get("/:id/connectivity", handlers.GetConnectivity)
	f.Get("/:id/executions", handlers.GetFlowExecutions)

	// Node and edge endpoints:
	f.Post("/:id/nodes", handlers.CreateNode)
	f.Put("/:id/nodes/:nodeId", handlers.UpdateNode)
	f.Delete("/:id/nodes/:nodeId", handlers.DeleteNode)
	f.Post("/:id/edges", handlers.CreateEdge)
	f.Delete("/:id/edges/:edgeId", handlers.DeleteEdge)

	app.Get("/executions/:id", handlers.GetExecution)

	app.Get("/node-types", handlers.GetNodeTypes)
	app.Post("/node-types/:type/validate", handlers.ValidateDraft)

	e := app.Group("/events")
	e.Post("/messages", handlers.ReceiveMessage)
	e.Post("/taps", handlers.ReceiveTap)

	app.Post("/uploads/:kind", handlers.Upload)
	app.Get("/media/*", handlers.ServeMedia)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
