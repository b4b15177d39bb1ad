// Package main provides the FlowForge API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	pipeline    *cmd.Pipeline
	eventBus    eventbus.EventBus
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	pipeline *cmd.Pipeline,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		pipeline:    pipeline,
		eventBus:    eventBus,
	}
}

func (a *API) App() *fiber.App {
	jobService := services.NewJobs(a.persistence, a.eventBus, a.logger)

	// The API process records no AI calls itself; with a shared sink it reports what the workers logged.
	var loader services.CostLoader
	if a.pipeline.CostSink != nil {
		loader = a.pipeline.CostSink
	}

	costService := services.NewCosts(a.pipeline.CostConfig(), a.pipeline.Monitor, loader, a.logger)

	handlers := web.NewAPIHandlers(
		jobService,
		costService,
		a.pipeline.Validator,
		a.pipeline.Registry,
		a.pipeline.Discovery,
		a.logger,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowForge API")
	})

	j := app.Group("/jobs")
	j.Post("/", handlers.SubmitJob)
	j.Get("/:id", handlers.GetJobStatus)
	j.Get("/:id/artifact", handlers.GetJobArtifact)

	app.Get("/costs/summary", handlers.GetCostSummary)
	app.Post("/workflows/validate", handlers.ValidateWorkflow)
	app.Get("/health", handlers.HealthCheck)

	return app
}

// StartEmbeddedWorker processes submitted jobs inside the API process, for single-node
// deployments running on the in-memory event bus.
func (a *API) StartEmbeddedWorker(ctx context.Context, workerID string) error {
	processor := a.pipeline.Processor(a.persistence, a.eventBus, nil, workerID)

	err := a.eventBus.Handle(events.JobSubmittedEvent, processor.HandleSubmitted)
	if err != nil {
		return err
	}

	return a.eventBus.Subscribe(ctx)
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
