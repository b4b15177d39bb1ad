// Package web provides HTTP handlers and REST API endpoints for generation jobs.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flowforge/flowforge/pkg/discovery"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/validator"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	jobService     *services.Jobs
	costService    *services.Costs
	graphValidator *validator.Validator
	registry       *templates.Registry
	discovery      discovery.Service
	logger         *slog.Logger
}

// NewAPIHandlers wires the handlers. discovery may be nil when no discovery service is configured.
func NewAPIHandlers(
	jobService *services.Jobs,
	costService *services.Costs,
	graphValidator *validator.Validator,
	registry *templates.Registry,
	discovery discovery.Service,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		jobService:     jobService,
		costService:    costService,
		graphValidator: graphValidator,
		registry:       registry,
		discovery:      discovery,
		logger:         logger.With("module", "api_handlers"),
	}
}

func (h *APIHandlers) SubmitJob(c fiber.Ctx) error {
	var req SubmitJobRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	job, err := h.jobService.Submit(c.Context(), req.ToSubmission())
	if err != nil {
		// A stored job that could not be dispatched is still accepted; a worker may pick it up later.
		if job == nil {
			return handleServiceError(c, err)
		}

		h.logger.WarnContext(c.Context(), "Job accepted without dispatch", "job_id", job.ID, "error", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitJobResponse{
		ID:     job.ID,
		Status: job.Status,
	})
}

func (h *APIHandlers) GetJobStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Job ID is required")
	}

	view, err := h.jobService.Status(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) GetJobArtifact(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Job ID is required")
	}

	artifact, err := h.jobService.Artifact(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(artifact)
}

func (h *APIHandlers) GetCostSummary(c fiber.Ctx) error {
	report, err := h.costService.Report(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(report)
}

// ValidateWorkflow runs the graph validator against a workflow posted by the client.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var graph models.WorkflowGraph
	if err := c.Bind().JSON(&graph); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result := h.graphValidator.Validate(c.Context(), &graph)
	if result.Errors == nil {
		result.Errors = []string{}
	}

	status := fiber.StatusOK
	if !result.Valid {
		status = fiber.StatusUnprocessableEntity
	}

	return c.Status(status).JSON(result)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.jobService.HealthCheck(c.Context())
	discoveryCheck, discoveryOk := h.discoveryCheck(c)

	response := HealthResponse{
		Status:  "unhealthy",
		Message: "FlowForge API is unhealthy",
		Checkers: map[string]string{
			"registry":   registryCheck,
			"repository": repositoryCheck,
			"discovery":  discoveryCheck,
		},
		Timestamp: time.Now().UTC(),
	}

	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		httpStatus = http.StatusOK
		response.Status = "healthy"
		response.Message = "FlowForge API is healthy"

		// Generation falls back to blueprints without discovery, so it only degrades the service.
		if !discoveryOk {
			response.Status = "degraded"
			response.Message = "FlowForge API is degraded: workflows are assembled from blueprints only"
		}
	}

	return c.Status(httpStatus).JSON(response)
}

func (h *APIHandlers) discoveryCheck(c fiber.Ctx) (string, bool) {
	if h.discovery == nil {
		return "Discovery service not configured", true
	}

	if err := h.discovery.Ping(c.Context()); err != nil {
		return "Discovery service is unreachable: " + err.Error(), false
	}

	return "Discovery service is reachable", true
}
