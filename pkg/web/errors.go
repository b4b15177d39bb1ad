package web

import (
	"errors"

	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// respond writes an RFC 7807 problem for the current request.
func respond(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps job and cost service errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	jobID := c.Params("id")

	switch {
	case services.IsValidationError(err):
		detail := err.Error()

		var serviceErr *services.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.Message != "" {
			detail = serviceErr.Message
		}

		return badRequest(c, detail)

	case services.IsConflictError(err):
		return respond(c, fiber.StatusConflict, "conflict", err.Error())

	case persistence.IsJobNotFound(err):
		return respond(c, fiber.StatusNotFound, "job_not_found", "job "+jobID+" not found")

	case persistence.IsArtifactNotFound(err):
		return respond(c, fiber.StatusNotFound, "artifact_not_found", "no artifact stored for job "+jobID)

	default:
		return internalError(c, err)
	}
}
