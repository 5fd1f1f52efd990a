package web

import (
	"errors"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/uploads"
	"github.com/dukex/chatflow/pkg/validation"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ValidationProblem is a problem document carrying every failing field.
type ValidationProblem struct {
	*problems.Problem

	Errors validation.Errors `json:"errors"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func fieldErrors(c fiber.Ctx, status int, problemType string, errs validation.Errors) error {
	problem := ValidationProblem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(problemType).
			WithDetail(errs.Error()),
		Errors: errs,
	}

	return c.Status(status).JSON(problem)
}

// handleServiceError maps service layer errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var unknownType *models.UnknownNodeTypeError

	switch {
	case services.IsConflictError(err):
		if errs := services.ValidationErrors(err); len(errs) > 0 {
			return fieldErrors(c, fiber.StatusConflict, "active_flow_invalid", errs)
		}

		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsValidationError(err):
		if errs := services.ValidationErrors(err); len(errs) > 0 {
			return fieldErrors(c, fiber.StatusBadRequest, "validation_error", errs)
		}

		return badRequest(c, err.Error())

	case errors.As(err, &unknownType):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrFlowNotFound):
		return notFound(c, "flow_not_found", "flow not found")

	case errors.Is(err, services.ErrExecutionNotFound):
		return notFound(c, "execution_not_found", "execution not found")

	case errors.Is(err, services.ErrNodeNotFound):
		return notFound(c, "node_not_found", "node not found")

	case errors.Is(err, services.ErrEdgeNotFound):
		return notFound(c, "edge_not_found", "edge not found")

	default:
		return internalError(c, err)
	}
}

// handleUploadError maps upload rejections to problem responses.
func handleUploadError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, uploads.ErrUnknownKind),
		errors.Is(err, uploads.ErrExtensionNotAllowed),
		errors.Is(err, uploads.ErrEmptyFile):
		return badRequest(c, err.Error())

	case errors.Is(err, uploads.ErrTooLarge):
		problem := problems.NewStatusProblem(413).
			WithInstance(c.Path()).
			WithType("file_too_large").
			WithDetail(err.Error())

		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(problem)

	default:
		return internalError(c, err)
	}
}
