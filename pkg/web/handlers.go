package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/uploads"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	flowService      *services.Flow
	executionService *services.Execution
	validator        *validator.Validate
	registry         *registry.Registry
	publisher        eventbus.EventPublisher
	uploader         *uploads.Uploader
	mediaRoot        string
}

// NewAPIHandlers wires the handlers. uploader may be nil, in which case the
// upload and media endpoints answer 404.
func NewAPIHandlers(
	flowService *services.Flow,
	executionService *services.Execution,
	validator *validator.Validate,
	registry *registry.Registry,
	publisher eventbus.EventPublisher,
	uploader *uploads.Uploader,
	mediaRoot string,
) *APIHandlers {
	return &APIHandlers{
		flowService:      flowService,
		executionService: executionService,
		validator:        validator,
		registry:         registry,
		publisher:        publisher,
		uploader:         uploader,
		mediaRoot:        mediaRoot,
	}
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	req, err := h.parseListFlowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.flowService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":         result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListFlowsRequest parses query parameters for listing flows.
func (h *APIHandlers) parseListFlowsRequest(c fiber.Ctx) (*services.ListFlowsRequest, error) {
	req := &services.ListFlowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.Owner = c.Query("owner")

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.Active = &active
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), services.CreateFlowRequest{
		Owner:          req.Owner,
		Name:           req.Name,
		TriggerKeyword: req.TriggerKeyword,
		MatchType:      req.MatchType,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.flowService.Update(c.Context(), c.Params("id"), services.UpdateFlowRequest{Name: req.Name})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	flow, err := h.flowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) DeactivateFlow(c fiber.Ctx) error {
	flow, err := h.flowService.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) GetConnectivity(c fiber.Ctx) error {
	issues, err := h.flowService.Connectivity(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if issues == nil {
		issues = []models.ConnectivityIssue{}
	}

	return c.JSON(fiber.Map{
		"connected": len(issues) == 0,
		"issues":    issues,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	nodeTypes := len(h.registry.List())
	registryCheck, regOk := strconv.Itoa(nodeTypes)+" node types", nodeTypes > 0
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Chatflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Chatflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
