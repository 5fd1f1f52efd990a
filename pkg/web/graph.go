package web

import (
	"bytes"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/validation"
	"github.com/gofiber/fiber/v3"
)

// decodeNode checks the raw payload against the node type schema before
// decoding it, so each wrongly typed field is reported on its own.
func (h *APIHandlers) decodeNode(req NodeRequest) (*models.Node, error) {
	raw := req.Data
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	schemaErrors, err := h.registry.ValidateRaw(req.NodeType, raw)
	if err != nil {
		return nil, err
	}

	if len(schemaErrors) > 0 {
		errs := make(validation.Errors, len(schemaErrors))
		for i, schemaErr := range schemaErrors {
			errs[i] = validation.FieldError{Field: schemaErr.Field, Reason: schemaErr.Reason}
		}

		return nil, errs
	}

	data, err := models.DecodeNodeData(req.NodeType, raw)
	if err != nil {
		return nil, services.NewValidationError("DecodeNode", "INVALID_NODE", err.Error(), services.ErrInvalidRequest)
	}

	return &models.Node{
		ID:       req.ID,
		Type:     req.NodeType,
		Position: req.Position,
		Data:     data,
	}, nil
}

func (h *APIHandlers) bindNode(c fiber.Ctx) (*models.Node, error) {
	var req NodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, services.NewValidationError("BindNode", "INVALID_JSON", "Invalid JSON format", services.ErrInvalidRequest)
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, services.NewValidationError("BindNode", "INVALID_REQUEST", err.Error(), services.ErrInvalidRequest)
	}

	return h.decodeNode(req)
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	node, err := h.bindNode(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	saved, err := h.flowService.SaveNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

// UpdateNode replaces a node. The id in the path wins over the body.
func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	node, err := h.bindNode(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	node.ID = c.Params("nodeId")

	saved, err := h.flowService.SaveNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	if err := h.flowService.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateEdge(c fiber.Ctx) error {
	var req EdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	edge, err := h.flowService.AddEdge(c.Context(), c.Params("id"), req.edge())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) DeleteEdge(c fiber.Ctx) error {
	if err := h.flowService.DeleteEdge(c.Context(), c.Params("id"), c.Params("edgeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ReplaceGraph saves the whole editor canvas at once.
func (h *APIHandlers) ReplaceGraph(c fiber.Ctx) error {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var errs validation.Errors

	nodes := make([]*models.Node, 0, len(req.Nodes))

	for _, nodeReq := range req.Nodes {
		node, err := h.decodeNode(nodeReq)
		if err != nil {
			fieldErrs, ok := validation.AsErrors(err)
			if !ok {
				return handleServiceError(c, fmt.Errorf("node %s: %w", nodeReq.ID, err))
			}

			errs = append(errs, fieldErrs.Prefix(fmt.Sprintf("nodes[%s]", nodeReq.ID))...)

			continue
		}

		nodes = append(nodes, node)
	}

	if len(errs) > 0 {
		return fieldErrors(c, fiber.StatusBadRequest, "validation_error", errs)
	}

	edges := make([]*models.Edge, len(req.Edges))
	for i, edgeReq := range req.Edges {
		edges[i] = edgeReq.edge()
	}

	flow, err := h.flowService.ReplaceGraph(c.Context(), c.Params("id"), nodes, edges)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}
