package web

import (
	"bytes"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/validation"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"node_types": h.registry.List(),
	})
}

// ValidateDraft checks an editor draft without saving it and answers with
// the normalized payload the save would store.
func (h *APIHandlers) ValidateDraft(c fiber.Ctx) error {
	nodeType := models.NodeType(c.Params("type"))

	if _, ok := h.registry.Descriptor(nodeType); !ok {
		return notFound(c, "node_type_not_found", "unknown node type "+string(nodeType))
	}

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	node, err := h.decodeNode(NodeRequest{ID: "draft", NodeType: nodeType, Data: body})
	if err != nil {
		return handleServiceError(c, err)
	}

	normalized, err := validation.Validate(nodeType, node.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DraftResponse{
		Valid: true,
		Label: validation.Label(normalized),
		Data:  normalized,
	})
}
