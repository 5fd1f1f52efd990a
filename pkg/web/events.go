package web

import (
	"time"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// ReceiveMessage publishes free text from a channel adapter to the runtime.
func (h *APIHandlers) ReceiveMessage(c fiber.Ctx) error {
	var req MessageEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.publishInbound(c, models.InboundEvent{
		Type:         models.InboundMessage,
		SubscriberID: req.SubscriberID,
		Channel:      req.Channel,
		Text:         req.Text,
	})
}

// ReceiveTap publishes a tapped choice from a channel adapter to the runtime.
func (h *APIHandlers) ReceiveTap(c fiber.Ctx) error {
	var req TapEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.publishInbound(c, models.InboundEvent{
		Type:         models.InboundTap,
		SubscriberID: req.SubscriberID,
		Channel:      req.Channel,
		ChoiceID:     req.ChoiceID,
		ExecutionID:  req.ExecutionID,
	})
}

func (h *APIHandlers) publishInbound(c fiber.Ctx, inbound models.InboundEvent) error {
	inbound.ReceivedAt = time.Now().UTC()

	event := events.NewInboundEvent(inbound)

	if err := h.publisher.Publish(c.Context(), inbound.SubscriberID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":     "accepted",
		"event_type": event.GetType(),
	})
}
