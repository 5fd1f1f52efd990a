package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
)

// stepOutcome is the result of one node step: either the next node to walk
// (empty completes the execution) or a suspension.
type stepOutcome struct {
	next   string
	wait   *models.Suspension
	output map[string]string
}

func advance(flow *models.Flow, nodeID string) stepOutcome {
	next, _ := flow.Next(nodeID, models.HandleNext)

	return stepOutcome{next: next}
}

func (e *Engine) step(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node) (stepOutcome, error) {
	switch data := node.Data.(type) {
	case *models.StartData:
		return advance(flow, node.ID), nil
	case *models.TextData:
		content, err := template.RenderForExecution(data.Content, execution)
		if err != nil {
			return stepOutcome{}, err
		}

		msg := outbound(execution, node, models.MessageText)
		msg.Text = content
		choices := append(inlineChoices(node.ID, data.Buttons), attachedChoices(flow, node.ID)...)
		msg.Choices = choices

		return e.offer(ctx, flow, node, msg, choices)
	case *models.ImageData:
		return e.sendMedia(ctx, flow, execution, node, models.MessageImage, data.ImageURL, "")
	case *models.AudioData:
		return e.sendMedia(ctx, flow, execution, node, models.MessageAudio, data.AudioURL, "")
	case *models.VideoData:
		return e.sendMedia(ctx, flow, execution, node, models.MessageVideo, data.VideoURL, "")
	case *models.FileData:
		return e.sendMedia(ctx, flow, execution, node, models.MessageFile, data.FileURL, data.FileName)
	case *models.CardData:
		choices := attachedChoices(flow, node.ID)
		msg := outbound(execution, node, models.MessageCard)
		msg.Cards = []models.Card{{Title: data.Title, Subtitle: data.Subtitle, ImageURL: data.ImageURL, Choices: choices}}

		return e.offer(ctx, flow, node, msg, choices)
	case *models.ButtonData:
		choice := buttonChoice(node.ID, data)
		msg := outbound(execution, node, models.MessageText)
		msg.Text = data.ButtonName
		msg.Choices = []models.Choice{choice}

		return e.offer(ctx, flow, node, msg, msg.Choices)
	case *models.QuickReplyData:
		choice := quickReplyChoice(node.ID, data)
		msg := outbound(execution, node, models.MessageText)
		msg.Text = data.ReplyText
		msg.Choices = []models.Choice{choice}

		return e.offer(ctx, flow, node, msg, msg.Choices)
	case *models.ConditionData:
		return e.stepCondition(ctx, flow, execution, node, data)
	case *models.SequenceData:
		resumeAt := e.clock().UTC().Add(data.Duration())
		next, _ := flow.Next(node.ID, models.HandleNext)

		return stepOutcome{wait: &models.Suspension{
			Kind:     models.WaitDelay,
			NodeID:   node.ID,
			ResumeAt: &resumeAt,
			Fallback: next,
		}}, nil
	case *models.InputData:
		return e.stepInput(ctx, flow, execution, node, data)
	case *models.AIData:
		return e.stepAI(ctx, flow, execution, node, data)
	case *models.CarouselData:
		return e.stepCarousel(ctx, flow, execution, node, data)
	case *models.CarouselItemData:
		card, choices := itemCard(node.ID, data)
		msg := outbound(execution, node, models.MessageCard)
		msg.Cards = []models.Card{card}

		return e.offer(ctx, flow, node, msg, choices)
	case *models.ProductData:
		return e.stepProducts(ctx, flow, execution, node, data)
	default:
		return stepOutcome{}, fmt.Errorf("%w: %s", ErrUnsupportedNode, node.Type)
	}
}

// offer sends msg and suspends when one of choices continues the walk.
// Otherwise the walk continues along "next" right away.
func (e *Engine) offer(ctx context.Context, flow *models.Flow, node *models.Node, msg models.OutboundMessage, choices []models.Choice) (stepOutcome, error) {
	if err := e.send(ctx, msg); err != nil {
		return stepOutcome{}, err
	}

	next, _ := flow.Next(node.ID, models.HandleNext)

	if !slices.ContainsFunc(choices, traversable) {
		return stepOutcome{next: next}, nil
	}

	return stepOutcome{wait: &models.Suspension{
		Kind:     models.WaitChoice,
		NodeID:   node.ID,
		Choices:  choices,
		Fallback: next,
	}}, nil
}

func (e *Engine) sendMedia(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, kind models.MessageKind, mediaURL, fileName string) (stepOutcome, error) {
	choices := attachedChoices(flow, node.ID)

	msg := outbound(execution, node, kind)
	msg.MediaURL = mediaURL
	msg.FileName = fileName
	msg.Choices = choices

	return e.offer(ctx, flow, node, msg, choices)
}

func (e *Engine) stepCondition(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, data *models.ConditionData) (stepOutcome, error) {
	if data.MessageText != "" {
		text, err := template.RenderForExecution(data.MessageText, execution)
		if err != nil {
			return stepOutcome{}, err
		}

		msg := outbound(execution, node, models.MessageText)
		msg.Text = text

		if err := e.send(ctx, msg); err != nil {
			return stepOutcome{}, err
		}
	}

	handle, _ := evaluateCondition(data, execution.Variables)
	next, _ := flow.Next(node.ID, handle)

	return stepOutcome{next: next, output: map[string]string{"handle": handle}}, nil
}

func (e *Engine) stepInput(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, data *models.InputData) (stepOutcome, error) {
	if data.Prompt != "" {
		prompt, err := template.RenderForExecution(data.Prompt, execution)
		if err != nil {
			return stepOutcome{}, err
		}

		msg := outbound(execution, node, models.MessageText)
		msg.Text = prompt

		if err := e.send(ctx, msg); err != nil {
			return stepOutcome{}, err
		}
	}

	saveAs := data.SaveAs
	if saveAs == "" {
		saveAs = data.FieldName
	}

	next, _ := flow.Next(node.ID, models.HandleNext)

	return stepOutcome{wait: &models.Suspension{
		Kind:     models.WaitInput,
		NodeID:   node.ID,
		SaveAs:   saveAs,
		Fallback: next,
	}}, nil
}

func (e *Engine) stepAI(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, data *models.AIData) (stepOutcome, error) {
	if e.assistant == nil {
		return stepOutcome{}, ErrNoAssistant
	}

	prompt, err := template.RenderForExecution(data.Prompt, execution)
	if err != nil {
		return stepOutcome{}, err
	}

	reply, err := e.assistant.Reply(ctx, prompt, maps.Clone(execution.Variables))
	if err != nil {
		return stepOutcome{}, fmt.Errorf("assistant reply: %w", err)
	}

	execution.Variables[VarAIReply] = reply

	msg := outbound(execution, node, models.MessageText)
	msg.Text = reply

	if err := e.send(ctx, msg); err != nil {
		return stepOutcome{}, err
	}

	outcome := advance(flow, node.ID)
	outcome.output = map[string]string{VarAIReply: reply}

	return outcome, nil
}

// stepCarousel sends the carousel text and the card of every item reached
// through "items" as one message.
func (e *Engine) stepCarousel(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, data *models.CarouselData) (stepOutcome, error) {
	text, err := template.RenderForExecution(data.CarouselText, execution)
	if err != nil {
		return stepOutcome{}, err
	}

	msg := outbound(execution, node, models.MessageCarousel)
	msg.Text = text

	var choices []models.Choice

	for _, item := range flow.CarouselItems(node.ID) {
		itemData, ok := item.Data.(*models.CarouselItemData)
		if !ok {
			continue
		}

		card, cardChoices := itemCard(item.ID, itemData)
		msg.Cards = append(msg.Cards, card)
		choices = append(choices, cardChoices...)
	}

	return e.offer(ctx, flow, node, msg, choices)
}

func (e *Engine) stepProducts(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node, data *models.ProductData) (stepOutcome, error) {
	if e.catalog == nil {
		return stepOutcome{}, ErrNoCatalog
	}

	products, err := e.catalog.Products(ctx, data.Products)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("resolve products: %w", err)
	}

	msg := outbound(execution, node, models.MessageProducts)
	msg.Products = products

	msg.SellingMethod = data.ProductSellingMethod
	if msg.SellingMethod == "" {
		msg.SellingMethod = models.SellingDirectStore
	}

	if err := e.send(ctx, msg); err != nil {
		return stepOutcome{}, err
	}

	return advance(flow, node.ID), nil
}

func (e *Engine) send(ctx context.Context, msg models.OutboundMessage) error {
	if e.messenger == nil {
		return ErrNoMessenger
	}

	if err := e.messenger.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s message: %w", msg.Kind, err)
	}

	e.metrics.MessagesSent.WithLabelValues(msg.Channel, string(msg.Kind)).Inc()

	return nil
}

func outbound(execution *models.FlowExecution, node *models.Node, kind models.MessageKind) models.OutboundMessage {
	return models.OutboundMessage{
		ExecutionID:  execution.ID,
		FlowID:       execution.FlowID,
		NodeID:       node.ID,
		SubscriberID: execution.SubscriberID,
		Channel:      execution.Channel,
		Kind:         kind,
	}
}

// traversable reports whether tapping the choice moves the execution on.
// url and call choices are handled by the subscriber's client.
func traversable(choice models.Choice) bool {
	return choice.Kind != models.ChoiceURL && choice.Kind != models.ChoiceCall
}

func inlineChoices(nodeID string, buttons []models.Button) []models.Choice {
	choices := make([]models.Choice, 0, len(buttons))

	for _, button := range buttons {
		choices = append(choices, models.Choice{
			ID:     button.ID,
			Title:  button.Title,
			Kind:   models.ChoiceReply,
			NodeID: nodeID,
			Handle: models.ButtonHandle(button.ID),
		})
	}

	return choices
}

// attachedChoices collects the button and quick reply nodes linked to nodeID
// through its "buttons" and "quickReplies" handles.
func attachedChoices(flow *models.Flow, nodeID string) []models.Choice {
	var choices []models.Choice

	for _, edge := range flow.OutgoingEdges(nodeID, "") {
		target, ok := flow.NodeByID(edge.Target)
		if !ok {
			continue
		}

		switch data := target.Data.(type) {
		case *models.ButtonData:
			if edge.Handle() == models.HandleButtons {
				choices = append(choices, buttonChoice(target.ID, data))
			}
		case *models.QuickReplyData:
			if edge.Handle() == models.HandleQuickReplies {
				choices = append(choices, quickReplyChoice(target.ID, data))
			}
		}
	}

	return choices
}

func buttonChoice(nodeID string, data *models.ButtonData) models.Choice {
	choice := models.Choice{
		ID:     nodeID,
		Title:  data.ButtonName,
		Kind:   models.ChoiceReply,
		NodeID: nodeID,
		Handle: models.HandleNext,
	}

	switch data.ActionType {
	case models.ActionURL:
		choice.Kind = models.ChoiceURL
		choice.URL = data.URL
	case models.ActionCall:
		choice.Kind = models.ChoiceCall
		choice.Phone = data.PhoneNumber
	case models.ActionStartFlow:
		choice.Kind = models.ChoiceStartFlow
		choice.FlowID = data.FlowID
	}

	return choice
}

func quickReplyChoice(nodeID string, data *models.QuickReplyData) models.Choice {
	choice := models.Choice{
		ID:     nodeID,
		Title:  data.ReplyText,
		Kind:   models.ChoiceQuickReply,
		NodeID: nodeID,
		Handle: models.HandleNext,
	}

	if data.ActionType == models.ActionStartFlow {
		choice.Kind = models.ChoiceStartFlow
		choice.FlowID = data.FlowID
	}

	return choice
}

// itemCard renders a carousel item. Its button starts flowId when set,
// otherwise opens url.
func itemCard(nodeID string, data *models.CarouselItemData) (models.Card, []models.Choice) {
	card := models.Card{Title: data.Title, Subtitle: data.Subtitle, ImageURL: data.ImageURL}

	title := data.ButtonTitle
	if title == "" {
		title = data.Title
	}

	choice := models.Choice{ID: nodeID, Title: title, NodeID: nodeID}

	switch {
	case data.FlowID != "":
		choice.Kind = models.ChoiceStartFlow
		choice.FlowID = data.FlowID
	case data.URL != "":
		choice.Kind = models.ChoiceURL
		choice.URL = data.URL
	default:
		return card, nil
	}

	card.Choices = []models.Choice{choice}

	return card, card.Choices
}
