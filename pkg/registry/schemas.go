package registry

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// maxDelayMinutes bounds the delay of every unit; the validator applies the
// exact limit for the chosen unit.
const maxDelayMinutes = int64(models.MaxDelay / time.Minute)

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func urlProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description + " (absolute URL)"}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": description}
}

func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func buttonsProp(maxItems int) map[string]any {
	return map[string]any{
		"type":     "array",
		"maxItems": maxItems,
		"items": objectSchema([]string{"id", "title"}, map[string]any{
			"id":    stringProp("Stable button identifier, used in the button:{id} handle"),
			"title": stringProp("Button caption"),
			"value": stringProp("Comparand for condition buttons"),
		}),
	}
}

// DefaultDescriptors describes every built-in node type.
func DefaultDescriptors() []Descriptor {
	media := []string{models.HandleNext, models.HandleButtons, models.HandleQuickReplies}

	return []Descriptor{
		{
			Type:        models.NodeTypeStart,
			Name:        "Start",
			Description: "Entry point matched against inbound messages",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"flowName"}, map[string]any{
				"flowName":       stringProp("Flow display name"),
				"triggerKeyword": stringProp("Comma separated trigger keywords"),
				"matchType":      enumProp("Keyword comparison", string(models.MatchTypeExact), string(models.MatchTypePartial)),
			}),
		},
		{
			Type:          models.NodeTypeText,
			Name:          "Text",
			Description:   "Sends a text message, optionally with inline buttons",
			Handles:       media,
			InlineButtons: true,
			Schema: objectSchema([]string{"content"}, map[string]any{
				"content": stringProp("Message body, supports {{.variable}} placeholders"),
				"buttons": buttonsProp(13),
			}),
		},
		{
			Type:        models.NodeTypeImage,
			Name:        "Image",
			Description: "Sends an image",
			Handles:     media,
			Schema: objectSchema([]string{"imageUrl"}, map[string]any{
				"imageUrl": urlProp("Public image URL"),
			}),
		},
		{
			Type:        models.NodeTypeButton,
			Name:        "Button",
			Description: "A tappable button attached through a buttons handle",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"buttonName", "actionType"}, map[string]any{
				"buttonName":  stringProp("Button caption"),
				"actionType":  enumProp("What a tap does", "next_message", "url", "start_flow", "call"),
				"url":         urlProp("Destination for url buttons"),
				"flowId":      stringProp("Flow started by start_flow buttons"),
				"phoneNumber": stringProp("Number dialed by call buttons"),
			}),
		},
		{
			Type:        models.NodeTypeQuickReply,
			Name:        "Quick reply",
			Description: "A quick reply chip attached through a quickReplies handle",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"replyText", "actionType"}, map[string]any{
				"replyText":  stringProp("Chip caption"),
				"actionType": enumProp("What a tap does", "next_message", "start_flow"),
				"flowId":     stringProp("Flow started by start_flow replies"),
			}),
		},
		{
			Type:          models.NodeTypeCondition,
			Name:          "Condition",
			Description:   "Routes by comparing a variable with each button",
			Handles:       []string{models.HandleNoMatch},
			InlineButtons: true,
			Schema: objectSchema([]string{"conditionField", "buttons"}, map[string]any{
				"conditionField": stringProp("Variable to inspect"),
				"conditionOperator": enumProp("Comparison operator",
					"equals", "not_equals", "contains", "starts_with", "ends_with"),
				"conditionValue": stringProp("Default comparand"),
				"messageText":    stringProp("Optional message sent before routing"),
				"buttons":        buttonsProp(3),
			}),
		},
		{
			Type:        models.NodeTypeAudio,
			Name:        "Audio",
			Description: "Sends an audio clip",
			Handles:     media,
			Schema: objectSchema([]string{"audioUrl"}, map[string]any{
				"audioUrl": urlProp("Public audio URL"),
			}),
		},
		{
			Type:        models.NodeTypeVideo,
			Name:        "Video",
			Description: "Sends a video",
			Handles:     media,
			Schema: objectSchema([]string{"videoUrl"}, map[string]any{
				"videoUrl": urlProp("Public video URL"),
			}),
		},
		{
			Type:        models.NodeTypeFile,
			Name:        "File",
			Description: "Sends a document",
			Handles:     media,
			Schema: objectSchema([]string{"fileUrl"}, map[string]any{
				"fileUrl":  urlProp("Public file URL"),
				"fileName": stringProp("Name shown to the subscriber"),
			}),
		},
		{
			Type:        models.NodeTypeCard,
			Name:        "Card",
			Description: "Sends a card with title, subtitle and image",
			Handles:     media,
			Schema: objectSchema([]string{"title"}, map[string]any{
				"title":    stringProp("Card title"),
				"subtitle": stringProp("Card subtitle"),
				"imageUrl": urlProp("Card image"),
			}),
		},
		{
			Type:        models.NodeTypeSequence,
			Name:        "Delay",
			Description: "Waits before continuing",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"delay", "delayUnit"}, map[string]any{
				"delay":     map[string]any{"type": "integer", "minimum": 1, "maximum": maxDelayMinutes, "description": "Amount of delayUnit to wait"},
				"delayUnit": enumProp("Delay unit", "minutes", "hours", "days"),
			}),
		},
		{
			Type:        models.NodeTypeInput,
			Name:        "User input",
			Description: "Waits for a reply and stores it in a variable",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"fieldName"}, map[string]any{
				"fieldName": stringProp("Question label"),
				"saveAs":    stringProp("Variable the reply is stored in"),
				"prompt":    stringProp("Question sent before waiting"),
			}),
		},
		{
			Type:        models.NodeTypeAI,
			Name:        "AI reply",
			Description: "Sends an assistant generated reply",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"prompt"}, map[string]any{
				"prompt": stringProp("Instruction for the assistant"),
			}),
		},
		{
			Type:        models.NodeTypeCarousel,
			Name:        "Carousel",
			Description: "Sends the cards of its items as one message",
			Handles:     []string{models.HandleItems, models.HandleNext},
			Schema: objectSchema(nil, map[string]any{
				"carouselText": stringProp("Text sent with the carousel"),
			}),
		},
		{
			Type:        models.NodeTypeCarouselItem,
			Name:        "Carousel item",
			Description: "One card of a carousel",
			Schema: objectSchema([]string{"title"}, map[string]any{
				"title":       stringProp("Card title"),
				"subtitle":    stringProp("Card subtitle"),
				"imageUrl":    urlProp("Card image"),
				"url":         urlProp("Destination opened by the card button"),
				"flowId":      stringProp("Flow started by the card button"),
				"buttonTitle": stringProp("Card button caption"),
			}),
		},
		{
			Type:        models.NodeTypeProduct,
			Name:        "Products",
			Description: "Sends catalog products",
			Handles:     []string{models.HandleNext},
			Schema: objectSchema([]string{"products"}, map[string]any{
				"products": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items":    map[string]any{"type": "string"},
				},
				"productSellingMethod": enumProp("How products are sold",
					"direct_store", "details_store", "external_store"),
			}),
		},
	}
}
