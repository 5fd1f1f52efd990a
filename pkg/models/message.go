package models

import "time"

// InboundEventType distinguishes free text from choice taps.
type InboundEventType string

const (
	InboundMessage InboundEventType = "message"
	InboundTap     InboundEventType = "tap"
)

// InboundEvent is delivered by a channel adapter for one subscriber.
type InboundEvent struct {
	Type         InboundEventType `json:"type"          validate:"required,oneof=message tap"`
	SubscriberID string           `json:"subscriber_id" validate:"required"`
	Channel      string           `json:"channel"       validate:"required"`
	Text         string           `json:"text,omitempty"`
	ChoiceID     string           `json:"choice_id,omitempty" validate:"required_if=Type tap"`
	ExecutionID  string           `json:"execution_id,omitempty"`
	ReceivedAt   time.Time        `json:"received_at"`
}

// MessageKind is the shape of an outbound message.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageAudio    MessageKind = "audio"
	MessageVideo    MessageKind = "video"
	MessageFile     MessageKind = "file"
	MessageCard     MessageKind = "card"
	MessageCarousel MessageKind = "carousel"
	MessageProducts MessageKind = "products"
)

// Card is one card of a card or carousel message.
type Card struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
}

// OutboundMessage is a channel-agnostic send command.
type OutboundMessage struct {
	ExecutionID   string        `json:"execution_id"`
	FlowID        string        `json:"flow_id"`
	NodeID        string        `json:"node_id"`
	SubscriberID  string        `json:"subscriber_id"`
	Channel       string        `json:"channel"`
	Kind          MessageKind   `json:"kind"`
	Text          string        `json:"text,omitempty"`
	MediaURL      string        `json:"media_url,omitempty"`
	FileName      string        `json:"file_name,omitempty"`
	Cards         []Card        `json:"cards,omitempty"`
	Choices       []Choice      `json:"choices,omitempty"`
	Products      []Product     `json:"products,omitempty"`
	SellingMethod SellingMethod `json:"selling_method,omitempty"`
}

// Product is a catalog entry rendered by product nodes.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	URL      string  `json:"url,omitempty"`
}
