// Package events defines the inbound and execution lifecycle events carried by the event bus.
package events

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every chatflow event.
const Topic = "chatflow.events"

// EventMetadataKey holds the partition key, the subscriber id, so one
// subscriber's events keep their order.
const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound events delivered by channel adapters.
	MessageReceivedEvent EventType = "message.received"
	ButtonTappedEvent    EventType = "button.tapped"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	NodeExecutedEvent       EventType = "node.executed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a new base event with common fields.
func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}

// MessageReceived wraps free text sent by a subscriber.
type MessageReceived struct {
	BaseEvent

	Inbound models.InboundEvent `json:"inbound"`
}

func (m MessageReceived) GetType() EventType {
	return MessageReceivedEvent
}

// ButtonTapped wraps a choice tapped by a subscriber.
type ButtonTapped struct {
	BaseEvent

	Inbound models.InboundEvent `json:"inbound"`
}

func (b ButtonTapped) GetType() EventType {
	return ButtonTappedEvent
}

// Typed is implemented by every event of this package.
type Typed interface {
	GetType() EventType
}

// NewInboundEvent wraps an inbound event in the matching bus event.
func NewInboundEvent(inbound models.InboundEvent) Typed {
	if inbound.Type == models.InboundTap {
		return &ButtonTapped{BaseEvent: NewBaseEvent(ButtonTappedEvent, ""), Inbound: inbound}
	}

	return &MessageReceived{BaseEvent: NewBaseEvent(MessageReceivedEvent, ""), Inbound: inbound}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID       string `json:"execution_id"`
	SubscriberID      string `json:"subscriber_id"`
	ParentExecutionID string `json:"parent_execution_id,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
	ContinuedAs  string `json:"continued_as,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
	Error        string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// NodeExecuted mirrors a node audit row.
type NodeExecuted struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	NodeType    models.NodeType   `json:"node_type"`
	Status      models.NodeStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
}

func (n NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}
