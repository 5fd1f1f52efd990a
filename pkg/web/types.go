// Package web provides HTTP request and response types for the flow API.
package web

import (
	"encoding/json"

	"github.com/dukex/chatflow/pkg/models"
)

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	Owner          string           `json:"owner"           validate:"required"`
	Name           string           `json:"name"            validate:"required,max=100"`
	TriggerKeyword string           `json:"trigger_keyword" validate:"max=200"`
	MatchType      models.MatchType `json:"match_type"      validate:"omitempty,oneof=exact partial"`
}

// UpdateFlowRequest represents the request body for renaming a flow.
type UpdateFlowRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}

// NodeRequest is a node as sent by the editor. Data stays raw until it passed
// the schema of its node type.
type NodeRequest struct {
	ID       string          `json:"id"`
	NodeType models.NodeType `json:"nodeType" validate:"required"`
	Position models.Position `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// EdgeRequest represents the request body for connecting two nodes.
type EdgeRequest struct {
	ID           string `json:"id"`
	Source       string `json:"source"       validate:"required"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"       validate:"required"`
}

// GraphRequest replaces every node and edge of a flow.
type GraphRequest struct {
	Nodes []NodeRequest `json:"nodes" validate:"required,dive"`
	Edges []EdgeRequest `json:"edges" validate:"dive"`
}

// MessageEventRequest is free text received from a subscriber.
type MessageEventRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	Channel      string `json:"channel"       validate:"required"`
	Text         string `json:"text"          validate:"required"`
}

// TapEventRequest is a choice tapped by a subscriber.
type TapEventRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	Channel      string `json:"channel"       validate:"required"`
	ChoiceID     string `json:"choice_id"     validate:"required"`
	ExecutionID  string `json:"execution_id"`
}

// DraftResponse is the normalized form of a valid editor draft.
type DraftResponse struct {
	Valid bool            `json:"valid"`
	Label string          `json:"label"`
	Data  models.NodeData `json:"data"`
}

func (r EdgeRequest) edge() *models.Edge {
	return &models.Edge{
		ID:           r.ID,
		Source:       r.Source,
		SourceHandle: r.SourceHandle,
		Target:       r.Target,
	}
}
