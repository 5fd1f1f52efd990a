// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// StartNodeID is the id of the start node created by CreateTestFlow.
const StartNodeID = "start"

// CreateTestFlow creates an active flow triggered by the exact keyword "hi"
// whose only node is the start node. Overrides are applied in order.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	now := time.Now().UTC()

	flow := &models.Flow{
		ID:     uuid.New().String(),
		Owner:  "owner-1",
		Name:   "Test Flow",
		Active: true,
		Nodes: []*models.Node{
			models.NewNode(StartNodeID, &models.StartData{
				FlowName:       "Test Flow",
				TriggerKeyword: "hi",
				MatchType:      models.MatchTypeExact,
			}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(flow)
	}

	flow.SyncTrigger()

	return flow
}

// WithID sets the flow id.
func WithID(id string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ID = id
	}
}

// WithTrigger replaces the start node trigger.
func WithTrigger(keyword string, matchType models.MatchType) func(*models.Flow) {
	return func(f *models.Flow) {
		start, ok := f.StartNode()
		if !ok {
			return
		}

		data := start.Data.(*models.StartData)
		data.TriggerKeyword = keyword
		data.MatchType = matchType
	}
}

// Inactive marks the flow as deactivated.
func Inactive() func(*models.Flow) {
	return func(f *models.Flow) {
		f.Active = false
	}
}

// WithNodes appends nodes to the flow.
func WithNodes(nodes ...*models.Node) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = append(f.Nodes, nodes...)
	}
}

// WithEdges appends edges to the flow.
func WithEdges(edges ...*models.Edge) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Edges = append(f.Edges, edges...)
	}
}

// Chain links the start node and the given node ids through "next" edges.
func Chain(nodeIDs ...string) func(*models.Flow) {
	return func(f *models.Flow) {
		previous := StartNodeID
		for _, id := range nodeIDs {
			f.Edges = append(f.Edges, Edge(previous, models.HandleNext, id))
			previous = id
		}
	}
}

// Edge creates an edge with a generated id.
func Edge(source, handle, target string) *models.Edge {
	return &models.Edge{
		ID:           uuid.New().String(),
		Source:       source,
		SourceHandle: handle,
		Target:       target,
	}
}

// Text creates a text node.
func Text(id, content string, buttons ...models.Button) *models.Node {
	return models.NewNode(id, &models.TextData{Content: content, Buttons: buttons})
}
