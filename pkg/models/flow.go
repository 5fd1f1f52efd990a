// Package models defines the chatbot flow document, its typed node payloads
// and the runtime execution records.
package models

import (
	"strings"
	"time"
)

// Flow is a user-authored chatbot automation: a graph of typed nodes joined
// by edges. Trigger fields mirror the start node so triggers can be looked up
// without decoding the graph.
type Flow struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"             validate:"required,max=100"`
	Active          bool      `json:"active"`
	TriggerKeywords []string  `json:"trigger_keywords"`
	MatchType       MatchType `json:"match_type"`
	Nodes           []*Node   `json:"nodes"`
	Edges           []*Edge   `json:"edges"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NodeByID returns the node with the given id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges lists edges leaving nodeID through handle, in document order.
// An empty handle matches every outgoing edge.
func (f *Flow) OutgoingEdges(nodeID, handle string) []*Edge {
	var edges []*Edge

	for _, edge := range f.Edges {
		if edge.Source != nodeID {
			continue
		}

		if handle != "" && edge.Handle() != handle {
			continue
		}

		edges = append(edges, edge)
	}

	return edges
}

// Next returns the target of the first edge leaving nodeID through handle.
func (f *Flow) Next(nodeID, handle string) (string, bool) {
	edges := f.OutgoingEdges(nodeID, handle)
	if len(edges) == 0 {
		return "", false
	}

	return edges[0].Target, true
}

// NodesOfType enumerates nodes carrying the given payload type.
func (f *Flow) NodesOfType(nodeType NodeType) []*Node {
	var nodes []*Node

	for _, node := range f.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// StartNode returns the first start node of the flow.
func (f *Flow) StartNode() (*Node, bool) {
	starts := f.NodesOfType(NodeTypeStart)
	if len(starts) == 0 {
		return nil, false
	}

	return starts[0], true
}

// CarouselItems returns the carouselItem nodes reached from a carousel
// through its "items" handle.
func (f *Flow) CarouselItems(carouselID string) []*Node {
	var items []*Node

	for _, edge := range f.OutgoingEdges(carouselID, HandleItems) {
		node, ok := f.NodeByID(edge.Target)
		if ok && node.Type == NodeTypeCarouselItem {
			items = append(items, node)
		}
	}

	return items
}

// ProductIDs lists the catalog ids referenced by product nodes, without duplicates.
func (f *Flow) ProductIDs() []string {
	seen := make(map[string]bool)

	var ids []string

	for _, node := range f.NodesOfType(NodeTypeProduct) {
		data, ok := node.Data.(*ProductData)
		if !ok {
			continue
		}

		for _, id := range data.Products {
			if !seen[id] {
				seen[id] = true

				ids = append(ids, id)
			}
		}
	}

	return ids
}

// ReferencedFlowIDs lists flows a button, quick reply or carousel item can start.
func (f *Flow) ReferencedFlowIDs() []string {
	seen := make(map[string]bool)

	var ids []string

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true

			ids = append(ids, id)
		}
	}

	for _, node := range f.Nodes {
		switch data := node.Data.(type) {
		case *ButtonData:
			if data.ActionType == ActionStartFlow {
				add(data.FlowID)
			}
		case *QuickReplyData:
			if data.ActionType == ActionStartFlow {
				add(data.FlowID)
			}
		case *CarouselItemData:
			add(data.FlowID)
		}
	}

	return ids
}

// RemoveNode deletes a node. Edges pointing at it are kept so the
// connectivity check can report them.
func (f *Flow) RemoveNode(id string) bool {
	for i, node := range f.Nodes {
		if node.ID == id {
			f.Nodes = append(f.Nodes[:i], f.Nodes[i+1:]...)

			return true
		}
	}

	return false
}

// PutNode replaces the node with the same id or appends it.
func (f *Flow) PutNode(node *Node) {
	for i, existing := range f.Nodes {
		if existing.ID == node.ID {
			f.Nodes[i] = node

			return
		}
	}

	f.Nodes = append(f.Nodes, node)
}

// RemoveEdge deletes an edge by id.
func (f *Flow) RemoveEdge(id string) bool {
	for i, edge := range f.Edges {
		if edge.ID == id {
			f.Edges = append(f.Edges[:i], f.Edges[i+1:]...)

			return true
		}
	}

	return false
}

// SyncTrigger copies the start node's keywords and match type onto the flow.
func (f *Flow) SyncTrigger() {
	start, ok := f.StartNode()
	if !ok {
		f.TriggerKeywords = nil
		f.MatchType = ""

		return
	}

	data, ok := start.Data.(*StartData)
	if !ok {
		return
	}

	f.TriggerKeywords = SplitKeywords(data.TriggerKeyword)

	f.MatchType = data.MatchType
	if f.MatchType == "" {
		f.MatchType = MatchTypeExact
	}
}

// SplitKeywords splits a comma separated keyword list, dropping blanks.
func SplitKeywords(raw string) []string {
	var keywords []string

	for part := range strings.SplitSeq(raw, ",") {
		if keyword := strings.TrimSpace(part); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}

	return keywords
}
