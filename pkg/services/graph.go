package services

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/validation"
	"github.com/google/uuid"
)

// SaveNode validates a node and inserts or replaces it in the flow. The
// stored node carries the normalized payload and derived label.
func (f *Flow) SaveNode(ctx context.Context, flowID string, node *models.Node) (*models.Node, error) {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if err := validation.ValidateNode(node); err != nil {
		return nil, err
	}

	_, err := f.mutate(ctx, flowID, func(flow *models.Flow) error {
		existing, ok := flow.NodeByID(node.ID)

		if ok && existing.Type == models.NodeTypeStart && node.Type != models.NodeTypeStart {
			return &ServiceError{Op: "SaveNode", Code: "START_NODE_LOCKED", Err: ErrStartNodeLocked}
		}

		replacesStart := ok && existing.Type == models.NodeTypeStart
		if node.Type == models.NodeTypeStart && !replacesStart && len(flow.NodesOfType(models.NodeTypeStart)) > 0 {
			return &ServiceError{Op: "SaveNode", Code: "DUPLICATE_START", Err: ErrDuplicateStart}
		}

		flow.PutNode(node)

		if data, ok := node.Data.(*models.StartData); ok {
			flow.Name = data.FlowName
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// DeleteNode removes a node. Edges pointing at it stay behind and show up in
// the connectivity report until the editor removes them.
func (f *Flow) DeleteNode(ctx context.Context, flowID, nodeID string) error {
	_, err := f.mutate(ctx, flowID, func(flow *models.Flow) error {
		node, ok := flow.NodeByID(nodeID)
		if !ok {
			return fmt.Errorf("node %s: %w", nodeID, ErrNodeNotFound)
		}

		if node.Type == models.NodeTypeStart {
			return &ServiceError{Op: "DeleteNode", Code: "START_NODE_LOCKED", Err: ErrStartNodeLocked}
		}

		flow.RemoveNode(nodeID)

		return nil
	})

	return err
}

// AddEdge connects two existing nodes through a handle the source allows.
func (f *Flow) AddEdge(ctx context.Context, flowID string, edge *models.Edge) (*models.Edge, error) {
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	_, err := f.mutate(ctx, flowID, func(flow *models.Flow) error {
		source, ok := flow.NodeByID(edge.Source)
		if !ok {
			return NewValidationError("AddEdge", "INVALID_EDGE", fmt.Sprintf("source node %s not found", edge.Source), ErrInvalidEdge)
		}

		if _, ok := flow.NodeByID(edge.Target); !ok {
			return NewValidationError("AddEdge", "INVALID_EDGE", fmt.Sprintf("target node %s not found", edge.Target), ErrInvalidEdge)
		}

		if !f.registry.AllowsHandle(source, edge.SourceHandle) {
			return NewValidationError("AddEdge", "INVALID_EDGE",
				fmt.Sprintf("%q is not an output of %s node %s", edge.Handle(), source.Type, source.ID), ErrInvalidEdge)
		}

		for _, existing := range flow.Edges {
			if existing.ID == edge.ID {
				return NewValidationError("AddEdge", "INVALID_EDGE", fmt.Sprintf("edge %s already exists", edge.ID), ErrInvalidEdge)
			}
		}

		flow.Edges = append(flow.Edges, edge)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return edge, nil
}

func (f *Flow) DeleteEdge(ctx context.Context, flowID, edgeID string) error {
	_, err := f.mutate(ctx, flowID, func(flow *models.Flow) error {
		if !flow.RemoveEdge(edgeID) {
			return fmt.Errorf("edge %s: %w", edgeID, ErrEdgeNotFound)
		}

		return nil
	})

	return err
}

// ReplaceGraph swaps the whole graph of a flow, as the editor does on save.
// Every node is normalized and the resulting document must validate.
func (f *Flow) ReplaceGraph(ctx context.Context, flowID string, nodes []*models.Node, edges []*models.Edge) (*models.Flow, error) {
	var errs validation.Errors

	for _, node := range nodes {
		if err := validation.ValidateNode(node); err != nil {
			fieldErrs, ok := validation.AsErrors(err)
			if !ok {
				return nil, err
			}

			errs = append(errs, fieldErrs.Prefix(fmt.Sprintf("nodes[%s]", node.ID))...)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	if edges == nil {
		edges = []*models.Edge{}
	}

	return f.mutate(ctx, flowID, func(flow *models.Flow) error {
		candidate := *flow
		candidate.Nodes = nodes
		candidate.Edges = edges

		if err := validation.ValidateFlow(&candidate, f.registry); err != nil {
			return err
		}

		flow.Nodes = nodes
		flow.Edges = edges

		if start, ok := flow.StartNode(); ok {
			if data, ok := start.Data.(*models.StartData); ok {
				flow.Name = data.FlowName
			}
		}

		return nil
	})
}
