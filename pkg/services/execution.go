package services

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// Execution reads flow executions and their audit trail.
type Execution struct {
	persistence persistence.Persistence
}

func NewExecution(persistence persistence.Persistence) *Execution {
	return &Execution{persistence: persistence}
}

// ExecutionDetail is an execution with every node it visited, oldest first.
type ExecutionDetail struct {
	Execution *models.FlowExecution   `json:"execution"`
	Trail     []*models.NodeExecution `json:"trail"`
}

func (e *Execution) FetchByID(ctx context.Context, id string) (*ExecutionDetail, error) {
	execution, err := e.persistence.ExecutionRepository().GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	trail, err := e.persistence.ExecutionRepository().GetNodeExecutions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load node executions: %w", err)
	}

	if trail == nil {
		trail = []*models.NodeExecution{}
	}

	return &ExecutionDetail{Execution: execution, Trail: trail}, nil
}

// ListByFlow returns the executions of a flow, most recently updated first.
func (e *Execution) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	if _, err := e.persistence.FlowRepository().GetByID(ctx, flowID); err != nil {
		return nil, err
	}

	executions, err := e.persistence.ExecutionRepository().GetExecutionsByFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if executions == nil {
		executions = []*models.FlowExecution{}
	}

	return executions, nil
}
