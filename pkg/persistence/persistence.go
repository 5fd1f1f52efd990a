// Package persistence provides the storage abstraction for flows and their executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow documents. Flows are deactivated, never deleted.
type FlowRepository interface {
	GetAll(ctx context.Context) ([]*models.Flow, error)
	ListFlows(ctx context.Context, opts ListFlowsOptions) (*FlowListResult, error)
	// GetByID returns ErrFlowNotFound when no flow has the id.
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	// GetActive returns every active flow, the candidates for trigger matching.
	GetActive(ctx context.Context) ([]*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
}

// ExecutionRepository stores executions and their node audit trail.
type ExecutionRepository interface {
	// SaveExecution inserts or updates an execution. Updating a completed or
	// failed execution returns ErrExecutionFinished and changes nothing.
	SaveExecution(ctx context.Context, execution *models.FlowExecution) error
	// GetExecution returns ErrExecutionNotFound when no execution has the id.
	GetExecution(ctx context.Context, id string) (*models.FlowExecution, error)
	GetExecutionsByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error)
	// FindWaitingBySubscriber returns running, suspended executions of a
	// subscriber, most recently updated first.
	FindWaitingBySubscriber(ctx context.Context, subscriberID string) ([]*models.FlowExecution, error)
	// FindDueDelays returns executions whose delay elapsed at or before now.
	FindDueDelays(ctx context.Context, now time.Time) ([]*models.FlowExecution, error)
	// ClaimDueDelay atomically clears the delay of an execution that is due
	// at now and returns the execution as it was before the claim. Only one
	// caller wins; the others get ErrExecutionNotDue.
	ClaimDueDelay(ctx context.Context, id string, now time.Time) (*models.FlowExecution, error)

	RecordNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error
	GetNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
}

// ListFlowsOptions filters and paginates ListFlows.
type ListFlowsOptions struct {
	Owner     string
	Active    *bool
	Limit     int
	Offset    int
	SortBy    string // created_at, updated_at or name
	SortOrder string // asc or desc
}

type FlowListResult struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// Normalize applies the default page size and sort and rejects unknown sort fields.
func (o *ListFlowsOptions) Normalize() error {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = "created_at"
	}

	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}

	switch o.SortBy {
	case "created_at", "updated_at", "name":
	default:
		return ErrInvalidSort
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return ErrInvalidSort
	}

	return nil
}
