package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Flow manages flow documents: their metadata, activation and graph.
type Flow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence, nodeTypes *registry.Registry, logger *slog.Logger) *Flow {
	return &Flow{
		persistence: persistence,
		registry:    nodeTypes,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "flow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateFlowRequest describes a new flow. The start node is built from it.
type CreateFlowRequest struct {
	Owner          string           `validate:"required"`
	Name           string           `validate:"required,max=100"`
	TriggerKeyword string           `validate:"max=200"`
	MatchType      models.MatchType `validate:"omitempty,oneof=exact partial"`
}

// Create stores a new, inactive flow holding only its start node.
func (f *Flow) Create(ctx context.Context, req CreateFlowRequest) (*models.Flow, error) {
	req.Owner = strings.TrimSpace(req.Owner)

	if err := f.validate.Struct(req); err != nil {
		return nil, NewValidationError("Create", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	start := models.NewNode(uuid.New().String(), &models.StartData{
		FlowName:       req.Name,
		TriggerKeyword: req.TriggerKeyword,
		MatchType:      req.MatchType,
	})

	if err := validation.ValidateNode(start); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	flow := &models.Flow{
		ID:        uuid.New().String(),
		Owner:     req.Owner,
		Name:      req.Name,
		Nodes:     []*models.Node{start},
		Edges:     []*models.Edge{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	flow.SyncTrigger()

	if err := f.persistence.FlowRepository().Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	f.logger.InfoContext(ctx, "Flow created", "flow_id", flow.ID, "owner", flow.Owner)

	return flow, nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// ListFlowsRequest contains options for listing flows.
type ListFlowsRequest struct {
	Owner     string
	Active    *bool
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// List retrieves flows with filtering, sorting, and pagination.
func (f *Flow) List(ctx context.Context, req ListFlowsRequest) (*persistence.FlowListResult, error) {
	if req.Owner != "" {
		req.Owner = strings.TrimSpace(req.Owner)
		if req.Owner == "" {
			return nil, ErrEmptyOwner
		}
	}

	result, err := f.persistence.FlowRepository().ListFlows(ctx, persistence.ListFlowsOptions{
		Owner:     req.Owner,
		Active:    req.Active,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidSort) {
			return nil, NewValidationError(
				"List",
				"INVALID_SORT",
				fmt.Sprintf("invalid sort '%s %s', allowed: created_at, updated_at, name; asc, desc", req.SortBy, req.SortOrder),
				ErrInvalidSort,
			)
		}

		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return result, nil
}

// UpdateFlowRequest changes flow metadata. Nil fields are left as they are.
type UpdateFlowRequest struct {
	Name *string `validate:"omitempty,max=100"`
}

// Update renames a flow. The start node carries the name too.
func (f *Flow) Update(ctx context.Context, id string, req UpdateFlowRequest) (*models.Flow, error) {
	if err := f.validate.Struct(req); err != nil {
		return nil, NewValidationError("Update", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	return f.mutate(ctx, id, func(flow *models.Flow) error {
		if req.Name == nil {
			return nil
		}

		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return NewValidationError("Update", "INVALID_REQUEST", "name cannot be empty", ErrInvalidRequest)
		}

		flow.Name = name

		if start, ok := flow.StartNode(); ok {
			if data, ok := start.Data.(*models.StartData); ok {
				data.FlowName = name
				start.Label = validation.Label(data)
			}
		}

		return nil
	})
}

// Activate makes a flow eligible for trigger matching. The whole document
// must validate and every flow it can start must exist.
func (f *Flow) Activate(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := f.check(ctx, flow); err != nil {
		return nil, err
	}

	flow.Active = true

	if err := f.save(ctx, flow); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Flow activated", "flow_id", flow.ID)

	return flow, nil
}

// Deactivate stops a flow from triggering. Running executions still finish.
func (f *Flow) Deactivate(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !flow.Active {
		return flow, nil
	}

	flow.Active = false

	if err := f.save(ctx, flow); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Flow deactivated", "flow_id", flow.ID)

	return flow, nil
}

// Connectivity reports the structural problems of a flow graph.
func (f *Flow) Connectivity(ctx context.Context, id string) ([]models.ConnectivityIssue, error) {
	flow, err := f.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return flow.CheckConnectivity(), nil
}

// check runs the document validation plus the start_flow reference check.
func (f *Flow) check(ctx context.Context, flow *models.Flow) error {
	var errs validation.Errors

	if err := validation.ValidateFlow(flow, f.registry); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return err
		}

		errs = append(errs, fieldErrs...)
	}

	for _, target := range flow.ReferencedFlowIDs() {
		if target == flow.ID {
			continue
		}

		_, err := f.persistence.FlowRepository().GetByID(ctx, target)
		if persistence.IsFlowNotFound(err) {
			errs = append(errs, validation.FieldError{
				Field:  "flowId",
				Reason: fmt.Sprintf("references unknown flow %s", target),
			})

			continue
		}

		if err != nil {
			return fmt.Errorf("failed to load flow %s: %w", target, err)
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// mutate loads a flow, applies change and saves it. Active flows must still
// validate after the change.
func (f *Flow) mutate(ctx context.Context, id string, change func(*models.Flow) error) (*models.Flow, error) {
	flow, err := f.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := change(flow); err != nil {
		return nil, err
	}

	flow.SyncTrigger()

	if flow.Active {
		if err := f.check(ctx, flow); err != nil {
			if errs, ok := validation.AsErrors(err); ok {
				return nil, fmt.Errorf("%w: %w", ErrActiveFlowBroken, errs)
			}

			return nil, err
		}
	}

	if err := f.save(ctx, flow); err != nil {
		return nil, err
	}

	return flow, nil
}

func (f *Flow) save(ctx context.Context, flow *models.Flow) error {
	flow.UpdatedAt = time.Now().UTC()

	if err := f.persistence.FlowRepository().Save(ctx, flow); err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}
