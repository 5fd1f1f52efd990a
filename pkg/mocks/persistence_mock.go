// Package mocks provides testify mocks of the chatflow storage and bus interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	Flows      *MockFlowRepository
	Executions *MockExecutionRepository
}

// NewMockPersistence returns a persistence whose repositories are mocks too.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Flows:      &MockFlowRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.Flows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockFlowRepository is a mock implementation of persistence.FlowRepository.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.FlowListResult), args.Error(1)
}

func (m *MockFlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) GetActive(ctx context.Context) ([]*models.Flow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, execution *models.FlowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetExecution(ctx context.Context, id string) (*models.FlowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetExecutionsByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) FindWaitingBySubscriber(ctx context.Context, subscriberID string) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, subscriberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) FindDueDelays(ctx context.Context, now time.Time) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ClaimDueDelay(ctx context.Context, id string, now time.Time) (*models.FlowExecution, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) RecordNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	args := m.Called(ctx, nodeExecution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecution), args.Error(1)
}

var (
	_ persistence.Persistence         = (*MockPersistence)(nil)
	_ persistence.FlowRepository      = (*MockFlowRepository)(nil)
	_ persistence.ExecutionRepository = (*MockExecutionRepository)(nil)
)
