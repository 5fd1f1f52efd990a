package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// ExecutionRepository stores executions as one JSON file each and the node
// audit trail as one JSON array per execution.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) executionsDir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) nodeExecutionsDir() string {
	return filepath.Join(er.root, "node_executions")
}

// SaveExecution creates or overwrites an execution. A completed or failed
// execution is never overwritten.
func (er *ExecutionRepository) SaveExecution(_ context.Context, execution *models.FlowExecution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	existing, err := er.read(execution.ID)
	if err != nil && !persistence.IsExecutionNotFound(err) {
		return err
	}

	if existing != nil && existing.Status.Terminal() {
		return persistence.NewExecutionError("SaveExecution", execution.ID, persistence.ErrExecutionFinished)
	}

	return er.write(execution)
}

func (er *ExecutionRepository) write(execution *models.FlowExecution) error {
	if err := os.MkdirAll(er.executionsDir(), 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	toSave := *execution
	if toSave.Variables == nil {
		toSave.Variables = make(map[string]string)
	}

	data, err := json.Marshal(toSave)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	if err := os.WriteFile(filepath.Join(er.executionsDir(), execution.ID+".json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// ClaimDueDelay clears the delay of a due execution and returns it as it was
// before the claim.
func (er *ExecutionRepository) ClaimDueDelay(_ context.Context, id string, now time.Time) (*models.FlowExecution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("ClaimDueDelay", id, persistence.ErrExecutionNotFound)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, err
	}

	if !execution.Waiting(models.WaitDelay) || execution.Wait.ResumeAt == nil || execution.Wait.ResumeAt.After(now) {
		return nil, persistence.NewExecutionError("ClaimDueDelay", id, persistence.ErrExecutionNotDue)
	}

	claimed := *execution
	claimed.Wait = nil

	if err := er.write(&claimed); err != nil {
		return nil, err
	}

	execution.UpdatedAt = claimed.UpdatedAt

	return execution, nil
}

// GetExecution retrieves an execution by its ID.
func (er *ExecutionRepository) GetExecution(_ context.Context, id string) (*models.FlowExecution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.read(id)
}

func (er *ExecutionRepository) read(id string) (*models.FlowExecution, error) {
	data, err := os.ReadFile(filepath.Join(er.executionsDir(), id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.FlowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) all() ([]*models.FlowExecution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(er.executionsDir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.FlowExecution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		execution, err := er.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (er *ExecutionRepository) filter(keep func(*models.FlowExecution) bool) ([]*models.FlowExecution, error) {
	executions, err := er.all()
	if err != nil {
		return nil, err
	}

	kept := make([]*models.FlowExecution, 0)

	for _, execution := range executions {
		if keep(execution) {
			kept = append(kept, execution)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].UpdatedAt.After(kept[j].UpdatedAt)
	})

	return kept, nil
}

// GetExecutionsByFlow lists executions of a flow, most recent first.
func (er *ExecutionRepository) GetExecutionsByFlow(_ context.Context, flowID string) ([]*models.FlowExecution, error) {
	return er.filter(func(execution *models.FlowExecution) bool {
		return execution.FlowID == flowID
	})
}

// FindWaitingBySubscriber lists suspended executions of a subscriber, most recent first.
func (er *ExecutionRepository) FindWaitingBySubscriber(_ context.Context, subscriberID string) ([]*models.FlowExecution, error) {
	return er.filter(func(execution *models.FlowExecution) bool {
		return execution.SubscriberID == subscriberID &&
			execution.Status == models.ExecutionStatusRunning &&
			execution.Wait != nil
	})
}

// FindDueDelays lists executions whose sequence delay has elapsed.
func (er *ExecutionRepository) FindDueDelays(_ context.Context, now time.Time) ([]*models.FlowExecution, error) {
	return er.filter(func(execution *models.FlowExecution) bool {
		return execution.Waiting(models.WaitDelay) &&
			execution.Wait.ResumeAt != nil &&
			!execution.Wait.ResumeAt.After(now)
	})
}

// RecordNodeExecution appends an audit row to the execution's trail.
func (er *ExecutionRepository) RecordNodeExecution(_ context.Context, nodeExecution *models.NodeExecution) error {
	if err := validateID(nodeExecution.ExecutionID); err != nil {
		return persistence.NewExecutionError("RecordNodeExecution", nodeExecution.ExecutionID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if err := os.MkdirAll(er.nodeExecutionsDir(), 0750); err != nil {
		return fmt.Errorf("failed to create node executions directory: %w", err)
	}

	trail, err := er.readTrail(nodeExecution.ExecutionID)
	if err != nil {
		return err
	}

	if nodeExecution.CreatedAt.IsZero() {
		nodeExecution.CreatedAt = time.Now().UTC()
	}

	trail = append(trail, nodeExecution)

	data, err := json.Marshal(trail)
	if err != nil {
		return fmt.Errorf("failed to marshal node executions of %s: %w", nodeExecution.ExecutionID, err)
	}

	path := filepath.Join(er.nodeExecutionsDir(), nodeExecution.ExecutionID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write node executions of %s: %w", nodeExecution.ExecutionID, err)
	}

	return nil
}

// GetNodeExecutions returns the audit trail of an execution in recording order.
func (er *ExecutionRepository) GetNodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewExecutionError("GetNodeExecutions", executionID, persistence.ErrExecutionNotFound)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.readTrail(executionID)
}

func (er *ExecutionRepository) readTrail(executionID string) ([]*models.NodeExecution, error) {
	data, err := os.ReadFile(filepath.Join(er.nodeExecutionsDir(), executionID+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*models.NodeExecution, 0), nil
		}

		return nil, fmt.Errorf("failed to read node executions of %s: %w", executionID, err)
	}

	var trail []*models.NodeExecution
	if err := json.Unmarshal(data, &trail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node executions of %s: %w", executionID, err)
	}

	return trail, nil
}
