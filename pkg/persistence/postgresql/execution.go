package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

const executionColumns = `id, flow_id, subscriber_id, channel, status, current_node_id, variables, wait,
	parent_execution_id, continued_as, error_message, created_at, updated_at, completed_at`

// ExecutionRepository handles execution and node audit operations. The
// suspension is stored as JSONB with its kind and resume time copied into
// plain columns so the delay scheduler can query them by index.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// SaveExecution upserts an execution.
func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.FlowExecution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	variables := execution.Variables
	if variables == nil {
		variables = make(map[string]string)
	}

	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	var (
		waitJSON []byte
		waitKind sql.NullString
		resumeAt sql.NullTime
	)

	if execution.Wait != nil {
		waitJSON, err = json.Marshal(execution.Wait)
		if err != nil {
			return fmt.Errorf("failed to marshal wait: %w", err)
		}

		waitKind = sql.NullString{String: string(execution.Wait.Kind), Valid: true}
		if execution.Wait.ResumeAt != nil {
			resumeAt = sql.NullTime{Time: *execution.Wait.ResumeAt, Valid: true}
		}
	}

	query := `
		INSERT INTO flow_executions (` + executionColumns + `, wait_kind, resume_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			variables = EXCLUDED.variables,
			wait = EXCLUDED.wait,
			wait_kind = EXCLUDED.wait_kind,
			resume_at = EXCLUDED.resume_at,
			continued_as = EXCLUDED.continued_as,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
		WHERE flow_executions.status NOT IN ($17, $18)`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID, execution.FlowID, execution.SubscriberID, execution.Channel,
		string(execution.Status), execution.CurrentNodeID, variablesJSON, nullableJSON(waitJSON),
		execution.ParentExecutionID, execution.ContinuedAs, execution.Error,
		execution.CreatedAt, execution.UpdatedAt, execution.CompletedAt, waitKind, resumeAt,
		string(models.ExecutionStatusCompleted), string(models.ExecutionStatusFailed))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save execution", "execution_id", execution.ID, "error", err)

		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("SaveExecution", execution.ID, persistence.ErrExecutionFinished)
	}

	return nil
}

// ClaimDueDelay clears the delay of a due execution in one statement. The row
// lock makes a concurrent claim re-check the cleared row and match nothing.
func (r *ExecutionRepository) ClaimDueDelay(ctx context.Context, id string, now time.Time) (*models.FlowExecution, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE flow_executions AS f
		SET wait = NULL, wait_kind = NULL, resume_at = NULL, updated_at = $4
		FROM (
			SELECT id, wait FROM flow_executions
			WHERE id = $1 AND status = $2 AND wait_kind = $3 AND resume_at <= $5
			FOR UPDATE
		) AS claimed
		WHERE f.id = claimed.id
		RETURNING f.id, f.flow_id, f.subscriber_id, f.channel, f.status, f.current_node_id, f.variables,
			claimed.wait, f.parent_execution_id, f.continued_as, f.error_message, f.created_at,
			f.updated_at, f.completed_at`,
		id, string(models.ExecutionStatusRunning), string(models.WaitDelay), time.Now().UTC(), now)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("ClaimDueDelay", id, persistence.ErrExecutionNotDue)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to claim execution %s: %w", id, err)
	}

	return execution, nil
}

// GetExecution retrieves an execution by its ID.
func (r *ExecutionRepository) GetExecution(ctx context.Context, id string) (*models.FlowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM flow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}

	return execution, nil
}

// GetExecutionsByFlow returns the executions of a flow, newest first.
func (r *ExecutionRepository) GetExecutionsByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	return r.query(ctx,
		`SELECT `+executionColumns+` FROM flow_executions WHERE flow_id = $1 ORDER BY updated_at DESC`, flowID)
}

// FindWaitingBySubscriber returns the suspended executions of a subscriber.
func (r *ExecutionRepository) FindWaitingBySubscriber(ctx context.Context, subscriberID string) ([]*models.FlowExecution, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+` FROM flow_executions
		WHERE subscriber_id = $1 AND status = $2 AND wait IS NOT NULL
		ORDER BY updated_at DESC`, subscriberID, string(models.ExecutionStatusRunning))
}

// FindDueDelays returns executions whose delay elapsed at or before now.
func (r *ExecutionRepository) FindDueDelays(ctx context.Context, now time.Time) ([]*models.FlowExecution, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+` FROM flow_executions
		WHERE status = $1 AND wait_kind = $2 AND resume_at <= $3
		ORDER BY resume_at`, string(models.ExecutionStatusRunning), string(models.WaitDelay), now)
}

// RecordNodeExecution appends an audit row.
func (r *ExecutionRepository) RecordNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	if nodeExecution.CreatedAt.IsZero() {
		nodeExecution.CreatedAt = time.Now().UTC()
	}

	var output []byte

	if len(nodeExecution.Output) > 0 {
		var err error

		output, err = json.Marshal(nodeExecution.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal node output: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO node_executions (id, execution_id, flow_id, node_id, node_type, status, error_message, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		nodeExecution.ID, nodeExecution.ExecutionID, nodeExecution.FlowID, nodeExecution.NodeID,
		string(nodeExecution.NodeType), string(nodeExecution.Status), nodeExecution.Error,
		nullableJSON(output), nodeExecution.CreatedAt)
	if err != nil {
		return persistence.NewExecutionError("RecordNodeExecution", nodeExecution.ExecutionID, err)
	}

	return nil
}

// GetNodeExecutions returns the audit trail of an execution in visit order.
func (r *ExecutionRepository) GetNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, flow_id, node_id, node_type, status, error_message, output, created_at
		FROM node_executions WHERE execution_id = $1 ORDER BY seq`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}
	defer rows.Close()

	nodeExecutions := make([]*models.NodeExecution, 0)

	for rows.Next() {
		var (
			ne               models.NodeExecution
			nodeType, status string
			output           []byte
		)

		if err := rows.Scan(&ne.ID, &ne.ExecutionID, &ne.FlowID, &ne.NodeID, &nodeType, &status,
			&ne.Error, &output, &ne.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		ne.NodeType = models.NodeType(nodeType)
		ne.Status = models.NodeStatus(status)

		if len(output) > 0 {
			if err := json.Unmarshal(output, &ne.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
			}
		}

		nodeExecutions = append(nodeExecutions, &ne)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node executions: %w", err)
	}

	return nodeExecutions, nil
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.FlowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.FlowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.FlowExecution, error) {
	var (
		execution       models.FlowExecution
		status          string
		variables, wait []byte
		completedAt     sql.NullTime
	)

	err := row.Scan(&execution.ID, &execution.FlowID, &execution.SubscriberID, &execution.Channel,
		&status, &execution.CurrentNodeID, &variables, &wait, &execution.ParentExecutionID,
		&execution.ContinuedAs, &execution.Error, &execution.CreatedAt, &execution.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if err := json.Unmarshal(variables, &execution.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if len(wait) > 0 {
		execution.Wait = &models.Suspension{}
		if err := json.Unmarshal(wait, execution.Wait); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wait: %w", err)
		}
	}

	if completedAt.Valid {
		t := completedAt.Time
		execution.CompletedAt = &t
	}

	return &execution, nil
}

// nullableJSON maps an empty document to SQL NULL.
func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}
