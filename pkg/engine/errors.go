package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound is wrapped by catalogs for ids that no longer exist.
	ErrProductNotFound = errors.New("product not found")

	ErrFlowInactive    = errors.New("flow is not active")
	ErrNodeNotFound    = errors.New("node not found")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrNoStartNode     = errors.New("flow has no start node")
	ErrNoMessenger     = errors.New("no messenger configured")
	ErrNoCatalog       = errors.New("no catalog configured")
	ErrNoAssistant     = errors.New("no assistant configured")
	ErrInvalidInbound  = errors.New("invalid inbound event")
	ErrUnsupportedNode = errors.New("unsupported node type")

	// ErrAbandoned is recorded on executions superseded by a newer trigger.
	ErrAbandoned = errors.New("abandoned: a newer flow was triggered for the subscriber")
)

// StepError is the failure of one node step. Its message is stored on the
// failed execution.
type StepError struct {
	NodeID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
