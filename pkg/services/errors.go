// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/validation"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidSort    = errors.New("invalid sort parameters")
	ErrEmptyOwner     = errors.New("owner cannot be empty")
	ErrInvalidEdge    = errors.New("invalid edge")

	// Not Found Errors (404 Not Found).
	ErrFlowNotFound      = persistence.ErrFlowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")

	// Business Logic Conflicts (409 Conflict).
	ErrStartNodeLocked  = errors.New("the start node cannot be deleted or change type")
	ErrDuplicateStart   = errors.New("a flow has exactly one start node")
	ErrActiveFlowBroken = errors.New("change would leave an active flow invalid")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	if _, ok := validation.AsErrors(err); ok && !errors.Is(err, ErrActiveFlowBroken) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSort) ||
		errors.Is(err, ErrEmptyOwner) ||
		errors.Is(err, ErrInvalidEdge)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStartNodeLocked) ||
		errors.Is(err, ErrDuplicateStart) ||
		errors.Is(err, ErrActiveFlowBroken)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationErrors returns the field errors carried by err, if any.
func ValidationErrors(err error) validation.Errors {
	errs, _ := validation.AsErrors(err)

	return errs
}
