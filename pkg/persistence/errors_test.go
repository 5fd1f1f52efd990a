package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowError(t *testing.T) {
	err := NewFlowError("GetByID", "flow-1", ErrFlowNotFound)

	assert.Equal(t, "GetByID operation failed for flow flow-1: flow not found", err.Error())
	assert.True(t, IsFlowNotFound(err))
	assert.False(t, IsExecutionNotFound(err))
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestExecutionError(t *testing.T) {
	wrapped := errors.Join(errors.New("disk full"), ErrExecutionNotFound)
	err := NewExecutionError("SaveExecution", "exec-1", wrapped)

	assert.True(t, IsExecutionNotFound(err))
	assert.Contains(t, err.Error(), "exec-1")
}

func TestListFlowsOptions_Normalize(t *testing.T) {
	opts := ListFlowsOptions{Limit: 500, Offset: -3}
	assert.NoError(t, opts.Normalize())
	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Equal(t, "created_at", opts.SortBy)
	assert.Equal(t, "desc", opts.SortOrder)

	opts = ListFlowsOptions{SortBy: "owner"}
	assert.ErrorIs(t, opts.Normalize(), ErrInvalidSort)

	opts = ListFlowsOptions{SortOrder: "sideways"}
	assert.ErrorIs(t, opts.Normalize(), ErrInvalidSort)
}
