package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentError_Message(t *testing.T) {
	err := NewError(ErrCodeAdapter, "upstream 503")
	assert.Equal(t, "[ADAPTER_ERROR] upstream 503", err.Error())

	err = err.WithNode("collect")
	assert.Equal(t, "[ADAPTER_ERROR] node collect: upstream 503", err.Error())
}

func TestAgentError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(ErrCodeStore, "append failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	var agentErr *AgentError
	require.True(t, AsAgentError(wrapped, &agentErr))
	assert.Equal(t, ErrCodeStore, agentErr.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeConflict, CodeOf(NewError(ErrCodeConflict, "dup")))
	assert.Equal(t, ErrCodeExecution, CodeOf(errors.New("plain")))
}

func TestAgentError_IsRoutable(t *testing.T) {
	assert.True(t, NewError(ErrCodeAdapter, "x").IsRoutable())
	assert.True(t, NewError(ErrCodeTimeout, "x").IsRoutable())

	for _, code := range []string{ErrCodeGraph, ErrCodeConfig, ErrCodeExecution, ErrCodeCancelled, ErrCodeConflict, ErrCodeNotFound, ErrCodeStore} {
		assert.False(t, NewError(code, "x").IsRoutable(), code)
	}
}

func TestAgentError_Details(t *testing.T) {
	err := NewErrorf(ErrCodeTimeout, "exceeded %s", "30s").
		WithDetails(map[string]any{"timeout": "30s"}).
		WithNode("collect")

	assert.Equal(t, "collect", err.Node)
	assert.Equal(t, "30s", err.Details["timeout"])
}
