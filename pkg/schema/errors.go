package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeGraph     = "GRAPH_ERROR"     // malformed graph or no viable transition
	ErrCodeAdapter   = "ADAPTER_ERROR"   // downstream tool failure
	ErrCodeTimeout   = "TIMEOUT_ERROR"   // node exceeded its deadline
	ErrCodeConflict  = "CONFLICT"        // duplicate memory record
	ErrCodeConfig    = "CONFIG_ERROR"    // invalid configuration value
	ErrCodeExecution = "EXECUTION_ERROR" // run failed at a node with no error edge
	ErrCodeCancelled = "CANCELLED"       // caller cancelled the run
	ErrCodeNotFound  = "NOT_FOUND"
	ErrCodeStore     = "STORE_ERROR"
)

// AgentError is the structured error type for all finsight operations.
// Node carries the name of the workflow node that produced the error, when
// the error is attributable to one.
type AgentError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Node    string         `json:"node,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentError.
func NewError(code, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

// NewErrorf creates a new AgentError with a formatted message.
func NewErrorf(code, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the originating node name to the error.
func (e *AgentError) WithNode(node string) *AgentError {
	e.Node = node
	return e
}

// WithCause attaches an underlying cause.
func (e *AgentError) WithCause(err error) *AgentError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}

// AsAgentError unwraps err into target when an AgentError is in the chain.
func AsAgentError(err error, target **AgentError) bool {
	return errors.As(err, target)
}

// CodeOf returns the error code of err, or EXECUTION_ERROR when err carries
// no structured code.
func CodeOf(err error) string {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ErrCodeExecution
}

// IsRoutable reports whether a node-level error may be offered to the
// graph's error edges before failing the run. Timeouts are routed the same
// way as adapter failures.
func (e *AgentError) IsRoutable() bool {
	return e.Code == ErrCodeAdapter || e.Code == ErrCodeTimeout
}
