// Package model abstracts the language model providers used by the planner,
// summarizer, and review adapters. Prompt content stays with the adapters;
// this package only moves text across the provider boundary.
package model

import (
	"context"
	"strings"
	"sync"
)

// Request is a single completion request.
type Request struct {
	System string // optional system instructions
	Prompt string
}

// Provider produces a text completion for a request. Implementations must
// honor context cancellation and deadlines.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Mock is a deterministic in-memory Provider for tests. Responses are
// matched by substring against the prompt; Default is returned when nothing
// matches. Calls are counted for interaction assertions.
type Mock struct {
	mu        sync.Mutex
	Responses map[string]string
	Default   string
	Err       error
	calls     int
}

// NewMock constructs a Mock with the given default response.
func NewMock(def string) *Mock {
	return &Mock{Responses: make(map[string]string), Default: def}
}

// Name returns the provider identifier.
func (m *Mock) Name() string { return "mock" }

// Complete returns the canned response matching the prompt.
func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for needle, resp := range m.Responses {
		if strings.Contains(req.Prompt, needle) {
			return resp, nil
		}
	}
	return m.Default, nil
}

// Calls returns how many times Complete was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Provider = (*Mock)(nil)
