package tools

import (
	"sort"
	"sync"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// Registry is a thread-safe adapter registry. It is populated at startup
// and shared read-only across concurrent workflow runs.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry. Returns error on duplicate name.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return schema.NewError(schema.ErrCodeConfig, "adapter is nil")
	}
	name := a.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeConfig, "adapter name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "adapter %q already registered", name)
	}

	r.adapters[name] = a
	return nil
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "adapter %q not registered", name)
	}
	return a, nil
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
